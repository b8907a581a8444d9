package handlers

import (
	"errors"
	"io"

	"github.com/gin-gonic/gin"

	"crowpro-api/helper"
	"crowpro-api/middleware"
	"crowpro-api/models"
	"crowpro-api/services"
)

// PublicationHandler serves articles and editorials. Routes shared by both
// types are built per type.
type PublicationHandler struct {
	pubService services.PublicationService
	Helper     *helper.HTTPHelper
}

func NewPublicationHandler(pubService services.PublicationService, h *helper.HTTPHelper) *PublicationHandler {
	return &PublicationHandler{pubService: pubService, Helper: h}
}

func (h *PublicationHandler) bindList(c *gin.Context) (models.PublicationListParams, bool) {
	var params models.PublicationListParams
	if err := c.ShouldBindQuery(&params); err != nil {
		h.Helper.SendBindError(c, err)
		return params, false
	}
	return params, true
}

func (h *PublicationHandler) List(pubType models.PublicationType) gin.HandlerFunc {
	return func(c *gin.Context) {
		params, ok := h.bindList(c)
		if !ok {
			return
		}
		params.Type = pubType

		items, total, err := h.pubService.List(c.Request.Context(), middleware.CurrentUser(c), params)
		if err != nil {
			h.Helper.SendErrorFrom(c, err)
			return
		}

		h.Helper.SendPaged(c, "Publications loaded", items, pageOf(params.Page), limitOf(params.Limit), total)
	}
}

func (h *PublicationHandler) Get(pubType models.PublicationType) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := h.pubService.Get(c.Request.Context(), middleware.CurrentUser(c), pubType, c.Param("slug"))
		if err != nil {
			h.Helper.SendErrorFrom(c, err)
			return
		}

		h.Helper.SendSuccess(c, "Publication loaded", p)
	}
}

func (h *PublicationHandler) Create(pubType models.PublicationType) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.CreatePublicationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			h.Helper.SendBindError(c, err)
			return
		}

		p, err := h.pubService.Create(c.Request.Context(), middleware.CurrentUser(c), pubType, req)
		if err != nil {
			h.Helper.SendErrorFrom(c, err)
			return
		}

		h.Helper.SendCreated(c, "Publication created", p)
	}
}

func (h *PublicationHandler) Update(pubType models.PublicationType) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.UpdatePublicationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			h.Helper.SendBindError(c, err)
			return
		}

		p, err := h.pubService.Update(c.Request.Context(), middleware.CurrentUser(c), pubType, c.Param("slug"), req)
		if err != nil {
			h.Helper.SendErrorFrom(c, err)
			return
		}

		h.Helper.SendSuccess(c, "Publication updated", p)
	}
}

func (h *PublicationHandler) Hide(pubType models.PublicationType) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.pubService.Hide(c.Request.Context(), middleware.CurrentUser(c), pubType, c.Param("slug")); err != nil {
			h.Helper.SendErrorFrom(c, err)
			return
		}

		h.Helper.SendNoContent(c)
	}
}

func (h *PublicationHandler) UpdateAuthors(pubType models.PublicationType) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.UpdateAuthorsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			h.Helper.SendBindError(c, err)
			return
		}

		p, err := h.pubService.UpdateAuthors(c.Request.Context(), middleware.CurrentUser(c), pubType, c.Param("slug"), req.AuthorIDs)
		if err != nil {
			h.Helper.SendErrorFrom(c, err)
			return
		}

		h.Helper.SendSuccess(c, "Authors updated", p)
	}
}

func (h *PublicationHandler) UploadThumbnail(pubType models.PublicationType) gin.HandlerFunc {
	return func(c *gin.Context) {
		upload, closer, ok := formImage(c, h.Helper, "thumbnail")
		if !ok {
			return
		}
		defer closer.Close()

		p, err := h.pubService.UploadThumbnail(c.Request.Context(), middleware.CurrentUser(c), pubType, c.Param("slug"), upload)
		if err != nil {
			h.Helper.SendErrorFrom(c, err)
			return
		}

		h.Helper.SendSuccess(c, "Thumbnail uploaded", p)
	}
}

// PublicList lists published content of every type, whoever asks.
func (h *PublicationHandler) PublicList(c *gin.Context) {
	params, ok := h.bindList(c)
	if !ok {
		return
	}

	items, total, err := h.pubService.List(c.Request.Context(), nil, params)
	if err != nil {
		h.Helper.SendErrorFrom(c, err)
		return
	}

	h.Helper.SendPaged(c, "Publications loaded", items, pageOf(params.Page), limitOf(params.Limit), total)
}

func (h *PublicationHandler) PublicGet(c *gin.Context) {
	p, err := h.pubService.Get(c.Request.Context(), nil, "", c.Param("slug"))
	if err != nil {
		h.Helper.SendErrorFrom(c, err)
		return
	}

	h.Helper.SendSuccess(c, "Publication loaded", p)
}

func (h *PublicationHandler) Approve(c *gin.Context) {
	p, err := h.pubService.Approve(c.Request.Context(), middleware.CurrentUser(c), c.Param("slug"))
	if err != nil {
		h.Helper.SendErrorFrom(c, err)
		return
	}

	h.Helper.SendSuccess(c, "Publication approved", p)
}

func (h *PublicationHandler) Publish(c *gin.Context) {
	var req models.PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.Helper.SendBindError(c, err)
		return
	}

	p, err := h.pubService.Publish(c.Request.Context(), middleware.CurrentUser(c), c.Param("slug"), req.PublishAt)
	if err != nil {
		h.Helper.SendErrorFrom(c, err)
		return
	}

	h.Helper.SendSuccess(c, "Publication published", p)
}

func (h *PublicationHandler) Unpublish(c *gin.Context) {
	p, err := h.pubService.Unpublish(c.Request.Context(), middleware.CurrentUser(c), c.Param("slug"))
	if err != nil {
		h.Helper.SendErrorFrom(c, err)
		return
	}

	h.Helper.SendSuccess(c, "Publication unpublished", p)
}

func (h *PublicationHandler) ListMine(c *gin.Context) {
	params, ok := h.bindList(c)
	if !ok {
		return
	}

	items, total, err := h.pubService.ListMine(c.Request.Context(), middleware.CurrentUser(c), params)
	if err != nil {
		h.Helper.SendErrorFrom(c, err)
		return
	}

	h.Helper.SendPaged(c, "Publications loaded", items, pageOf(params.Page), limitOf(params.Limit), total)
}

func (h *PublicationHandler) ListByAuthor(c *gin.Context) {
	id, ok := paramID(c, h.Helper, "id")
	if !ok {
		return
	}

	params, ok := h.bindList(c)
	if !ok {
		return
	}

	items, total, err := h.pubService.ListByAuthor(c.Request.Context(), id, params)
	if err != nil {
		h.Helper.SendErrorFrom(c, err)
		return
	}

	h.Helper.SendPaged(c, "Publications loaded", items, pageOf(params.Page), limitOf(params.Limit), total)
}
