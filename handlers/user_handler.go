package handlers

import (
	"github.com/gin-gonic/gin"

	"crowpro-api/helper"
	"crowpro-api/middleware"
	"crowpro-api/models"
	"crowpro-api/services"
)

type UserHandler struct {
	userService services.UserService
	Helper      *helper.HTTPHelper
}

func NewUserHandler(userService services.UserService, h *helper.HTTPHelper) *UserHandler {
	return &UserHandler{userService: userService, Helper: h}
}

// List returns active users, optionally narrowed to the given roles.
func (h *UserHandler) List(roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		var params models.UserListParams
		if err := c.ShouldBindQuery(&params); err != nil {
			h.Helper.SendBindError(c, err)
			return
		}
		params.Roles = roles

		users, total, err := h.userService.List(c.Request.Context(), middleware.CurrentUser(c), params)
		if err != nil {
			h.Helper.SendErrorFrom(c, err)
			return
		}

		h.Helper.SendPaged(c, "Users loaded", users, pageOf(params.Page), limitOf(params.Limit), total)
	}
}

func (h *UserHandler) Get(c *gin.Context) {
	id, ok := paramID(c, h.Helper, "id")
	if !ok {
		return
	}

	user, err := h.userService.Get(c.Request.Context(), middleware.CurrentUser(c), id)
	if err != nil {
		h.Helper.SendErrorFrom(c, err)
		return
	}

	h.Helper.SendSuccess(c, "User loaded", user)
}

func (h *UserHandler) UpdateMe(c *gin.Context) {
	var req models.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Helper.SendBindError(c, err)
		return
	}

	user, err := h.userService.UpdateProfile(c.Request.Context(), middleware.CurrentUser(c), req)
	if err != nil {
		h.Helper.SendErrorFrom(c, err)
		return
	}

	h.Helper.SendSuccess(c, "Profile updated", user)
}

func (h *UserHandler) UpdateMyImage(c *gin.Context) {
	upload, closer, ok := formImage(c, h.Helper, "profile_img")
	if !ok {
		return
	}
	defer closer.Close()

	user, err := h.userService.UpdateProfileImage(c.Request.Context(), middleware.CurrentUser(c), upload)
	if err != nil {
		h.Helper.SendErrorFrom(c, err)
		return
	}

	h.Helper.SendSuccess(c, "Profile image updated", user)
}

func (h *UserHandler) DeactivateMe(c *gin.Context) {
	actor := middleware.CurrentUser(c)
	if err := h.userService.Deactivate(c.Request.Context(), actor, actor.ID); err != nil {
		h.Helper.SendErrorFrom(c, err)
		return
	}

	h.Helper.SendNoContent(c)
}

func (h *UserHandler) Deactivate(c *gin.Context) {
	id, ok := paramID(c, h.Helper, "id")
	if !ok {
		return
	}

	if err := h.userService.Deactivate(c.Request.Context(), middleware.CurrentUser(c), id); err != nil {
		h.Helper.SendErrorFrom(c, err)
		return
	}

	h.Helper.SendNoContent(c)
}

func (h *UserHandler) ChangeRole(c *gin.Context) {
	id, ok := paramID(c, h.Helper, "id")
	if !ok {
		return
	}

	var req models.ChangeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Helper.SendBindError(c, err)
		return
	}

	user, err := h.userService.ChangeRole(c.Request.Context(), middleware.CurrentUser(c), id, req.Role)
	if err != nil {
		h.Helper.SendErrorFrom(c, err)
		return
	}

	h.Helper.SendSuccess(c, "Role changed", user)
}
