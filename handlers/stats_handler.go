package handlers

import (
	"github.com/gin-gonic/gin"

	"crowpro-api/helper"
	"crowpro-api/middleware"
	"crowpro-api/models"
	"crowpro-api/services"
)

type StatsHandler struct {
	statsService services.StatsService
	logService   services.RequestLogService
	Helper       *helper.HTTPHelper
}

func NewStatsHandler(statsService services.StatsService, logService services.RequestLogService, h *helper.HTTPHelper) *StatsHandler {
	return &StatsHandler{statsService: statsService, logService: logService, Helper: h}
}

func (h *StatsHandler) Statistics(c *gin.Context) {
	stats, err := h.statsService.Get(c.Request.Context(), middleware.CurrentUser(c))
	if err != nil {
		h.Helper.SendErrorFrom(c, err)
		return
	}

	h.Helper.SendSuccess(c, "Statistics loaded", stats)
}

func (h *StatsHandler) RequestLogs(c *gin.Context) {
	var params models.RequestLogListParams
	if err := c.ShouldBindQuery(&params); err != nil {
		h.Helper.SendBindError(c, err)
		return
	}

	entries, total, err := h.logService.List(c.Request.Context(), middleware.CurrentUser(c), params)
	if err != nil {
		h.Helper.SendErrorFrom(c, err)
		return
	}

	h.Helper.SendPaged(c, "Request logs loaded", entries, pageOf(params.Page), limitOf(params.Limit), total)
}
