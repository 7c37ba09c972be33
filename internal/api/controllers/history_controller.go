package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/plugtrack/backend/internal/services"
	"github.com/plugtrack/backend/internal/utils"
	"go.uber.org/zap"
)

// HistoryQuery defines the query parameters of a history request.
// Either Period or both Start and End must be given.
type HistoryQuery struct {
	Period      string    `form:"period" binding:"omitempty,oneof=24h 7d 30d 3m 6m 1y"`
	Start       time.Time `form:"start" time_format:"2006-01-02T15:04:05Z07:00"`
	End         time.Time `form:"end" time_format:"2006-01-02T15:04:05Z07:00"`
	Aggregation string    `form:"aggregation" binding:"omitempty,oneof=auto raw 1min 5min hourly 6hourly daily weekly monthly"`
	Timezone    string    `form:"tz" binding:"omitempty,iana_tz"`
}

// HistoryController handles device and history requests
type HistoryController struct {
	historyService *services.HistoryService
	logger         *utils.Logger
}

// NewHistoryController creates a new history controller
func NewHistoryController(historyService *services.HistoryService, logger *utils.Logger) *HistoryController {
	return &HistoryController{
		historyService: historyService,
		logger:         logger.Named("history_controller"),
	}
}

// RegisterRoutes registers the device routes
func (c *HistoryController) RegisterRoutes(router *gin.RouterGroup) {
	devices := router.Group("/devices")
	devices.GET("", c.ListDevices)
	devices.GET("/:id/history", c.GetHistory)
}

// ListDevices returns the registered devices
// @Summary List devices
// @Description Returns a page of registered devices ordered by id, each with its latest reading when the store provides one
// @Tags devices
// @Produce json
// @Security Bearer
// @Param page query int false "Page number"
// @Param limit query int false "Items per page"
// @Success 200 {object} utils.PaginatedResponse "Devices"
// @Failure 401 {object} utils.ErrorResponse "Unauthorized"
// @Failure 500 {object} utils.ErrorResponse "Server error"
// @Router /devices [get]
func (c *HistoryController) ListDevices(ctx *gin.Context) {
	pagination := utils.GetPaginationFromContext(ctx)

	devices, total, err := c.historyService.ListDevices(ctx.Request.Context(), pagination)
	if err != nil {
		utils.HandleError(ctx, err, c.logger)
		return
	}

	ctx.JSON(http.StatusOK, utils.NewPaginatedResponse(devices, pagination, total))
}

// GetHistory returns the bucketed power and cost history of a device
// @Summary Get device history
// @Description Returns power statistics, energy and cost per bucket for a named period or an explicit range
// @Tags devices
// @Produce json
// @Security Bearer
// @Param id path string true "Device ID"
// @Param period query string false "Named period (24h, 7d, 30d, 3m, 6m, 1y)"
// @Param start query string false "Range start (RFC3339)"
// @Param end query string false "Range end (RFC3339)"
// @Param aggregation query string false "Aggregation level, auto when omitted"
// @Param tz query string false "IANA timezone for calendar buckets"
// @Success 200 {object} history.Result "History"
// @Failure 400 {object} utils.ErrorResponse "Invalid period or aggregation"
// @Failure 404 {object} utils.ErrorResponse "Device not found"
// @Failure 422 {object} utils.ErrorResponse "Rate schedule invalid"
// @Failure 504 {object} utils.ErrorResponse "Upstream timeout"
// @Router /devices/{id}/history [get]
func (c *HistoryController) GetHistory(ctx *gin.Context) {
	deviceID := ctx.Param("id")

	var query HistoryQuery
	if err := ctx.ShouldBindQuery(&query); err != nil {
		utils.HandleValidationErrors(ctx, err)
		return
	}

	result, err := c.historyService.GetHistory(ctx.Request.Context(), deviceID, services.HistoryRequest{
		Period:      query.Period,
		Start:       query.Start,
		End:         query.End,
		Aggregation: query.Aggregation,
		Timezone:    query.Timezone,
	})
	if err != nil {
		if ctx.Request.Context().Err() != nil {
			c.logger.Debug("Client went away during history query", zap.String("device_id", deviceID))
			ctx.Status(499)
			return
		}
		utils.HandleError(ctx, err, c.logger)
		return
	}

	ctx.JSON(http.StatusOK, result)
}
