package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/plugtrack/backend/internal/services"
	"github.com/plugtrack/backend/internal/utils"
	"go.uber.org/zap"
)

// InvalidateRequest defines the request body for dropping cached history after new readings
type InvalidateRequest struct {
	DeviceID string    `json:"device_id" binding:"required"`
	After    time.Time `json:"after" binding:"required"`
}

// InvalidateRateRequest defines the request body for dropping costs priced with an old schedule.
// An empty DeviceID applies to every device.
type InvalidateRateRequest struct {
	DeviceID string `json:"device_id"`
	Version  string `json:"version" binding:"required,max=64"`
}

// InvalidateResponse reports how many cached results were dropped
type InvalidateResponse struct {
	Removed int `json:"removed"`
}

// CacheController exposes history cache maintenance to administrators
type CacheController struct {
	historyService *services.HistoryService
	logger         *utils.Logger
}

// NewCacheController creates a new cache controller
func NewCacheController(historyService *services.HistoryService, logger *utils.Logger) *CacheController {
	return &CacheController{
		historyService: historyService,
		logger:         logger.Named("cache_controller"),
	}
}

// RegisterRoutes registers the cache routes
func (c *CacheController) RegisterRoutes(router *gin.RouterGroup) {
	cache := router.Group("/cache")
	cache.GET("/stats", c.GetStats)
	cache.POST("/invalidate", c.Invalidate)
	cache.POST("/invalidate-rate", c.InvalidateRate)
}

// GetStats returns history cache statistics
// @Summary Cache statistics
// @Tags admin
// @Produce json
// @Security Bearer
// @Success 200 {object} history.CacheStats "Statistics"
// @Failure 403 {object} utils.ErrorResponse "Forbidden"
// @Router /admin/cache/stats [get]
func (c *CacheController) GetStats(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, c.historyService.CacheStats())
}

// Invalidate drops cached history of a device whose window ends at or after the given time
// @Summary Invalidate cached history
// @Tags admin
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body InvalidateRequest true "Device and time"
// @Success 200 {object} InvalidateResponse "Removed entries"
// @Failure 400 {object} utils.ValidationErrorResponse "Validation error"
// @Router /admin/cache/invalidate [post]
func (c *CacheController) Invalidate(ctx *gin.Context) {
	var req InvalidateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.HandleValidationErrors(ctx, err)
		return
	}

	removed := c.historyService.InvalidateReadings(req.DeviceID, req.After)
	c.logger.Info("Invalidated cached history",
		zap.String("device_id", req.DeviceID),
		zap.Time("after", req.After),
		zap.Int("removed", removed))

	ctx.JSON(http.StatusOK, InvalidateResponse{Removed: removed})
}

// InvalidateRate drops cached costs computed with a rate version other than the given one
// @Summary Invalidate cached costs
// @Tags admin
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body InvalidateRateRequest true "Device and current version"
// @Success 200 {object} InvalidateResponse "Removed entries"
// @Failure 400 {object} utils.ValidationErrorResponse "Validation error"
// @Router /admin/cache/invalidate-rate [post]
func (c *CacheController) InvalidateRate(ctx *gin.Context) {
	var req InvalidateRateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.HandleValidationErrors(ctx, err)
		return
	}

	removed := c.historyService.InvalidateRate(req.DeviceID, req.Version)
	c.logger.Info("Invalidated cached costs",
		zap.String("device_id", req.DeviceID),
		zap.String("version", req.Version),
		zap.Int("removed", removed))

	ctx.JSON(http.StatusOK, InvalidateResponse{Removed: removed})
}
