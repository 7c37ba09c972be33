package services

import (
	"fmt"
	"time"

	"github.com/plugtrack/backend/internal/kafka"
	"github.com/plugtrack/backend/internal/utils"
	"go.uber.org/zap"
)

// cacheInvalidator is the part of HistoryService driven by ingestion events
type cacheInvalidator interface {
	InvalidateReadings(deviceID string, after time.Time) int
	InvalidateRate(deviceID, version string) int
}

// eventSubscriber registers typed event handlers; implemented by kafka.Manager
type eventSubscriber interface {
	RegisterReadingsIngestedHandler(name string, handler func(kafka.ReadingsIngestedEvent) error) error
	RegisterRateChangedHandler(name string, handler func(kafka.RateChangedEvent) error) error
}

// InvalidationHandler keeps the history cache consistent with ingestion and tariff events
type InvalidationHandler struct {
	logger  *utils.Logger
	history cacheInvalidator
}

// NewInvalidationHandler creates a new handler invalidating history's cache
func NewInvalidationHandler(logger *utils.Logger, history cacheInvalidator) *InvalidationHandler {
	return &InvalidationHandler{
		logger:  logger.Named("invalidation_handler"),
		history: history,
	}
}

// Initialize registers the handler's consumers
func (h *InvalidationHandler) Initialize(subscriber eventSubscriber) error {
	if err := subscriber.RegisterReadingsIngestedHandler("history-cache", h.handleReadingsIngested); err != nil {
		return fmt.Errorf("failed to register readings handler: %w", err)
	}
	if err := subscriber.RegisterRateChangedHandler("history-cache", h.handleRateChanged); err != nil {
		return fmt.Errorf("failed to register rate schedule handler: %w", err)
	}
	return nil
}

func (h *InvalidationHandler) handleReadingsIngested(event kafka.ReadingsIngestedEvent) error {
	removed := h.history.InvalidateReadings(event.DeviceID, event.Timestamp)
	h.logger.Debug("Processed readings-ingested event",
		zap.String("device_id", event.DeviceID),
		zap.Time("timestamp", event.Timestamp),
		zap.Int("count", event.Count),
		zap.Int("evicted", removed))
	return nil
}

func (h *InvalidationHandler) handleRateChanged(event kafka.RateChangedEvent) error {
	removed := h.history.InvalidateRate(event.DeviceID, event.Version)
	h.logger.Info("Processed rate schedule event",
		zap.String("device_id", event.DeviceID),
		zap.String("version", event.Version),
		zap.Int("evicted", removed))
	return nil
}
