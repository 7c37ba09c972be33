package kafka

import (
	"encoding/json"
	"fmt"
	"time"
)

// Topic constants for the application
const (
	// TopicReadingsIngested carries a notice each time new raw readings are stored for a device
	TopicReadingsIngested = "readings-ingested"
	// TopicRateSchedules carries a notice each time a rate schedule version is published
	TopicRateSchedules = "rate-schedules"
)

// ReadingsIngestedEvent announces readings stored at or after Timestamp
type ReadingsIngestedEvent struct {
	DeviceID  string    `json:"deviceId"`
	Timestamp time.Time `json:"timestamp"`
	Count     int       `json:"count,omitempty"`
}

// RateChangedEvent announces a new rate schedule version. An empty DeviceID
// means the default schedule changed.
type RateChangedEvent struct {
	DeviceID string `json:"deviceId"`
	Version  string `json:"version"`
}

// DecodeReadingsIngested parses and checks a readings-ingested payload
func DecodeReadingsIngested(value []byte) (ReadingsIngestedEvent, error) {
	var event ReadingsIngestedEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return event, fmt.Errorf("failed to unmarshal readings-ingested event: %w", err)
	}
	if event.DeviceID == "" {
		return event, fmt.Errorf("readings-ingested event has no deviceId")
	}
	if event.Timestamp.IsZero() {
		return event, fmt.Errorf("readings-ingested event for %s has no timestamp", event.DeviceID)
	}
	return event, nil
}

// DecodeRateChanged parses and checks a rate-schedules payload
func DecodeRateChanged(value []byte) (RateChangedEvent, error) {
	var event RateChangedEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return event, fmt.Errorf("failed to unmarshal rate schedule event: %w", err)
	}
	if event.Version == "" {
		return event, fmt.Errorf("rate schedule event has no version")
	}
	return event, nil
}
