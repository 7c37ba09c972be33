package history

import (
	"context"
	"time"
)

// ReadingStore returns raw readings for a device, ascending by timestamp.
// Implementations must be safe for concurrent use.
type ReadingStore interface {
	FetchReadings(ctx context.Context, deviceID string, start, end time.Time) ([]Reading, error)
}

// RateProvider returns the rate schedule snapshot in force at asOf
type RateProvider interface {
	CurrentSchedule(ctx context.Context, deviceID string, asOf time.Time) (RateSchedule, error)
}

// DeviceDirectory resolves device identifiers. Unknown devices yield ErrDeviceNotFound.
type DeviceDirectory interface {
	LookupDevice(ctx context.Context, deviceID string) (Device, error)
}

// Clock abstracts wall-clock time so cache expiry and period resolution can be tested
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real time
type SystemClock struct{}

// Now returns the current time
func (SystemClock) Now() time.Time {
	return time.Now()
}
