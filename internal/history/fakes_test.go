package history

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/plugtrack/backend/internal/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeStore serves readings from memory. It can block, hang until the
// attempt times out, or fail.
type fakeStore struct {
	readings []Reading

	calls     atomic.Int32
	started   chan struct{}
	block     chan struct{}
	hangCalls int32
	err       error
}

func (s *fakeStore) FetchReadings(ctx context.Context, deviceID string, start, end time.Time) ([]Reading, error) {
	n := s.calls.Add(1)
	if s.started != nil {
		select {
		case s.started <- struct{}{}:
		default:
		}
	}
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if n <= s.hangCalls {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}

	out := make([]Reading, 0, len(s.readings))
	for _, r := range s.readings {
		if r.DeviceID == deviceID && !r.Timestamp.Before(start) && r.Timestamp.Before(end) {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeRates struct {
	mu    sync.Mutex
	sched RateSchedule
	err   error
}

func (r *fakeRates) CurrentSchedule(ctx context.Context, deviceID string, asOf time.Time) (RateSchedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sched, r.err
}

func (r *fakeRates) set(sched RateSchedule) {
	r.mu.Lock()
	r.sched = sched
	r.mu.Unlock()
}

type fakeDevices map[string]Device

func (d fakeDevices) LookupDevice(ctx context.Context, deviceID string) (Device, error) {
	device, ok := d[deviceID]
	if !ok {
		return Device{}, ErrDeviceNotFound
	}
	return device, nil
}

func simpleSchedule(version, rate string) RateSchedule {
	return RateSchedule{
		Version:  version,
		Kind:     RateSimple,
		Currency: "USD",
		FlatRate: decimal.RequireFromString(rate),
	}
}

func testOptions(clock Clock) Options {
	return Options{
		MaxPoints:       300,
		MaxPeriod:       366 * 24 * time.Hour,
		RawMaxWindow:    2 * time.Hour,
		FetchTimeout:    time.Second,
		WindowAlignment: time.Minute,
		DefaultLocation: time.UTC,
		Clock:           clock,
	}
}

func newTestEngine(store *fakeStore, rates *fakeRates, devices fakeDevices, opts Options) *Engine {
	return NewEngine(store, rates, devices, opts, utils.NewNopLogger())
}

// evenReadings returns n readings spaced step apart with a counter growing by whPerStep
func evenReadings(deviceID string, start time.Time, step time.Duration, n int, whPerStep float64) []Reading {
	readings := make([]Reading, n)
	for i := range readings {
		readings[i] = Reading{
			DeviceID:  deviceID,
			Timestamp: start.Add(time.Duration(i) * step),
			PowerW:    float64(100 + i%10),
			EnergyWh:  float64(i) * whPerStep,
		}
	}
	return readings
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "expected %s, got %s", want, got)
}

func mustLocation(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("failed to load location %s: %v", name, err)
	}
	return loc
}
