package history

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/plugtrack/backend/internal/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Options configures an Engine
type Options struct {
	MaxPoints       int
	MaxPeriod       time.Duration
	RawMaxWindow    time.Duration
	FetchTimeout    time.Duration
	WindowAlignment time.Duration
	DefaultLocation *time.Location
	Clock           Clock
}

// Engine answers history queries: it resolves the window, picks the aggregation level,
// and serves results from the cache or computes them once per key.
type Engine struct {
	readings ReadingStore
	rates    RateProvider
	devices  DeviceDirectory

	cache    *Cache
	resolver Resolver
	selector Selector
	clock    Clock

	maxPoints    int
	fetchTimeout time.Duration

	group  singleflight.Group
	logger *utils.Logger
}

// NewEngine creates a new history engine
func NewEngine(readings ReadingStore, rates RateProvider, devices DeviceDirectory, opts Options, logger *utils.Logger) *Engine {
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.DefaultLocation == nil {
		opts.DefaultLocation = time.UTC
	}
	return &Engine{
		readings: readings,
		rates:    rates,
		devices:  devices,
		cache:    NewCache(opts.Clock),
		resolver: Resolver{
			MaxPeriod:       opts.MaxPeriod,
			Alignment:       opts.WindowAlignment,
			DefaultLocation: opts.DefaultLocation,
		},
		selector: Selector{
			MaxPoints:    opts.MaxPoints,
			RawMaxWindow: opts.RawMaxWindow,
		},
		clock:        opts.Clock,
		maxPoints:    opts.MaxPoints,
		fetchTimeout: opts.FetchTimeout,
		logger:       logger.Named("history_engine"),
	}
}

// QueryHistory returns the bucketed history and cost of a device over the requested period
func (e *Engine) QueryHistory(ctx context.Context, q Query) (*Result, error) {
	if q.DeviceID == "" {
		return nil, fmt.Errorf("%w: device id is required", ErrDeviceNotFound)
	}
	now := e.clock.Now()

	var (
		device Device
		sched  RateSchedule
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return e.withRetry(gctx, "device lookup", func(ctx context.Context) error {
			var err error
			device, err = e.devices.LookupDevice(ctx, q.DeviceID)
			return err
		})
	})
	g.Go(func() error {
		return e.withRetry(gctx, "rate schedule fetch", func(ctx context.Context) error {
			var err error
			sched, err = e.rates.CurrentSchedule(ctx, q.DeviceID, now)
			return err
		})
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	req := q.Period
	if req.Timezone == "" {
		req.Timezone = device.Timezone
	}
	window, err := e.resolver.Resolve(req, now)
	if err != nil {
		return nil, err
	}
	level, err := e.selector.Select(window, q.Aggregation)
	if err != nil {
		return nil, err
	}

	key := NewKey(device.ID, window, level, sched.Version)
	if entry, ok := e.cache.Get(key); ok {
		return resultFrom(entry, true), nil
	}

	gen := e.cache.Generation(device.ID)
	flightKey := key.String() + "#" + strconv.FormatUint(gen, 10)

	// The computation outlives any single caller so that other waiters and the cache still get its result
	computeCtx := context.WithoutCancel(ctx)
	ch := e.group.DoChan(flightKey, func() (interface{}, error) {
		return e.compute(computeCtx, key, window, level, sched, gen)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return resultFrom(res.Val.(*Entry), false), nil
	}
}

// compute builds and caches the entry for key. Nothing is cached on failure.
func (e *Engine) compute(ctx context.Context, key Key, w Window, level Level, sched RateSchedule, gen uint64) (*Entry, error) {
	buckets, ok := e.cache.GetAggregate(key.AggregateKey)
	if !ok {
		err := e.withRetry(ctx, "reading fetch", func(ctx context.Context) error {
			readings, err := e.readings.FetchReadings(ctx, key.DeviceID, w.Start, w.End)
			if err != nil {
				return err
			}
			buckets, err = Aggregate(w, level, readings)
			return err
		})
		if err != nil {
			return nil, err
		}
		if level == LevelRaw && len(buckets) > e.maxPoints {
			return nil, fmt.Errorf("%w: window holds %d raw readings, maximum is %d",
				ErrAggregationTooFine, len(buckets), e.maxPoints)
		}
		e.cache.PutAggregateIfCurrent(key.AggregateKey, buckets, TTLFor(level), gen)
	}

	cost, err := ApplyRates(w, buckets, sched)
	if err != nil {
		return nil, err
	}

	meta := Metadata{
		DeviceID:       key.DeviceID,
		Count:          len(buckets),
		Aggregation:    level,
		Start:          w.Start,
		End:            w.End,
		Timezone:       locationOf(w).String(),
		ResetBuckets:   countResets(buckets),
		RateVersion:    sched.Version,
		Currency:       sched.Currency,
		TotalEnergyKWh: cost.TotalEnergyKWh,
		TotalCost:      cost.TotalCost,
	}
	if meta.ResetBuckets > 0 {
		meta.Warnings = []string{WarningCounterReset}
	}

	entry := &Entry{Buckets: buckets, Cost: cost, Meta: meta}
	if !e.cache.PutIfCurrent(key, entry, TTLFor(level), gen) {
		e.logger.Debug("Discarding result computed before an invalidation",
			zap.String("device_id", key.DeviceID),
			zap.String("aggregation", level.String()))
	}
	return entry, nil
}

// withRetry runs fn under a fresh FetchTimeout, retrying once on an upstream timeout
func (e *Engine) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= 2; attempt++ {
		err = e.attempt(ctx, op, fn)
		if err == nil || !errors.Is(err, ErrUpstreamTimeout) || ctx.Err() != nil {
			return err
		}
		if attempt == 1 {
			e.logger.Warn("Upstream call failed, retrying", zap.String("operation", op), zap.Error(err))
		}
	}
	return err
}

func (e *Engine) attempt(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attemptCtx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
	defer cancel()

	err := fn(attemptCtx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("%w: %s did not complete within %s", ErrUpstreamTimeout, op, e.fetchTimeout)
	}
	return err
}

func resultFrom(entry *Entry, cached bool) *Result {
	meta := entry.Meta
	meta.Cached = cached
	return &Result{Buckets: entry.Buckets, Cost: entry.Cost, Metadata: meta}
}

// Invalidate drops cached results of a device whose window ends at or after after
func (e *Engine) Invalidate(deviceID string, after time.Time) int {
	removed := e.cache.Invalidate(deviceID, after)
	e.logger.Debug("Invalidated cached history",
		zap.String("device_id", deviceID),
		zap.Time("after", after),
		zap.Int("removed", removed))
	return removed
}

// InvalidateRate drops cached costs computed with a rate version other than version
func (e *Engine) InvalidateRate(deviceID, version string) int {
	removed := e.cache.InvalidateRate(deviceID, version)
	e.logger.Debug("Invalidated cached costs",
		zap.String("device_id", deviceID),
		zap.String("rate_version", version),
		zap.Int("removed", removed))
	return removed
}

// Stats returns cache statistics
func (e *Engine) Stats() CacheStats {
	return e.cache.Stats()
}
