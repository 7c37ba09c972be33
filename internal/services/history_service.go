package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/plugtrack/backend/internal/config"
	"github.com/plugtrack/backend/internal/db"
	"github.com/plugtrack/backend/internal/db/models"
	"github.com/plugtrack/backend/internal/db/repository"
	"github.com/plugtrack/backend/internal/history"
	"github.com/plugtrack/backend/internal/influxdb"
	"github.com/plugtrack/backend/internal/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// rateScheduleSchemaName is the name the rate document schema is registered under
const rateScheduleSchemaName = "rate_schedule"

const rateScheduleSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["kind"],
  "properties": {
    "kind": {"enum": ["simple", "tou", "tiered"]},
    "currency": {"type": "string"},
    "flat_rate": {"type": ["number", "string"]},
    "time_of_use": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["start", "end", "rate"],
        "properties": {
          "name": {"type": "string"},
          "start": {"type": "string", "pattern": "^[0-9]{2}:[0-9]{2}$"},
          "end": {"type": "string", "pattern": "^[0-9]{2}:[0-9]{2}$"},
          "rate": {"type": ["number", "string"]}
        }
      }
    },
    "tiers": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["from_kwh", "rate"],
        "properties": {
          "from_kwh": {"type": ["number", "string"]},
          "rate": {"type": ["number", "string"]}
        }
      }
    }
  }
}`

// NoScheduleVersion is reported when no rate schedule applies to a device
const NoScheduleVersion = "none"

// deviceDirectory resolves devices from the devices table
type deviceDirectory struct {
	repo repository.DeviceRepository
}

// LookupDevice implements history.DeviceDirectory
func (d *deviceDirectory) LookupDevice(ctx context.Context, deviceID string) (history.Device, error) {
	device, err := d.repo.GetByExternalID(ctx, deviceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return history.Device{}, fmt.Errorf("%w: %s", history.ErrDeviceNotFound, deviceID)
		}
		return history.Device{}, err
	}
	return history.Device{ID: device.ExternalID, Timezone: device.Timezone}, nil
}

// repositoryReadingStore serves readings from the readings table
type repositoryReadingStore struct {
	repo repository.ReadingRepository
}

// FetchReadings implements history.ReadingStore
func (s *repositoryReadingStore) FetchReadings(ctx context.Context, deviceID string, start, end time.Time) ([]history.Reading, error) {
	rows, err := s.repo.FetchRange(ctx, deviceID, start, end)
	if err != nil {
		return nil, err
	}
	readings := make([]history.Reading, len(rows))
	for i, row := range rows {
		readings[i] = history.Reading{
			DeviceID:  row.DeviceID,
			Timestamp: row.Time.UTC(),
			PowerW:    row.PowerW,
			EnergyWh:  row.EnergyWh,
		}
	}
	return readings, nil
}

// LatestReading returns the most recent stored reading of a device
func (s *repositoryReadingStore) LatestReading(ctx context.Context, deviceID string) (*history.Reading, error) {
	row, err := s.repo.GetLatest(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	return &history.Reading{
		DeviceID:  row.DeviceID,
		Timestamp: row.Time.UTC(),
		PowerW:    row.PowerW,
		EnergyWh:  row.EnergyWh,
	}, nil
}

// latestReader is implemented by reading stores that can report a device's last reading
type latestReader interface {
	LatestReading(ctx context.Context, deviceID string) (*history.Reading, error)
}

// scheduleProvider loads versioned rate schedules and checks their documents
type scheduleProvider struct {
	repo      repository.RateScheduleRepository
	validator *utils.JSONSchemaValidator
}

func newScheduleProvider(repo repository.RateScheduleRepository) (*scheduleProvider, error) {
	validator := utils.NewJSONSchemaValidator()
	if err := validator.LoadSchema(rateScheduleSchemaName, rateScheduleSchema); err != nil {
		return nil, err
	}
	return &scheduleProvider{repo: repo, validator: validator}, nil
}

// CurrentSchedule implements history.RateProvider. Devices without any schedule are billed at zero.
func (p *scheduleProvider) CurrentSchedule(ctx context.Context, deviceID string, asOf time.Time) (history.RateSchedule, error) {
	row, err := p.repo.Current(ctx, deviceID, asOf)
	if errors.Is(err, repository.ErrNotFound) {
		return history.RateSchedule{
			Version:  NoScheduleVersion,
			Kind:     history.RateSimple,
			FlatRate: decimal.Zero,
		}, nil
	}
	if err != nil {
		return history.RateSchedule{}, err
	}

	if err := p.validator.ValidateDocument(rateScheduleSchemaName, row.Document); err != nil {
		return history.RateSchedule{}, fmt.Errorf("%w: version %s: %v", history.ErrRateScheduleInvalid, row.Version, err)
	}
	return history.DecodeRateSchedule(row.Version, row.Document)
}

// newReadingStore returns the reading backend selected by history.reading_store,
// along with a function releasing it
func newReadingStore(cfg *config.Config, factory *repository.RepositoryFactory, logger *utils.Logger) (history.ReadingStore, func(), error) {
	switch cfg.History.ReadingStore {
	case "influxdb":
		store, err := influxdb.NewReadingStore(cfg.InfluxDB, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return &repositoryReadingStore{repo: factory.Reading()}, func() {}, nil
	}
}

// HistoryRequest holds the raw parameters of a history query
type HistoryRequest struct {
	Period      string
	Start       time.Time
	End         time.Time
	Aggregation string
	Timezone    string
}

// HistoryService answers device history queries and manages the result cache
type HistoryService struct {
	engine  *history.Engine
	devices repository.DeviceRepository
	latest  latestReader
	logger  *utils.Logger
	release func()
}

// DeviceSummary is a registered device with its most recent reading, if known
type DeviceSummary struct {
	models.Device
	LatestReading *ReadingSummary `json:"latest_reading,omitempty"`
}

// ReadingSummary is a single stored reading
type ReadingSummary struct {
	Time     time.Time `json:"time"`
	PowerW   float64   `json:"power_w"`
	EnergyWh float64   `json:"energy_wh"`
}

// NewHistoryService creates a new history service backed by the configured reading store
func NewHistoryService(cfg *config.Config, database *db.Database, logger *utils.Logger) (*HistoryService, error) {
	opts, err := engineOptions(&cfg.History)
	if err != nil {
		return nil, err
	}
	factory := repository.NewRepositoryFactory(database.DB)

	readings, release, err := newReadingStore(cfg, factory, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create reading store: %w", err)
	}
	return newHistoryService(readings, release, factory, opts, logger)
}

// engineOptions converts the history configuration section into engine options
func engineOptions(cfg *config.HistoryConfig) (history.Options, error) {
	loc, err := time.LoadLocation(cfg.DefaultTimezone)
	if err != nil {
		return history.Options{}, fmt.Errorf("failed to load default timezone %q: %w", cfg.DefaultTimezone, err)
	}
	return history.Options{
		MaxPoints:       cfg.MaxPoints,
		MaxPeriod:       cfg.MaxPeriod,
		RawMaxWindow:    cfg.RawMaxWindow,
		FetchTimeout:    cfg.FetchTimeout,
		WindowAlignment: cfg.WindowAlignment,
		DefaultLocation: loc,
		Clock:           history.SystemClock{},
	}, nil
}

func newHistoryService(readings history.ReadingStore, release func(), factory *repository.RepositoryFactory, opts history.Options, logger *utils.Logger) (*HistoryService, error) {
	rates, err := newScheduleProvider(factory.RateSchedule())
	if err != nil {
		release()
		return nil, err
	}

	devices := factory.Device()
	engine := history.NewEngine(readings, rates, &deviceDirectory{repo: devices}, opts, logger)

	service := &HistoryService{
		engine:  engine,
		devices: devices,
		logger:  logger.Named("history_service"),
		release: release,
	}
	// InfluxDB-backed stores do not report latest readings
	if latest, ok := readings.(latestReader); ok {
		service.latest = latest
	}
	return service, nil
}

// GetHistory resolves req and returns the bucketed history of a device
func (s *HistoryService) GetHistory(ctx context.Context, deviceID string, req HistoryRequest) (*history.Result, error) {
	query := history.Query{
		DeviceID: deviceID,
		Period: history.PeriodRequest{
			Start:    req.Start,
			End:      req.End,
			Timezone: req.Timezone,
		},
	}

	if req.Period != "" {
		token, err := history.ParsePeriodToken(req.Period)
		if err != nil {
			return nil, err
		}
		query.Period.Token = token
	}

	level, err := history.ParseLevel(req.Aggregation)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrValidation, err)
	}
	query.Aggregation = level

	result, err := s.engine.QueryHistory(ctx, query)
	if err != nil {
		if history.IsRetryable(err) {
			s.logger.Warn("History query timed out",
				zap.String("device_id", deviceID),
				zap.Error(err))
		} else if utils.ErrorCode(err) == "" && !errors.Is(err, context.Canceled) {
			s.logger.Error("History query failed",
				zap.String("device_id", deviceID),
				zap.Error(err))
		}
		return nil, err
	}

	return result, nil
}

// ListDevices returns a page of registered devices with their latest readings and the total count
func (s *HistoryService) ListDevices(ctx context.Context, pagination utils.PaginationRequest) ([]DeviceSummary, int64, error) {
	devices, total, err := s.devices.List(pagination.Offset(), pagination.Limit)
	if err != nil {
		s.logger.Error("Failed to list devices", zap.Error(err))
		return nil, 0, err
	}

	summaries := make([]DeviceSummary, len(devices))
	for i, device := range devices {
		summaries[i].Device = device
		if s.latest == nil {
			continue
		}
		reading, err := s.latest.LatestReading(ctx, device.ExternalID)
		switch {
		case err == nil:
			summaries[i].LatestReading = &ReadingSummary{Time: reading.Timestamp, PowerW: reading.PowerW, EnergyWh: reading.EnergyWh}
		case errors.Is(err, repository.ErrNotFound):
		default:
			s.logger.Error("Failed to load latest reading", zap.String("device_id", device.ExternalID), zap.Error(err))
			return nil, 0, err
		}
	}
	return summaries, total, nil
}

// InvalidateReadings drops cached history of a device covering readings at or after after
func (s *HistoryService) InvalidateReadings(deviceID string, after time.Time) int {
	return s.engine.Invalidate(deviceID, after)
}

// InvalidateRate drops cached costs not computed with version. An empty deviceID applies to every device.
func (s *HistoryService) InvalidateRate(deviceID, version string) int {
	return s.engine.InvalidateRate(deviceID, version)
}

// CacheStats returns the cache statistics of the engine
func (s *HistoryService) CacheStats() history.CacheStats {
	return s.engine.Stats()
}

// Close releases the reading store
func (s *HistoryService) Close() {
	if s.release != nil {
		s.release()
	}
}
