package repository

import (
	"context"
	"errors"
	"time"

	"github.com/plugtrack/backend/internal/db/models"
	"gorm.io/gorm"
)

// RateScheduleRepository defines operations for versioned rate schedules
type RateScheduleRepository interface {
	Repository
	Create(schedule *models.RateSchedule) error
	// Current returns the schedule in force for a device at asOf, falling back to the default schedule
	Current(ctx context.Context, deviceID string, asOf time.Time) (*models.RateSchedule, error)
}

// rateScheduleRepository implements RateScheduleRepository
type rateScheduleRepository struct {
	BaseRepository
}

// NewRateScheduleRepository creates a new rate schedule repository
func NewRateScheduleRepository(db *gorm.DB) RateScheduleRepository {
	return &rateScheduleRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Create stores a new schedule version
func (r *rateScheduleRepository) Create(schedule *models.RateSchedule) error {
	if schedule.Version == "" {
		return ErrInvalidInput
	}
	schedule.EffectiveFrom = schedule.EffectiveFrom.UTC()
	err := r.GetDB().Create(schedule).Error
	return r.handleError(err)
}

// Current retrieves the latest schedule effective at asOf
func (r *rateScheduleRepository) Current(ctx context.Context, deviceID string, asOf time.Time) (*models.RateSchedule, error) {
	schedule, err := r.latest(ctx, deviceID, asOf)
	if errors.Is(err, ErrNotFound) && deviceID != "" {
		return r.latest(ctx, "", asOf)
	}
	return schedule, err
}

func (r *rateScheduleRepository) latest(ctx context.Context, deviceID string, asOf time.Time) (*models.RateSchedule, error) {
	var schedule models.RateSchedule
	err := r.withContext(ctx).
		Where("device_id = ? AND effective_from <= ?", deviceID, asOf.UTC()).
		Order("effective_from desc, id desc").
		First(&schedule).Error
	if err != nil {
		return nil, r.handleError(err)
	}
	return &schedule, nil
}
