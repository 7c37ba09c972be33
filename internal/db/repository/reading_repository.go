package repository

import (
	"context"
	"time"

	"github.com/plugtrack/backend/internal/db/models"
	"gorm.io/gorm"
)

// ReadingRepository defines operations for raw power readings
type ReadingRepository interface {
	Repository
	InsertBatch(readings []models.Reading) error
	// FetchRange returns readings in [start, end) ordered by time ascending
	FetchRange(ctx context.Context, deviceID string, start, end time.Time) ([]models.Reading, error)
	GetLatest(ctx context.Context, deviceID string) (*models.Reading, error)
}

// readingRepository implements ReadingRepository
type readingRepository struct {
	BaseRepository
}

// NewReadingRepository creates a new reading repository
func NewReadingRepository(db *gorm.DB) ReadingRepository {
	return &readingRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// InsertBatch inserts readings in a single transaction
func (r *readingRepository) InsertBatch(readings []models.Reading) error {
	if len(readings) == 0 {
		return nil
	}
	for i := range readings {
		readings[i].Time = readings[i].Time.UTC()
	}

	// Use a transaction for batches to ensure atomicity
	tx := r.GetDB().Begin()
	if tx.Error != nil {
		return r.handleError(tx.Error)
	}

	if err := tx.CreateInBatches(readings, 500).Error; err != nil {
		tx.Rollback()
		return r.handleError(err)
	}

	return r.handleError(tx.Commit().Error)
}

// FetchRange retrieves the readings of a device within a time range
func (r *readingRepository) FetchRange(ctx context.Context, deviceID string, start, end time.Time) ([]models.Reading, error) {
	var readings []models.Reading

	err := r.withContext(ctx).
		Where("device_id = ? AND time >= ? AND time < ?", deviceID, start.UTC(), end.UTC()).
		Order("time asc").
		Find(&readings).Error
	if err != nil {
		return nil, r.handleError(err)
	}

	return readings, nil
}

// GetLatest retrieves the most recent reading of a device
func (r *readingRepository) GetLatest(ctx context.Context, deviceID string) (*models.Reading, error) {
	var reading models.Reading
	err := r.withContext(ctx).
		Where("device_id = ?", deviceID).
		Order("time desc").
		First(&reading).Error
	if err != nil {
		return nil, r.handleError(err)
	}

	return &reading, nil
}
