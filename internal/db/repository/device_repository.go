package repository

import (
	"context"

	"github.com/plugtrack/backend/internal/db/models"
	"gorm.io/gorm"
)

// DeviceRepository defines operations for managing devices
type DeviceRepository interface {
	Repository
	Create(device *models.Device) error
	GetByExternalID(ctx context.Context, externalID string) (*models.Device, error)
	List(offset, limit int) ([]models.Device, int64, error)
}

// deviceRepository implements DeviceRepository
type deviceRepository struct {
	BaseRepository
}

// NewDeviceRepository creates a new device repository
func NewDeviceRepository(db *gorm.DB) DeviceRepository {
	return &deviceRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Create creates a new device
func (r *deviceRepository) Create(device *models.Device) error {
	if device.ExternalID == "" {
		return ErrInvalidInput
	}
	err := r.GetDB().Create(device).Error
	return r.handleError(err)
}

// GetByExternalID retrieves a device by the identifier used on the wire
func (r *deviceRepository) GetByExternalID(ctx context.Context, externalID string) (*models.Device, error) {
	var device models.Device
	err := r.withContext(ctx).Where("external_id = ?", externalID).First(&device).Error
	if err != nil {
		return nil, r.handleError(err)
	}
	return &device, nil
}

// List retrieves a page of devices ordered by external ID
func (r *deviceRepository) List(offset, limit int) ([]models.Device, int64, error) {
	var devices []models.Device
	var count int64

	if err := r.GetDB().Model(&models.Device{}).Count(&count).Error; err != nil {
		return nil, 0, r.handleError(err)
	}

	err := r.GetDB().Order("external_id asc").Offset(offset).Limit(limit).Find(&devices).Error
	if err != nil {
		return nil, 0, r.handleError(err)
	}

	return devices, count, nil
}
