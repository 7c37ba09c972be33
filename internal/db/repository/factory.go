package repository

import "gorm.io/gorm"

// RepositoryFactory creates and manages all repositories
type RepositoryFactory struct {
	db          *gorm.DB
	deviceRepo  DeviceRepository
	readingRepo ReadingRepository
	rateRepo    RateScheduleRepository
}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory(db *gorm.DB) *RepositoryFactory {
	return &RepositoryFactory{
		db: db,
	}
}

// Device returns the device repository
func (f *RepositoryFactory) Device() DeviceRepository {
	if f.deviceRepo == nil {
		f.deviceRepo = NewDeviceRepository(f.db)
	}
	return f.deviceRepo
}

// Reading returns the reading repository
func (f *RepositoryFactory) Reading() ReadingRepository {
	if f.readingRepo == nil {
		f.readingRepo = NewReadingRepository(f.db)
	}
	return f.readingRepo
}

// RateSchedule returns the rate schedule repository
func (f *RepositoryFactory) RateSchedule() RateScheduleRepository {
	if f.rateRepo == nil {
		f.rateRepo = NewRateScheduleRepository(f.db)
	}
	return f.rateRepo
}
