package models

import (
	"time"
)

// Reading is one raw power sample written by the ingestion pipeline
type Reading struct {
	Time     time.Time `gorm:"primaryKey;not null;index:idx_readings_device_time,priority:2" json:"time"`
	DeviceID string    `gorm:"type:varchar(255);primaryKey;not null;index:idx_readings_device_time,priority:1" json:"device_id"`
	PowerW   float64   `gorm:"not null" json:"power_w"`
	EnergyWh float64   `gorm:"not null" json:"energy_wh"` // cumulative counter since the device epoch
}

// TableName overrides the table name for Reading
func (Reading) TableName() string {
	return "readings"
}
