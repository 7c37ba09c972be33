package models

import (
	"time"

	"gorm.io/gorm"
)

// Device represents a metered plug or appliance registered with the service
type Device struct {
	ID         uint           `gorm:"primarykey" json:"id"`
	ExternalID string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"external_id"`
	Name       string         `gorm:"not null" json:"name"`
	Model      string         `json:"model"`
	Timezone   string         `gorm:"type:varchar(64)" json:"timezone"` // IANA name used for calendar alignment
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}
