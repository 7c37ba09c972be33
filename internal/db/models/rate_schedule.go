package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// RateSchedule is a versioned electricity tariff snapshot.
// An empty DeviceID marks the default schedule.
type RateSchedule struct {
	ID            uint      `gorm:"primarykey" json:"id"`
	DeviceID      string    `gorm:"type:varchar(255);index:idx_rate_device_effective" json:"device_id"`
	Version       string    `gorm:"type:varchar(64);not null" json:"version"`
	EffectiveFrom time.Time `gorm:"index:idx_rate_device_effective;not null" json:"effective_from"`
	Document      JSON      `gorm:"column:document" json:"document"`
	CreatedAt     time.Time `json:"created_at"`
}

// TableName overrides the table name for RateSchedule
func (RateSchedule) TableName() string {
	return "rate_schedules"
}

// JSON is a wrapper for json.RawMessage with methods to implement the Scanner and Valuer interfaces
type JSON json.RawMessage

// GormDataType returns the generic data type of JSON columns
func (JSON) GormDataType() string {
	return "json"
}

// GormDBDataType returns the column type for the connected dialect
func (JSON) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	switch db.Dialector.Name() {
	case "postgres":
		return "JSONB"
	default:
		return "JSON"
	}
}

// Value returns the JSON value to be stored in the database
func (j JSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return string(j), nil
}

// Scan scans a JSON value from the database
func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = JSON("null")
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = append([]byte(nil), v...)
	case string:
		bytes = []byte(v)
	default:
		return errors.New("invalid scan source for JSON")
	}

	*j = JSON(bytes)
	return nil
}

// MarshalJSON returns the JSON encoding of j
func (j JSON) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON sets *j to a copy of data
func (j *JSON) UnmarshalJSON(data []byte) error {
	if j == nil {
		return errors.New("JSON: UnmarshalJSON on nil pointer")
	}
	*j = JSON(append([]byte(nil), data...))
	return nil
}
