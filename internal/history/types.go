package history

import (
	"time"

	"github.com/shopspring/decimal"
)

// Reading is one raw sample. EnergyWh is a cumulative counter.
type Reading struct {
	DeviceID  string
	Timestamp time.Time
	PowerW    float64
	EnergyWh  float64
}

// Device is the subset of device metadata the engine needs
type Device struct {
	ID       string
	Timezone string
}

// Window is a half-open interval [Start, End) in UTC. Location is only used
// to align calendar buckets and time-of-use ranges.
type Window struct {
	Start    time.Time
	End      time.Time
	Location *time.Location
	// CalendarLength is the DST-free length of a named period; zero for explicit ranges
	CalendarLength time.Duration
}

// Duration returns the length of the window
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// selectionLength is the length the default level table is applied to
func (w Window) selectionLength() time.Duration {
	if w.CalendarLength > 0 {
		return w.CalendarLength
	}
	return w.Duration()
}

// Bucket is one aggregation result. Empty buckets have SampleCount 0 and nil statistics.
type Bucket struct {
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	SampleCount int       `json:"sample_count"`
	AvgPowerW   *float64  `json:"avg_power_w"`
	MinPowerW   *float64  `json:"min_power_w"`
	MaxPowerW   *float64  `json:"max_power_w"`
	EnergyWh    float64   `json:"energy_wh"`
	Reset       bool      `json:"reset,omitempty"`
}

// Query is a history request as received from the API layer
type Query struct {
	DeviceID    string
	Period      PeriodRequest
	Aggregation Level
}

// Metadata describes how a result was produced
type Metadata struct {
	DeviceID       string          `json:"device_id"`
	Count          int             `json:"count"`
	Aggregation    Level           `json:"aggregation"`
	Cached         bool            `json:"cached"`
	Start          time.Time       `json:"start"`
	End            time.Time       `json:"end"`
	Timezone       string          `json:"timezone"`
	ResetBuckets   int             `json:"reset_buckets"`
	RateVersion    string          `json:"rate_version"`
	Currency       string          `json:"currency,omitempty"`
	TotalEnergyKWh decimal.Decimal `json:"total_energy_kwh"`
	TotalCost      decimal.Decimal `json:"total_cost"`
	Warnings       []string        `json:"warnings,omitempty"`
}

// Result is the payload returned by Engine.QueryHistory.
// Buckets and Cost may be shared with the cache and must not be modified.
type Result struct {
	Buckets  []Bucket   `json:"buckets"`
	Cost     CostSeries `json:"cost"`
	Metadata Metadata   `json:"metadata"`
}
