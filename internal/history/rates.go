package history

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// RateKind is the billing policy of a rate schedule
type RateKind string

const (
	RateSimple    RateKind = "simple"
	RateTimeOfUse RateKind = "tou"
	RateTiered    RateKind = "tiered"
)

const minutesPerDay = 24 * 60

// ClockTime is a time of day in minutes after local midnight. 24:00 is allowed as a range end.
type ClockTime int

// ParseClockTime parses "HH:MM"
func ParseClockTime(s string) (ClockTime, error) {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || len(hh) != 2 || len(mm) != 2 {
		return 0, fmt.Errorf("invalid time of day %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	if h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("time of day %q out of range", s)
	}
	return ClockTime(h*60 + m), nil
}

// String formats the time as HH:MM
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// MarshalText implements encoding.TextMarshaler
func (c ClockTime) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (c *ClockTime) UnmarshalText(text []byte) error {
	parsed, err := ParseClockTime(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// TimeOfUseRange applies Rate between Start and End local time.
// A range with End <= Start wraps past midnight.
type TimeOfUseRange struct {
	Name  string          `json:"name,omitempty"`
	Start ClockTime       `json:"start"`
	End   ClockTime       `json:"end"`
	Rate  decimal.Decimal `json:"rate"`
}

// Tier applies Rate to consumption above FromKWh, up to the next tier's threshold
type Tier struct {
	FromKWh decimal.Decimal `json:"from_kwh"`
	Rate    decimal.Decimal `json:"rate"`
}

// RateSchedule is an immutable snapshot of a device's tariff. Rates are per kWh.
// FlatRate is the whole tariff for simple schedules and the rate for time not
// covered by any range in time-of-use schedules.
type RateSchedule struct {
	Version   string           `json:"version"`
	Kind      RateKind         `json:"kind"`
	Currency  string           `json:"currency"`
	FlatRate  decimal.Decimal  `json:"flat_rate"`
	TimeOfUse []TimeOfUseRange `json:"time_of_use,omitempty"`
	Tiers     []Tier           `json:"tiers,omitempty"`
}

// DecodeRateSchedule decodes a JSON schedule document and validates it.
// version overrides whatever the document carries.
func DecodeRateSchedule(version string, document []byte) (RateSchedule, error) {
	var sched RateSchedule
	if err := json.Unmarshal(document, &sched); err != nil {
		return RateSchedule{}, fmt.Errorf("%w: %v", ErrRateScheduleInvalid, err)
	}
	sched.Version = version
	if err := sched.Validate(); err != nil {
		return RateSchedule{}, err
	}
	return sched, nil
}

// minuteSegment is a non-wrapping [from, to) stretch of the day
type minuteSegment struct {
	from, to int
	rate     decimal.Decimal
}

// segments splits the time-of-use ranges at midnight
func (s RateSchedule) segments() []minuteSegment {
	segs := make([]minuteSegment, 0, len(s.TimeOfUse)+1)
	for _, r := range s.TimeOfUse {
		from, to := int(r.Start), int(r.End)
		if from < to {
			segs = append(segs, minuteSegment{from: from, to: to, rate: r.Rate})
			continue
		}
		segs = append(segs, minuteSegment{from: from, to: minutesPerDay, rate: r.Rate})
		if to > 0 {
			segs = append(segs, minuteSegment{from: 0, to: to, rate: r.Rate})
		}
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i].from < segs[j].from })
	return segs
}

// Validate checks the schedule is internally consistent
func (s RateSchedule) Validate() error {
	if s.FlatRate.IsNegative() {
		return fmt.Errorf("%w: flat rate must not be negative", ErrRateScheduleInvalid)
	}

	switch s.Kind {
	case RateSimple:
		return nil

	case RateTimeOfUse:
		if len(s.TimeOfUse) == 0 {
			return fmt.Errorf("%w: time-of-use schedule has no ranges", ErrRateScheduleInvalid)
		}
		for i, r := range s.TimeOfUse {
			if r.Start < 0 || r.Start >= minutesPerDay || r.End < 0 || r.End > minutesPerDay {
				return fmt.Errorf("%w: range %d (%s-%s) is outside the day", ErrRateScheduleInvalid, i, r.Start, r.End)
			}
			if r.Start == r.End {
				return fmt.Errorf("%w: range %d (%s-%s) is empty", ErrRateScheduleInvalid, i, r.Start, r.End)
			}
			if r.Rate.IsNegative() {
				return fmt.Errorf("%w: range %d has a negative rate", ErrRateScheduleInvalid, i)
			}
		}
		segs := s.segments()
		for i := 1; i < len(segs); i++ {
			if segs[i].from < segs[i-1].to {
				return fmt.Errorf("%w: time-of-use ranges overlap at %s",
					ErrRateScheduleInvalid, ClockTime(segs[i].from))
			}
		}
		return nil

	case RateTiered:
		if len(s.Tiers) == 0 {
			return fmt.Errorf("%w: tiered schedule has no tiers", ErrRateScheduleInvalid)
		}
		if !s.Tiers[0].FromKWh.IsZero() {
			return fmt.Errorf("%w: first tier must start at 0 kWh, got %s", ErrRateScheduleInvalid, s.Tiers[0].FromKWh)
		}
		for i, t := range s.Tiers {
			if t.Rate.IsNegative() {
				return fmt.Errorf("%w: tier %d has a negative rate", ErrRateScheduleInvalid, i)
			}
			if i > 0 && !t.FromKWh.GreaterThan(s.Tiers[i-1].FromKWh) {
				return fmt.Errorf("%w: tier thresholds must be strictly ascending (%s after %s)",
					ErrRateScheduleInvalid, t.FromKWh, s.Tiers[i-1].FromKWh)
			}
		}
		return nil
	}

	return fmt.Errorf("%w: unknown schedule kind %q", ErrRateScheduleInvalid, s.Kind)
}
