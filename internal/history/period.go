package history

import (
	"fmt"
	"time"
)

// PeriodToken names a relative period ending now
type PeriodToken string

const (
	Period24h PeriodToken = "24h"
	Period7d  PeriodToken = "7d"
	Period30d PeriodToken = "30d"
	Period3m  PeriodToken = "3m"
	Period6m  PeriodToken = "6m"
	Period1y  PeriodToken = "1y"
)

// periodSpec describes how far back a token reaches. Sub-day tokens use a fixed
// duration; the rest step back in the caller's local calendar.
type periodSpec struct {
	duration            time.Duration
	years, months, days int
}

var periodTable = map[PeriodToken]periodSpec{
	Period24h: {duration: 24 * time.Hour},
	Period7d:  {days: 7},
	Period30d: {days: 30},
	Period3m:  {months: 3},
	Period6m:  {months: 6},
	Period1y:  {years: 1},
}

// ParsePeriodToken validates a named period
func ParsePeriodToken(s string) (PeriodToken, error) {
	token := PeriodToken(s)
	if _, ok := periodTable[token]; !ok {
		return "", fmt.Errorf("%w: unknown period %q (supported: 24h, 7d, 30d, 3m, 6m, 1y)", ErrInvalidPeriod, s)
	}
	return token, nil
}

// PeriodRequest is either a token or an explicit Start/End pair, plus an optional IANA timezone
type PeriodRequest struct {
	Token    PeriodToken
	Start    time.Time
	End      time.Time
	Timezone string
}

// Resolver turns period requests into canonical windows
type Resolver struct {
	MaxPeriod       time.Duration
	Alignment       time.Duration
	DefaultLocation *time.Location
}

// Resolve returns the UTC window for req relative to now
func (r Resolver) Resolve(req PeriodRequest, now time.Time) (Window, error) {
	loc := r.DefaultLocation
	if loc == nil {
		loc = time.UTC
	}
	if req.Timezone != "" {
		l, err := time.LoadLocation(req.Timezone)
		if err != nil {
			return Window{}, fmt.Errorf("%w: unknown timezone %q", ErrInvalidPeriod, req.Timezone)
		}
		loc = l
	}

	explicit := !req.Start.IsZero() || !req.End.IsZero()

	if req.Token != "" {
		if explicit {
			return Window{}, fmt.Errorf("%w: period token and explicit range are mutually exclusive", ErrInvalidPeriod)
		}
		spec, ok := periodTable[req.Token]
		if !ok {
			return Window{}, fmt.Errorf("%w: unknown period %q", ErrInvalidPeriod, req.Token)
		}

		end := now
		if r.Alignment > 0 {
			end = now.Truncate(r.Alignment)
		}
		var start time.Time
		length := spec.duration
		if spec.duration > 0 {
			start = end.Add(-spec.duration)
		} else {
			start = end.In(loc).AddDate(-spec.years, -spec.months, -spec.days)
			// The same step on the UTC calendar, which has no DST hours
			length = end.Sub(end.UTC().AddDate(-spec.years, -spec.months, -spec.days))
		}
		return Window{Start: start.UTC(), End: end.UTC(), Location: loc, CalendarLength: length}, nil
	}

	if req.Start.IsZero() || req.End.IsZero() {
		return Window{}, fmt.Errorf("%w: either a period or both start and end are required", ErrInvalidPeriod)
	}
	if !req.End.After(req.Start) {
		return Window{}, fmt.Errorf("%w: end %s must be after start %s",
			ErrInvalidPeriod, req.End.Format(time.RFC3339), req.Start.Format(time.RFC3339))
	}
	if span := req.End.Sub(req.Start); r.MaxPeriod > 0 && span > r.MaxPeriod {
		return Window{}, fmt.Errorf("%w: range of %s exceeds the maximum of %s", ErrInvalidPeriod, span, r.MaxPeriod)
	}

	return Window{Start: req.Start.UTC(), End: req.End.UTC(), Location: loc}, nil
}
