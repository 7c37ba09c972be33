package history

import (
	"fmt"
	"strings"
	"time"
)

// Level is an aggregation granularity
type Level int

const (
	// LevelAuto lets the selector pick a level from the window length
	LevelAuto Level = iota
	LevelRaw
	Level1Min
	Level5Min
	LevelHourly
	Level6Hourly
	LevelDaily
	LevelWeekly
	LevelMonthly
)

var levelNames = map[Level]string{
	LevelAuto:    "auto",
	LevelRaw:     "raw",
	Level1Min:    "1min",
	Level5Min:    "5min",
	LevelHourly:  "hourly",
	Level6Hourly: "6hourly",
	LevelDaily:   "daily",
	LevelWeekly:  "weekly",
	LevelMonthly: "monthly",
}

// fixedWidths holds the widths of levels whose buckets do not follow the calendar
var fixedWidths = map[Level]time.Duration{
	Level1Min:    time.Minute,
	Level5Min:    5 * time.Minute,
	LevelHourly:  time.Hour,
	Level6Hourly: 6 * time.Hour,
}

// ParseLevel parses an aggregation name. The empty string means LevelAuto.
func ParseLevel(s string) (Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return LevelAuto, nil
	}
	for level, name := range levelNames {
		if name == s {
			return level, nil
		}
	}
	return LevelAuto, fmt.Errorf("unknown aggregation %q", s)
}

// String returns the wire name of the level
func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// MarshalText implements encoding.TextMarshaler
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (l *Level) UnmarshalText(text []byte) error {
	level, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = level
	return nil
}

// IsCalendar reports whether bucket boundaries follow local calendar dates
func (l Level) IsCalendar() bool {
	return l == LevelDaily || l == LevelWeekly || l == LevelMonthly
}

// coarser returns the next coarser level; LevelMonthly is the coarsest
func (l Level) coarser() Level {
	if l < Level1Min || l >= LevelMonthly {
		return LevelMonthly
	}
	return l + 1
}

// nextBoundary returns the first bucket boundary strictly after t.
// Fixed-width levels step from t itself, so they stay aligned to the window start.
func (l Level) nextBoundary(t time.Time, loc *time.Location) time.Time {
	if width, ok := fixedWidths[l]; ok {
		return t.Add(width)
	}

	var next time.Time
	y, m, d := t.In(loc).Date()
	switch l {
	case LevelDaily:
		next = dayStart(y, m, d+1, loc)
	case LevelWeekly:
		// Weeks start on Monday
		days := (8 - int(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Weekday())) % 7
		if days == 0 {
			days = 7
		}
		next = dayStart(y, m, d+days, loc)
	case LevelMonthly:
		next = dayStart(y, m+1, 1, loc)
	default:
		panic(fmt.Sprintf("history: level %s has no bucket boundaries", l))
	}

	if !next.After(t) {
		next = t.Add(time.Hour)
	}
	return next
}

// dayStart returns the first instant of the local date y-m-d. Where a DST change
// skips midnight, the day starts at the transition.
func dayStart(y int, m time.Month, d int, loc *time.Location) time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, loc)
	want := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	if sameDate(t, want) {
		return t
	}
	if _, end := t.ZoneBounds(); !end.IsZero() && sameDate(end, want) {
		return end
	}
	// Unknown zone shape: walk forward until the date turns
	for i := 0; i < 4*24 && !sameDate(t, want); i++ {
		t = t.Add(15 * time.Minute)
	}
	return t
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// span is one bucket's [start, end)
type span struct {
	start time.Time
	end   time.Time
}

// bucketSpans partitions the window into contiguous bucket spans. The first and
// last span are clipped to the window so the spans cover it exactly.
func bucketSpans(w Window, level Level) []span {
	loc := locationOf(w)
	spans := make([]span, 0, BucketCount(w, level))
	for cur := w.Start; cur.Before(w.End); {
		next := level.nextBoundary(cur, loc)
		if next.After(w.End) {
			next = w.End
		}
		spans = append(spans, span{start: cur.UTC(), end: next.UTC()})
		cur = next
	}
	return spans
}

// BucketCount returns the number of buckets level produces over w
func BucketCount(w Window, level Level) int {
	if !w.End.After(w.Start) {
		return 0
	}
	if width, ok := fixedWidths[level]; ok {
		d := w.Duration()
		n := d / width
		if d%width != 0 {
			n++
		}
		return int(n)
	}
	if !level.IsCalendar() {
		return 0
	}

	loc := locationOf(w)
	n := 0
	for cur := w.Start; cur.Before(w.End); cur = level.nextBoundary(cur, loc) {
		n++
	}
	return n
}

func locationOf(w Window) *time.Location {
	if w.Location == nil {
		return time.UTC
	}
	return w.Location
}

// defaultLevels maps window lengths (inclusive upper bounds) to default levels
var defaultLevels = []struct {
	upTo  time.Duration
	level Level
}{
	{24 * time.Hour, Level5Min},
	{7 * 24 * time.Hour, LevelHourly},
	{30 * 24 * time.Hour, Level6Hourly},
	{184 * 24 * time.Hour, LevelDaily},
	{366 * 24 * time.Hour, LevelWeekly},
}

// Selector chooses aggregation levels under a bucket-count cap
type Selector struct {
	MaxPoints    int
	RawMaxWindow time.Duration
}

// Select returns the level to use for w. LevelAuto picks from the default table and
// escalates while the cap is exceeded; explicit levels are honored or rejected.
func (s Selector) Select(w Window, override Level) (Level, error) {
	switch override {
	case LevelAuto:
		level := LevelMonthly
		d := w.selectionLength()
		for _, row := range defaultLevels {
			if d <= row.upTo {
				level = row.level
				break
			}
		}
		for level != LevelMonthly && BucketCount(w, level) > s.MaxPoints {
			level = level.coarser()
		}
		return level, nil

	case LevelRaw:
		if w.Duration() > s.RawMaxWindow {
			return LevelAuto, fmt.Errorf("%w: raw readings are limited to windows of at most %s, requested window is %s",
				ErrAggregationTooFine, s.RawMaxWindow, w.Duration())
		}
		return LevelRaw, nil
	}

	if _, known := levelNames[override]; !known {
		return LevelAuto, fmt.Errorf("%w: unknown aggregation %s", ErrAggregationTooFine, override)
	}
	if n := BucketCount(w, override); n > s.MaxPoints {
		return LevelAuto, fmt.Errorf("%w: %s aggregation over %s yields %d buckets, maximum is %d",
			ErrAggregationTooFine, override, w.Duration(), n, s.MaxPoints)
	}
	return override, nil
}
