package history

import (
	"time"

	"github.com/shopspring/decimal"
)

// costPlaces is the number of decimal places kept for per-bucket costs
const costPlaces = 6

var whPerKWh = decimal.NewFromInt(1000)

// CostPoint is the cost of one bucket
type CostPoint struct {
	Start     time.Time       `json:"start"`
	EnergyKWh decimal.Decimal `json:"energy_kwh"`
	Cost      decimal.Decimal `json:"cost"`
}

// CostSeries is the cost overlay of a bucket sequence
type CostSeries struct {
	Points         []CostPoint     `json:"points"`
	TotalEnergyKWh decimal.Decimal `json:"total_energy_kwh"`
	TotalCost      decimal.Decimal `json:"total_cost"`
	Currency       string          `json:"currency"`
	RateVersion    string          `json:"rate_version"`
}

// ApplyRates prices every bucket with sched. The schedule is validated once up front.
func ApplyRates(w Window, buckets []Bucket, sched RateSchedule) (CostSeries, error) {
	if err := sched.Validate(); err != nil {
		return CostSeries{}, err
	}

	series := CostSeries{
		Points:         make([]CostPoint, len(buckets)),
		TotalEnergyKWh: decimal.Zero,
		TotalCost:      decimal.Zero,
		Currency:       sched.Currency,
		RateVersion:    sched.Version,
	}

	var (
		loc        = locationOf(w)
		segs       []minuteSegment
		cumulative = decimal.Zero
	)
	if sched.Kind == RateTimeOfUse {
		segs = sched.segments()
	}

	for i, b := range buckets {
		kwh := decimal.NewFromFloat(b.EnergyWh).Div(whPerKWh)

		var cost decimal.Decimal
		switch sched.Kind {
		case RateSimple:
			cost = kwh.Mul(sched.FlatRate)
		case RateTimeOfUse:
			cost = timeOfUseCost(b.Start, b.End, kwh, segs, sched.FlatRate, loc)
		case RateTiered:
			cost, cumulative = tieredCost(kwh, cumulative, sched.Tiers)
		}
		cost = cost.Round(costPlaces)

		series.Points[i] = CostPoint{Start: b.Start, EnergyKWh: kwh, Cost: cost}
		series.TotalEnergyKWh = series.TotalEnergyKWh.Add(kwh)
		series.TotalCost = series.TotalCost.Add(cost)
	}

	return series, nil
}

// timeOfUseCost spreads kwh uniformly over [start, end) and prices each part at
// the rate of the local time-of-day range it falls in. Uncovered time uses base.
func timeOfUseCost(start, end time.Time, kwh decimal.Decimal, segs []minuteSegment, base decimal.Decimal, loc *time.Location) decimal.Decimal {
	if kwh.IsZero() {
		return decimal.Zero
	}

	duration := end.Sub(start)
	if duration <= 0 {
		return kwh.Mul(rateAt(start, segs, base, loc))
	}

	total := decimal.NewFromInt(int64(duration))
	cost := decimal.Zero
	var covered time.Duration

	y, m, d := start.In(loc).Date()
	for day := dayStart(y, m, d, loc); day.Before(end); {
		dy, dm, dd := day.In(loc).Date()
		next := dayStart(dy, dm, dd+1, loc)
		// Wall-clock minute of this day; skipped local times clamp to the day's bounds
		at := func(minute int) time.Time {
			if minute >= minutesPerDay {
				return next
			}
			t := time.Date(dy, dm, dd, 0, minute, 0, 0, loc)
			if t.Before(day) {
				return day
			}
			return t
		}
		for _, seg := range segs {
			overlap := overlapOf(start, end, at(seg.from), at(seg.to))
			if overlap <= 0 {
				continue
			}
			covered += overlap
			share := decimal.NewFromInt(int64(overlap)).Div(total)
			cost = cost.Add(kwh.Mul(share).Mul(seg.rate))
		}
		if !next.After(day) {
			break
		}
		day = next
	}

	if uncovered := duration - covered; uncovered > 0 {
		share := decimal.NewFromInt(int64(uncovered)).Div(total)
		cost = cost.Add(kwh.Mul(share).Mul(base))
	}
	return cost
}

// rateAt returns the rate in force at instant t
func rateAt(t time.Time, segs []minuteSegment, base decimal.Decimal, loc *time.Location) decimal.Decimal {
	local := t.In(loc)
	minute := local.Hour()*60 + local.Minute()
	for _, seg := range segs {
		if minute >= seg.from && minute < seg.to {
			return seg.rate
		}
	}
	return base
}

func overlapOf(aStart, aEnd, bStart, bEnd time.Time) time.Duration {
	lo, hi := aStart, aEnd
	if bStart.After(lo) {
		lo = bStart
	}
	if bEnd.Before(hi) {
		hi = bEnd
	}
	return hi.Sub(lo)
}

// tieredCost bills kwh on top of the cumulative consumption so far, splitting it
// at every tier threshold it crosses. It returns the cost and the new cumulative total.
func tieredCost(kwh, cumulative decimal.Decimal, tiers []Tier) (decimal.Decimal, decimal.Decimal) {
	cost := decimal.Zero
	remaining := kwh
	for remaining.IsPositive() {
		idx := 0
		for j := range tiers {
			if tiers[j].FromKWh.LessThanOrEqual(cumulative) {
				idx = j
			}
		}

		take := remaining
		if idx+1 < len(tiers) {
			if room := tiers[idx+1].FromKWh.Sub(cumulative); room.LessThan(take) {
				take = room
			}
		}

		cost = cost.Add(take.Mul(tiers[idx].Rate))
		cumulative = cumulative.Add(take)
		remaining = remaining.Sub(take)
	}
	return cost, cumulative
}
