package history

import (
	"fmt"
	"time"
)

// Aggregate folds readings into the buckets of level over w. The readings must be
// ascending by timestamp; readings outside the window are ignored. The output has
// one bucket per expected position, empty ones included.
func Aggregate(w Window, level Level, readings []Reading) ([]Bucket, error) {
	if err := checkOrdered(readings); err != nil {
		return nil, err
	}

	if level == LevelRaw {
		return aggregateRaw(w, readings), nil
	}
	if _, fixed := fixedWidths[level]; !fixed && !level.IsCalendar() {
		return nil, fmt.Errorf("cannot aggregate with level %s", level)
	}

	spans := bucketSpans(w, level)
	buckets := make([]Bucket, len(spans))

	i := 0
	for i < len(readings) && readings[i].Timestamp.Before(w.Start) {
		i++
	}
	for b, sp := range spans {
		lo := i
		for i < len(readings) && readings[i].Timestamp.Before(sp.end) {
			i++
		}
		buckets[b] = fold(sp, readings[lo:i])
	}

	return buckets, nil
}

// checkOrdered rejects sequences whose timestamps decrease
func checkOrdered(readings []Reading) error {
	for i := 1; i < len(readings); i++ {
		if readings[i].Timestamp.Before(readings[i-1].Timestamp) {
			return fmt.Errorf("%w: reading store returned out-of-order readings at %s",
				ErrUpstreamTimeout, readings[i].Timestamp.Format(time.RFC3339Nano))
		}
	}
	return nil
}

// fold summarizes the readings falling into one span
func fold(sp span, readings []Reading) Bucket {
	bucket := Bucket{Start: sp.start, End: sp.end, SampleCount: len(readings)}
	if len(readings) == 0 {
		return bucket
	}

	sum := 0.0
	minP, maxP := readings[0].PowerW, readings[0].PowerW
	positive := 0.0
	for j, r := range readings {
		sum += r.PowerW
		if r.PowerW < minP {
			minP = r.PowerW
		}
		if r.PowerW > maxP {
			maxP = r.PowerW
		}
		if j > 0 {
			delta := r.EnergyWh - readings[j-1].EnergyWh
			if delta < 0 {
				bucket.Reset = true
				continue
			}
			positive += delta
		}
	}

	avg := sum / float64(len(readings))
	bucket.AvgPowerW = &avg
	bucket.MinPowerW = &minP
	bucket.MaxPowerW = &maxP

	if bucket.Reset {
		// Only count growth between consecutive samples; the drop marks a counter restart
		bucket.EnergyWh = positive
	} else {
		bucket.EnergyWh = readings[len(readings)-1].EnergyWh - readings[0].EnergyWh
	}
	return bucket
}

// aggregateRaw emits one bucket per reading. Each bucket lasts until the next
// reading (the last one until the window end) and carries the counter delta
// from the previous reading.
func aggregateRaw(w Window, readings []Reading) []Bucket {
	inWindow := make([]Reading, 0, len(readings))
	for _, r := range readings {
		if !r.Timestamp.Before(w.Start) && r.Timestamp.Before(w.End) {
			inWindow = append(inWindow, r)
		}
	}

	buckets := make([]Bucket, len(inWindow))
	for i, r := range inWindow {
		end := w.End
		if i+1 < len(inWindow) {
			end = inWindow[i+1].Timestamp
		}
		power := r.PowerW
		bucket := Bucket{
			Start:       r.Timestamp.UTC(),
			End:         end.UTC(),
			SampleCount: 1,
			AvgPowerW:   &power,
			MinPowerW:   &power,
			MaxPowerW:   &power,
		}
		if i > 0 {
			delta := r.EnergyWh - inWindow[i-1].EnergyWh
			if delta < 0 {
				bucket.Reset = true
			} else {
				bucket.EnergyWh = delta
			}
		}
		buckets[i] = bucket
	}
	return buckets
}

// countResets returns how many buckets were flagged with a counter reset
func countResets(buckets []Bucket) int {
	n := 0
	for _, b := range buckets {
		if b.Reset {
			n++
		}
	}
	return n
}
