package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolver_Resolve(t *testing.T) {
	resolver := Resolver{
		MaxPeriod:       366 * 24 * time.Hour,
		Alignment:       time.Minute,
		DefaultLocation: time.UTC,
	}
	now := time.Date(2024, 6, 15, 10, 0, 30, 0, time.UTC)

	t.Run("Should resolve 24h by duration and align the end", func(t *testing.T) {
		w, err := resolver.Resolve(PeriodRequest{Token: Period24h}, now)
		require.NoError(t, err)

		assert.Equal(t, time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC), w.End)
		assert.Equal(t, 24*time.Hour, w.Duration())
		assert.Equal(t, time.UTC, w.Location)
	})

	t.Run("Should resolve calendar tokens in the caller timezone", func(t *testing.T) {
		w, err := resolver.Resolve(PeriodRequest{Token: Period3m, Timezone: "Europe/Berlin"}, now)
		require.NoError(t, err)

		// 12:00 CEST minus three months is 12:00 CET
		assert.Equal(t, time.Date(2024, 3, 15, 11, 0, 0, 0, time.UTC), w.Start)
		assert.Equal(t, "Europe/Berlin", w.Location.String())
		assert.Equal(t, time.UTC, w.Start.Location())
	})

	t.Run("Should resolve identical requests within one alignment slot to the same window", func(t *testing.T) {
		a, err := resolver.Resolve(PeriodRequest{Token: Period7d}, now)
		require.NoError(t, err)
		b, err := resolver.Resolve(PeriodRequest{Token: Period7d}, now.Add(20*time.Second))
		require.NoError(t, err)

		assert.Equal(t, a.Start, b.Start)
		assert.Equal(t, a.End, b.End)
	})

	t.Run("Should accept an explicit range", func(t *testing.T) {
		start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		end := start.Add(48 * time.Hour)

		w, err := resolver.Resolve(PeriodRequest{Start: start, End: end}, now)
		require.NoError(t, err)
		assert.Equal(t, start, w.Start)
		assert.Equal(t, end, w.End)
	})

	t.Run("Should reject a range longer than the maximum", func(t *testing.T) {
		start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
		_, err := resolver.Resolve(PeriodRequest{Start: start, End: start.AddDate(0, 0, 400)}, now)
		assert.ErrorIs(t, err, ErrInvalidPeriod)
	})

	t.Run("Should reject an end before or at the start", func(t *testing.T) {
		start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
		_, err := resolver.Resolve(PeriodRequest{Start: start, End: start}, now)
		assert.ErrorIs(t, err, ErrInvalidPeriod)

		_, err = resolver.Resolve(PeriodRequest{Start: start, End: start.Add(-time.Hour)}, now)
		assert.ErrorIs(t, err, ErrInvalidPeriod)
	})

	t.Run("Should reject ambiguous or incomplete requests", func(t *testing.T) {
		_, err := resolver.Resolve(PeriodRequest{Token: Period7d, Start: now.Add(-time.Hour)}, now)
		assert.ErrorIs(t, err, ErrInvalidPeriod)

		_, err = resolver.Resolve(PeriodRequest{Start: now.Add(-time.Hour)}, now)
		assert.ErrorIs(t, err, ErrInvalidPeriod)

		_, err = resolver.Resolve(PeriodRequest{}, now)
		assert.ErrorIs(t, err, ErrInvalidPeriod)
	})

	t.Run("Should reject unknown timezones", func(t *testing.T) {
		_, err := resolver.Resolve(PeriodRequest{Token: Period24h, Timezone: "Mars/Olympus"}, now)
		assert.ErrorIs(t, err, ErrInvalidPeriod)
	})
}

func TestParsePeriodToken(t *testing.T) {
	for _, s := range []string{"24h", "7d", "30d", "3m", "6m", "1y"} {
		token, err := ParsePeriodToken(s)
		assert.NoError(t, err)
		assert.Equal(t, PeriodToken(s), token)
	}

	_, err := ParsePeriodToken("2w")
	assert.ErrorIs(t, err, ErrInvalidPeriod)
}
