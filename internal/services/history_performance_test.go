package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHistoryQueryPerformance measures cold and cached queries over a week of minute readings
func TestHistoryQueryPerformance(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping performance test in short mode")
	}

	ts, service := newHistoryTestService(t)
	ts.SeedDevice("plug-perf", "Europe/Berlin")
	ts.SeedReadings("plug-perf", seriesStart, time.Minute, 7*24*60, 2)
	ts.SeedRateSchedule("plug-perf", "tou-1", seriesStart.AddDate(0, -1, 0), `{"kind":"tou","currency":"EUR","flat_rate":0.28,"time_of_use":[
		{"name":"night","start":"22:00","end":"06:00","rate":0.18},
		{"name":"peak","start":"17:00","end":"20:00","rate":0.41}]}`)

	testCases := []struct {
		name     string
		duration time.Duration
	}{
		{"One hour", time.Hour},
		{"One day", 24 * time.Hour},
		{"One week", 7 * 24 * time.Hour},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := HistoryRequest{Start: seriesStart, End: seriesStart.Add(tc.duration)}

			started := time.Now()
			cold, err := service.GetHistory(context.Background(), "plug-perf", req)
			coldDuration := time.Since(started)
			require.NoError(t, err)
			assert.False(t, cold.Metadata.Cached)

			started = time.Now()
			warm, err := service.GetHistory(context.Background(), "plug-perf", req)
			warmDuration := time.Since(started)
			require.NoError(t, err)
			assert.True(t, warm.Metadata.Cached)

			t.Logf("%s: %d buckets at %s, cold %v, cached %v",
				tc.name, len(cold.Buckets), cold.Metadata.Aggregation, coldDuration, warmDuration)

			assert.LessOrEqual(t, len(cold.Buckets), ts.Config.History.MaxPoints)
			assert.Less(t, coldDuration, 2*time.Second, "Cold query should complete in under 2s")
			assert.Less(t, warmDuration, 50*time.Millisecond, "Cached query should complete in under 50ms")
		})
	}
}
