package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/plugtrack/backend/internal/db/models"
	"github.com/plugtrack/backend/internal/db/repository"
	"github.com/plugtrack/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func TestReadingRepository(t *testing.T) {
	ts := testutil.NewTestSetup(t)
	defer ts.Cleanup()
	ts.SetupTestDatabase()

	repo := repository.NewRepositoryFactory(ts.DB.DB).Reading()
	ts.SeedReadings("plug-1", base, time.Minute, 10, 5)
	ts.SeedReadings("plug-2", base, time.Minute, 10, 5)

	t.Run("Should return readings in the half-open range in ascending order", func(t *testing.T) {
		readings, err := repo.FetchRange(context.Background(), "plug-1", base.Add(2*time.Minute), base.Add(5*time.Minute))
		require.NoError(t, err)
		require.Len(t, readings, 3)

		assert.True(t, readings[0].Time.Equal(base.Add(2*time.Minute)))
		assert.True(t, readings[2].Time.Equal(base.Add(4*time.Minute)))
		for _, r := range readings {
			assert.Equal(t, "plug-1", r.DeviceID)
		}
		assert.Equal(t, 10.0, readings[0].EnergyWh)
	})

	t.Run("Should return the latest reading", func(t *testing.T) {
		latest, err := repo.GetLatest(context.Background(), "plug-1")
		require.NoError(t, err)
		assert.True(t, latest.Time.Equal(base.Add(9*time.Minute)))
	})

	t.Run("Should return not found for unknown devices", func(t *testing.T) {
		_, err := repo.GetLatest(context.Background(), "ghost")
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("Should insert batches", func(t *testing.T) {
		err := repo.InsertBatch([]models.Reading{
			{Time: base.Add(-time.Hour), DeviceID: "plug-3", PowerW: 1, EnergyWh: 1},
			{Time: base, DeviceID: "plug-3", PowerW: 1, EnergyWh: 2},
		})
		require.NoError(t, err)

		readings, err := repo.FetchRange(context.Background(), "plug-3", base.Add(-time.Hour), base.Add(time.Minute))
		require.NoError(t, err)
		assert.Len(t, readings, 2)
	})
}

func TestRateScheduleRepository_Current(t *testing.T) {
	ts := testutil.NewTestSetup(t)
	defer ts.Cleanup()
	ts.SetupTestDatabase()

	repo := repository.NewRepositoryFactory(ts.DB.DB).RateSchedule()
	doc := `{"kind":"simple","currency":"USD","flat_rate":"0.2"}`
	ts.SeedRateSchedule("", "default-1", base.AddDate(0, 0, -30), doc)
	ts.SeedRateSchedule("plug-1", "plug-1-v1", base.AddDate(0, 0, -10), doc)
	ts.SeedRateSchedule("plug-1", "plug-1-v2", base.AddDate(0, 0, 1), doc)

	t.Run("Should pick the latest device schedule in force", func(t *testing.T) {
		schedule, err := repo.Current(context.Background(), "plug-1", base)
		require.NoError(t, err)
		assert.Equal(t, "plug-1-v1", schedule.Version)

		schedule, err = repo.Current(context.Background(), "plug-1", base.AddDate(0, 0, 2))
		require.NoError(t, err)
		assert.Equal(t, "plug-1-v2", schedule.Version)
	})

	t.Run("Should fall back to the default schedule", func(t *testing.T) {
		schedule, err := repo.Current(context.Background(), "plug-2", base)
		require.NoError(t, err)
		assert.Equal(t, "default-1", schedule.Version)
		assert.JSONEq(t, doc, string(schedule.Document))
	})

	t.Run("Should return not found before any schedule", func(t *testing.T) {
		_, err := repo.Current(context.Background(), "plug-2", base.AddDate(0, 0, -60))
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("Should reject schedules without a version", func(t *testing.T) {
		err := repo.Create(&models.RateSchedule{DeviceID: "plug-1", EffectiveFrom: base})
		assert.ErrorIs(t, err, repository.ErrInvalidInput)
	})
}

func TestDeviceRepository(t *testing.T) {
	ts := testutil.NewTestSetup(t)
	defer ts.Cleanup()
	ts.SetupTestDatabase()

	repo := repository.NewRepositoryFactory(ts.DB.DB).Device()

	t.Run("Should create and look up devices by external id", func(t *testing.T) {
		device := &models.Device{ExternalID: "plug-kitchen", Name: "Kitchen", Timezone: "Europe/Berlin"}
		require.NoError(t, repo.Create(device))
		assert.NotZero(t, device.ID)

		found, err := repo.GetByExternalID(context.Background(), "plug-kitchen")
		require.NoError(t, err)
		assert.Equal(t, "Europe/Berlin", found.Timezone)
	})

	t.Run("Should reject duplicates and empty ids", func(t *testing.T) {
		assert.Error(t, repo.Create(&models.Device{ExternalID: "plug-kitchen", Name: "Again"}))
		assert.ErrorIs(t, repo.Create(&models.Device{Name: "Nameless"}), repository.ErrInvalidInput)
	})

	t.Run("Should return not found for unknown devices", func(t *testing.T) {
		_, err := repo.GetByExternalID(context.Background(), "ghost")
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("Should page through devices", func(t *testing.T) {
		for _, id := range []string{"plug-a", "plug-b", "plug-c"} {
			require.NoError(t, repo.Create(&models.Device{ExternalID: id, Name: id}))
		}

		devices, total, err := repo.List(0, 2)
		require.NoError(t, err)
		assert.Equal(t, int64(4), total)
		require.Len(t, devices, 2)
		assert.Equal(t, "plug-a", devices[0].ExternalID)

		devices, _, err = repo.List(2, 2)
		require.NoError(t, err)
		require.Len(t, devices, 2)
		assert.Equal(t, "plug-kitchen", devices[1].ExternalID)
	})
}
