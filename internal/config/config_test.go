package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o600))
	return dir
}

func TestLoadConfig(t *testing.T) {
	t.Run("Should apply defaults without a config file", func(t *testing.T) {
		cfg, err := LoadConfig(t.TempDir())
		require.NoError(t, err)

		assert.Equal(t, 8080, cfg.Server.Port)
		assert.True(t, cfg.Server.IsDevelopment())
		assert.NotEmpty(t, cfg.JWT.Secret)
		assert.Equal(t, 300, cfg.History.MaxPoints)
		assert.Equal(t, 366*24*time.Hour, cfg.History.MaxPeriod)
		assert.Equal(t, 2*time.Hour, cfg.History.RawMaxWindow)
		assert.Equal(t, 5*time.Second, cfg.History.FetchTimeout)
		assert.Equal(t, time.Minute, cfg.History.WindowAlignment)
		assert.Equal(t, "postgres", cfg.History.ReadingStore)
	})

	t.Run("Should read the config file and environment overrides", func(t *testing.T) {
		dir := writeConfig(t, `
history:
  max_points: 500
  fetch_timeout: 2s
  default_timezone: Europe/Berlin
kafka:
  enabled: false
`)
		t.Setenv("PLUGTRACK_HISTORY_MAX_POINTS", "120")

		cfg, err := LoadConfig(dir)
		require.NoError(t, err)

		assert.Equal(t, 120, cfg.History.MaxPoints)
		assert.Equal(t, 2*time.Second, cfg.History.FetchTimeout)
		assert.Equal(t, "Europe/Berlin", cfg.History.DefaultTimezone)
		assert.False(t, cfg.Kafka.Enabled)
	})

	t.Run("Should reject an unknown reading store", func(t *testing.T) {
		dir := writeConfig(t, "history:\n  reading_store: cassandra\n")
		_, err := LoadConfig(dir)
		assert.ErrorContains(t, err, "reading_store")
	})

	t.Run("Should require InfluxDB credentials for the influxdb store", func(t *testing.T) {
		dir := writeConfig(t, "history:\n  reading_store: influxdb\n")
		_, err := LoadConfig(dir)
		assert.ErrorContains(t, err, "influxdb")
	})

	t.Run("Should reject an unknown default timezone", func(t *testing.T) {
		dir := writeConfig(t, "history:\n  default_timezone: Mars/Olympus\n")
		_, err := LoadConfig(dir)
		assert.ErrorContains(t, err, "default_timezone")
	})

	t.Run("Should require a JWT secret outside development", func(t *testing.T) {
		dir := writeConfig(t, "server:\n  environment: production\n")
		_, err := LoadConfig(dir)
		assert.ErrorContains(t, err, "JWT secret")
	})
}

func TestDatabaseConfig_GetDSN(t *testing.T) {
	cfg := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "plugtrack", SSLMode: "disable", TimeZone: "UTC"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=plugtrack sslmode=disable TimeZone=UTC", cfg.GetDSN())
}
