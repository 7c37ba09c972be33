package influxdb

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/plugtrack/backend/internal/config"
	"github.com/plugtrack/backend/internal/history"
	"github.com/plugtrack/backend/internal/utils"
	"go.uber.org/zap"
)

// Field names written by the ingestion pipeline
const (
	fieldPower  = "power_w"
	fieldEnergy = "energy_wh"
	tagDevice   = "device_id"
)

// ReadingStore reads raw plug readings from an InfluxDB v2 bucket
type ReadingStore struct {
	client   influxdb2.Client
	queryAPI api.QueryAPI
	writeAPI api.WriteAPIBlocking
	config   config.InfluxDBConfig
	logger   *utils.Logger
}

// NewReadingStore initializes the InfluxDB v2 client and verifies connectivity
func NewReadingStore(cfg config.InfluxDBConfig, logger *utils.Logger) (*ReadingStore, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := client.Health(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to InfluxDB: %w", err)
	}

	store := &ReadingStore{
		client:   client,
		queryAPI: client.QueryAPI(cfg.Org),
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		config:   cfg,
		logger:   logger.Named("influxdb"),
	}
	store.logger.Info("Connected to InfluxDB",
		zap.String("url", cfg.URL),
		zap.String("bucket", cfg.Bucket),
		zap.String("measurement", cfg.Measurement))
	return store, nil
}

// FetchReadings returns the readings of a device in [start, end), ascending by time
func (s *ReadingStore) FetchReadings(ctx context.Context, deviceID string, start, end time.Time) ([]history.Reading, error) {
	query := buildReadingsQuery(s.config.Bucket, s.config.Measurement, deviceID, start, end)

	result, err := s.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer result.Close()

	var readings []history.Reading
	for result.Next() {
		record := result.Record()
		power, err := toFloat(record.ValueByKey(fieldPower))
		if err != nil {
			return nil, fmt.Errorf("invalid %s at %s: %w", fieldPower, record.Time(), err)
		}
		energy, err := toFloat(record.ValueByKey(fieldEnergy))
		if err != nil {
			return nil, fmt.Errorf("invalid %s at %s: %w", fieldEnergy, record.Time(), err)
		}
		readings = append(readings, history.Reading{
			DeviceID:  deviceID,
			Timestamp: record.Time().UTC(),
			PowerW:    power,
			EnergyWh:  energy,
		})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to read query result: %w", err)
	}

	return readings, nil
}

// WriteReadings stores readings as points of the configured measurement
func (s *ReadingStore) WriteReadings(ctx context.Context, readings []history.Reading) error {
	points := make([]*write.Point, 0, len(readings))
	for _, r := range readings {
		points = append(points, readingPoint(s.config.Measurement, r))
	}
	if err := s.writeAPI.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("failed to write readings: %w", err)
	}
	return nil
}

// Close closes the InfluxDB client
func (s *ReadingStore) Close() {
	s.client.Close()
}

func readingPoint(measurement string, r history.Reading) *write.Point {
	return write.NewPoint(
		measurement,
		map[string]string{tagDevice: r.DeviceID},
		map[string]interface{}{
			fieldPower:  r.PowerW,
			fieldEnergy: r.EnergyWh,
		},
		r.Timestamp,
	)
}

// buildReadingsQuery renders the Flux query for one device and range. The range stop is exclusive.
func buildReadingsQuery(bucket, measurement, deviceID string, start, end time.Time) string {
	return fmt.Sprintf(`from(bucket: %q)
  |> range(start: %s, stop: %s)
  |> filter(fn: (r) => r._measurement == %q and r.%s == %q)
  |> filter(fn: (r) => r._field == %q or r._field == %q)
  |> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")
  |> sort(columns: ["_time"])`,
		bucket,
		start.UTC().Format(time.RFC3339Nano), end.UTC().Format(time.RFC3339Nano),
		measurement, tagDevice, deviceID,
		fieldPower, fieldEnergy,
	)
}

func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case nil:
		return 0, fmt.Errorf("missing value")
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}
