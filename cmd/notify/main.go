// Command notify publishes cache invalidation events, optionally storing a reading first.
//
//	notify -event readings -device plug-1 -power 120 -energy 5310.5
//	notify -event rates -device plug-1 -version 2024-06
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/plugtrack/backend/internal/config"
	"github.com/plugtrack/backend/internal/db"
	"github.com/plugtrack/backend/internal/db/models"
	"github.com/plugtrack/backend/internal/db/repository"
	"github.com/plugtrack/backend/internal/history"
	"github.com/plugtrack/backend/internal/influxdb"
	"github.com/plugtrack/backend/internal/kafka"
	"github.com/plugtrack/backend/internal/utils"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "./config", "Path to the configuration directory")
	event := flag.String("event", "readings", "Event to publish: readings or rates")
	deviceID := flag.String("device", "", "Device id; empty with -event rates targets the default schedule")
	timestamp := flag.String("timestamp", "", "Reading time in RFC3339, defaults to now")
	version := flag.String("version", "", "Rate schedule version for -event rates")
	power := flag.Float64("power", 0, "Power in W of the reading to store")
	energy := flag.Float64("energy", -1, "Cumulative energy in Wh of the reading to store; negative skips the write")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(&cfg.Log)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	kafkaManager, err := kafka.NewManager(&cfg.Kafka, logger)
	if err != nil {
		logger.Fatal("Failed to create Kafka manager", zap.Error(err))
	}
	// Close flushes pending deliveries
	defer kafkaManager.Close()

	switch *event {
	case "readings":
		if *deviceID == "" {
			logger.Fatal("-device is required for readings events")
		}
		at := time.Now().UTC()
		if *timestamp != "" {
			at, err = time.Parse(time.RFC3339, *timestamp)
			if err != nil {
				logger.Fatal("Invalid -timestamp", zap.Error(err))
			}
		}

		count := 0
		if *energy >= 0 {
			reading := history.Reading{DeviceID: *deviceID, Timestamp: at, PowerW: *power, EnergyWh: *energy}
			if err := storeReading(cfg, logger, reading); err != nil {
				logger.Fatal("Failed to store reading", zap.Error(err))
			}
			count = 1
		}

		err = kafkaManager.ProduceReadingsIngested(kafka.ReadingsIngestedEvent{
			DeviceID:  *deviceID,
			Timestamp: at,
			Count:     count,
		})

	case "rates":
		if *version == "" {
			logger.Fatal("-version is required for rates events")
		}
		err = kafkaManager.ProduceRateChanged(kafka.RateChangedEvent{
			DeviceID: *deviceID,
			Version:  *version,
		})

	default:
		logger.Fatal("Unknown -event, expected readings or rates", zap.String("event", *event))
	}

	if err != nil {
		logger.Fatal("Failed to publish event", zap.Error(err))
	}
	logger.Info("Event published",
		zap.String("event", *event),
		zap.String("device_id", *deviceID))
}

// storeReading writes one reading to the configured reading store
func storeReading(cfg *config.Config, logger *utils.Logger, reading history.Reading) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if cfg.History.ReadingStore == "influxdb" {
		store, err := influxdb.NewReadingStore(cfg.InfluxDB, logger)
		if err != nil {
			return err
		}
		defer store.Close()
		return store.WriteReadings(ctx, []history.Reading{reading})
	}

	database, err := db.NewDatabase(&cfg.Database, logger)
	if err != nil {
		return err
	}
	defer database.Close()

	return repository.NewReadingRepository(database.DB.WithContext(ctx)).InsertBatch([]models.Reading{{
		Time:     reading.Timestamp,
		DeviceID: reading.DeviceID,
		PowerW:   reading.PowerW,
		EnergyWh: reading.EnergyWh,
	}})
}
