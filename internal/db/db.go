package db

import (
	"fmt"
	"time"

	"github.com/plugtrack/backend/internal/config"
	"github.com/plugtrack/backend/internal/db/models"
	"github.com/plugtrack/backend/internal/utils"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database wraps a GORM DB connection with additional functionality
type Database struct {
	*gorm.DB
	logger *utils.Logger
	config *config.DatabaseConfig
}

// NewDatabase creates a new database connection
func NewDatabase(cfg *config.DatabaseConfig, log *utils.Logger) (*Database, error) {
	dbLogger := log.Named("database")

	// Configure GORM logger
	gormLogger := logger.New(
		&logAdapter{logger: dbLogger},
		logger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	// Configure GORM
	gormConfig := &gorm.Config{
		Logger:                 gormLogger,
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
	}

	// Connect to database
	dbLogger.Info("Connecting to database",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("dbname", cfg.DBName),
		zap.String("user", cfg.User),
	)

	dsn := cfg.GetDSN()
	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// Create database wrapper
	database := &Database{
		DB:     db,
		logger: dbLogger,
		config: cfg,
	}

	// Verify connection
	if err := database.VerifyConnection(); err != nil {
		return nil, err
	}

	return database, nil
}

// VerifyConnection checks if the database connection is working
func (db *Database) VerifyConnection() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB instance: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	db.logger.Debug("Database connection verified")
	return nil
}

// NewDatabaseFromGorm wraps an already opened GORM connection
func NewDatabaseFromGorm(gormDB *gorm.DB, log *utils.Logger) *Database {
	return &Database{
		DB:     gormDB,
		logger: log.Named("database"),
	}
}

// AutoMigrate runs auto migration for the history models
func (db *Database) AutoMigrate() error {
	db.logger.Info("Running auto migrations")

	// Register TimescaleDB extension if not already enabled
	if db.Dialector.Name() == "postgres" {
		if err := db.Exec("CREATE EXTENSION IF NOT EXISTS timescaledb CASCADE;").Error; err != nil {
			db.logger.Warn("Failed to create TimescaleDB extension, time-series optimization disabled", zap.Error(err))
		}
	}

	if err := db.DB.AutoMigrate(
		&models.Device{},
		&models.Reading{},
		&models.RateSchedule{},
	); err != nil {
		return fmt.Errorf("failed to auto migrate models: %w", err)
	}

	if db.Dialector.Name() == "postgres" {
		if err := db.CreateHypertables(); err != nil {
			db.logger.Warn("Failed to create hypertables", zap.Error(err))
		}
	}

	return nil
}

// CreateHypertables turns the readings table into a TimescaleDB hypertable
func (db *Database) CreateHypertables() error {
	var extensionExists bool
	if err := db.DB.Raw("SELECT EXISTS(SELECT 1 FROM pg_extension WHERE extname = 'timescaledb');").Scan(&extensionExists).Error; err != nil {
		return fmt.Errorf("failed to check TimescaleDB extension: %w", err)
	}

	if !extensionExists {
		return fmt.Errorf("TimescaleDB extension not installed")
	}

	table := models.Reading{}.TableName()
	var hypertableExists bool
	if err := db.DB.Raw("SELECT EXISTS(SELECT 1 FROM timescaledb_information.hypertables WHERE hypertable_name = ?);", table).Scan(&hypertableExists).Error; err != nil {
		return fmt.Errorf("failed to check if hypertable exists for %s: %w", table, err)
	}

	if !hypertableExists {
		if err := db.DB.Exec(fmt.Sprintf("SELECT create_hypertable('%s', 'time');", table)).Error; err != nil {
			return fmt.Errorf("failed to create hypertable for %s: %w", table, err)
		}
		db.logger.Info("Created hypertable", zap.String("table", table))
	}

	return nil
}

// Close closes the database connection
func (db *Database) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB instance: %w", err)
	}

	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}

	db.logger.Info("Database connection closed")
	return nil
}

// logAdapter adapts our logger to GORM's logger interface
type logAdapter struct {
	logger *utils.Logger
}

// Printf implements GORM's logger interface
func (l *logAdapter) Printf(format string, v ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, v...))
}
