package services

import (
	"fmt"

	"github.com/plugtrack/backend/internal/config"
	"github.com/plugtrack/backend/internal/db"
	"github.com/plugtrack/backend/internal/kafka"
	"github.com/plugtrack/backend/internal/utils"
	"go.uber.org/zap"
)

// ServiceProvider manages all services for the application
type ServiceProvider struct {
	logger              *utils.Logger
	config              *config.Config
	database            *db.Database
	kafkaManager        *kafka.Manager
	historyService      *HistoryService
	invalidationHandler *InvalidationHandler
}

// NewServiceProvider creates a new service provider
func NewServiceProvider(
	logger *utils.Logger,
	config *config.Config,
	database *db.Database,
) *ServiceProvider {
	return &ServiceProvider{
		logger:   logger.Named("services"),
		config:   config,
		database: database,
	}
}

// Initialize initializes all services
func (sp *ServiceProvider) Initialize() error {
	var err error

	sp.historyService, err = NewHistoryService(sp.config, sp.database, sp.logger)
	if err != nil {
		return fmt.Errorf("failed to create history service: %w", err)
	}
	sp.logger.Info("History service initialized",
		zap.String("reading_store", sp.config.History.ReadingStore))

	sp.invalidationHandler = NewInvalidationHandler(sp.logger, sp.historyService)

	if !sp.config.Kafka.Enabled {
		sp.logger.Warn("Kafka is disabled, cached history is only invalidated through the admin API")
		return nil
	}

	sp.kafkaManager, err = kafka.NewManager(&sp.config.Kafka, sp.logger)
	if err != nil {
		return fmt.Errorf("failed to create Kafka manager: %w", err)
	}

	if err = sp.invalidationHandler.Initialize(sp.kafkaManager); err != nil {
		sp.kafkaManager.Close()
		return fmt.Errorf("failed to initialize invalidation handler: %w", err)
	}

	if err = sp.kafkaManager.Start(); err != nil {
		sp.kafkaManager.Close()
		return fmt.Errorf("failed to start Kafka manager: %w", err)
	}
	sp.logger.Info("Kafka manager started")

	sp.logger.Info("All services initialized successfully")
	return nil
}

// Shutdown performs a graceful shutdown of all services
func (sp *ServiceProvider) Shutdown() error {
	sp.logger.Info("Shutting down services")

	if sp.kafkaManager != nil && sp.kafkaManager.IsRunning() {
		sp.logger.Info("Stopping Kafka manager")
		if err := sp.kafkaManager.Stop(); err != nil {
			sp.logger.Error("Failed to stop Kafka manager", zap.Error(err))
		}
	}

	if sp.historyService != nil {
		sp.historyService.Close()
	}

	sp.logger.Info("Services shut down successfully")
	return nil
}

// GetKafkaManager returns the Kafka manager, nil when Kafka is disabled
func (sp *ServiceProvider) GetKafkaManager() *kafka.Manager {
	return sp.kafkaManager
}

// GetHistoryService returns the history service
func (sp *ServiceProvider) GetHistoryService() *HistoryService {
	return sp.historyService
}

// GetInvalidationHandler returns the invalidation handler
func (sp *ServiceProvider) GetInvalidationHandler() *InvalidationHandler {
	return sp.invalidationHandler
}
