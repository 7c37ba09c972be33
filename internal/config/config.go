package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Log      LogConfig      `mapstructure:"log"`
	History  HistoryConfig  `mapstructure:"history"`
	InfluxDB InfluxDBConfig `mapstructure:"influxdb"`
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	Host         string `mapstructure:"host"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	IdleTimeout  int    `mapstructure:"idle_timeout"`
	Environment  string `mapstructure:"environment"`
}

// DatabaseConfig holds database-specific configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	TimeZone string `mapstructure:"timezone"`
}

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Brokers        string `mapstructure:"brokers"`
	ConsumerGroup  string `mapstructure:"consumer_group"`
	SecurityEnable bool   `mapstructure:"security_enable"`
	SecurityUser   string `mapstructure:"security_user"`
	SecurityPass   string `mapstructure:"security_pass"`
}

// JWTConfig holds the settings used to verify bearer tokens issued by the auth service
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// HistoryConfig holds the history query engine limits
type HistoryConfig struct {
	// MaxPoints caps the number of buckets a single query may return
	MaxPoints int `mapstructure:"max_points"`
	// MaxPeriod is the longest explicit range a caller may request
	MaxPeriod time.Duration `mapstructure:"max_period"`
	// RawMaxWindow is the longest window for which raw readings may be requested
	RawMaxWindow time.Duration `mapstructure:"raw_max_window"`
	// FetchTimeout bounds each reading-store and rate-schedule fetch
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	// WindowAlignment truncates "now" when resolving named periods
	WindowAlignment time.Duration `mapstructure:"window_alignment"`
	DefaultTimezone string        `mapstructure:"default_timezone"`
	// ReadingStore selects the reading backend: "postgres" or "influxdb"
	ReadingStore string `mapstructure:"reading_store"`
}

// InfluxDBConfig holds InfluxDB v2 connection settings for the reading store
type InfluxDBConfig struct {
	URL         string `mapstructure:"url"`
	Token       string `mapstructure:"token"`
	Org         string `mapstructure:"org"`
	Bucket      string `mapstructure:"bucket"`
	Measurement string `mapstructure:"measurement"`
}

// LoadConfig loads the application configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	var config Config

	// Set default configuration file path if not provided
	if configPath == "" {
		configPath = "./config"
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)

	// Environment overrides, e.g. PLUGTRACK_HISTORY_MAX_POINTS
	v.SetEnvPrefix("PLUGTRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		// If the configuration file is not found, that's fine, we'll use defaults and env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read configuration file: %w", err)
		}
	}

	v.AutomaticEnv()

	setDefaults(v)

	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// setDefaults sets default values for the configuration
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 15)  // seconds
	v.SetDefault("server.write_timeout", 30) // seconds
	v.SetDefault("server.idle_timeout", 60)  // seconds
	v.SetDefault("server.environment", "development")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.dbname", "plugtrack")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.timezone", "UTC")

	// Kafka defaults
	v.SetDefault("kafka.enabled", true)
	v.SetDefault("kafka.brokers", "kafka:9092")
	v.SetDefault("kafka.consumer_group", "plugtrack-history")
	v.SetDefault("kafka.security_enable", false)

	// JWT defaults
	v.SetDefault("jwt.issuer", "plugtrack-auth")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_path", "stdout")

	// History engine defaults
	v.SetDefault("history.max_points", 300)
	v.SetDefault("history.max_period", "8784h") // 366 days
	v.SetDefault("history.raw_max_window", "2h")
	v.SetDefault("history.fetch_timeout", "5s")
	v.SetDefault("history.window_alignment", "1m")
	v.SetDefault("history.default_timezone", "UTC")
	v.SetDefault("history.reading_store", "postgres")

	// InfluxDB defaults
	v.SetDefault("influxdb.url", "http://influxdb:8086")
	v.SetDefault("influxdb.bucket", "plug-readings")
	v.SetDefault("influxdb.measurement", "power_readings")
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	if config.JWT.Secret == "" {
		// In development mode, set a default secret
		if config.Server.Environment == "development" {
			config.JWT.Secret = "development-jwt-secret-key-change-in-production"
		} else {
			return fmt.Errorf("JWT secret is required in non-development environments")
		}
	}

	if config.Database.Password == "" {
		dbPassword := os.Getenv("PLUGTRACK_DATABASE_PASSWORD")
		if dbPassword == "" {
			if config.Server.Environment != "development" {
				return fmt.Errorf("database password is required in non-development environments")
			}
		} else {
			config.Database.Password = dbPassword
		}
	}

	if config.History.MaxPoints <= 0 {
		return fmt.Errorf("history.max_points must be positive")
	}
	if config.History.MaxPeriod <= 0 {
		return fmt.Errorf("history.max_period must be positive")
	}
	if config.History.FetchTimeout <= 0 {
		return fmt.Errorf("history.fetch_timeout must be positive")
	}
	if _, err := time.LoadLocation(config.History.DefaultTimezone); err != nil {
		return fmt.Errorf("invalid history.default_timezone %q: %w", config.History.DefaultTimezone, err)
	}

	switch config.History.ReadingStore {
	case "postgres":
	case "influxdb":
		if config.InfluxDB.Token == "" || config.InfluxDB.Org == "" {
			return fmt.Errorf("influxdb token and org are required when history.reading_store is influxdb")
		}
	default:
		return fmt.Errorf("unknown history.reading_store %q", config.History.ReadingStore)
	}

	return nil
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode, c.TimeZone)
}

// IsProduction returns true if the environment is production
func (c *ServerConfig) IsProduction() bool {
	return c.Environment == "production"
}

// IsDevelopment returns true if the environment is development
func (c *ServerConfig) IsDevelopment() bool {
	return c.Environment == "development"
}
