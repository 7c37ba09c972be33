// Package testutil holds helpers shared by package tests
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/plugtrack/backend/internal/config"
	"github.com/plugtrack/backend/internal/db"
	"github.com/plugtrack/backend/internal/db/models"
	"github.com/plugtrack/backend/internal/utils"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestSecret signs tokens created by CreateTestAuthToken
const TestSecret = "test-secret-key-for-testing-only"

var dbCounter atomic.Int64

// TestSetup contains utilities for testing
type TestSetup struct {
	Router   *gin.Engine
	DB       *db.Database
	Logger   *utils.Logger
	Config   *config.Config
	Cleanup  func()
	Requires *require.Assertions
}

// NewTestSetup creates a new test setup with a private in-memory SQLite database
func NewTestSetup(t *testing.T) *TestSetup {
	t.Helper()

	// Set Gin to test mode
	gin.SetMode(gin.TestMode)

	log := &utils.Logger{Logger: zaptest.NewLogger(t)}

	cfg := &config.Config{
		Server: config.ServerConfig{Environment: "test"},
		JWT: config.JWTConfig{
			Secret: TestSecret,
			Issuer: "plugtrack-test",
		},
		Log: config.LogConfig{
			Level:  "debug",
			Format: "console",
		},
		History: config.HistoryConfig{
			MaxPoints:       300,
			MaxPeriod:       366 * 24 * time.Hour,
			RawMaxWindow:    2 * time.Hour,
			FetchTimeout:    time.Second,
			WindowAlignment: time.Minute,
			DefaultTimezone: "UTC",
			ReadingStore:    "postgres",
		},
	}

	// Each test gets its own named in-memory database
	dsn := fmt.Sprintf("file:plugtrack_test_%d?mode=memory&cache=shared", dbCounter.Add(1))
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "Failed to create in-memory database")

	database := db.NewDatabaseFromGorm(gormDB, log)

	router := gin.New()
	router.Use(gin.Recovery())

	cleanup := func() {
		sqlDB, _ := gormDB.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
	}

	return &TestSetup{
		Router:   router,
		DB:       database,
		Logger:   log,
		Config:   cfg,
		Cleanup:  cleanup,
		Requires: require.New(t),
	}
}

// ExecuteRequest executes a test request and returns the response
func (ts *TestSetup) ExecuteRequest(method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reqBody []byte
	var err error

	if body != nil {
		reqBody, err = json.Marshal(body)
		ts.Requires.NoError(err, "Failed to marshal request body")
	}

	req, err := http.NewRequest(method, path, bytes.NewBuffer(reqBody))
	ts.Requires.NoError(err, "Failed to create request")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp := httptest.NewRecorder()
	ts.Router.ServeHTTP(resp, req)

	return resp
}

// ParseResponse parses the JSON response into the provided struct
func (ts *TestSetup) ParseResponse(response *httptest.ResponseRecorder, target interface{}) {
	err := json.Unmarshal(response.Body.Bytes(), target)
	ts.Requires.NoError(err, "Failed to parse response body: %s", response.Body.String())
}

// SetupTestDatabase migrates the history tables
func (ts *TestSetup) SetupTestDatabase() {
	err := ts.DB.AutoMigrate()
	ts.Requires.NoError(err, "Failed to migrate database")
}

// CreateTestAuthToken creates a JWT token for testing authenticated endpoints
func (ts *TestSetup) CreateTestAuthToken(userID uint, email string, role models.Role) string {
	claims := &models.Claims{
		UserID: userID,
		Email:  email,
		Role:   string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    ts.Config.JWT.Issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(ts.Config.JWT.Secret))
	ts.Requires.NoError(err, "Failed to sign JWT token")

	return tokenString
}

// AuthHeader returns an Authorization header for the given role
func (ts *TestSetup) AuthHeader(role models.Role) map[string]string {
	return map[string]string{"Authorization": "Bearer " + ts.CreateTestAuthToken(1, "tester@example.com", role)}
}

// SeedDevice creates a device in the test database
func (ts *TestSetup) SeedDevice(externalID, timezone string) *models.Device {
	device := &models.Device{
		ExternalID: externalID,
		Name:       "Plug " + externalID,
		Model:      "test-plug",
		Timezone:   timezone,
	}
	ts.Requires.NoError(ts.DB.Create(device).Error, "Failed to create test device")
	return device
}

// SeedReadings inserts n readings for a device spaced step apart, starting at start.
// The energy counter grows by whPerStep per reading.
func (ts *TestSetup) SeedReadings(deviceID string, start time.Time, step time.Duration, n int, whPerStep float64) {
	readings := make([]models.Reading, n)
	for i := range readings {
		readings[i] = models.Reading{
			Time:     start.Add(time.Duration(i) * step).UTC(),
			DeviceID: deviceID,
			PowerW:   120,
			EnergyWh: float64(i) * whPerStep,
		}
	}
	ts.Requires.NoError(ts.DB.CreateInBatches(readings, 500).Error, "Failed to create test readings")
}

// SeedRateSchedule stores a rate schedule document
func (ts *TestSetup) SeedRateSchedule(deviceID, version string, effectiveFrom time.Time, document string) *models.RateSchedule {
	schedule := &models.RateSchedule{
		DeviceID:      deviceID,
		Version:       version,
		EffectiveFrom: effectiveFrom.UTC(),
		Document:      models.JSON(document),
	}
	ts.Requires.NoError(ts.DB.Create(schedule).Error, "Failed to create test rate schedule")
	return schedule
}
