package app

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"booklending/internal/config"
)

func mockConfig() *config.Config {
	return &config.Config{
		Port:          "0",
		LogLevel:      "error",
		LogFormat:     "json",
		StorageDriver: config.DriverMock,
		BorrowLockTTL: time.Second,
		MinDaysLate:   1,
	}
}

func TestNewWithConfig_MockStorage(t *testing.T) {
	app, err := NewWithConfig(mockConfig())
	require.NoError(t, err)
	defer app.Shutdown()

	assert.Nil(t, app.bot)

	w := httptest.NewRecorder()
	app.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	app.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "bot: disabled")

	w = httptest.NewRecorder()
	body := strings.NewReader(`{"title":"Dune","author":"Frank Herbert"}`)
	app.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/books", body))
	assert.Equal(t, http.StatusCreated, w.Code)

	// no webhook route without a bot
	w = httptest.NewRecorder()
	app.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/telegram-webhook", strings.NewReader("{}")))
	assert.NotEqual(t, http.StatusOK, w.Code)
}

func TestNewWithConfig_FeeTiersFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fees.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tiers:
  - base_penalty_rate: 0.1
    daily_interest_rate: 0.01
`), 0o600))

	cfg := mockConfig()
	cfg.FeeTiersFile = path

	app, err := NewWithConfig(cfg)
	require.NoError(t, err)
	defer app.Shutdown()

	w := httptest.NewRecorder()
	app.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/fees/quote?days_late=5", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"fee_percentage":15`)
}

func TestNewWithConfig_InvalidFeeTiersFile(t *testing.T) {
	cfg := mockConfig()
	cfg.FeeTiersFile = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := NewWithConfig(cfg)
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	logger, err := newLogger("debug", "console")
	require.NoError(t, err)
	assert.NotNil(t, logger)

	_, err = newLogger("loud", "json")
	assert.Error(t, err)
}
