package config

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	os.Setenv("DB_URI", "mongodb://127.0.0.1:27017")
	os.Setenv("DB_NAME", "test")
	conf := New()

	assert.NotEmpty(t, conf)
	assert.Equal(t, "mongodb://127.0.0.1:27017", conf.URL)
	assert.Equal(t, "test", conf.DatabaseName)
}

func TestNewDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("DB_TRANSACTIONS", "")
	t.Setenv("TOKEN_TTL", "")
	conf := New()

	assert.Equal(t, "8080", conf.Port)
	assert.True(t, conf.Transactions)
	assert.Equal(t, 24*time.Hour, conf.TokenTTL)
	assert.Equal(t, "*/15 * * * *", conf.SweepSchedule)
}

func TestNewOverrides(t *testing.T) {
	t.Setenv("DB_TRANSACTIONS", "false")
	t.Setenv("TOKEN_TTL", "2h")
	t.Setenv("REQUEST_TIMEOUT", "not-a-duration")
	conf := New()

	assert.False(t, conf.Transactions)
	assert.Equal(t, 2*time.Hour, conf.TokenTTL)
	assert.Equal(t, 30*time.Second, conf.RequestTimeout)
}

func TestErrorStatus(t *testing.T) {
	rr := httptest.NewRecorder()
	ErrorStatus("error it borked", http.StatusBadRequest, rr, errors.New("bad request"))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, `{"response":"error it borked, bad request"}`, rr.Body.String())
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
}

func TestErrorStatusEscapesError(t *testing.T) {
	rr := httptest.NewRecorder()
	ErrorStatus("failed to update call", http.StatusInternalServerError, rr,
		errors.New(`E11000 duplicate key { name: "Robbery\n" }`))

	var body map[string]string
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, `failed to update call, E11000 duplicate key { name: "Robbery\n" }`, body["response"])
}

func TestSetLoggerSetsDevelopmentLogger(t *testing.T) {
	l, err := setLogger("development")
	assert.NoError(t, err)
	assert.True(t, l.Core().Enabled(0))
	assert.False(t, l.Core().Enabled(-1))
}

func TestSetLoggerSetsProductionLogger(t *testing.T) {
	l, err := setLogger("production")
	assert.NoError(t, err)
	assert.True(t, l.Core().Enabled(2))
	assert.False(t, l.Core().Enabled(-1))
}

func TestSetLoggerSetsLocalLogger(t *testing.T) {
	l, err := setLogger("local")
	assert.NoError(t, err)
	assert.True(t, l.Core().Enabled(-1))
}
