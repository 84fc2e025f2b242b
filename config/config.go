package config

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Config holds the project config values
type Config struct {
	URL            string
	DatabaseName   string
	BaseURL        string
	Port           string
	Env            string
	JWTSecret      string
	TokenTTL       time.Duration
	RedisURL       string
	Transactions   bool
	RequestTimeout time.Duration
	SweepSchedule  string
}

// New sets up all config related services
func New() *Config {

	//setup zap logger and replace default logger
	env := os.Getenv("ENV")
	logger, err := setLogger(env)
	if err != nil {
		logger = zap.NewExample()
	}
	defer logger.Sync()
	_ = zap.ReplaceGlobals(logger)

	return &Config{
		URL:            os.Getenv("DB_URI"),
		DatabaseName:   os.Getenv("DB_NAME"),
		BaseURL:        os.Getenv("BASE_URL"),
		Port:           getenv("PORT", "8080"),
		Env:            env,
		JWTSecret:      os.Getenv("JWT_SECRET"),
		TokenTTL:       durationEnv("TOKEN_TTL", 24*time.Hour),
		RedisURL:       os.Getenv("REDIS_URL"),
		Transactions:   boolEnv("DB_TRANSACTIONS", true),
		RequestTimeout: durationEnv("REQUEST_TIMEOUT", 30*time.Second),
		SweepSchedule:  getenv("SWEEP_SCHEDULE", "*/15 * * * *"),
	}

}

// ErrorStatus is a useful function that will log, write http headers and body for a
// give message, status code and err
func ErrorStatus(message string, httpStatusCode int, w http.ResponseWriter, err error) {
	zap.S().Errorw(message, "error", err)
	b, _ := json.Marshal(map[string]string{"response": fmt.Sprintf("%s, %v", message, err)})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatusCode)
	w.Write(b)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		zap.S().Warnw("invalid duration, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return d
}

func boolEnv(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		zap.S().Warnw("invalid bool, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return b
}
