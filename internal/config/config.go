package config

import (
	"os"
	"strconv"
	"time"
)

// DefaultMaxUploadBytes is the advertised 50MB upload guideline.
const DefaultMaxUploadBytes int64 = 50 << 20

type Config struct {
	ListenAddr     string
	ServiceURL     string
	DBPath         string
	StoragePath    string
	MaxUploadBytes int64
	SessionTTL     time.Duration
	SweepInterval  time.Duration
	LogLevel       string
	LogFormat      string
	SecureCookies  bool
}

func Load() *Config {
	return &Config{
		ListenAddr:     getEnv("ENH_LISTEN_ADDR", ":8080"),
		ServiceURL:     getEnv("ENH_SERVICE_URL", "http://localhost:8013/api"),
		DBPath:         getEnv("ENH_DB_PATH", "/data/db/sessions.db"),
		StoragePath:    getEnv("ENH_STORAGE_PATH", "/data/blobs"),
		MaxUploadBytes: getEnvInt64("ENH_MAX_UPLOAD_BYTES", DefaultMaxUploadBytes),
		SessionTTL:     getEnvDuration("ENH_SESSION_TTL", 2*time.Hour),
		SweepInterval:  getEnvDuration("ENH_SWEEP_INTERVAL", 5*time.Minute),
		LogLevel:       getEnv("ENH_LOG_LEVEL", "info"),
		LogFormat:      getEnv("ENH_LOG_FORMAT", "json"),
		SecureCookies:  getEnv("ENH_SECURE_COOKIES", "") == "true",
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// getEnvInt64 reads a positive integer. Anything else, including values
// that overflow int64, yields defaultValue.
func getEnvInt64(key string, defaultValue int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}
