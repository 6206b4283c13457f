package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	appNameVar      = "APP_NAME"
	envVar          = "API_ENV"
	servicesFileVar = "API_SERVICES_FILE"
	logLevelVar     = "LOG_LEVEL"
)

// Storage backends for the persisted session.
const (
	StorageFile   = "file"
	StorageRedis  = "redis"
	StorageMemory = "memory"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "API Client")
}

func (EnvVars) GetEnv() string {
	return GetEnv(envVar, "development")
}

func (EnvVars) GetServicesFile() string {
	return GetEnv(servicesFileVar, "services.json")
}

func (EnvVars) GetLogLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(GetEnv(logLevelVar, "info")))
	if err != nil {
		log.Warn().Err(err).Msg("Invalid LOG_LEVEL, using info")
		return zerolog.InfoLevel
	}
	return level
}

type Session struct{}

var _ SessionConfig = Session{}

func (Session) GetSessionStorage() string {
	return strings.ToLower(GetEnv("SESSION_STORAGE", StorageFile))
}

func (Session) GetSessionKey() string {
	return GetEnv("SESSION_KEY", "session")
}

func (Session) GetSessionDir() string {
	if dir := os.Getenv("SESSION_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".apiclient"
	}
	return filepath.Join(home, ".apiclient")
}

func (Session) GetRedisURL() string {
	return GetEnv("REDIS_URL", "")
}

func (Session) GetRedisPassword() string {
	return GetEnv("REDIS_PASSWORD", "")
}

// GetEnv returns the value of envVar, or defaultValue when it is unset or empty.
func GetEnv(envVar string, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetDuration parses envVar as a time.Duration, falling back to defaultValue
// when it is unset or invalid.
func GetDuration(envVar string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Warn().Err(err).Str("variable", envVar).Msg("Invalid duration, using default")
		return defaultValue
	}
	return d
}
