package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

type Config interface {
	EnvConfig
	SessionConfig
	HTTPConfig
	OAuthConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetServicesFile() string
	GetLogLevel() zerolog.Level
}

type SessionConfig interface {
	GetSessionStorage() string
	GetSessionKey() string
	GetSessionDir() string
	GetRedisURL() string
	GetRedisPassword() string
}

type mainConfig struct {
	EnvVars
	Session
	HTTP
	OAuth
}

func New() Config {
	return mainConfig{}
}

// Load reads the given .env files into the process environment. Files that do
// not exist are skipped; variables already set are not overridden.
func Load(files ...string) error {
	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

// Dotenv returns the .env files Load reads by default.
func Dotenv() []string {
	if file := os.Getenv("API_DOTENV"); file != "" {
		return []string{file}
	}
	return []string{".env"}
}
