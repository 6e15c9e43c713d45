package config

import (
	"errors"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	HTTPPort             int
	GoogleClientID       string
	GoogleClientSecret   string
	BaseURL              string
	DefaultFrequencyDays int
	FetchConcurrency     int
	NATSURL              string
	PostHogAPIKey        string
	PostHogEndpoint      string
	LogLevel             slog.Level
}

func Load() Config {
	return Config{
		HTTPPort:             getEnvInt("HTTP_PORT", 8080),
		GoogleClientID:       getEnvString("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:   getEnvString("GOOGLE_CLIENT_SECRET", ""),
		BaseURL:              getEnvString("BASE_URL", ""),
		DefaultFrequencyDays: getEnvInt("DEFAULT_FREQUENCY_DAYS", 7),
		FetchConcurrency:     getEnvInt("FETCH_CONCURRENCY", 8),
		NATSURL:              getEnvString("NATS_URL", ""),
		PostHogAPIKey:        getEnvString("POSTHOG_API_KEY", ""),
		PostHogEndpoint:      getEnvString("POSTHOG_ENDPOINT", ""),
		LogLevel:             getEnvLevel("LOG_LEVEL", slog.LevelInfo),
	}
}

// Validate reports settings the server cannot start without
func (c Config) Validate() error {
	var errs []error
	if c.GoogleClientID == "" {
		errs = append(errs, errors.New("GOOGLE_CLIENT_ID is required"))
	}
	if c.GoogleClientSecret == "" {
		errs = append(errs, errors.New("GOOGLE_CLIENT_SECRET is required"))
	}
	if c.DefaultFrequencyDays <= 0 {
		errs = append(errs, errors.New("DEFAULT_FREQUENCY_DAYS must be positive"))
	}
	return errors.Join(errs...)
}

func getEnvString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvLevel(key string, fallback slog.Level) slog.Level {
	if value, ok := os.LookupEnv(key); ok {
		var level slog.Level
		if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err == nil {
			return level
		}
	}
	return fallback
}
