package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type ColorMode string

const (
	ColorAuto   ColorMode = "auto"
	ColorAlways ColorMode = "always"
	ColorNever  ColorMode = "never"
)

type Config struct {
	RenderFormat    string
	RenderDepth     int
	Color           ColorMode
	MaxBodyBytes    int64
	RequireAllBinds bool
	LogTimestamps   bool

	DatabaseURL string

	RedisURL        string
	RedisKey        string
	RedisChannel    string
	RedisMaxEntries int64
}

func Load() (*Config, error) {
	// A missing .env file is fine.
	godotenv.Load()

	cfg := &Config{
		RenderFormat: getEnv("RENDER_FORMAT", "inspect"),
		Color:        ColorMode(getEnv("COLOR", string(ColorAuto))),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		RedisURL:     getEnv("REDIS_URL", ""),
		RedisKey:     getEnv("REDIS_KEY", "payload-listener:observations"),
		RedisChannel: getEnv("REDIS_CHANNEL", ""),
	}

	var err error
	if cfg.RenderDepth, err = getInt("RENDER_DEPTH", 2); err != nil {
		return nil, err
	}
	if cfg.MaxBodyBytes, err = getInt64("MAX_BODY_BYTES", 0); err != nil {
		return nil, err
	}
	if cfg.MaxBodyBytes < 0 {
		return nil, fmt.Errorf("MAX_BODY_BYTES must not be negative, got %d", cfg.MaxBodyBytes)
	}
	if cfg.RedisMaxEntries, err = getInt64("REDIS_MAX_ENTRIES", 100); err != nil {
		return nil, err
	}
	if cfg.RedisMaxEntries <= 0 {
		return nil, fmt.Errorf("REDIS_MAX_ENTRIES must be positive, got %d", cfg.RedisMaxEntries)
	}
	if cfg.RequireAllBinds, err = getBool("REQUIRE_ALL_BINDS", false); err != nil {
		return nil, err
	}
	if cfg.LogTimestamps, err = getBool("LOG_TIMESTAMPS", false); err != nil {
		return nil, err
	}

	switch cfg.Color {
	case ColorAuto, ColorAlways, ColorNever:
	default:
		return nil, fmt.Errorf("COLOR must be auto, always or never, got %q", cfg.Color)
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getInt(key string, defaultVal int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func getInt64(key string, defaultVal int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, defaultVal bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return b, nil
}
