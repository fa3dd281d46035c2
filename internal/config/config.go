// Package config provides environment-aware configuration for pipelinecore.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Environment identifies the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

// Config holds all application configuration.
type Config struct {
	Env Environment

	HTTPAddr      string
	PipelinesDir  string
	CompositesDir string
	PluginsDir    string

	LogLevel  string
	LogFormat string

	// MaxLoopIterations and MaxCompositeDepth default to the spec's
	// constants (1000, 5); only tests should override them.
	MaxLoopIterations int
	MaxCompositeDepth int

	BusTimeout time.Duration

	RateLimitRPS   float64
	RateLimitBurst int
}

// Load reads a .env file if present, then environment variables, falling
// back to defaults for anything unset.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:               Environment(getEnv("PIPELINECORE_ENV", string(Development))),
		HTTPAddr:          getEnv("PIPELINECORE_HTTP_ADDR", ":8080"),
		PipelinesDir:      getEnv("PIPELINECORE_PIPELINES_DIR", "data/pipelines"),
		CompositesDir:     getEnv("PIPELINECORE_COMPOSITES_DIR", "data/composites"),
		PluginsDir:        getEnv("PIPELINECORE_PLUGINS_DIR", "plugins"),
		LogLevel:          getEnv("PIPELINECORE_LOG_LEVEL", "info"),
		LogFormat:         getEnv("PIPELINECORE_LOG_FORMAT", "text"),
		MaxLoopIterations: getEnvInt("PIPELINECORE_MAX_LOOP_ITERATIONS", 1000),
		MaxCompositeDepth: getEnvInt("PIPELINECORE_MAX_COMPOSITE_DEPTH", 5),
		BusTimeout:        getEnvDuration("PIPELINECORE_BUS_TIMEOUT", 5*time.Second),
		RateLimitRPS:      getEnvFloat("PIPELINECORE_RATE_LIMIT_RPS", 50),
		RateLimitBurst:    getEnvInt("PIPELINECORE_RATE_LIMIT_BURST", 100),
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
