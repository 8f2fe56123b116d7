// Package config loads service configuration from the environment, with
// a .env file honored when present.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App   AppConfig
	Model ModelConfig
	Cache CacheConfig
	Trace TraceConfig
}

type AppConfig struct {
	Port        string
	Environment string
}

type ModelConfig struct {
	APIKey         string
	Endpoint       string
	Model          string
	Effort         string
	TimeoutSeconds int
}

type CacheConfig struct {
	DBPath string
}

type TraceConfig struct {
	OTLPEndpoint string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, using system environment")
	}

	return &Config{
		App: AppConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("GO_ENV", "development"),
		},
		Model: ModelConfig{
			APIKey:         getEnv("EVIDENTIA_API_KEY", ""),
			Endpoint:       getEnv("EVIDENTIA_ENDPOINT", ""),
			Model:          getEnv("EVIDENTIA_MODEL", ""),
			Effort:         getEnv("EVIDENTIA_REASONING_EFFORT", ""),
			TimeoutSeconds: getEnvAsInt("EVIDENTIA_TIMEOUT_SECONDS", 600),
		},
		Cache: CacheConfig{
			DBPath: getEnv("EVIDENTIA_DB_PATH", "evidentia.db"),
		},
		Trace: TraceConfig{
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		},
	}
}

// Timeout converts the configured seconds to a duration.
func (m ModelConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}
