// Package reliability runs opt-in stress tests against scopez. Set
// SCOPEZ_RELIABILITY_LEVEL to basic or stress to enable them.
package reliability

import (
	"os"
	"strconv"
	"time"
)

// Config holds configuration for reliability testing.
type Config struct {
	Level            string        // "basic" or "stress"
	Duration         time.Duration // Test duration for stress tests
	MaxGoroutines    int           // Maximum goroutines for concurrent tests
	MaxMemoryMB      int           // Memory growth limit for tests
	FailureThreshold float64       // Failure rate threshold (0.0-1.0)
}

// getConfig reads configuration from environment variables.
func getConfig() Config {
	return Config{
		Level:            os.Getenv("SCOPEZ_RELIABILITY_LEVEL"),
		Duration:         parseDuration(getEnv("SCOPEZ_RELIABILITY_DURATION", "10s"), 10*time.Second),
		MaxGoroutines:    parseInt(getEnv("SCOPEZ_RELIABILITY_MAX_GOROUTINES", "100"), 100),
		MaxMemoryMB:      parseInt(getEnv("SCOPEZ_RELIABILITY_MAX_MEMORY_MB", "256"), 256),
		FailureThreshold: parseFloat(getEnv("SCOPEZ_RELIABILITY_FAILURE_THRESHOLD", "0.05"), 0.05),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(s string, fallback int) int {
	if value, err := strconv.Atoi(s); err == nil {
		return value
	}
	return fallback
}

func parseFloat(s string, fallback float64) float64 {
	if value, err := strconv.ParseFloat(s, 64); err == nil {
		return value
	}
	return fallback
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return fallback
}
