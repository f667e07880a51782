// Package config reads process configuration from environment variables.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// parse reads key with fn, logging and falling back on malformed values.
func parse[T any](key string, fallback T, fn func(string) (T, error)) T {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := fn(strings.TrimSpace(value))
	if err != nil {
		log.Printf("config: ignoring %s=%q: %v", key, value, err)
		return fallback
	}
	return parsed
}

// GetString returns the variable verbatim, or fallback when unset.
func GetString(key, fallback string) string {
	return parse(key, fallback, func(string) (string, error) { return os.Getenv(key), nil })
}

// GetInt parses the variable as a base-10 integer.
func GetInt(key string, fallback int) int {
	return parse(key, fallback, strconv.Atoi)
}

// GetBool accepts the forms strconv.ParseBool does.
func GetBool(key string, fallback bool) bool {
	return parse(key, fallback, strconv.ParseBool)
}

// GetDuration accepts Go durations ("90s", "15m"). Bare integers are read in unit.
func GetDuration(key string, unit, fallback time.Duration) time.Duration {
	return parse(key, fallback, func(v string) (time.Duration, error) {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * unit, nil
		}
		return time.ParseDuration(v)
	})
}
