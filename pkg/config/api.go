package config

import (
	"strings"
	"time"
)

// State backends selectable with STATE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// APIConfig holds runtime configuration for the API service.
type APIConfig struct {
	Environment        string
	Addr               string
	LogLevel           string
	StateBackend       string
	DatabaseURL        string
	MigrationsDir      string
	AutoMigrate        bool
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	RedisStateTTL      time.Duration
	SessionSecret      string
	SessionTTL         time.Duration
	SessionIdleTTL     time.Duration
	SessionSweepEvery  time.Duration
	StateSealKey       string
	DomainSuffix       string
	SimulatedDelay     time.Duration
	RateLimitRedisAddr string
	RateLimitRedisPass string
	RateLimitRedisDB   int
	ShutdownTimeout    time.Duration
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment:        GetString("APP_ENV", "development"),
		Addr:               GetString("API_ADDR", ":4000"),
		LogLevel:           GetString("LOG_LEVEL", "info"),
		StateBackend:       strings.ToLower(GetString("STATE_BACKEND", BackendMemory)),
		DatabaseURL:        GetString("DATABASE_URL", "postgres://unhazzle:unhazzle@db:5432/unhazzle?sslmode=disable"),
		MigrationsDir:      GetString("DB_MIGRATIONS_DIR", "db/migrations"),
		AutoMigrate:        GetBool("DB_AUTO_MIGRATE", true),
		RedisAddr:          GetString("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      GetString("REDIS_PASSWORD", ""),
		RedisDB:            GetInt("REDIS_DB", 0),
		RedisStateTTL:      time.Duration(GetInt("REDIS_STATE_TTL_HOURS", 0)) * time.Hour,
		SessionSecret:      GetString("SESSION_SECRET", "unhazzle-dev-secret"),
		SessionTTL:         time.Duration(GetInt("SESSION_TTL_HOURS", 24)) * time.Hour,
		SessionIdleTTL:     time.Duration(GetInt("SESSION_IDLE_TTL_MINUTES", 30)) * time.Minute,
		SessionSweepEvery:  GetDuration("SESSION_SWEEP_INTERVAL", time.Second, time.Minute),
		StateSealKey:       GetString("STATE_SEAL_KEY", ""),
		DomainSuffix:       GetString("DOMAIN_SUFFIX", "unhazzle.app"),
		SimulatedDelay:     time.Duration(GetInt("SIMULATED_DELAY_MS", 2000)) * time.Millisecond,
		RateLimitRedisAddr: GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass: GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:   GetInt("RATE_LIMIT_REDIS_DB", 0),
		ShutdownTimeout:    GetDuration("SHUTDOWN_TIMEOUT", time.Second, 10*time.Second),
	}
}
