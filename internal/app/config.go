// Package app holds process-level configuration loaded from the
// environment.
package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	MaxSessions     int
	IdleTimeout     time.Duration
	CleanupInterval time.Duration
	PeerGracePeriod time.Duration

	InitialWindow int
	BufferAhead   int

	MemoryLimitBytes int64
	DisableSeeding   bool

	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int

	SearchTimeout  time.Duration
	SearchCacheTTL time.Duration
	RedisAddr      string // empty disables the shared Redis search cache

	OTLPEndpoint string
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:        strings.ToLower(getEnv("LOG_FORMAT", "text")),
		MaxSessions:      int(getEnvInt64("MAX_SESSIONS", 5)),
		IdleTimeout:      getEnvDuration("IDLE_TIMEOUT", 3*time.Minute),
		CleanupInterval:  getEnvDuration("CLEANUP_INTERVAL", 30*time.Second),
		PeerGracePeriod:  getEnvDuration("PEER_GRACE_PERIOD", 30*time.Second),
		InitialWindow:    int(getEnvInt64("INITIAL_WINDOW_PIECES", 10)),
		BufferAhead:      int(getEnvInt64("BUFFER_AHEAD_PIECES", 15)),
		MemoryLimitBytes: getEnvInt64("MEMORY_LIMIT_BYTES", 2<<30),
		DisableSeeding:   getEnvBool("DISABLE_SEEDING", false),
		AllowedOrigins:   splitList(getEnv("ALLOWED_ORIGINS", "")),
		RateLimitRPS:     float64(getEnvInt64("RATE_LIMIT_RPS", 100)),
		RateLimitBurst:   int(getEnvInt64("RATE_LIMIT_BURST", 200)),
		SearchTimeout:    getEnvDuration("SEARCH_TIMEOUT", 10*time.Second),
		SearchCacheTTL:   getEnvDuration("SEARCH_CACHE_TTL", 10*time.Minute),
		RedisAddr:        getEnv("REDIS_ADDR", ""),
		OTLPEndpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch value {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return fallback
	}
}

// getEnvDuration accepts Go duration strings ("90s", "3m") and falls back
// to interpreting a bare number as seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
		return parsed
	}
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func splitList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			out = append(out, item)
		}
	}
	return out
}
