// Package config provides environment configuration for the API server.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendNATS   = "nats"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	CORSOrigins        []string

	// NATS settings
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// JWT settings
	JWTSecret string

	// Rate limiting
	RateLimitRequests        int
	RateLimitWindow          time.Duration
	ConversationRateRequests int

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool

	// Storage
	StoreBackend    string
	HistoryBackend  string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	RedisPrefix     string
	ConversationTTL time.Duration
	LockTTL         time.Duration

	// ERP gateway
	ERPBaseURL      string
	ERPToken        string
	ERPQueryTimeout time.Duration
	ERPWriteTimeout time.Duration
	ERPRetries      int

	// Flow and catalog files
	FlowFile    string
	CatalogFile string
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 60*time.Second),
		CORSOrigins:        getListEnv("CORS_ORIGINS"),

		// NATS
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),

		// Rate limiting
		RateLimitRequests:        getIntEnv("RATE_LIMIT_REQUESTS", 600),
		RateLimitWindow:          getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
		ConversationRateRequests: getIntEnv("CONVERSATION_RATE_LIMIT", 30),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),

		// Storage
		StoreBackend:    strings.ToLower(getEnv("STORE_BACKEND", BackendMemory)),
		HistoryBackend:  strings.ToLower(getEnv("HISTORY_BACKEND", BackendMemory)),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         getIntEnv("REDIS_DB", 0),
		RedisPrefix:     getEnv("REDIS_PREFIX", "support-flow:"),
		ConversationTTL: getDurationEnv("CONVERSATION_TTL", 30*24*time.Hour),
		LockTTL:         getDurationEnv("LOCK_TTL", 30*time.Second),

		// ERP gateway
		ERPBaseURL:      getEnv("ERP_BASE_URL", ""),
		ERPToken:        getEnv("ERP_TOKEN", ""),
		ERPQueryTimeout: getDurationEnv("ERP_QUERY_TIMEOUT", 10*time.Second),
		ERPWriteTimeout: getDurationEnv("ERP_WRITE_TIMEOUT", 30*time.Second),
		ERPRetries:      getIntEnv("ERP_RETRIES", 0),

		// Files
		FlowFile:    getEnv("FLOW_FILE", "flow.yaml"),
		CatalogFile: getEnv("CATALOG_FILE", ""),
	}
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	switch c.HistoryBackend {
	case BackendMemory, BackendNATS:
	default:
		return fmt.Errorf("unknown HISTORY_BACKEND %q", c.HistoryBackend)
	}
	if c.ERPRetries < 0 {
		return fmt.Errorf("ERP_RETRIES must not be negative")
	}
	if c.LockTTL < time.Second {
		return fmt.Errorf("LOCK_TTL must be at least 1s")
	}
	if c.FlowFile == "" {
		return fmt.Errorf("FLOW_FILE is required")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getListEnv(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
