package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Sequence sources for the registration code allocator.
const (
	AllocatorStore = "store"
	AllocatorRedis = "redis"
)

// Duplicate-registration policies.
const (
	PolicyStrict       = "strict"
	PolicyPerDay       = "per-day"
	PolicyUnrestricted = "unrestricted"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	LogLevel        string
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration

	Database     Database
	Redis        RedisConfig
	Kafka        KafkaConfig
	Registration Registration
	Auth         Auth
}

// Database selects the store driver and its connection settings.
type Database struct {
	Driver      string
	PostgresDSN string
	SQLitePath  string
}

// RedisConfig holds connection settings for the optional Redis client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds settings for the audit event publisher. Empty Brokers
// keeps audit events in process.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Registration holds the event-level policy knobs.
type Registration struct {
	CodePrefix        string
	EventYear         int
	Allocator         string
	AllocationRetries int
	DuplicatePolicy   string
	Location          *time.Location
	TimeZone          string
	LookupAttempts    int
	LookupDelay       time.Duration
	IdempotencyTTL    time.Duration
}

// Auth holds operator token settings.
type Auth struct {
	JWTSigningKey string
	JWTIssuer     string
	TokenTTL      time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	loc, tz, err := location(getEnv("CHECKIN_TIMEZONE", ""))
	if err != nil {
		return Server{}, err
	}

	cfg := Server{
		Addr:            getEnv("CHECKIN_ADDR", ":8080"),
		LogLevel:        getEnv("CHECKIN_LOG_LEVEL", "info"),
		ShutdownTimeout: getDuration("CHECKIN_SHUTDOWN_TIMEOUT", 10*time.Second),
		RequestTimeout:  getDuration("CHECKIN_REQUEST_TIMEOUT", 15*time.Second),
		Database: Database{
			Driver:      strings.ToLower(getEnv("CHECKIN_STORE", DriverMemory)),
			PostgresDSN: getEnv("CHECKIN_POSTGRES_DSN", ""),
			SQLitePath:  getEnv("CHECKIN_SQLITE_PATH", "./data/checkin.db"),
		},
		Redis: RedisConfig{
			URL:          getEnv("CHECKIN_REDIS_URL", ""),
			PoolSize:     getInt("CHECKIN_REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("CHECKIN_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("CHECKIN_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("CHECKIN_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("CHECKIN_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(getEnv("CHECKIN_KAFKA_BROKERS", "")),
			Topic:   getEnv("CHECKIN_KAFKA_AUDIT_TOPIC", "checkin.audit"),
		},
		Registration: Registration{
			CodePrefix:        strings.ToUpper(getEnv("CHECKIN_CODE_PREFIX", "IFTAR")),
			EventYear:         getInt("CHECKIN_EVENT_YEAR", time.Now().In(loc).Year()),
			Allocator:         strings.ToLower(getEnv("CHECKIN_ALLOCATOR", AllocatorStore)),
			AllocationRetries: getInt("CHECKIN_ALLOCATION_RETRIES", 5),
			DuplicatePolicy:   strings.ToLower(getEnv("CHECKIN_DUPLICATE_POLICY", PolicyStrict)),
			Location:          loc,
			TimeZone:          tz,
			LookupAttempts:    getInt("CHECKIN_LOOKUP_ATTEMPTS", 3),
			LookupDelay:       getDuration("CHECKIN_LOOKUP_DELAY", 500*time.Millisecond),
			IdempotencyTTL:    getDuration("CHECKIN_IDEMPOTENCY_TTL", 24*time.Hour),
		},
		Auth: Auth{
			// Use a default for development - should be overridden in production
			JWTSigningKey: getEnv("CHECKIN_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			JWTIssuer:     getEnv("CHECKIN_JWT_ISSUER", "checkin"),
			TokenTTL:      getDuration("CHECKIN_TOKEN_TTL", 12*time.Hour),
		},
	}
	return cfg, cfg.Validate()
}

// Validate rejects unknown enum values and inconsistent settings.
func (c Server) Validate() error {
	switch c.Database.Driver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.Database.PostgresDSN == "" {
			return fmt.Errorf("CHECKIN_POSTGRES_DSN is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Database.Driver)
	}

	switch c.Registration.Allocator {
	case AllocatorStore:
	case AllocatorRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("CHECKIN_REDIS_URL is required for the redis allocator")
		}
	default:
		return fmt.Errorf("unknown allocator %q", c.Registration.Allocator)
	}

	switch c.Registration.DuplicatePolicy {
	case PolicyStrict, PolicyPerDay, PolicyUnrestricted:
	default:
		return fmt.Errorf("unknown duplicate policy %q", c.Registration.DuplicatePolicy)
	}

	if c.Registration.CodePrefix == "" {
		return fmt.Errorf("code prefix must not be empty")
	}
	for _, r := range c.Registration.CodePrefix {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return fmt.Errorf("code prefix %q must be alphanumeric", c.Registration.CodePrefix)
		}
	}
	if c.Registration.EventYear < 1000 || c.Registration.EventYear > 9999 {
		return fmt.Errorf("event year %d must have four digits", c.Registration.EventYear)
	}
	if c.Registration.AllocationRetries < 1 {
		return fmt.Errorf("allocation retries must be at least 1")
	}
	if c.Registration.LookupAttempts < 1 {
		return fmt.Errorf("lookup attempts must be at least 1")
	}
	if len(c.Auth.JWTSigningKey) < 16 {
		return fmt.Errorf("jwt signing key must be at least 16 bytes")
	}
	return nil
}

func location(name string) (*time.Location, string, error) {
	if name == "" {
		return time.Local, time.Local.String(), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, "", fmt.Errorf("load time zone %q: %w", name, err)
	}
	return loc, name, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
