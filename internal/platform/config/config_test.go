package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("CHECKIN_TIMEZONE", "UTC")
	t.Setenv("CHECKIN_EVENT_YEAR", "2026")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.Equal(t, AllocatorStore, cfg.Registration.Allocator)
	assert.Equal(t, PolicyStrict, cfg.Registration.DuplicatePolicy)
	assert.Equal(t, "IFTAR", cfg.Registration.CodePrefix)
	assert.Equal(t, 2026, cfg.Registration.EventYear)
	assert.Equal(t, 5, cfg.Registration.AllocationRetries)
	assert.Equal(t, 3, cfg.Registration.LookupAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Registration.LookupDelay)
	assert.Equal(t, "UTC", cfg.Registration.TimeZone)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("CHECKIN_TIMEZONE", "Asia/Kolkata")
	t.Setenv("CHECKIN_CODE_PREFIX", "gala")
	t.Setenv("CHECKIN_DUPLICATE_POLICY", "PER-DAY")
	t.Setenv("CHECKIN_KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("CHECKIN_LOOKUP_DELAY", "250ms")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "GALA", cfg.Registration.CodePrefix)
	assert.Equal(t, PolicyPerDay, cfg.Registration.DuplicatePolicy)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 250*time.Millisecond, cfg.Registration.LookupDelay)
	assert.Equal(t, "Asia/Kolkata", cfg.Registration.Location.String())
}

func TestValidate(t *testing.T) {
	valid := func() Server {
		return Server{
			Database: Database{Driver: DriverMemory},
			Registration: Registration{
				CodePrefix:        "IFTAR",
				EventYear:         2026,
				Allocator:         AllocatorStore,
				AllocationRetries: 5,
				DuplicatePolicy:   PolicyStrict,
				LookupAttempts:    3,
			},
			Auth: Auth{JWTSigningKey: "0123456789abcdef"},
		}
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Server)
	}{
		{"unknown driver", func(s *Server) { s.Database.Driver = "mongo" }},
		{"postgres without dsn", func(s *Server) { s.Database.Driver = DriverPostgres }},
		{"redis allocator without url", func(s *Server) { s.Registration.Allocator = AllocatorRedis }},
		{"unknown allocator", func(s *Server) { s.Registration.Allocator = "uuid" }},
		{"unknown policy", func(s *Server) { s.Registration.DuplicatePolicy = "weekly" }},
		{"empty prefix", func(s *Server) { s.Registration.CodePrefix = "" }},
		{"prefix with dash", func(s *Server) { s.Registration.CodePrefix = "IF-TAR" }},
		{"two digit year", func(s *Server) { s.Registration.EventYear = 26 }},
		{"zero retries", func(s *Server) { s.Registration.AllocationRetries = 0 }},
		{"zero lookup attempts", func(s *Server) { s.Registration.LookupAttempts = 0 }},
		{"short signing key", func(s *Server) { s.Auth.JWTSigningKey = "short" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestFromEnvRejectsUnknownTimeZone(t *testing.T) {
	t.Setenv("CHECKIN_TIMEZONE", "Mars/Olympus")
	_, err := FromEnv()
	assert.Error(t, err)
}
