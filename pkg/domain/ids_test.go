package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "checkin/pkg/domain-errors"
)

// TestParseUUID_Invariants validates the parsing invariant:
// "IDs must be valid, non-empty, non-nil UUIDs"
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseOperatorID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseOperatorID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseRegistrationID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		id, err := ParseOperatorID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, OperatorID(validUUID), id)
	})
}

func TestFormatRegistrationCode(t *testing.T) {
	tests := []struct {
		seq  int64
		want RegistrationCode
	}{
		{1, "IFTAR-2026-0001"},
		{42, "IFTAR-2026-0042"},
		{9999, "IFTAR-2026-9999"},
		{10000, "IFTAR-2026-10000"},
		{123456, "IFTAR-2026-123456"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatRegistrationCode("IFTAR", "2026", tt.seq))
	}
}

func TestParseRegistrationCode(t *testing.T) {
	t.Run("parses canonical code", func(t *testing.T) {
		parts, err := ParseRegistrationCode("IFTAR-2026-0007")
		require.NoError(t, err)
		assert.Equal(t, CodeParts{Prefix: "IFTAR", Year: "2026", Sequence: 7}, parts)
		assert.Equal(t, "IFTAR-2026", parts.Tag())
	})

	t.Run("normalizes manual entry", func(t *testing.T) {
		parts, err := ParseRegistrationCode("  iftar-2026-0012 ")
		require.NoError(t, err)
		assert.Equal(t, int64(12), parts.Sequence)
	})

	t.Run("accepts widened sequence", func(t *testing.T) {
		parts, err := ParseRegistrationCode("IFTAR-2026-10001")
		require.NoError(t, err)
		assert.Equal(t, int64(10001), parts.Sequence)
	})

	rejects := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"whitespace only", "   "},
		{"missing sequence", "IFTAR-2026"},
		{"short sequence", "IFTAR-2026-12"},
		{"zero sequence", "IFTAR-2026-0000"},
		{"two digit year", "IFTAR-26-0001"},
		{"non numeric sequence", "IFTAR-2026-00A1"},
		{"extra segment", "IFTAR-X-2026-0001"},
		{"sql injection attempt", "'; DROP TABLE registrations;--"},
		{"qr json payload", `{"id":"IFTAR-2026-0001"}`},
		{"oversized", "IFTAR-2026-" + strings.Repeat("1", 100)},
	}
	for _, tt := range rejects {
		t.Run("rejects "+tt.name, func(t *testing.T) {
			_, err := ParseRegistrationCode(tt.input)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
		})
	}
}
