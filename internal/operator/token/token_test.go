package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "checkin/pkg/domain"
	dErrors "checkin/pkg/domain-errors"
)

var (
	operatorID = id.NewOperatorID()
	tokens     = NewService("test-signing-key-0123", "test-issuer", time.Hour)
)

func Test_IssueAndValidate(t *testing.T) {
	signed, expiresAt, err := tokens.Issue(operatorID, "gate-1")
	require.NoError(t, err)
	require.NotEmpty(t, signed)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	claims, err := tokens.ValidateToken(signed)
	require.NoError(t, err)
	assert.Equal(t, operatorID, claims.OperatorID)
	assert.Equal(t, "gate-1", claims.Username)
	assert.NotEmpty(t, claims.JTI)
}

func Test_ValidateToken_InvalidToken(t *testing.T) {
	_, err := tokens.ValidateToken("invalid-token-string")
	require.ErrorIs(t, err, dErrors.New(dErrors.CodeUnauthorized, "invalid token"))
}

func Test_ValidateToken_ExpiredToken(t *testing.T) {
	expired := NewService("test-signing-key-0123", "test-issuer", -time.Hour)
	signed, _, err := expired.Issue(operatorID, "gate-1")
	require.NoError(t, err)

	_, err = tokens.ValidateToken(signed)
	require.ErrorIs(t, err, dErrors.New(dErrors.CodeUnauthorized, "token has expired"))
}

func Test_ValidateToken_WrongKeyOrIssuer(t *testing.T) {
	other := NewService("another-signing-key-99", "test-issuer", time.Hour)
	signed, _, err := other.Issue(operatorID, "gate-1")
	require.NoError(t, err)
	_, err = tokens.ValidateToken(signed)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))

	foreign := NewService("test-signing-key-0123", "someone-else", time.Hour)
	signed, _, err = foreign.Issue(operatorID, "gate-1")
	require.NoError(t, err)
	_, err = tokens.ValidateToken(signed)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}
