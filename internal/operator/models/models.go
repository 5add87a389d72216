package models

import (
	"strings"
	"time"
	"unicode/utf8"

	id "checkin/pkg/domain"
	dErrors "checkin/pkg/domain-errors"
)

const (
	maxUsernameLength = 64
	minPasswordLength = 8
)

// Operator is a staff account allowed to scan badges and manage registrations.
type Operator struct {
	ID           id.OperatorID `json:"id"`
	Username     string        `json:"username"`
	PasswordHash string        `json:"-"`
	CreatedAt    time.Time     `json:"created_at"`
}

// LoginRequest is the body of POST /api/admin/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r *LoginRequest) Normalize() {
	if r != nil {
		r.Username = NormalizeUsername(r.Username)
	}
}

func (r *LoginRequest) Validate() error {
	if r == nil || r.Username == "" || r.Password == "" {
		return dErrors.New(dErrors.CodeValidation, "username and password are required")
	}
	return nil
}

// NormalizeUsername trims and lower-cases a username.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidateCredentials checks a username and password before an operator is
// created or its password replaced.
func ValidateCredentials(username, password string) error {
	if username == "" {
		return dErrors.New(dErrors.CodeValidation, "username is required")
	}
	if utf8.RuneCountInString(username) > maxUsernameLength {
		return dErrors.New(dErrors.CodeValidation, "username must be 64 characters or less")
	}
	if strings.ContainsAny(username, " \t\r\n") {
		return dErrors.New(dErrors.CodeValidation, "username must not contain whitespace")
	}
	if utf8.RuneCountInString(password) < minPasswordLength {
		return dErrors.New(dErrors.CodeValidation, "password must be at least 8 characters")
	}
	return nil
}

// TokenResponse is returned by a successful login.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}
