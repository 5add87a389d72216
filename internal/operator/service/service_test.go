package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"checkin/internal/operator/models"
	"checkin/internal/operator/secrets"
	"checkin/internal/operator/store/memory"
	"checkin/internal/operator/token"
	dErrors "checkin/pkg/domain-errors"
	audit "checkin/pkg/platform/audit"
	"checkin/pkg/platform/audit/publisher"
	auditmemory "checkin/pkg/platform/audit/store/memory"
	"checkin/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	store   *memory.InMemory
	tokens  *token.Service
	audit   *publisher.Publisher
	service *Service
	ctx     context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = memory.New()
	s.tokens = token.NewService("0123456789abcdef0123456789abcdef", "checkin", time.Hour)
	s.audit = publisher.NewPublisher(auditmemory.NewInMemoryStore())
	s.service = New(s.store, secrets.NewHasher(bcrypt.MinCost), s.tokens, WithAuditPublisher(s.audit))
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
}

func (s *ServiceSuite) TestSeedOperator() {
	s.Run("creates a normalized account", func() {
		op, err := s.service.SeedOperator(s.ctx, "  Gate-Staff ", "correct-horse")
		s.Require().NoError(err)
		s.Equal("gate-staff", op.Username)
		s.NotEqual("correct-horse", op.PasswordHash)
	})

	s.Run("reseeding replaces the password and keeps the account", func() {
		first, err := s.store.FindByUsername(s.ctx, "gate-staff")
		s.Require().NoError(err)

		op, err := s.service.SeedOperator(s.ctx, "gate-staff", "battery-staple")
		s.Require().NoError(err)
		s.Equal(first.ID, op.ID)

		_, err = s.service.Login(s.ctx, &models.LoginRequest{Username: "gate-staff", Password: "battery-staple"})
		s.NoError(err)
		_, err = s.service.Login(s.ctx, &models.LoginRequest{Username: "gate-staff", Password: "correct-horse"})
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("short password is rejected", func() {
		_, err := s.service.SeedOperator(s.ctx, "gate-2", "short")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("username with whitespace is rejected", func() {
		_, err := s.service.SeedOperator(s.ctx, "gate 2", "long-enough")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	events, err := s.audit.List(s.ctx, "gate-staff")
	s.Require().NoError(err)
	s.Require().NotEmpty(events)
	s.Equal(string(audit.EventOperatorSeeded), events[0].Action)
}

func (s *ServiceSuite) TestLogin() {
	_, err := s.service.SeedOperator(s.ctx, "admin", "correct-horse")
	s.Require().NoError(err)

	s.Run("valid credentials issue a bearer token", func() {
		resp, err := s.service.Login(s.ctx, &models.LoginRequest{Username: " ADMIN ", Password: "correct-horse"})
		s.Require().NoError(err)
		s.Equal("Bearer", resp.TokenType)
		s.Equal(int64(3600), resp.ExpiresIn)

		claims, err := s.tokens.Parse(resp.AccessToken)
		s.Require().NoError(err)
		s.Equal("admin", claims.Username)
	})

	s.Run("wrong password and unknown user look the same", func() {
		_, wrongPassword := s.service.Login(s.ctx, &models.LoginRequest{Username: "admin", Password: "nope-nope"})
		_, unknownUser := s.service.Login(s.ctx, &models.LoginRequest{Username: "ghost", Password: "nope-nope"})
		s.True(dErrors.HasCode(wrongPassword, dErrors.CodeUnauthorized))
		s.True(dErrors.HasCode(unknownUser, dErrors.CodeUnauthorized))
		s.Equal(dErrors.Message(wrongPassword), dErrors.Message(unknownUser))
	})

	s.Run("missing fields are a validation error", func() {
		_, err := s.service.Login(s.ctx, &models.LoginRequest{Username: "admin"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	events, err := s.audit.List(s.ctx, "admin")
	s.Require().NoError(err)
	var actions []string
	for _, e := range events {
		actions = append(actions, e.Action)
	}
	s.Equal([]string{
		string(audit.EventOperatorSeeded),
		string(audit.EventOperatorLogin),
		string(audit.EventOperatorLoginFailed),
	}, actions)
}
