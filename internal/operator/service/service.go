// Package service authenticates check-in staff and provisions their accounts.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"checkin/internal/operator/models"
	"checkin/internal/operator/secrets"
	id "checkin/pkg/domain"
	dErrors "checkin/pkg/domain-errors"
	audit "checkin/pkg/platform/audit"
	"checkin/pkg/platform/sentinel"
	"checkin/pkg/requestcontext"
)

// Store persists operators. FindByUsername returns sentinel.ErrNotFound for
// unknown names. Upsert inserts or replaces the password hash of an existing
// username and returns the stored row.
type Store interface {
	FindByUsername(ctx context.Context, username string) (*models.Operator, error)
	Upsert(ctx context.Context, op *models.Operator) (*models.Operator, error)
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) error
}

type TokenIssuer interface {
	Issue(operatorID id.OperatorID, username string) (string, time.Time, error)
	TTL() time.Duration
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	store          Store
	hasher         PasswordHasher
	tokens         TokenIssuer
	logger         *slog.Logger
	auditPublisher AuditPublisher

	// dummyHash keeps unknown-username logins as slow as wrong-password ones.
	dummyHash string
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func New(store Store, hasher PasswordHasher, tokens TokenIssuer, opts ...Option) *Service {
	s := &Service{store: store, hasher: hasher, tokens: tokens}
	for _, opt := range opts {
		opt(s)
	}
	if h, err := hasher.Hash("checkin-dummy-password"); err == nil {
		s.dummyHash = h
	}
	return s
}

var errInvalidCredentials = dErrors.New(dErrors.CodeUnauthorized, "invalid username or password")

// Login verifies credentials and issues an access token.
func (s *Service) Login(ctx context.Context, req *models.LoginRequest) (*models.TokenResponse, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	op, err := s.store.FindByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			_ = s.hasher.Verify(req.Password, s.dummyHash)
			s.logAudit(ctx, audit.EventOperatorLoginFailed, req.Username, "unknown_username")
			return nil, errInvalidCredentials
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load operator")
	}

	if err := s.hasher.Verify(req.Password, op.PasswordHash); err != nil {
		if errors.Is(err, secrets.ErrMismatch) {
			s.logAudit(ctx, audit.EventOperatorLoginFailed, op.Username, "wrong_password")
			return nil, errInvalidCredentials
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify password")
	}

	signed, _, err := s.tokens.Issue(op.ID, op.Username)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue token")
	}
	ctx = requestcontext.WithOperator(ctx, op.ID, op.Username)
	s.logAudit(ctx, audit.EventOperatorLogin, op.Username, "")

	return &models.TokenResponse{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.tokens.TTL().Seconds()),
	}, nil
}

// SeedOperator creates the operator or resets its password. Running it twice
// with the same username keeps one account.
func (s *Service) SeedOperator(ctx context.Context, username, password string) (*models.Operator, error) {
	username = models.NormalizeUsername(username)
	if err := models.ValidateCredentials(username, password); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvalidInput) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}

	op, err := s.store.Upsert(ctx, &models.Operator{
		ID:           id.NewOperatorID(),
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    requestcontext.Now(ctx),
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save operator")
	}
	s.logAudit(ctx, audit.EventOperatorSeeded, op.Username, "")
	return op, nil
}

func (s *Service) logAudit(ctx context.Context, event audit.AuditEvent, username, reason string) {
	if s.logger != nil {
		args := []any{
			"event", string(event),
			"log_type", "audit",
			"username", username,
			"client_ip", requestcontext.ClientIP(ctx),
			"request_id", requestcontext.RequestID(ctx),
		}
		if reason != "" {
			args = append(args, "reason", reason)
		}
		s.logger.InfoContext(ctx, string(event), args...)
	}
	if s.auditPublisher == nil {
		return
	}
	actorID := ""
	if op := requestcontext.OperatorID(ctx); !op.IsNil() {
		actorID = op.String()
	}
	if err := s.auditPublisher.Emit(ctx, audit.Event{
		Subject:   username,
		Action:    string(event),
		Reason:    reason,
		ActorID:   actorID,
		Actor:     requestcontext.OperatorName(ctx),
		ClientIP:  requestcontext.ClientIP(ctx),
		Device:    requestcontext.Device(ctx),
		RequestID: requestcontext.RequestID(ctx),
	}); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "event", string(event), "error", err)
	}
}
