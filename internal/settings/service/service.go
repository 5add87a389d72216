// Package service exposes the registration gate: whether new registrations
// are accepted right now.
package service

import (
	"context"
	"errors"
	"log/slog"

	"checkin/internal/settings/models"
	dErrors "checkin/pkg/domain-errors"
	audit "checkin/pkg/platform/audit"
	"checkin/pkg/platform/sentinel"
	"checkin/pkg/requestcontext"
)

// Store persists the settings row. Get returns sentinel.ErrNotFound before
// the row exists; CreateIfAbsent never overwrites an existing row.
type Store interface {
	Get(ctx context.Context) (*models.SystemSettings, error)
	CreateIfAbsent(ctx context.Context, settings *models.SystemSettings) error
	Save(ctx context.Context, settings *models.SystemSettings) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	store          Store
	logger         *slog.Logger
	auditPublisher AuditPublisher
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

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the settings, creating the default row on first use.
func (s *Service) Get(ctx context.Context) (*models.SystemSettings, error) {
	settings, err := s.store.Get(ctx)
	if err == nil {
		return settings, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load settings")
	}

	if err := s.store.CreateIfAbsent(ctx, models.Defaults(requestcontext.Now(ctx))); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create default settings")
	}
	settings, err = s.store.Get(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load settings")
	}
	return settings, nil
}

// IsOpen reports whether registrations are accepted. Every call reads the
// store so a toggle takes effect on the next request.
func (s *Service) IsOpen(ctx context.Context) (bool, error) {
	settings, err := s.Get(ctx)
	if err != nil {
		return false, err
	}
	return settings.RegistrationOpen, nil
}

// SetOpen upserts the registration switch.
func (s *Service) SetOpen(ctx context.Context, open bool) (*models.SystemSettings, error) {
	settings := &models.SystemSettings{
		ID:               models.SettingsID,
		RegistrationOpen: open,
		UpdatedAt:        requestcontext.Now(ctx),
	}
	if err := s.store.Save(ctx, settings); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save settings")
	}

	reason := "closed"
	if open {
		reason = "opened"
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, string(audit.EventSettingsChanged),
			"event", string(audit.EventSettingsChanged),
			"log_type", "audit",
			"registration_open", open,
			"actor", requestcontext.OperatorName(ctx),
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	if s.auditPublisher != nil {
		actorID := ""
		if op := requestcontext.OperatorID(ctx); !op.IsNil() {
			actorID = op.String()
		}
		if err := s.auditPublisher.Emit(ctx, audit.Event{
			Subject:   "registration",
			Action:    string(audit.EventSettingsChanged),
			Reason:    reason,
			ActorID:   actorID,
			Actor:     requestcontext.OperatorName(ctx),
			ClientIP:  requestcontext.ClientIP(ctx),
			RequestID: requestcontext.RequestID(ctx),
		}); err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "failed to emit audit event", "error", err)
		}
	}
	return settings, nil
}
