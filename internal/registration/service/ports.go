package service

import (
	"context"
	"time"

	"checkin/internal/registration/models"
	id "checkin/pkg/domain"
	audit "checkin/pkg/platform/audit"
)

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks

// Store persists registrations. Implementations return sentinel errors:
// ErrAlreadyUsed for a taken code and ErrNotFound for unknown codes.
// Admit must be a conditional update that succeeds for exactly one caller
// per code and returns *models.AlreadyAdmittedError to every later one.
type Store interface {
	Create(ctx context.Context, reg *models.Registration) error
	FindByCode(ctx context.Context, code id.RegistrationCode) (*models.Registration, error)
	FindEarliestByMobile(ctx context.Context, mobile string, from, to time.Time) (*models.Registration, error)
	Admit(ctx context.Context, code id.RegistrationCode, now time.Time) (*models.Registration, error)
	List(ctx context.Context, filter models.ListFilter) ([]*models.Registration, error)
	Delete(ctx context.Context, code id.RegistrationCode) error
	DeleteMany(ctx context.Context, codes []id.RegistrationCode) ([]id.RegistrationCode, error)
	Stats(ctx context.Context) (models.Stats, error)
}

// CodeAllocator issues registration codes.
type CodeAllocator interface {
	Next(ctx context.Context, year int) (id.RegistrationCode, error)
	Recover(ctx context.Context, year int) error
}

// SettingsGate reports whether new registrations are accepted.
type SettingsGate interface {
	IsOpen(ctx context.Context) (bool, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}
