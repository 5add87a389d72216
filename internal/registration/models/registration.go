package models

import (
	"time"

	id "checkin/pkg/domain"
	dErrors "checkin/pkg/domain-errors"
)

// Status is derived from Admitted; there is no stored status column.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAdmitted Status = "admitted"
)

// Registration is one attendee's registration and admission record.
//
// Invariants:
//   - Code is unique across the event's lifetime and never reused
//   - Admitted moves false -> true exactly once
//   - AdmittedAt is non-nil iff Admitted
//   - ID, Code and CreatedAt are immutable after construction
type Registration struct {
	ID         id.RegistrationID   `json:"id"`
	Code       id.RegistrationCode `json:"registration_id"`
	Name       string              `json:"name"`
	Mobile     string              `json:"mobile"`
	Department string              `json:"department"`
	Year       string              `json:"year"`
	Admitted   bool                `json:"admitted"`
	AdmittedAt *time.Time          `json:"admitted_at"`
	CreatedAt  time.Time           `json:"created_at"`
}

// NewRegistration builds a pending registration from a validated request.
func NewRegistration(regID id.RegistrationID, code id.RegistrationCode, req *RegisterRequest, now time.Time) (*Registration, error) {
	if regID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "registration id cannot be nil")
	}
	if code == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "registration code cannot be empty")
	}
	if req == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "registration request is required")
	}
	return &Registration{
		ID:         regID,
		Code:       code,
		Name:       req.Name,
		Mobile:     req.Mobile,
		Department: req.Department,
		Year:       req.Year,
		CreatedAt:  now,
	}, nil
}

func (r *Registration) Status() Status {
	if r.Admitted {
		return StatusAdmitted
	}
	return StatusPending
}

// CanAdmit checks the pending -> admitted transition.
// Use with ApplyAdmission in Execute callbacks.
func (r *Registration) CanAdmit() error {
	if r.Admitted {
		return &AlreadyAdmittedError{Registration: r.Clone()}
	}
	return nil
}

// ApplyAdmission marks the registration admitted at now.
// Call CanAdmit first to validate the transition.
func (r *Registration) ApplyAdmission(now time.Time) {
	at := now
	r.Admitted = true
	r.AdmittedAt = &at
}

// Admit validates and applies admission in one call.
func (r *Registration) Admit(now time.Time) error {
	if err := r.CanAdmit(); err != nil {
		return err
	}
	r.ApplyAdmission(now)
	return nil
}

// Clone returns a deep copy so stores never hand out their own pointers.
func (r *Registration) Clone() *Registration {
	if r == nil {
		return nil
	}
	c := *r
	if r.AdmittedAt != nil {
		at := *r.AdmittedAt
		c.AdmittedAt = &at
	}
	return &c
}

// QRPayload is the JSON document encoded into the attendee's QR code.
type QRPayload struct {
	ID     id.RegistrationCode `json:"id"`
	Name   string              `json:"name"`
	Mobile string              `json:"mobile"`
}

func (r *Registration) QRPayload() QRPayload {
	return QRPayload{ID: r.Code, Name: r.Name, Mobile: r.Mobile}
}

// Stats summarizes admission progress for the dashboard.
type Stats struct {
	Total    int `json:"total"`
	Admitted int `json:"admitted"`
	Pending  int `json:"pending"`
}

// ListFilter narrows registration listings. A zero From/To means unbounded.
type ListFilter struct {
	From time.Time
	To   time.Time
}

// Matches reports whether createdAt falls inside the inclusive bounds.
func (f ListFilter) Matches(createdAt time.Time) bool {
	if !f.From.IsZero() && createdAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && createdAt.After(f.To) {
		return false
	}
	return true
}
