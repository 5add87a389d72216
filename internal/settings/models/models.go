package models

import (
	"time"

	dErrors "checkin/pkg/domain-errors"
)

// SettingsID is the key of the single settings row.
const SettingsID = "global"

// SystemSettings holds event-wide switches. There is exactly one row.
type SystemSettings struct {
	ID               string    `json:"-"`
	RegistrationOpen bool      `json:"registration_open"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Defaults is the row created on first read: registration starts open.
func Defaults(now time.Time) *SystemSettings {
	return &SystemSettings{ID: SettingsID, RegistrationOpen: true, UpdatedAt: now}
}

// UpdateRequest toggles registration. The pointer distinguishes a missing
// field from false.
type UpdateRequest struct {
	RegistrationOpen *bool `json:"registration_open"`
}

func (r *UpdateRequest) Validate() error {
	if r == nil || r.RegistrationOpen == nil {
		return dErrors.New(dErrors.CodeValidation, "registration_open is required")
	}
	return nil
}
