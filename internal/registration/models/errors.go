package models

import (
	dErrors "checkin/pkg/domain-errors"
)

// ErrRegistrationClosed is returned while the settings gate is closed.
var ErrRegistrationClosed = dErrors.New(dErrors.CodeForbidden, "registration is closed")

// ErrSequenceConflict is returned when every allocation attempt collided with
// an existing code.
var ErrSequenceConflict = dErrors.New(dErrors.CodeUnavailable, "could not allocate a registration code, please retry")

// AlreadyAdmittedError carries the record that was admitted earlier. Callers
// treat it as an informational outcome rather than a failure.
type AlreadyAdmittedError struct {
	Registration *Registration
}

func (e *AlreadyAdmittedError) Error() string {
	return "registration " + e.Registration.Code.String() + " is already admitted"
}

func (e *AlreadyAdmittedError) Unwrap() error {
	return dErrors.New(dErrors.CodeConflict, "registration is already admitted")
}

// DuplicateRegistrationError carries the registration that already holds the
// mobile number under the active duplicate policy.
type DuplicateRegistrationError struct {
	Existing *Registration
}

func (e *DuplicateRegistrationError) Error() string {
	return "mobile number already registered as " + e.Existing.Code.String()
}

func (e *DuplicateRegistrationError) Unwrap() error {
	return dErrors.New(dErrors.CodeConflict, "this mobile number is already registered")
}
