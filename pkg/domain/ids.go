// Package domain holds identifier types shared across modules. Parsing
// functions here are trust boundaries: they run on raw request input.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "checkin/pkg/domain-errors"
)

// RegistrationID is the opaque primary key of a registration row.
type RegistrationID uuid.UUID

// OperatorID identifies a staff account allowed to admit attendees.
type OperatorID uuid.UUID

func NewRegistrationID() RegistrationID { return RegistrationID(uuid.New()) }
func NewOperatorID() OperatorID         { return OperatorID(uuid.New()) }

func (id RegistrationID) String() string { return uuid.UUID(id).String() }
func (id RegistrationID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id OperatorID) String() string     { return uuid.UUID(id).String() }
func (id OperatorID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }

func ParseRegistrationID(s string) (RegistrationID, error) {
	u, err := parseUUID(s, "registration id")
	return RegistrationID(u), err
}

func ParseOperatorID(s string) (OperatorID, error) {
	u, err := parseUUID(s, "operator id")
	return OperatorID(u), err
}

func parseUUID(s, label string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be nil")
	}
	return u, nil
}
