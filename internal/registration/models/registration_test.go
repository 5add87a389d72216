package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	id "checkin/pkg/domain"
	dErrors "checkin/pkg/domain-errors"
)

type RegistrationSuite struct {
	suite.Suite
	now time.Time
}

func TestRegistrationSuite(t *testing.T) {
	suite.Run(t, new(RegistrationSuite))
}

func (s *RegistrationSuite) SetupTest() {
	s.now = time.Date(2026, 3, 1, 18, 30, 0, 0, time.UTC)
}

func (s *RegistrationSuite) newRegistration() *Registration {
	reg, err := NewRegistration(id.NewRegistrationID(), "IFTAR-2026-0001", &RegisterRequest{
		Name: "Asha", Mobile: "9123456789", Department: "Computer Science", Year: "2nd Year",
	}, s.now)
	s.Require().NoError(err)
	return reg
}

func (s *RegistrationSuite) TestNewRegistration() {
	s.Run("starts pending", func() {
		reg := s.newRegistration()
		s.False(reg.Admitted)
		s.Nil(reg.AdmittedAt)
		s.Equal(StatusPending, reg.Status())
		s.Equal(s.now, reg.CreatedAt)
	})

	s.Run("rejects nil id", func() {
		_, err := NewRegistration(id.RegistrationID{}, "IFTAR-2026-0001", &RegisterRequest{}, s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	s.Run("rejects empty code", func() {
		_, err := NewRegistration(id.NewRegistrationID(), "", &RegisterRequest{}, s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
}

func (s *RegistrationSuite) TestAdmissionTransition() {
	s.Run("pending registration admits once", func() {
		reg := s.newRegistration()
		s.Require().NoError(reg.Admit(s.now))
		s.True(reg.Admitted)
		s.Require().NotNil(reg.AdmittedAt)
		s.Equal(s.now, *reg.AdmittedAt)
		s.Equal(StatusAdmitted, reg.Status())
	})

	s.Run("second admission reports the earlier record", func() {
		reg := s.newRegistration()
		s.Require().NoError(reg.Admit(s.now))

		err := reg.Admit(s.now.Add(time.Minute))
		var already *AlreadyAdmittedError
		s.Require().True(errors.As(err, &already))
		s.Equal(s.now, *already.Registration.AdmittedAt, "admitted_at stays fixed")
		s.Equal(s.now, *reg.AdmittedAt)
		s.Equal(dErrors.CodeConflict, dErrors.CodeOf(err))
	})
}

func (s *RegistrationSuite) TestCloneIsDeep() {
	reg := s.newRegistration()
	reg.ApplyAdmission(s.now)

	c := reg.Clone()
	*c.AdmittedAt = s.now.Add(time.Hour)
	c.Name = "Changed"

	s.Equal(s.now, *reg.AdmittedAt)
	s.Equal("Asha", reg.Name)
	s.Nil((*Registration)(nil).Clone())
}

func (s *RegistrationSuite) TestQRPayload() {
	reg := s.newRegistration()
	s.Equal(QRPayload{ID: "IFTAR-2026-0001", Name: "Asha", Mobile: "9123456789"}, reg.QRPayload())
}

func TestListFilterMatches(t *testing.T) {
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 1, 23, 59, 59, 999_999_999, time.UTC)
	f := ListFilter{From: from, To: to}

	assert.True(t, f.Matches(from))
	assert.True(t, f.Matches(to))
	assert.False(t, f.Matches(from.Add(-time.Nanosecond)))
	assert.False(t, f.Matches(to.Add(time.Nanosecond)))
	assert.True(t, ListFilter{}.Matches(from))
}

func TestTypedErrorsCarryConflictCode(t *testing.T) {
	existing := &Registration{Code: "IFTAR-2026-0001"}

	dup := error(&DuplicateRegistrationError{Existing: existing})
	assert.Equal(t, dErrors.CodeConflict, dErrors.CodeOf(dup))
	assert.Contains(t, dup.Error(), "IFTAR-2026-0001")

	wrapped := dErrors.Wrap(dup, dErrors.CodeConflict, "duplicate")
	var target *DuplicateRegistrationError
	require.True(t, errors.As(wrapped, &target))
	assert.Equal(t, existing, target.Existing)

	assert.Equal(t, dErrors.CodeForbidden, dErrors.CodeOf(ErrRegistrationClosed))
	assert.Equal(t, dErrors.CodeUnavailable, dErrors.CodeOf(ErrSequenceConflict))
}
