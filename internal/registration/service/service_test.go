package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"checkin/internal/registration/idempotency"
	"checkin/internal/registration/models"
	"checkin/internal/registration/policy"
	"checkin/internal/registration/service/mocks"
	id "checkin/pkg/domain"
	dErrors "checkin/pkg/domain-errors"
	audit "checkin/pkg/platform/audit"
	"checkin/pkg/platform/sentinel"
	"checkin/pkg/requestcontext"
)

// ServiceSuite drives the service against mocked ports to pin down error
// translation and the allocation retry loop.
type ServiceSuite struct {
	suite.Suite
	ctrl          *gomock.Controller
	mockStore     *mocks.MockStore
	mockAllocator *mocks.MockCodeAllocator
	mockGate      *mocks.MockSettingsGate
	mockAudit     *mocks.MockAuditPublisher
	service       *Service
	ctx           context.Context
	now           time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockStore = mocks.NewMockStore(s.ctrl)
	s.mockAllocator = mocks.NewMockCodeAllocator(s.ctrl)
	s.mockGate = mocks.NewMockSettingsGate(s.ctrl)
	s.mockAudit = mocks.NewMockAuditPublisher(s.ctrl)
	s.service = New(s.mockStore, s.mockAllocator, s.mockGate, policy.Unrestricted{},
		WithAuditPublisher(s.mockAudit),
		WithEventYear(2026),
		WithAllocationRetries(3),
		WithLookupRetry(3, time.Millisecond),
	)
	s.now = time.Date(2026, 3, 1, 18, 30, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func validRequest() *models.RegisterRequest {
	return &models.RegisterRequest{
		Name:       "  Aisha Khan ",
		Mobile:     "91234 56789",
		Department: "Computer Science",
		Year:       "2nd Year",
	}
}

func (s *ServiceSuite) TestRegister() {
	s.Run("invalid request never reaches the gate", func() {
		_, err := s.service.Register(s.ctx, &models.RegisterRequest{Name: "x"})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("closed gate rejects", func() {
		s.mockGate.EXPECT().IsOpen(gomock.Any()).Return(false, nil)
		s.mockAudit.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, e audit.Event) error {
				s.Equal(string(audit.EventRegistrationRejected), e.Action)
				s.Equal("closed", e.Reason)
				return nil
			})

		_, err := s.service.Register(s.ctx, validRequest())
		s.Require().ErrorIs(err, models.ErrRegistrationClosed)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("gate failure is internal", func() {
		s.mockGate.EXPECT().IsOpen(gomock.Any()).Return(false, errors.New("db down"))

		_, err := s.service.Register(s.ctx, validRequest())
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})

	s.Run("persists normalized fields under the allocated code", func() {
		s.mockGate.EXPECT().IsOpen(gomock.Any()).Return(true, nil)
		s.mockAllocator.EXPECT().Next(gomock.Any(), 2026).Return(id.RegistrationCode("IFTAR-2026-0001"), nil)
		s.mockStore.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, reg *models.Registration) error {
				s.Equal("Aisha Khan", reg.Name)
				s.Equal("9123456789", reg.Mobile)
				s.False(reg.Admitted)
				s.True(s.now.Equal(reg.CreatedAt))
				return nil
			})
		s.mockAudit.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)

		reg, err := s.service.Register(s.ctx, validRequest())
		s.Require().NoError(err)
		s.Equal(id.RegistrationCode("IFTAR-2026-0001"), reg.Code)
	})
}

func (s *ServiceSuite) TestRegisterAllocationRetry() {
	s.Run("collision recovers and allocates again", func() {
		s.mockGate.EXPECT().IsOpen(gomock.Any()).Return(true, nil)
		gomock.InOrder(
			s.mockAllocator.EXPECT().Next(gomock.Any(), 2026).Return(id.RegistrationCode("IFTAR-2026-0001"), nil),
			s.mockStore.EXPECT().Create(gomock.Any(), gomock.Any()).Return(sentinel.ErrAlreadyUsed),
			s.mockAllocator.EXPECT().Recover(gomock.Any(), 2026).Return(nil),
			s.mockAllocator.EXPECT().Next(gomock.Any(), 2026).Return(id.RegistrationCode("IFTAR-2026-0007"), nil),
			s.mockStore.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil),
		)
		s.mockAudit.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)

		reg, err := s.service.Register(s.ctx, validRequest())
		s.Require().NoError(err)
		s.Equal(id.RegistrationCode("IFTAR-2026-0007"), reg.Code)
	})

	s.Run("exhausted retries surface a sequence conflict", func() {
		s.mockGate.EXPECT().IsOpen(gomock.Any()).Return(true, nil)
		s.mockAllocator.EXPECT().Next(gomock.Any(), 2026).Return(id.RegistrationCode("IFTAR-2026-0001"), nil).Times(3)
		s.mockStore.EXPECT().Create(gomock.Any(), gomock.Any()).Return(sentinel.ErrAlreadyUsed).Times(3)
		s.mockAllocator.EXPECT().Recover(gomock.Any(), 2026).Return(nil).Times(3)

		_, err := s.service.Register(s.ctx, validRequest())
		s.Require().ErrorIs(err, models.ErrSequenceConflict)
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	})

	s.Run("other store failures are not retried", func() {
		s.mockGate.EXPECT().IsOpen(gomock.Any()).Return(true, nil)
		s.mockAllocator.EXPECT().Next(gomock.Any(), 2026).Return(id.RegistrationCode("IFTAR-2026-0001"), nil)
		s.mockStore.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))

		_, err := s.service.Register(s.ctx, validRequest())
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})

	s.Run("allocator failure is unavailable", func() {
		s.mockGate.EXPECT().IsOpen(gomock.Any()).Return(true, nil)
		s.mockAllocator.EXPECT().Next(gomock.Any(), 2026).Return(id.RegistrationCode(""), errors.New("redis down"))

		_, err := s.service.Register(s.ctx, validRequest())
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	})
}

func (s *ServiceSuite) TestRegisterDuplicate() {
	existing := &models.Registration{Code: "IFTAR-2026-0001", Mobile: "9123456789"}
	svc := New(s.mockStore, s.mockAllocator, s.mockGate, policy.Strict{}, WithEventYear(2026))

	s.mockGate.EXPECT().IsOpen(gomock.Any()).Return(true, nil)
	s.mockStore.EXPECT().FindEarliestByMobile(gomock.Any(), "9123456789", time.Time{}, time.Time{}).Return(existing, nil)

	_, err := svc.Register(s.ctx, validRequest())
	var dup *models.DuplicateRegistrationError
	s.Require().True(errors.As(err, &dup))
	s.Equal(existing.Code, dup.Existing.Code)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ServiceSuite) TestAdmit() {
	s.Run("malformed code is invalid input", func() {
		_, err := s.service.Admit(s.ctx, "hello")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("normalizes typed codes", func() {
		admittedAt := s.now
		s.mockStore.EXPECT().Admit(gomock.Any(), id.RegistrationCode("IFTAR-2026-0001"), s.now).
			Return(&models.Registration{Code: "IFTAR-2026-0001", Admitted: true, AdmittedAt: &admittedAt}, nil)
		s.mockAudit.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)

		reg, err := s.service.Admit(s.ctx, " iftar-2026-0001 ")
		s.Require().NoError(err)
		s.True(reg.Admitted)
	})

	s.Run("records the operator and device", func() {
		opID := id.NewOperatorID()
		ctx := requestcontext.WithOperator(s.ctx, opID, "gate-1")
		ctx = requestcontext.WithDevice(ctx, "Chrome on Android")
		admittedAt := s.now
		s.mockStore.EXPECT().Admit(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(&models.Registration{Code: "IFTAR-2026-0002", Admitted: true, AdmittedAt: &admittedAt}, nil)
		s.mockAudit.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, e audit.Event) error {
				s.Equal(string(audit.EventAdmissionGranted), e.Action)
				s.Equal("IFTAR-2026-0002", e.Subject)
				s.Equal(opID.String(), e.ActorID)
				s.Equal("gate-1", e.Actor)
				s.Equal("Chrome on Android", e.Device)
				return nil
			})

		_, err := s.service.Admit(ctx, "IFTAR-2026-0002")
		s.Require().NoError(err)
	})

	s.Run("unknown code is not found", func() {
		s.mockStore.EXPECT().Admit(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, sentinel.ErrNotFound)

		_, err := s.service.Admit(s.ctx, "IFTAR-2026-0404")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("repeat admission passes the stored record through", func() {
		admittedAt := s.now.Add(-time.Hour)
		stored := &models.Registration{Code: "IFTAR-2026-0001", Admitted: true, AdmittedAt: &admittedAt}
		s.mockStore.EXPECT().Admit(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, &models.AlreadyAdmittedError{Registration: stored})
		s.mockAudit.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)

		_, err := s.service.Admit(s.ctx, "IFTAR-2026-0001")
		var already *models.AlreadyAdmittedError
		s.Require().True(errors.As(err, &already))
		s.True(admittedAt.Equal(*already.Registration.AdmittedAt))
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *ServiceSuite) TestLookupWithRetry() {
	s.Run("succeeds once the record becomes visible", func() {
		reg := &models.Registration{Code: "IFTAR-2026-0001"}
		gomock.InOrder(
			s.mockStore.EXPECT().FindByCode(gomock.Any(), reg.Code).Return(nil, sentinel.ErrNotFound),
			s.mockStore.EXPECT().FindByCode(gomock.Any(), reg.Code).Return(reg, nil),
		)

		found, err := s.service.LookupWithRetry(s.ctx, "IFTAR-2026-0001")
		s.Require().NoError(err)
		s.Equal(reg.Code, found.Code)
	})

	s.Run("returns the last error after every attempt", func() {
		s.mockStore.EXPECT().FindByCode(gomock.Any(), gomock.Any()).Return(nil, sentinel.ErrNotFound).Times(3)

		_, err := s.service.LookupWithRetry(s.ctx, "IFTAR-2026-0001")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("malformed code is not retried", func() {
		_, err := s.service.LookupWithRetry(s.ctx, "IFTAR-26-1")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("store failure is internal", func() {
		s.mockStore.EXPECT().FindByCode(gomock.Any(), gomock.Any()).Return(nil, errors.New("boom")).Times(3)

		_, err := s.service.LookupWithRetry(s.ctx, "IFTAR-2026-0001")
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func (s *ServiceSuite) TestList() {
	s.Run("day filter covers the whole calendar day", func() {
		loc, err := time.LoadLocation("Asia/Kolkata")
		s.Require().NoError(err)
		svc := New(s.mockStore, s.mockAllocator, s.mockGate, nil, WithLocation(loc))

		s.mockStore.EXPECT().List(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, f models.ListFilter) ([]*models.Registration, error) {
				s.True(time.Date(2026, 3, 1, 0, 0, 0, 0, loc).Equal(f.From))
				s.True(time.Date(2026, 3, 2, 0, 0, 0, 0, loc).Add(-time.Nanosecond).Equal(f.To))
				return nil, nil
			})

		regs, err := svc.List(s.ctx, "2026-03-01")
		s.Require().NoError(err)
		s.NotNil(regs)
		s.Empty(regs)
	})

	s.Run("bad date is a validation error", func() {
		_, err := s.service.List(s.ctx, "01/03/2026")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ServiceSuite) TestDeleteMany() {
	s.Run("rejects malformed codes before touching the store", func() {
		_, err := s.service.DeleteMany(s.ctx, &models.BulkDeleteRequest{Codes: []string{"IFTAR-2026-0001", "nope"}})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("audits each deleted code", func() {
		s.mockStore.EXPECT().DeleteMany(gomock.Any(), []id.RegistrationCode{"IFTAR-2026-0001", "IFTAR-2026-0002"}).
			Return([]id.RegistrationCode{"IFTAR-2026-0002"}, nil)
		s.mockAudit.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil).Times(1)

		deleted, err := s.service.DeleteMany(s.ctx, &models.BulkDeleteRequest{Codes: []string{"iftar-2026-0001", "IFTAR-2026-0002"}})
		s.Require().NoError(err)
		s.Equal([]id.RegistrationCode{"IFTAR-2026-0002"}, deleted)
	})
}

func (s *ServiceSuite) TestRegisterWithKey() {
	svc := New(s.mockStore, s.mockAllocator, s.mockGate, policy.Unrestricted{},
		WithEventYear(2026),
		WithIdempotencyStore(idempotency.NewInMemory(), time.Hour),
	)

	s.Run("replays the first result", func() {
		s.mockGate.EXPECT().IsOpen(gomock.Any()).Return(true, nil)
		s.mockAllocator.EXPECT().Next(gomock.Any(), 2026).Return(id.RegistrationCode("IFTAR-2026-0001"), nil)
		var stored *models.Registration
		s.mockStore.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, reg *models.Registration) error {
				stored = reg
				return nil
			})

		first, replayed, err := svc.RegisterWithKey(s.ctx, "key-1", validRequest())
		s.Require().NoError(err)
		s.False(replayed)

		s.mockStore.EXPECT().FindByCode(gomock.Any(), first.Code).Return(stored, nil)
		second, replayed, err := svc.RegisterWithKey(s.ctx, "key-1", validRequest())
		s.Require().NoError(err)
		s.True(replayed)
		s.Equal(first.Code, second.Code)
	})

	s.Run("failed attempt releases the key", func() {
		s.mockGate.EXPECT().IsOpen(gomock.Any()).Return(false, nil).Times(2)

		_, _, err := svc.RegisterWithKey(s.ctx, "key-2", validRequest())
		s.Require().ErrorIs(err, models.ErrRegistrationClosed)
		_, _, err = svc.RegisterWithKey(s.ctx, "key-2", validRequest())
		s.Require().ErrorIs(err, models.ErrRegistrationClosed)
	})

	s.Run("invalid key is a bad request", func() {
		_, _, err := svc.RegisterWithKey(s.ctx, "has space", validRequest())
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}
