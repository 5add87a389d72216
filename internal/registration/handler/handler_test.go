package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"checkin/internal/registration/allocator"
	"checkin/internal/registration/idempotency"
	"checkin/internal/registration/models"
	"checkin/internal/registration/policy"
	"checkin/internal/registration/service"
	"checkin/internal/registration/store/memory"
	id "checkin/pkg/domain"
	"checkin/pkg/testutil"
)

type stubGate struct {
	open atomic.Bool
}

func (g *stubGate) IsOpen(context.Context) (bool, error) { return g.open.Load(), nil }

type HandlerSuite struct {
	suite.Suite
	gate   *stubGate
	router chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	store := memory.New()
	s.gate = &stubGate{}
	s.gate.open.Store(true)
	svc := service.New(store,
		allocator.New("IFTAR", allocator.SequenceFunc(store.NextSequence), store),
		s.gate,
		policy.Strict{},
		service.WithEventYear(2026),
		service.WithIdempotencyStore(idempotency.NewInMemory(), time.Hour),
		service.WithLookupRetry(2, time.Millisecond),
	)
	h := New(svc, slog.New(slog.NewTextHandler(io.Discard, nil)))

	s.router = chi.NewRouter()
	h.RegisterPublic(s.router)
	h.RegisterOperator(s.router)
}

func (s *HandlerSuite) register(name, mobile string) RegisterResponse {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/register", models.RegisterRequest{
		Name: name, Mobile: mobile, Department: "Computer Science", Year: "3rd Year",
	})
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusCreated(s.T(), rr)
	return *testutil.UnmarshalResponse[RegisterResponse](s.T(), rr)
}

func (s *HandlerSuite) admit(code string) *httptest.ResponseRecorder {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/admit", models.AdmitRequest{Code: code})
	req = testutil.WithOperator(req, id.NewOperatorID(), "gate-1")
	return testutil.DoRequest(s.router, req)
}

// TestCheckInDay walks the whole flow: two registrations, one admission and a
// repeated scan of the same badge.
func (s *HandlerSuite) TestCheckInDay() {
	first := s.register("Aisha Khan", "9000000001")
	second := s.register("Bilal Ahmed", "9000000002")
	s.Equal(id.RegistrationCode("IFTAR-2026-0001"), first.RegistrationID)
	s.Equal(id.RegistrationCode("IFTAR-2026-0002"), second.RegistrationID)
	s.Equal(first.RegistrationID, first.QRPayload.ID)
	s.Equal("9000000001", first.QRPayload.Mobile)

	rr := s.admit("IFTAR-2026-0001")
	testutil.AssertStatusOK(s.T(), rr)
	admitted := testutil.UnmarshalResponse[registrationResponse](s.T(), rr)
	s.True(admitted.Registration.Admitted)
	s.Require().NotNil(admitted.Registration.AdmittedAt)

	rr = s.admit("IFTAR-2026-0001")
	testutil.AssertStatus(s.T(), rr, http.StatusConflict)
	var conflict struct {
		Error        string               `json:"error"`
		Registration *models.Registration `json:"registration"`
	}
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &conflict))
	s.Equal("conflict", conflict.Error)
	s.Equal(first.RegistrationID, conflict.Registration.Code)
	s.True(admitted.Registration.AdmittedAt.Equal(*conflict.Registration.AdmittedAt))

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/api/stats"))
	testutil.AssertStatusOK(s.T(), rr)
	st := testutil.UnmarshalResponse[models.Stats](s.T(), rr)
	s.Equal(models.Stats{Total: 2, Admitted: 1, Pending: 1}, *st)
}

func (s *HandlerSuite) TestRegister() {
	s.Run("duplicate mobile returns the existing record", func() {
		first := s.register("Aisha Khan", "9000000001")

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/register", models.RegisterRequest{
			Name: "Aisha K", Mobile: "90000 00001", Department: "Physics", Year: "1st Year",
		})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusConflict)
		var body struct {
			Error        string               `json:"error"`
			Description  string               `json:"error_description"`
			Registration *models.Registration `json:"registration"`
		}
		s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &body))
		s.Equal("conflict", body.Error)
		s.Equal("this mobile number is already registered", body.Description)
		s.Equal(first.RegistrationID, body.Registration.Code)
	})

	s.Run("closed registration is forbidden", func() {
		s.gate.open.Store(false)
		defer s.gate.open.Store(true)

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/register", models.RegisterRequest{
			Name: "Late", Mobile: "9000000099", Department: "Physics", Year: "1st Year",
		})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "forbidden")
	})

	s.Run("validation errors are bad requests", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/register", models.RegisterRequest{Name: "x"})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})

	s.Run("unknown fields are rejected", func() {
		req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/api/register", `{"name":"x","admitted":true}`)
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})

	s.Run("idempotency key replays the first record", func() {
		body := models.RegisterRequest{Name: "Retry", Mobile: "9000000077", Department: "Physics", Year: "1st Year"}

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/register", body)
		req.Header.Set(IdempotencyHeader, "attempt-77")
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusCreated(s.T(), rr)
		created := testutil.UnmarshalResponse[RegisterResponse](s.T(), rr)

		req = testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/register", body)
		req.Header.Set(IdempotencyHeader, "attempt-77")
		rr = testutil.DoRequest(s.router, req)
		testutil.AssertStatusOK(s.T(), rr)
		replayed := testutil.UnmarshalResponse[RegisterResponse](s.T(), rr)
		s.Equal(created.RegistrationID, replayed.RegistrationID)
	})
}

func (s *HandlerSuite) TestAdmit() {
	reg := s.register("Aisha Khan", "9000000001")

	s.Run("accepts the decoded QR payload", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/admit", reg.QRPayload)
		rr := testutil.DoRequest(s.router, testutil.WithOperator(req, id.NewOperatorID(), "gate-2"))
		testutil.AssertStatusOK(s.T(), rr)
	})

	s.Run("unknown code is not found", func() {
		rr := s.admit("IFTAR-2026-0404")
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
	})

	s.Run("malformed code is a bad request", func() {
		rr := s.admit("not-a-code")
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_input")
	})
}

func (s *HandlerSuite) TestLookups() {
	reg := s.register("Aisha Khan", "9000000001")

	s.Run("receipt masks the mobile number", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/api/registrations/iftar-2026-0001/receipt"))
		testutil.AssertStatusOK(s.T(), rr)
		receipt := testutil.UnmarshalResponse[ReceiptResponse](s.T(), rr)
		s.Equal("******0001", receipt.Mobile)
		s.Equal(models.StatusPending, receipt.Status)
		s.Equal(reg.RegistrationID, receipt.QRPayload.ID)
	})

	s.Run("unknown receipt is not found", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/api/registrations/IFTAR-2026-0099/receipt"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
	})

	s.Run("check registration reports existence", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/check-registration", models.CheckMobileRequest{Mobile: "9000000001"})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusOK(s.T(), rr)
		testutil.AssertJSONContains(s.T(), rr, "exists", true)

		req = testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/check-registration", models.CheckMobileRequest{Mobile: "9000000002"})
		rr = testutil.DoRequest(s.router, req)
		testutil.AssertStatusOK(s.T(), rr)
		testutil.AssertJSONContains(s.T(), rr, "exists", false)
	})

	s.Run("list filters by date", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/api/registrations"))
		testutil.AssertStatusOK(s.T(), rr)
		all := testutil.UnmarshalResponse[listResponse](s.T(), rr)
		s.Equal(1, all.Count)

		rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/api/registrations?date=2001-01-01"))
		testutil.AssertStatusOK(s.T(), rr)
		none := testutil.UnmarshalResponse[listResponse](s.T(), rr)
		s.Equal(0, none.Count)
		s.NotNil(none.Registrations)

		rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/api/registrations?date=yesterday"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})
}

func (s *HandlerSuite) TestDelete() {
	s.register("Aisha Khan", "9000000001")
	s.register("Bilal Ahmed", "9000000002")

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodDelete, "/api/registrations/IFTAR-2026-0001"))
	testutil.AssertStatus(s.T(), rr, http.StatusNoContent)

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodDelete, "/api/registrations/IFTAR-2026-0001"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/registrations/delete", models.BulkDeleteRequest{
		Codes: []string{"IFTAR-2026-0001", "IFTAR-2026-0002"},
	})
	rr = testutil.DoRequest(s.router, req)
	testutil.AssertStatusOK(s.T(), rr)
	resp := testutil.UnmarshalResponse[bulkDeleteResponse](s.T(), rr)
	s.Equal([]id.RegistrationCode{"IFTAR-2026-0002"}, resp.Deleted)

	next := s.register("Chen Li", "9000000003")
	s.Equal(id.RegistrationCode("IFTAR-2026-0003"), next.RegistrationID)
}

func TestMaskMobile(t *testing.T) {
	for in, want := range map[string]string{
		"9123456789":    "******6789",
		"+919123456789": "*********6789",
		"123":           "***",
	} {
		assert.Equal(t, want, maskMobile(in), "maskMobile(%q)", in)
	}
}
