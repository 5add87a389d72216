package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"checkin/internal/registration/models"
	id "checkin/pkg/domain"
	dErrors "checkin/pkg/domain-errors"
	"checkin/pkg/platform/httputil"
	"checkin/pkg/requestcontext"
)

// IdempotencyHeader lets clients retry a registration without creating a
// second record.
const IdempotencyHeader = "Idempotency-Key"

// Service defines the registration operations the HTTP layer needs.
type Service interface {
	RegisterWithKey(ctx context.Context, key string, req *models.RegisterRequest) (*models.Registration, bool, error)
	CheckMobile(ctx context.Context, req *models.CheckMobileRequest) (*models.Registration, error)
	Admit(ctx context.Context, code string) (*models.Registration, error)
	Lookup(ctx context.Context, code string) (*models.Registration, error)
	LookupWithRetry(ctx context.Context, code string) (*models.Registration, error)
	List(ctx context.Context, day string) ([]*models.Registration, error)
	Delete(ctx context.Context, code string) error
	DeleteMany(ctx context.Context, req *models.BulkDeleteRequest) ([]id.RegistrationCode, error)
	Stats(ctx context.Context) (models.Stats, error)
}

// Handler serves the attendee and operator registration endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

// RegisterPublic mounts the attendee-facing endpoints.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Post("/api/register", h.HandleRegister)
	r.Post("/api/check-registration", h.HandleCheckRegistration)
	r.Get("/api/registrations/{code}/receipt", h.HandleReceipt)
}

// RegisterOperator mounts the endpoints used by check-in staff. The caller
// applies the authentication middleware.
func (h *Handler) RegisterOperator(r chi.Router) {
	r.Post("/api/admit", h.HandleAdmit)
	r.Get("/api/registrations", h.HandleList)
	r.Get("/api/registrations/{code}", h.HandleGet)
	r.Delete("/api/registrations/{code}", h.HandleDelete)
	r.Post("/api/registrations/delete", h.HandleBulkDelete)
	r.Get("/api/stats", h.HandleStats)
}

// HandleRegister handles POST /api/register.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.RegisterRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		h.writeError(ctx, w, err, "invalid register request")
		return
	}

	reg, replayed, err := h.service.RegisterWithKey(ctx, r.Header.Get(IdempotencyHeader), &req)
	if err != nil {
		var dup *models.DuplicateRegistrationError
		if errors.As(err, &dup) {
			h.logger.InfoContext(ctx, "duplicate registration rejected",
				"request_id", requestcontext.RequestID(ctx),
				"existing", dup.Existing.Code.String(),
			)
			httputil.WriteJSON(w, http.StatusConflict, conflictResponse{
				ErrorResponse: httputil.ErrorBody(err),
				Registration:  dup.Existing,
			})
			return
		}
		h.writeError(ctx, w, err, "registration failed")
		return
	}

	status := http.StatusCreated
	if replayed {
		status = http.StatusOK
	}
	httputil.WriteJSON(w, status, newRegisterResponse(reg))
}

// HandleCheckRegistration handles POST /api/check-registration.
func (h *Handler) HandleCheckRegistration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.CheckMobileRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		h.writeError(ctx, w, err, "invalid check registration request")
		return
	}
	reg, err := h.service.CheckMobile(ctx, &req)
	if err != nil {
		h.writeError(ctx, w, err, "check registration failed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, checkResponse{Exists: reg != nil, Registration: reg})
}

// HandleReceipt handles GET /api/registrations/{code}/receipt. The read
// retries briefly because it usually follows the creating write.
func (h *Handler) HandleReceipt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reg, err := h.service.LookupWithRetry(ctx, chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(ctx, w, err, "receipt lookup failed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newReceiptResponse(reg))
}

// HandleAdmit handles POST /api/admit.
func (h *Handler) HandleAdmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.AdmitRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		h.writeError(ctx, w, err, "invalid admit request")
		return
	}
	code, err := req.ScannedCode()
	if err != nil {
		h.writeError(ctx, w, err, "invalid admit request")
		return
	}

	reg, err := h.service.Admit(ctx, code)
	if err != nil {
		var already *models.AlreadyAdmittedError
		if errors.As(err, &already) {
			h.logger.InfoContext(ctx, "registration already admitted",
				"request_id", requestcontext.RequestID(ctx),
				"code", already.Registration.Code.String(),
				"operator", requestcontext.OperatorName(ctx),
			)
			httputil.WriteJSON(w, http.StatusConflict, conflictResponse{
				ErrorResponse: httputil.ErrorBody(err),
				Registration:  already.Registration,
			})
			return
		}
		h.writeError(ctx, w, err, "admission failed")
		return
	}

	h.logger.InfoContext(ctx, "registration admitted",
		"request_id", requestcontext.RequestID(ctx),
		"code", reg.Code.String(),
		"operator", requestcontext.OperatorName(ctx),
	)
	httputil.WriteJSON(w, http.StatusOK, registrationResponse{Registration: reg})
}

// HandleGet handles GET /api/registrations/{code}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reg, err := h.service.Lookup(ctx, chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(ctx, w, err, "lookup failed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, registrationResponse{Registration: reg})
}

// HandleList handles GET /api/registrations?date=YYYY-MM-DD.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	regs, err := h.service.List(ctx, r.URL.Query().Get("date"))
	if err != nil {
		h.writeError(ctx, w, err, "list registrations failed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Registrations: regs, Count: len(regs)})
}

// HandleDelete handles DELETE /api/registrations/{code}.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.service.Delete(ctx, chi.URLParam(r, "code")); err != nil {
		h.writeError(ctx, w, err, "delete registration failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleBulkDelete handles POST /api/registrations/delete.
func (h *Handler) HandleBulkDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.BulkDeleteRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		h.writeError(ctx, w, err, "invalid bulk delete request")
		return
	}
	deleted, err := h.service.DeleteMany(ctx, &req)
	if err != nil {
		h.writeError(ctx, w, err, "bulk delete failed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, bulkDeleteResponse{Deleted: deleted, Count: len(deleted)})
}

// HandleStats handles GET /api/stats.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st, err := h.service.Stats(ctx)
	if err != nil {
		h.writeError(ctx, w, err, "stats failed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, st)
}

// writeError logs at error level only for failures the client cannot fix.
func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error, msg string) {
	code := dErrors.CodeOf(err)
	attrs := []any{
		"request_id", requestcontext.RequestID(ctx),
		"error_code", string(code),
		"error", err,
	}
	switch code {
	case dErrors.CodeInternal, dErrors.CodeUnavailable:
		h.logger.ErrorContext(ctx, msg, attrs...)
	default:
		h.logger.WarnContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}
