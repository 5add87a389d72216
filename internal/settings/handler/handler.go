package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"checkin/internal/settings/models"
	"checkin/pkg/platform/httputil"
	"checkin/pkg/requestcontext"
)

type Service interface {
	Get(ctx context.Context) (*models.SystemSettings, error)
	SetOpen(ctx context.Context, open bool) (*models.SystemSettings, error)
}

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

// RegisterPublic mounts GET /api/settings; the registration form reads it to
// decide whether to render.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Get("/api/settings", h.HandleGet)
}

// RegisterOperator mounts POST /api/settings.
func (h *Handler) RegisterOperator(r chi.Router) {
	r.Post("/api/settings", h.HandleUpdate)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	settings, err := h.service.Get(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to load settings",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, settings)
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.UpdateRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	settings, err := h.service.SetOpen(ctx, *req.RegistrationOpen)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to save settings",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "registration switch changed",
		"request_id", requestcontext.RequestID(ctx),
		"registration_open", settings.RegistrationOpen,
		"operator", requestcontext.OperatorName(ctx),
	)
	httputil.WriteJSON(w, http.StatusOK, settings)
}
