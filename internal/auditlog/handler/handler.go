// Package handler exposes the audit trail of a registration code or operator
// to signed-in staff, e.g. to see which scanner admitted a badge.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	id "checkin/pkg/domain"
	dErrors "checkin/pkg/domain-errors"
	audit "checkin/pkg/platform/audit"
	"checkin/pkg/platform/httputil"
	"checkin/pkg/requestcontext"
)

type Lister interface {
	List(ctx context.Context, subject string) ([]audit.Event, error)
}

type Handler struct {
	lister Lister
	logger *slog.Logger
}

func New(lister Lister, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{lister: lister, logger: logger}
}

func (h *Handler) RegisterPublic(chi.Router) {}

// RegisterOperator mounts GET /api/audit/{subject}.
func (h *Handler) RegisterOperator(r chi.Router) {
	r.Get("/api/audit/{subject}", h.HandleList)
}

type listResponse struct {
	Subject string        `json:"subject"`
	Events  []audit.Event `json:"events"`
	Count   int           `json:"count"`
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject := strings.TrimSpace(chi.URLParam(r, "subject"))
	if subject == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "subject is required"))
		return
	}
	if _, err := id.ParseRegistrationCode(subject); err == nil {
		subject = id.NormalizeCode(subject).String()
	} else {
		subject = strings.ToLower(subject)
	}

	events, err := h.lister.List(ctx, subject)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list audit events",
			"request_id", requestcontext.RequestID(ctx),
			"subject", subject,
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit events"))
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Subject: subject, Events: events, Count: len(events)})
}
