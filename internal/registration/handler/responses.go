package handler

import (
	"strings"
	"time"

	"checkin/internal/registration/models"
	id "checkin/pkg/domain"
	"checkin/pkg/platform/httputil"
)

// RegisterResponse is returned by POST /api/register.
type RegisterResponse struct {
	RegistrationID id.RegistrationCode  `json:"registration_id"`
	Registration   *models.Registration `json:"registration"`
	QRPayload      models.QRPayload     `json:"qr_payload"`
}

func newRegisterResponse(reg *models.Registration) RegisterResponse {
	return RegisterResponse{
		RegistrationID: reg.Code,
		Registration:   reg,
		QRPayload:      reg.QRPayload(),
	}
}

// ReceiptResponse is the public receipt. The mobile number is masked because
// the endpoint is unauthenticated.
type ReceiptResponse struct {
	RegistrationID id.RegistrationCode `json:"registration_id"`
	Name           string              `json:"name"`
	Mobile         string              `json:"mobile"`
	Department     string              `json:"department"`
	Year           string              `json:"year"`
	Status         models.Status       `json:"status"`
	CreatedAt      time.Time           `json:"created_at"`
	QRPayload      models.QRPayload    `json:"qr_payload"`
}

func newReceiptResponse(reg *models.Registration) ReceiptResponse {
	return ReceiptResponse{
		RegistrationID: reg.Code,
		Name:           reg.Name,
		Mobile:         maskMobile(reg.Mobile),
		Department:     reg.Department,
		Year:           reg.Year,
		Status:         reg.Status(),
		CreatedAt:      reg.CreatedAt,
		QRPayload:      reg.QRPayload(),
	}
}

type registrationResponse struct {
	Registration *models.Registration `json:"registration"`
}

// conflictResponse is the error envelope plus the record that caused the
// conflict (the earlier registration or the admitted one).
type conflictResponse struct {
	httputil.ErrorResponse
	Registration *models.Registration `json:"registration"`
}

type checkResponse struct {
	Exists       bool                 `json:"exists"`
	Registration *models.Registration `json:"registration,omitempty"`
}

type listResponse struct {
	Registrations []*models.Registration `json:"registrations"`
	Count         int                    `json:"count"`
}

type bulkDeleteResponse struct {
	Deleted []id.RegistrationCode `json:"deleted"`
	Count   int                   `json:"count"`
}

// maskMobile keeps the last four digits.
func maskMobile(mobile string) string {
	if len(mobile) <= 4 {
		return strings.Repeat("*", len(mobile))
	}
	return strings.Repeat("*", len(mobile)-4) + mobile[len(mobile)-4:]
}
