package models

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	dErrors "checkin/pkg/domain-errors"
)

const maxFieldLength = 128

// RegisterRequest is the attendee-supplied registration form.
type RegisterRequest struct {
	Name       string `json:"name"`
	Mobile     string `json:"mobile"`
	Department string `json:"department"`
	Year       string `json:"year"`
}

// Normalize trims every field and strips spaces and dashes from the mobile number.
func (r *RegisterRequest) Normalize() {
	if r == nil {
		return
	}
	r.Name = strings.TrimSpace(r.Name)
	r.Department = strings.TrimSpace(r.Department)
	r.Year = strings.TrimSpace(r.Year)
	r.Mobile = NormalizeMobile(r.Mobile)
}

// Validate requires every field and checks the mobile number shape.
func (r *RegisterRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	for _, f := range []struct{ name, value string }{
		{"name", r.Name},
		{"mobile", r.Mobile},
		{"department", r.Department},
		{"year", r.Year},
	} {
		if f.value == "" {
			return dErrors.New(dErrors.CodeValidation, f.name+" is required")
		}
		if utf8.RuneCountInString(f.value) > maxFieldLength {
			return dErrors.New(dErrors.CodeValidation, f.name+" must be 128 characters or less")
		}
	}
	if !ValidMobile(r.Mobile) {
		return dErrors.New(dErrors.CodeValidation, "mobile must be 10 to 15 digits")
	}
	return nil
}

// NormalizeMobile trims the number and removes common separators.
func NormalizeMobile(s string) string {
	return strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(s))
}

// ValidMobile accepts 10 to 15 digits with an optional leading '+'.
func ValidMobile(s string) bool {
	digits := strings.TrimPrefix(s, "+")
	if len(digits) < 10 || len(digits) > 15 {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// CheckMobileRequest asks whether a mobile number already registered.
type CheckMobileRequest struct {
	Mobile string `json:"mobile"`
}

func (r *CheckMobileRequest) Normalize() {
	if r != nil {
		r.Mobile = NormalizeMobile(r.Mobile)
	}
}

func (r *CheckMobileRequest) Validate() error {
	if r == nil || r.Mobile == "" {
		return dErrors.New(dErrors.CodeValidation, "mobile is required")
	}
	if !ValidMobile(r.Mobile) {
		return dErrors.New(dErrors.CodeValidation, "mobile must be 10 to 15 digits")
	}
	return nil
}

// AdmitRequest carries a scanned or typed registration code. Scanners may
// post the decoded QR payload itself ({"id", "name", "mobile"}) or put the raw
// QR text into registration_id.
type AdmitRequest struct {
	Code   string `json:"registration_id,omitempty"`
	ID     string `json:"id,omitempty"`
	Name   string `json:"name,omitempty"`
	Mobile string `json:"mobile,omitempty"`
}

// ScannedCode extracts the registration code from whichever form was sent.
func (r *AdmitRequest) ScannedCode() (string, error) {
	if r == nil {
		return "", dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	raw := strings.TrimSpace(r.Code)
	if raw == "" {
		raw = strings.TrimSpace(r.ID)
	}
	if strings.HasPrefix(raw, "{") {
		var payload QRPayload
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return "", dErrors.New(dErrors.CodeInvalidInput, "unreadable QR payload")
		}
		raw = strings.TrimSpace(string(payload.ID))
	}
	if raw == "" {
		return "", dErrors.New(dErrors.CodeValidation, "registration_id is required")
	}
	return raw, nil
}

// BulkDeleteRequest lists codes to delete.
type BulkDeleteRequest struct {
	Codes []string `json:"codes"`
}

func (r *BulkDeleteRequest) Validate() error {
	if r == nil || len(r.Codes) == 0 {
		return dErrors.New(dErrors.CodeValidation, "codes are required")
	}
	if len(r.Codes) > 500 {
		return dErrors.New(dErrors.CodeValidation, "at most 500 codes per request")
	}
	return nil
}
