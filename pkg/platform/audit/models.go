package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose so sinks can
// route and retain them differently.
type EventCategory string

const (
	// CategoryRecord covers changes to registration records: creation,
	// admission and deletion. These are the events an organizer reconciles
	// attendance against.
	CategoryRecord EventCategory = "record"

	// CategorySecurity covers operator authentication and rejected
	// operations worth reviewing (repeated admission scans, failed logins).
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine configuration and policy activity.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory `json:"category"`
	Timestamp time.Time     `json:"timestamp"`
	// Subject is the registration code, or the operator username for
	// authentication events.
	Subject string `json:"subject"`
	Action  string `json:"action"`
	Reason  string `json:"reason,omitempty"`
	// ActorID and Actor identify the operator when one performed the action.
	ActorID   string `json:"actor_id,omitempty"`
	Actor     string `json:"actor,omitempty"`
	ClientIP  string `json:"client_ip,omitempty"`
	Device    string `json:"device,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type AuditEvent string

const (
	EventRegistrationCreated  AuditEvent = "registration_created"
	EventRegistrationRejected AuditEvent = "registration_rejected"
	EventRegistrationDeleted  AuditEvent = "registration_deleted"
	EventAdmissionGranted     AuditEvent = "admission_granted"
	EventAdmissionRepeated    AuditEvent = "admission_repeated"
	EventSettingsChanged      AuditEvent = "settings_changed"
	EventOperatorLogin        AuditEvent = "operator_login"
	EventOperatorLoginFailed  AuditEvent = "operator_login_failed"
	EventOperatorSeeded       AuditEvent = "operator_seeded"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventRegistrationCreated: CategoryRecord,
	EventRegistrationDeleted: CategoryRecord,
	EventAdmissionGranted:    CategoryRecord,

	EventAdmissionRepeated:   CategorySecurity,
	EventOperatorLogin:       CategorySecurity,
	EventOperatorLoginFailed: CategorySecurity,
	EventOperatorSeeded:      CategorySecurity,

	EventRegistrationRejected: CategoryOperations,
	EventSettingsChanged:      CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events and lists them back per subject, oldest first.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySubject(ctx context.Context, subject string) ([]Event, error)
}
