package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"checkin/internal/registration/idempotency"
	"checkin/internal/registration/metrics"
	"checkin/internal/registration/models"
	"checkin/internal/registration/policy"
	id "checkin/pkg/domain"
	dErrors "checkin/pkg/domain-errors"
	audit "checkin/pkg/platform/audit"
	"checkin/pkg/platform/sentinel"
	"checkin/pkg/requestcontext"
)

const (
	defaultAllocationRetries = 5
	defaultLookupAttempts    = 3
	defaultLookupDelay       = 500 * time.Millisecond
	defaultIdempotencyTTL    = 24 * time.Hour
)

// Service owns registration, admission and lookup.
type Service struct {
	store     Store
	allocator CodeAllocator
	gate      SettingsGate
	policy    policy.Policy

	idempotency    idempotency.Store
	idempotencyTTL time.Duration

	eventYear         int
	allocationRetries int
	lookupAttempts    int
	lookupDelay       time.Duration
	location          *time.Location

	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	tracer         trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithIdempotencyStore enables Idempotency-Key handling in RegisterWithKey.
func WithIdempotencyStore(store idempotency.Store, ttl time.Duration) Option {
	return func(s *Service) {
		s.idempotency = store
		if ttl > 0 {
			s.idempotencyTTL = ttl
		}
	}
}

// WithEventYear fixes the year segment of new codes. Without it the year of
// the request time in the configured location is used.
func WithEventYear(year int) Option {
	return func(s *Service) {
		s.eventYear = year
	}
}

func WithAllocationRetries(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.allocationRetries = n
		}
	}
}

func WithLookupRetry(attempts int, delay time.Duration) Option {
	return func(s *Service) {
		if attempts > 0 {
			s.lookupAttempts = attempts
		}
		if delay >= 0 {
			s.lookupDelay = delay
		}
	}
}

// WithLocation sets the time zone used for calendar-day filters.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

// New constructs a Service. store, allocator, gate and dupPolicy are required.
func New(store Store, allocator CodeAllocator, gate SettingsGate, dupPolicy policy.Policy, opts ...Option) *Service {
	s := &Service{
		store:             store,
		allocator:         allocator,
		gate:              gate,
		policy:            dupPolicy,
		idempotencyTTL:    defaultIdempotencyTTL,
		allocationRetries: defaultAllocationRetries,
		lookupAttempts:    defaultLookupAttempts,
		lookupDelay:       defaultLookupDelay,
		location:          time.Local,
		tracer:            otel.Tracer("checkin/registration"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.policy == nil {
		s.policy = policy.Strict{}
	}
	return s
}

// Register validates the form, consults the settings gate and the duplicate
// policy, then persists the registration under a freshly allocated code.
func (s *Service) Register(ctx context.Context, req *models.RegisterRequest) (_ *models.Registration, err error) {
	ctx, span := s.tracer.Start(ctx, "registration.Register")
	defer func() { endSpan(span, err) }()
	if s.metrics != nil {
		defer s.metrics.ObserveRegister(time.Now())
	}

	if req == nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	open, err := s.gate.IsOpen(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read registration settings")
	}
	if !open {
		s.reject(ctx, "closed", "")
		return nil, models.ErrRegistrationClosed
	}

	if err := s.policy.Check(ctx, s.store, req.Mobile, now); err != nil {
		var dup *models.DuplicateRegistrationError
		if errors.As(err, &dup) {
			s.reject(ctx, "duplicate", dup.Existing.Code.String())
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check for duplicate registration")
	}

	reg, err := s.insertWithFreshCode(ctx, req, now)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("registration.code", reg.Code.String()))

	s.incrementCreated()
	s.logAudit(ctx, audit.EventRegistrationCreated, reg.Code.String(), "", "department", reg.Department)
	return reg, nil
}

// insertWithFreshCode allocates a code and inserts, allocating again when the
// code is already taken. A collision means the counter fell behind the store,
// so the allocator is asked to recover before the next attempt.
func (s *Service) insertWithFreshCode(ctx context.Context, req *models.RegisterRequest, now time.Time) (*models.Registration, error) {
	year := s.yearFor(now)
	for attempt := 1; attempt <= s.allocationRetries; attempt++ {
		code, err := s.allocator.Next(ctx, year)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to allocate registration code")
		}
		reg, err := models.NewRegistration(id.NewRegistrationID(), code, req, now)
		if err != nil {
			return nil, err
		}

		err = s.store.Create(ctx, reg)
		if err == nil {
			return reg, nil
		}
		if !errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save registration")
		}

		s.incrementAllocationRetry()
		if s.logger != nil {
			s.logger.WarnContext(ctx, "registration code collision",
				"code", code.String(),
				"attempt", attempt,
				"max_attempts", s.allocationRetries,
				"request_id", requestcontext.RequestID(ctx),
			)
		}
		if err := s.allocator.Recover(ctx, year); err != nil && s.logger != nil {
			s.logger.ErrorContext(ctx, "failed to recover code allocator", "error", err)
		}
	}
	return nil, models.ErrSequenceConflict
}

// RegisterWithKey is Register guarded by a client Idempotency-Key. A repeated
// key returns the registration the first request created and replayed=true.
// An empty key, or a service without an idempotency store, behaves like
// Register.
func (s *Service) RegisterWithKey(ctx context.Context, key string, req *models.RegisterRequest) (reg *models.Registration, replayed bool, err error) {
	if key == "" || s.idempotency == nil {
		reg, err = s.Register(ctx, req)
		return reg, false, err
	}
	if err := idempotency.ValidateKey(key); err != nil {
		return nil, false, dErrors.New(dErrors.CodeBadRequest, "invalid Idempotency-Key header")
	}

	outcome, code, err := s.idempotency.Reserve(ctx, key, s.idempotencyTTL)
	if err != nil {
		return nil, false, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to reserve idempotency key")
	}
	switch outcome {
	case idempotency.Completed:
		reg, err = s.Lookup(ctx, code)
		if err != nil {
			return nil, false, err
		}
		return reg, true, nil
	case idempotency.InFlight:
		return nil, false, dErrors.New(dErrors.CodeConflict, "a request with this Idempotency-Key is still in progress")
	}

	reg, err = s.Register(ctx, req)
	if err != nil {
		if relErr := s.idempotency.Release(context.WithoutCancel(ctx), key); relErr != nil && s.logger != nil {
			s.logger.ErrorContext(ctx, "failed to release idempotency key", "error", relErr)
		}
		return nil, false, err
	}
	if err := s.idempotency.Complete(context.WithoutCancel(ctx), key, reg.Code.String(), s.idempotencyTTL); err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "failed to complete idempotency key",
			"code", reg.Code.String(),
			"error", err,
		)
	}
	return reg, false, nil
}

// Admit moves a registration from pending to admitted. Exactly one caller per
// code succeeds; later callers get *models.AlreadyAdmittedError carrying the
// stored record.
func (s *Service) Admit(ctx context.Context, raw string) (_ *models.Registration, err error) {
	ctx, span := s.tracer.Start(ctx, "registration.Admit")
	defer func() { endSpan(span, err) }()
	if s.metrics != nil {
		defer s.metrics.ObserveAdmit(time.Now())
	}

	code, err := parseCode(raw)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("registration.code", code.String()))

	reg, err := s.store.Admit(ctx, code, requestcontext.Now(ctx))
	if err != nil {
		var already *models.AlreadyAdmittedError
		switch {
		case errors.As(err, &already):
			s.incrementRepeated()
			s.logAudit(ctx, audit.EventAdmissionRepeated, code.String(), "already_admitted")
			return nil, err
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "registration not found")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to admit registration")
		}
	}

	s.incrementAdmitted()
	s.logAudit(ctx, audit.EventAdmissionGranted, code.String(), "")
	return reg, nil
}

// Lookup returns the registration for a code without side effects.
func (s *Service) Lookup(ctx context.Context, raw string) (_ *models.Registration, err error) {
	ctx, span := s.tracer.Start(ctx, "registration.Lookup")
	defer func() { endSpan(span, err) }()

	code, err := parseCode(raw)
	if err != nil {
		return nil, err
	}
	reg, err := s.store.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "registration not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load registration")
	}
	return reg, nil
}

// LookupWithRetry retries Lookup with a fixed delay for reads that may race
// the write that created the record. The last error is returned.
func (s *Service) LookupWithRetry(ctx context.Context, raw string) (*models.Registration, error) {
	if _, err := parseCode(raw); err != nil {
		return nil, err
	}
	var lastErr error
	for attempt := 1; attempt <= s.lookupAttempts; attempt++ {
		reg, err := s.Lookup(ctx, raw)
		if err == nil {
			return reg, nil
		}
		lastErr = err
		if attempt == s.lookupAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, lastErr
		case <-time.After(s.lookupDelay):
		}
	}
	return nil, lastErr
}

// CheckMobile returns the earliest registration for a mobile number, or nil
// when the number never registered.
func (s *Service) CheckMobile(ctx context.Context, req *models.CheckMobileRequest) (*models.Registration, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	reg, err := s.store.FindEarliestByMobile(ctx, req.Mobile, time.Time{}, time.Time{})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check registration")
	}
	return reg, nil
}

// List returns registrations newest first. day, when set, is YYYY-MM-DD in
// the configured location.
func (s *Service) List(ctx context.Context, day string) ([]*models.Registration, error) {
	var filter models.ListFilter
	if day != "" {
		from, to, err := policy.ParseDay(day, s.location)
		if err != nil {
			return nil, dErrors.New(dErrors.CodeValidation, "date must be formatted YYYY-MM-DD")
		}
		filter = models.ListFilter{From: from, To: to}
	}
	regs, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list registrations")
	}
	if regs == nil {
		regs = []*models.Registration{}
	}
	return regs, nil
}

// Delete removes one registration. Its code is never handed out again.
func (s *Service) Delete(ctx context.Context, raw string) error {
	code, err := parseCode(raw)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, code); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "registration not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete registration")
	}
	s.logAudit(ctx, audit.EventRegistrationDeleted, code.String(), "")
	return nil
}

// DeleteMany removes the listed registrations and returns the codes that
// existed. Unknown codes are skipped.
func (s *Service) DeleteMany(ctx context.Context, req *models.BulkDeleteRequest) ([]id.RegistrationCode, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	codes := make([]id.RegistrationCode, 0, len(req.Codes))
	for _, raw := range req.Codes {
		code, err := parseCode(raw)
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}

	deleted, err := s.store.DeleteMany(ctx, codes)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete registrations")
	}
	for _, code := range deleted {
		s.logAudit(ctx, audit.EventRegistrationDeleted, code.String(), "bulk")
	}
	if deleted == nil {
		deleted = []id.RegistrationCode{}
	}
	return deleted, nil
}

func (s *Service) Stats(ctx context.Context) (models.Stats, error) {
	st, err := s.store.Stats(ctx)
	if err != nil {
		return models.Stats{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load stats")
	}
	return st, nil
}

func (s *Service) yearFor(now time.Time) int {
	if s.eventYear > 0 {
		return s.eventYear
	}
	return now.In(s.location).Year()
}

func parseCode(raw string) (id.RegistrationCode, error) {
	if _, err := id.ParseRegistrationCode(raw); err != nil {
		return "", err
	}
	return id.NormalizeCode(raw), nil
}

func (s *Service) reject(ctx context.Context, reason, existing string) {
	if s.metrics != nil {
		s.metrics.IncrementRejected(reason)
	}
	s.logAudit(ctx, audit.EventRegistrationRejected, existing, reason)
}

func (s *Service) logAudit(ctx context.Context, event audit.AuditEvent, subject, reason string, attributes ...any) {
	requestID := requestcontext.RequestID(ctx)
	actorID := ""
	if op := requestcontext.OperatorID(ctx); !op.IsNil() {
		actorID = op.String()
	}
	actor := requestcontext.OperatorName(ctx)
	device := requestcontext.Device(ctx)

	if s.logger != nil {
		args := append(attributes,
			"event", string(event),
			"log_type", "audit",
			"subject", subject,
			"request_id", requestID,
		)
		if reason != "" {
			args = append(args, "reason", reason)
		}
		if actor != "" {
			args = append(args, "actor", actor, "device", device)
		}
		s.logger.InfoContext(ctx, string(event), args...)
	}
	if s.auditPublisher == nil {
		return
	}
	err := s.auditPublisher.Emit(ctx, audit.Event{
		Subject:   subject,
		Action:    string(event),
		Reason:    reason,
		ActorID:   actorID,
		Actor:     actor,
		ClientIP:  requestcontext.ClientIP(ctx),
		Device:    device,
		RequestID: requestID,
	})
	if err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "event", string(event), "error", err)
	}
}

func (s *Service) incrementCreated() {
	if s.metrics != nil {
		s.metrics.IncrementCreated()
	}
}

func (s *Service) incrementAllocationRetry() {
	if s.metrics != nil {
		s.metrics.IncrementAllocationRetry()
	}
}

func (s *Service) incrementAdmitted() {
	if s.metrics != nil {
		s.metrics.IncrementAdmitted()
	}
}

func (s *Service) incrementRepeated() {
	if s.metrics != nil {
		s.metrics.IncrementRepeated()
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
