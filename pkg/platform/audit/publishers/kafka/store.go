// Package kafka forwards audit events to a Kafka topic. A circuit breaker
// stops producing while the brokers are failing; events are then written to
// the log instead so the request path never blocks on the bus.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	audit "checkin/pkg/platform/audit"
	"checkin/pkg/platform/circuit"
)

// Producer is the subset of *kgo.Client the store needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Store appends every event to a local store, used for listing, and to Kafka.
type Store struct {
	local    audit.Store
	producer Producer
	topic    string
	logger   *slog.Logger
	breaker  *circuit.Breaker
	timeout  time.Duration

	probeEvery time.Duration
	mu         sync.Mutex
	lastProbe  time.Time
	now        func() time.Time
}

type Option func(*Store)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(s *Store) {
		if b != nil {
			s.breaker = b
		}
	}
}

// WithProduceTimeout bounds a single produce call.
func WithProduceTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithProbeInterval sets how often a produce is attempted while the circuit
// is open.
func WithProbeInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.probeEvery = d
		}
	}
}

func withClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(local audit.Store, producer Producer, topic string, opts ...Option) *Store {
	s := &Store{
		local:      local,
		producer:   producer,
		topic:      topic,
		logger:     slog.Default(),
		breaker:    circuit.New("kafka-audit"),
		timeout:    2 * time.Second,
		probeEvery: 5 * time.Second,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append never fails because of Kafka; only a local store error is returned.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if err := s.local.Append(ctx, event); err != nil {
		return err
	}

	if s.breaker.IsOpen() && !s.probeDue() {
		s.fallback(ctx, event, nil)
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.Subject),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "action", Value: []byte(event.Action)},
			{Key: "category", Value: []byte(event.Category)},
		},
	}

	produceCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	if err := s.producer.ProduceSync(produceCtx, record).FirstErr(); err != nil {
		_, change := s.breaker.RecordFailure()
		if change.Opened {
			s.logger.WarnContext(ctx, "audit kafka circuit opened", "breaker", s.breaker.Name(), "error", err)
		}
		s.fallback(ctx, event, err)
		return nil
	}

	_, change := s.breaker.RecordSuccess()
	if change.Closed {
		s.logger.InfoContext(ctx, "audit kafka circuit closed", "breaker", s.breaker.Name())
	}
	return nil
}

func (s *Store) ListBySubject(ctx context.Context, subject string) ([]audit.Event, error) {
	return s.local.ListBySubject(ctx, subject)
}

func (s *Store) probeDue() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if now.Sub(s.lastProbe) < s.probeEvery {
		return false
	}
	s.lastProbe = now
	return true
}

func (s *Store) fallback(ctx context.Context, event audit.Event, err error) {
	attrs := []any{
		"action", event.Action,
		"category", string(event.Category),
		"subject", event.Subject,
		"actor", event.Actor,
		"request_id", event.RequestID,
	}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	s.logger.InfoContext(ctx, "audit event (kafka unavailable)", attrs...)
}
