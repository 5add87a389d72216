package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/crypto/bcrypt"

	audithandler "checkin/internal/auditlog/handler"
	httpapi "checkin/internal/http"
	operatorhandler "checkin/internal/operator/handler"
	"checkin/internal/operator/secrets"
	operatorservice "checkin/internal/operator/service"
	operatormemory "checkin/internal/operator/store/memory"
	operatorpostgres "checkin/internal/operator/store/postgres"
	operatorsqlite "checkin/internal/operator/store/sqlite"
	"checkin/internal/operator/token"
	"checkin/internal/platform/config"
	"checkin/internal/platform/kafka"
	"checkin/internal/platform/metrics"
	platformpostgres "checkin/internal/platform/postgres"
	platformredis "checkin/internal/platform/redis"
	platformsqlite "checkin/internal/platform/sqlite"
	"checkin/internal/registration/allocator"
	registrationhandler "checkin/internal/registration/handler"
	"checkin/internal/registration/idempotency"
	registrationmetrics "checkin/internal/registration/metrics"
	"checkin/internal/registration/policy"
	registrationservice "checkin/internal/registration/service"
	registrationmemory "checkin/internal/registration/store/memory"
	registrationpostgres "checkin/internal/registration/store/postgres"
	registrationsqlite "checkin/internal/registration/store/sqlite"
	settingshandler "checkin/internal/settings/handler"
	settingsservice "checkin/internal/settings/service"
	settingsmemory "checkin/internal/settings/store/memory"
	settingspostgres "checkin/internal/settings/store/postgres"
	settingssqlite "checkin/internal/settings/store/sqlite"
	audit "checkin/pkg/platform/audit"
	"checkin/pkg/platform/audit/publisher"
	kafkaaudit "checkin/pkg/platform/audit/publishers/kafka"
	auditmemory "checkin/pkg/platform/audit/store/memory"
	auditpostgres "checkin/pkg/platform/audit/store/postgres"
	auditsqlite "checkin/pkg/platform/audit/store/sqlite"
	"checkin/pkg/platform/circuit"
)

// registrationStore is a registration store that also owns the per-tag
// counters.
type registrationStore interface {
	registrationservice.Store
	NextSequence(ctx context.Context, tag string) (int64, error)
	HighWaterMark(ctx context.Context, tag string) (int64, error)
	RaiseSequence(ctx context.Context, tag string, floor int64) error
}

type stores struct {
	registrations registrationStore
	settings      settingsservice.Store
	operators     operatorservice.Store
	audit         audit.Store
	health        httpapi.HealthCheck
	close         func()
}

type application struct {
	Router    http.Handler
	Operators *operatorservice.Service

	closers []func()
}

func (a *application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func openDatabase(ctx context.Context, cfg config.Database, log *slog.Logger) (*sql.DB, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		db, err := platformpostgres.Open(ctx, platformpostgres.Config{DSN: cfg.PostgresDSN}, log)
		if err != nil {
			return nil, err
		}
		if err := platformpostgres.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return db, nil
	case config.DriverSQLite:
		return platformsqlite.Open(ctx, cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("store %q has no database", cfg.Driver)
	}
}

func openStores(ctx context.Context, cfg config.Database, log *slog.Logger) (*stores, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return &stores{
			registrations: registrationmemory.New(),
			settings:      settingsmemory.New(),
			operators:     operatormemory.New(),
			close:         func() {},
		}, nil
	case config.DriverPostgres:
		db, err := openDatabase(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		return &stores{
			registrations: registrationpostgres.New(db),
			settings:      settingspostgres.New(db),
			operators:     operatorpostgres.New(db),
			audit:         auditpostgres.New(db),
			health:        db.PingContext,
			close:         func() { _ = db.Close() },
		}, nil
	case config.DriverSQLite:
		db, err := openDatabase(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		writer := platformsqlite.NewWorker(db)
		return &stores{
			registrations: registrationsqlite.New(db, writer),
			settings:      settingssqlite.New(db, writer),
			operators:     operatorsqlite.New(db, writer),
			audit:         auditsqlite.New(db, writer),
			health:        db.PingContext,
			close: func() {
				writer.Close()
				_ = db.Close()
			},
		}, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// newAuditStore records events in the database store when there is one, in
// process otherwise, and also forwards them to Kafka when brokers are
// configured.
func newAuditStore(ctx context.Context, cfg config.KafkaConfig, local audit.Store, log *slog.Logger) (audit.Store, func(), error) {
	if local == nil {
		local = auditmemory.NewInMemoryStore()
	}
	if len(cfg.Brokers) == 0 {
		return local, func() {}, nil
	}
	client, err := kafka.NewProducer(ctx, kafka.Config{Brokers: cfg.Brokers, Topic: cfg.Topic})
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	store := kafkaaudit.New(local, client, cfg.Topic,
		kafkaaudit.WithLogger(log),
		kafkaaudit.WithBreaker(circuit.New("audit-kafka")),
	)
	return store, func() { closeKafka(client) }, nil
}

func closeKafka(client *kgo.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = client.Flush(ctx)
	client.Close()
}

// newAllocator picks the sequence source. A Redis counter is raised to the
// store's high-water mark for the event year before the first request.
func newAllocator(ctx context.Context, cfg config.Registration, store registrationStore, rdb redis.UniversalClient, log *slog.Logger) (*allocator.Allocator, error) {
	if cfg.Allocator != config.AllocatorRedis {
		return allocator.New(cfg.CodePrefix, allocator.SequenceFunc(store.NextSequence), store), nil
	}
	if rdb == nil {
		return nil, fmt.Errorf("redis allocator requires CHECKIN_REDIS_URL")
	}
	source := allocator.NewRedisSource(rdb)
	alloc := allocator.New(cfg.CodePrefix, source, store)
	if err := alloc.Recover(ctx, cfg.EventYear); err != nil {
		return nil, fmt.Errorf("seed redis sequence: %w", err)
	}
	tag := alloc.Tag(cfg.EventYear)
	current, err := source.Current(ctx, tag)
	if err != nil {
		return nil, fmt.Errorf("read redis sequence: %w", err)
	}
	if log != nil {
		log.InfoContext(ctx, "redis sequence seeded", "tag", tag, "value", current)
	}
	return alloc, nil
}

func build(ctx context.Context, cfg config.Server, log *slog.Logger) (*application, error) {
	app := &application{}
	fail := func(err error) (*application, error) {
		app.Close()
		return nil, err
	}

	st, err := openStores(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, st.close)

	var rdb redis.UniversalClient
	rc, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return fail(err)
	}
	if rc != nil {
		rdb = rc.Client
		app.closers = append(app.closers, func() { _ = rc.Close() })
	}

	auditStore, closeAudit, err := newAuditStore(ctx, cfg.Kafka, st.audit, log)
	if err != nil {
		return fail(err)
	}
	app.closers = append(app.closers, closeAudit)
	auditPublisher := publisher.NewPublisher(auditStore,
		publisher.WithAsyncBuffer(1024),
		publisher.WithLogger(log),
	)
	// Closed before the Kafka client so queued events still reach it.
	app.closers = append(app.closers, auditPublisher.Close)

	dupPolicy, err := policy.New(cfg.Registration.DuplicatePolicy, cfg.Registration.Location)
	if err != nil {
		return fail(err)
	}
	alloc, err := newAllocator(ctx, cfg.Registration, st.registrations, rdb, log)
	if err != nil {
		return fail(err)
	}

	var idem idempotency.Store = idempotency.NewInMemory()
	if rdb != nil {
		idem = idempotency.NewRedis(rdb)
	}

	settings := settingsservice.New(st.settings,
		settingsservice.WithLogger(log),
		settingsservice.WithAuditPublisher(auditPublisher),
	)
	registrations := registrationservice.New(st.registrations, alloc, settings, dupPolicy,
		registrationservice.WithLogger(log),
		registrationservice.WithAuditPublisher(auditPublisher),
		registrationservice.WithMetrics(registrationmetrics.New()),
		registrationservice.WithIdempotencyStore(idem, cfg.Registration.IdempotencyTTL),
		registrationservice.WithEventYear(cfg.Registration.EventYear),
		registrationservice.WithAllocationRetries(cfg.Registration.AllocationRetries),
		registrationservice.WithLookupRetry(cfg.Registration.LookupAttempts, cfg.Registration.LookupDelay),
		registrationservice.WithLocation(cfg.Registration.Location),
	)

	tokens := token.NewService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer, cfg.Auth.TokenTTL)
	app.Operators = operatorservice.New(st.operators, secrets.NewHasher(bcrypt.DefaultCost), tokens,
		operatorservice.WithLogger(log),
		operatorservice.WithAuditPublisher(auditPublisher),
	)

	checks := map[string]httpapi.HealthCheck{}
	if st.health != nil {
		checks["database"] = st.health
	}
	if rc != nil {
		checks["redis"] = rc.Health
	}

	app.Router = httpapi.NewRouter(httpapi.Config{
		Logger:         log,
		Tokens:         tokens,
		Metrics:        metrics.New(),
		RequestTimeout: cfg.RequestTimeout,
		HealthChecks:   checks,
	},
		[]httpapi.RouteGroup{
			registrationhandler.New(registrations, log),
			settingshandler.New(settings, log),
			audithandler.New(auditPublisher, log),
		},
		operatorhandler.New(app.Operators, log),
	)
	return app, nil
}
