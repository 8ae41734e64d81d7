package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"infosync/internal/feedback"
	"infosync/internal/inbound"
	"infosync/internal/information/service"
	"infosync/internal/information/store"
	"infosync/internal/platform/config"
	"infosync/internal/platform/database"
	"infosync/internal/platform/kafka"
	"infosync/internal/platform/mail"
	"infosync/internal/platform/metrics"
	"infosync/internal/platform/redis"
	"infosync/internal/platform/servicetoken"
	"infosync/internal/propagation"
	httptransport "infosync/internal/transport/http"
	"infosync/pkg/domain"
	audit "infosync/pkg/platform/audit"
	"infosync/pkg/platform/audit/outbox"
	auditmemory "infosync/pkg/platform/audit/store/memory"
	"infosync/pkg/platform/audit/store/sqlstore"
)

// app is the wired process. workers run for the life of the server; closers
// run in reverse order on shutdown.
type app struct {
	system  domain.System
	deps    httptransport.Deps
	inbound *inbound.Service
	checks  map[string]httptransport.HealthChecker
	workers []func(ctx context.Context) error
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func buildApp(ctx context.Context, cfg *config.Config, log *slog.Logger, reg *prometheus.Registry) (*app, error) {
	a := &app{system: cfg.System(), checks: map[string]httptransport.HealthChecker{}}
	m := metrics.New(reg)
	auditMetrics := audit.NewMetrics(reg)

	repo, auditStore, err := a.openStores(ctx, cfg, log, auditMetrics)
	if err != nil {
		a.close()
		return nil, err
	}
	auditor := audit.NewAuditor(auditStore, a.system, audit.WithLogger(log), audit.WithMetrics(auditMetrics))

	pipeline, err := a.buildPipeline(ctx, cfg, log, m, repo, auditor)
	if err != nil {
		a.close()
		return nil, err
	}

	a.deps = httptransport.Deps{
		System:   a.system,
		Gatherer: reg,
		Checks:   a.checks,
		Logger:   log,
	}
	if secret := cfg.Auth.ServiceTokenSecret; secret != "" {
		a.deps.Tokens = servicetoken.NewValidator(secret, a.system)
	}

	if a.system == domain.SystemHR {
		opts := []service.Option{service.WithLogger(log)}
		if pipeline != nil {
			opts = append(opts, service.WithPropagator(pipeline))
		}
		a.deps.Information = service.New(repo, opts...)
		a.deps.Feedback = feedback.New(repo, auditor, feedback.WithLogger(log), feedback.WithMetrics(m))
		return a, nil
	}

	opts := []inbound.Option{
		inbound.WithLogger(log),
		inbound.WithMetrics(m),
		inbound.WithCompanyName(cfg.Service.CompanyName),
	}
	if cfg.Feedback.Enabled && cfg.Feedback.URL != "" {
		opts = append(opts, inbound.WithFeedback(newClient(cfg, cfg.Feedback.Timeout), cfg.Feedback.URL, cfg.Feedback.Timeout))
	}
	if pipeline != nil {
		opts = append(opts, inbound.WithRelay(pipeline))
	}
	a.inbound = inbound.New(a.system, repo, auditor, opts...)
	a.deps.Upsert = a.inbound
	return a, nil
}

// openStores picks the memory or SQL backend for records and audit entries.
// With SQL and Kafka brokers configured, audit entries also go through the
// outbox relay.
func (a *app) openStores(ctx context.Context, cfg *config.Config, log *slog.Logger, am *audit.Metrics) (store.Repository, audit.Store, error) {
	if cfg.Database.Driver == config.DriverMemory {
		return store.NewInMemoryStore(), auditmemory.NewInMemoryStore(), nil
	}

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	a.closers = append(a.closers, func() { _ = db.Close() })
	a.checks["database"] = db
	if err := db.Migrate(ctx); err != nil {
		return nil, nil, err
	}
	repo := store.NewSQLStore(db.DB, cfg.Database.TxTimeout)

	producer, err := kafka.NewProducer(ctx, cfg.Kafka, log)
	if err != nil {
		return nil, nil, err
	}
	if producer == nil {
		return repo, sqlstore.New(db.DB, sqlstore.WithoutOutbox()), nil
	}
	a.closers = append(a.closers, producer.Close)
	if err := producer.EnsureTopic(ctx, cfg.Kafka.AuditTopic, cfg.Kafka.Partitions, cfg.Kafka.ReplicationFactor); err != nil {
		return nil, nil, err
	}

	auditStore := sqlstore.New(db.DB)
	relay := outbox.New(auditStore, producer, cfg.Kafka.AuditTopic,
		outbox.WithLogger(log),
		outbox.WithMetrics(am),
		outbox.WithBatchSize(cfg.Kafka.BatchSize),
		outbox.WithInterval(cfg.Kafka.RelayInterval),
	)
	a.workers = append(a.workers, relay.Run)
	return repo, auditStore, nil
}

// buildPipeline returns nil when this process has nowhere to dispatch to.
func (a *app) buildPipeline(ctx context.Context, cfg *config.Config, log *slog.Logger, m *metrics.Metrics, repo store.Repository, auditor *audit.Auditor) (*propagation.Pipeline, error) {
	active := cfg.ActiveDestinations()
	if len(active) == 0 {
		return nil, nil
	}
	destinations := propagation.DestinationsFrom(active)
	if a.system != domain.SystemHR {
		// Copies carry no insurer link, so a relay cannot gate on one.
		for i := range destinations {
			destinations[i].RequiresInsurer = false
		}
	}

	composer, err := propagation.NewComposer(repo, auditor,
		propagation.WithMailer(mail.New(cfg.SMTP, log)),
		propagation.WithComposerLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("building composer: %w", err)
	}

	dispatchOpts := []propagation.DispatcherOption{
		propagation.WithDispatcherLogger(log),
		propagation.WithDispatcherMetrics(m),
		propagation.WithRetry(cfg.Dispatch.MaxAttempts, cfg.Dispatch.BackoffInitial, cfg.Dispatch.BackoffMax),
	}
	if !cfg.Dispatch.Parallel {
		dispatchOpts = append(dispatchOpts, propagation.WithSequential())
	}
	dispatcher := propagation.NewDispatcher(newClient(cfg, cfg.Dispatch.Timeout), destinations, repo, auditor, dispatchOpts...)

	pipelineOpts := []propagation.PipelineOption{
		propagation.WithPipelineLogger(log),
		propagation.WithPipelineMetrics(m),
	}
	switch cfg.Dispatch.Mode {
	case config.ModeAsync:
		q := propagation.NewAsyncQueue(dispatcher.Handle, cfg.Dispatch.Workers, cfg.Dispatch.QueueSize, log, m)
		a.workers = append(a.workers, func(ctx context.Context) error {
			q.Start(ctx)
			<-ctx.Done()
			q.Close()
			return nil
		})
		pipelineOpts = append(pipelineOpts, propagation.WithQueue(q))
	case config.ModeRedis:
		client, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		a.checks["redis"] = client
		q := propagation.NewRedisQueue(client.Client, cfg.Dispatch.QueueKey, dispatcher.Handle, log)
		for range max(cfg.Dispatch.Workers, 1) {
			a.workers = append(a.workers, q.Run)
		}
		pipelineOpts = append(pipelineOpts, propagation.WithQueue(q))
	}

	log.InfoContext(ctx, "propagation enabled",
		"mode", cfg.Dispatch.Mode,
		"destinations", len(destinations),
		"max_attempts", cfg.Dispatch.MaxAttempts,
	)
	return propagation.NewPipeline(composer, dispatcher, auditor, pipelineOpts...), nil
}

func newClient(cfg *config.Config, timeout time.Duration) *propagation.Client {
	var opts []propagation.ClientOption
	if secret := cfg.Auth.ServiceTokenSecret; secret != "" {
		opts = append(opts, propagation.WithTokenSigner(servicetoken.NewSigner(secret, cfg.System(), cfg.Auth.TokenTTL)))
	}
	return propagation.NewClient(timeout, opts...)
}
