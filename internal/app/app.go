// Package app assembles the mint engine and its adapters from configuration.
// The server and the operator tools share it so they run the same wiring.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/storage"

	"mintgate/internal/mint/events"
	"mintgate/internal/mint/metadata"
	"mintgate/internal/mint/metrics"
	"mintgate/internal/mint/models"
	"mintgate/internal/mint/phase"
	"mintgate/internal/mint/ports"
	"mintgate/internal/mint/provider"
	"mintgate/internal/mint/reconcile"
	"mintgate/internal/mint/service"
	"mintgate/internal/mint/store"
	"mintgate/internal/platform/config"
	"mintgate/internal/platform/database"
	"mintgate/internal/platform/kafka/producer"
	redisclient "mintgate/internal/platform/redis"
	rlmetrics "mintgate/internal/ratelimit/metrics"
	rlmiddleware "mintgate/internal/ratelimit/middleware"
	rlmodels "mintgate/internal/ratelimit/models"
	"mintgate/internal/ratelimit/store/bucket"
	"mintgate/migrations"
	"mintgate/pkg/platform/circuit"
)

// reconcileLeaseKey names the Redis lease that elects the polling instance.
const reconcileLeaseKey = "mintgate:reconcile:lease"

const rateLimitPrefix = "mintgate:ratelimit:"

// App holds the long-lived components. Close releases them in reverse order.
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
	Phases     []models.Phase
	Store      ports.Store
	Tx         ports.TxRunner
	Provider   *provider.Client
	Service    *service.Service
	Reconciler *reconcile.Reconciler
	Worker     *reconcile.Worker
	DB         *database.Pool
	Redis      *redisclient.Client
	Kafka      *producer.Producer

	closers []func() error
}

// Build loads the phase schedule, connects the configured backends and wires
// the engine. An invalid schedule or unreachable backend is an error.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*App, error) {
	a := &App{Config: cfg, Logger: logger, Metrics: m}
	if err := a.build(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config

	phases, err := phase.LoadFile(cfg.PhasesFile)
	if err != nil {
		return err
	}
	a.Phases = phases

	if cfg.Provider.APIKeySecret != "" {
		secrets, err := config.NewSecretManager(ctx)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, secrets.Close)
		if err := cfg.ResolveProviderAPIKey(ctx, secrets); err != nil {
			return err
		}
	} else if err := cfg.ResolveProviderAPIKey(ctx, nil); err != nil {
		return err
	}

	if err := a.buildStore(ctx); err != nil {
		return err
	}

	a.Redis, err = redisclient.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if a.Redis != nil {
		a.closers = append(a.closers, a.Redis.Close)
	}

	publisher, err := a.buildEvents()
	if err != nil {
		return err
	}
	source, err := a.buildMetadata(ctx)
	if err != nil {
		return err
	}

	a.Provider = provider.New(provider.Config{
		BaseURL:   cfg.Provider.APIURL,
		APIKey:    cfg.Provider.APIKey,
		ChainName: cfg.ChainName,
		Timeout:   cfg.Provider.Timeout,
	},
		provider.WithBreaker(circuit.New("immutable",
			circuit.WithFailureThreshold(cfg.Provider.BreakerThreshold),
			circuit.WithCooldown(cfg.Provider.BreakerCooldown),
		)),
		provider.WithLogger(a.Logger),
		provider.WithMetrics(a.Metrics),
	)

	a.Service, err = service.New(a.Store, a.Tx, a.Provider, service.Config{
		ChainName:                     cfg.ChainName,
		CollectionAddress:             cfg.CollectionAddress,
		Phases:                        phases,
		MaxTokenSupplyAcrossAllPhases: cfg.MaxTokenSupplyAcrossAllPhases,
	},
		service.WithLogger(a.Logger),
		service.WithMetrics(a.Metrics),
		service.WithMetadataSource(source),
		service.WithEventPublisher(publisher),
		service.WithSubmitTimeout(cfg.Provider.SubmitTimeout),
	)
	if err != nil {
		return err
	}

	a.Reconciler = reconcile.New(a.Tx, phases,
		reconcile.WithLogger(a.Logger),
		reconcile.WithMetrics(a.Metrics),
		reconcile.WithEventPublisher(publisher),
	)

	opts := []reconcile.WorkerOption{
		reconcile.WithInterval(cfg.Reconcile.Interval),
		reconcile.WithBatchSize(cfg.Reconcile.BatchSize),
		reconcile.WithConcurrency(cfg.Reconcile.Concurrency),
		reconcile.WithCallTimeout(cfg.Reconcile.CallTimeout),
		reconcile.WithMinAge(cfg.Reconcile.MinAge),
		reconcile.WithPendingExpiry(cfg.Reconcile.PendingExpiry),
		reconcile.WithWorkerLogger(a.Logger),
		reconcile.WithWorkerMetrics(a.Metrics),
	}
	if cfg.Reconcile.Resubmit {
		opts = append(opts, reconcile.WithSubmitter(a.Service))
	}
	if a.Redis != nil {
		opts = append(opts, reconcile.WithLease(redisclient.NewLease(a.Redis, reconcileLeaseKey)))
	}
	a.Worker = reconcile.NewWorker(a.Reconciler, a.Store, a.Provider, opts...)
	return nil
}

func (a *App) buildStore(ctx context.Context) error {
	pool, err := database.New(ctx, a.Config.Database)
	if err != nil {
		return err
	}
	if pool == nil {
		a.Logger.WarnContext(ctx, "DATABASE_URL not set, using the in-memory ledger")
		mem := store.NewMemory()
		a.Store, a.Tx = mem, mem
		return nil
	}
	a.DB = pool
	a.closers = append(a.closers, pool.Close)
	if a.Config.Database.AutoMigrate {
		applied, err := pool.Migrate(ctx, migrations.FS)
		if err != nil {
			return err
		}
		a.Logger.InfoContext(ctx, "database schema up to date", "applied", applied)
	}
	pg := store.NewPostgres(pool.DB(), store.WithTxTimeout(a.Config.Database.TxTimeout))
	a.Store, a.Tx = pg, pg
	return nil
}

func (a *App) buildEvents() (ports.EventPublisher, error) {
	kc := a.Config.Kafka
	if kc.Brokers == "" {
		return events.Noop{}, nil
	}
	p, err := producer.New(producer.Config{
		Brokers:         kc.Brokers,
		ClientID:        kc.ClientID,
		Acks:            kc.Acks,
		Retries:         kc.Retries,
		DeliveryTimeout: kc.DeliveryTimeout,
		ProduceTimeout:  kc.ProduceTimeout,
	}, a.Logger)
	if err != nil {
		return nil, err
	}
	a.Kafka = p
	a.closers = append(a.closers, p.Close)
	return events.NewKafka(p, kc.Topic), nil
}

func (a *App) buildMetadata(ctx context.Context) (ports.MetadataSource, error) {
	mc := a.Config.Metadata
	if mc.Bucket == "" {
		return metadata.NewDir(mc.Dir), nil
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	a.closers = append(a.closers, client.Close)
	return metadata.NewGCS(client, mc.Bucket, mc.Prefix), nil
}

// Close releases every backend that Build opened.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// RateLimiter builds the per-IP limiter for the HTTP surface. It counts in
// Redis when configured so every instance shares one budget.
func (a *App) RateLimiter(m *rlmetrics.Metrics) *rlmiddleware.Middleware {
	cfg := a.Config.RateLimit
	var st rlmiddleware.Store = bucket.NewInMemoryBucketStore()
	if a.Redis != nil {
		st = bucket.NewRedisStore(a.Redis, rateLimitPrefix)
	}
	return rlmiddleware.New(st,
		rlmiddleware.WithDisabled(!cfg.Enabled),
		rlmiddleware.WithLimit(rlmodels.ClassMint, cfg.MintRequests, cfg.Window),
		rlmiddleware.WithLimit(rlmodels.ClassRead, cfg.ReadRequests, cfg.Window),
		rlmiddleware.WithLogger(a.Logger),
		rlmiddleware.WithMetrics(m),
	)
}
