package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"mintgate/internal/app"
	"mintgate/internal/identity/passport"
	"mintgate/internal/identity/wallet"
	"mintgate/internal/mint/handler"
	"mintgate/internal/mint/metrics"
	"mintgate/internal/mint/phase"
	"mintgate/internal/platform/config"
	"mintgate/internal/platform/health"
	"mintgate/internal/platform/httpserver"
	"mintgate/internal/platform/logger"
	redisclient "mintgate/internal/platform/redis"
	rlmetrics "mintgate/internal/ratelimit/metrics"
	rlmodels "mintgate/internal/ratelimit/models"
	httptransport "mintgate/internal/transport/http"
	"mintgate/internal/webhook"
	"mintgate/internal/webhook/sns"
)

const shutdownTimeout = 10 * time.Second

// main wires high-level dependencies, exposes the HTTP router, and runs the
// reconciliation worker next to it. Business logic lives in internal packages.
func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.New("error", "json").Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("initializing mintgate",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
		"chain", cfg.ChainName,
		"collection", cfg.CollectionAddress,
	)

	a, err := app.Build(ctx, cfg, log, metrics.New())
	if err != nil {
		log.Error("failed to initialise", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("failed to release resources", "error", err)
		}
	}()
	log.Info("loaded mint phases", "count", len(a.Phases))

	passportVerifier, err := passport.NewFromJWKS(ctx, cfg.Passport.JWKSURL,
		passport.WithIssuer(cfg.Passport.Issuer),
		passport.WithAudience(cfg.Passport.Audience),
	)
	if err != nil {
		log.Error("failed to load passport keys", "error", err)
		os.Exit(1)
	}

	webhookOpts := []webhook.Option{webhook.WithLogger(log), webhook.WithMetrics(a.Metrics)}
	if a.Redis != nil {
		webhookOpts = append(webhookOpts, webhook.WithDeduplicator(
			redisclient.NewDeduplicator(a.Redis, "mintgate:sns:", cfg.Webhook.DedupTTL)))
	}

	healthHandler := health.New(cfg.Environment, health.WithActivePhase(func(now time.Time) string {
		active, _, _ := phase.Active(now, a.Phases)
		return active.Name
	}))
	if a.DB != nil {
		healthHandler.RegisterCheck("database", a.DB.Health)
	}
	if a.Redis != nil {
		healthHandler.RegisterOptionalCheck("redis", a.Redis.Health)
	}
	if a.Kafka != nil {
		healthHandler.RegisterOptionalCheck("kafka", func(ctx context.Context) error {
			if !a.Kafka.Healthy(ctx) {
				return errors.New("no reachable broker")
			}
			return nil
		})
	}
	healthHandler.RegisterOptionalCheck("minting_api", func(context.Context) error {
		if !a.Provider.Available() {
			return errors.New("circuit open")
		}
		return nil
	})

	limiter := a.RateLimiter(rlmetrics.New())
	mintHandler := handler.New(a.Service, wallet.NewVerifier(cfg.EOAMintMessage), passportVerifier, log,
		handler.WithRateLimits(limiter.RateLimit(rlmodels.ClassMint), limiter.RateLimit(rlmodels.ClassRead)),
	)

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Logger:         log,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	},
		healthHandler,
		mintHandler,
		webhook.New(sns.NewVerifier(cfg.Webhook.AllowedTopicARN), a.Reconciler, webhookOpts...),
	)
	srv := httpserver.New(cfg.Addr, router, httpserver.WithTimeouts(cfg.HTTPReadTimeout, cfg.HTTPWriteTimeout))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.Reconcile.Enabled {
		g.Go(func() error {
			log.Info("starting reconciliation worker", "interval", cfg.Reconcile.Interval)
			return a.Worker.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
