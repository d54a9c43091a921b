package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/folio/internal/auth"
	"github.com/fyrsmithlabs/folio/internal/billing"
	"github.com/fyrsmithlabs/folio/internal/blob"
	"github.com/fyrsmithlabs/folio/internal/config"
	"github.com/fyrsmithlabs/folio/internal/events"
	"github.com/fyrsmithlabs/folio/internal/generate"
	apihttp "github.com/fyrsmithlabs/folio/internal/http"
	"github.com/fyrsmithlabs/folio/internal/logging"
	"github.com/fyrsmithlabs/folio/internal/resume"
	"github.com/fyrsmithlabs/folio/internal/store"
	"github.com/fyrsmithlabs/folio/internal/subscription"
	"github.com/fyrsmithlabs/folio/internal/telemetry"
)

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if !cfg.Auth.JWTSecret.IsSet() {
		return errors.New("auth.jwt_secret is required")
	}

	tel, err := telemetry.New(ctx, telemetry.FromObservability(cfg.Observability, version))
	if err != nil {
		return err
	}
	defer func() { _ = tel.Shutdown(context.Background()) }()

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if err := tel.Degraded(); err != nil {
		logger.Warn(ctx, "telemetry degraded", zap.Error(err))
	}
	logger.Info(ctx, "starting foliod",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("telemetry", tel.Enabled()),
	)

	a, err := wire(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- a.server.Start() }()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	logger.Info(shutdownCtx, "server shutdown complete")
	return nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Open applies pending migrations.
	st, err := store.Open(ctx, cfg.Database.Path, store.WithBusyTimeout(cfg.Database.BusyTimeoutMS), store.WithMkdirAll())
	if err != nil {
		return err
	}
	defer st.Close()

	v, err := st.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s is at schema version %d\n", cfg.Database.Path, v)
	return nil
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	lc, err := logging.ConfigFrom(cfg.Observability)
	if err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}
	logger, err := logging.NewLogger(lc, global.GetLoggerProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// app holds the wired service graph.
type app struct {
	server  *apihttp.Server
	closers []func() error
}

// Close releases infrastructure in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

// wire connects infrastructure and builds the services:
//  1. SQLite store (migrations applied on open)
//  2. Photo bucket
//  3. NATS publisher, when configured
//  4. Resume, billing and generation services
//  5. The HTTP server
func wire(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*app, error) {
	a := &app{}
	fail := func(err error) (*app, error) {
		a.Close()
		return nil, err
	}

	st, err := store.Open(ctx, cfg.Database.Path,
		store.WithBusyTimeout(cfg.Database.BusyTimeoutMS),
		store.WithMkdirAll(),
	)
	if err != nil {
		return fail(err)
	}
	a.closers = append(a.closers, st.Close)

	photos, err := blob.Open(ctx, cfg.Storage.BucketURL, cfg.Storage.PublicBaseURL)
	if err != nil {
		return fail(err)
	}
	a.closers = append(a.closers, photos.Close)

	prices := subscription.Prices{
		ProMonthly:     cfg.Billing.PriceProMonthly,
		ProPlusMonthly: cfg.Billing.PriceProPlusMonthly,
	}
	resumeOpts := []resume.ServiceOption{resume.WithLogger(logger.Named("resume"))}
	billingOpts := []billing.Option{billing.WithLogger(logger.Named("billing"))}

	deps := apihttp.Deps{
		Tiers:  subscription.NewResolver(st, prices, nil),
		Photos: photos,
		Ready:  st.Ping,
	}

	if cfg.Events.NATSURL != "" {
		pub, err := events.Connect(cfg.Events.NATSURL, cfg.Events.SubjectPrefix)
		if err != nil {
			return fail(err)
		}
		a.closers = append(a.closers, pub.Close)
		resumeOpts = append(resumeOpts, resume.WithPublisher(pub))
		billingOpts = append(billingOpts, billing.WithPublisher(pub))
		deps.Events = pub
		logger.Info(ctx, "connected to nats", zap.String("url", cfg.Events.NATSURL))
	} else {
		logger.Info(ctx, "event publishing disabled")
	}

	if !cfg.Billing.SecretKey.IsSet() || !cfg.Billing.WebhookSecret.IsSet() {
		logger.Warn(ctx, "billing keys not configured; checkout and webhooks will fail")
	} else {
		logger.Info(ctx, "billing enabled",
			zap.Bool("live_mode", cfg.Billing.SecretKey.LiveMode()),
			logging.Secret("secret_key", cfg.Billing.SecretKey),
		)
	}
	deps.Resumes = resume.NewService(st, photos, resumeOpts...)
	deps.Billing = billing.NewService(billing.Config{
		WebhookSecret: cfg.Billing.WebhookSecret.Value(),
		Prices:        prices,
		BaseURL:       cfg.Server.BaseURL,
	}, billing.NewStripeProvider(cfg.Billing.SecretKey.Value()), st, billingOpts...)

	if cfg.AI.APIKey.IsSet() {
		llm, err := generate.NewOpenAI(cfg.AI)
		if err != nil {
			return fail(err)
		}
		deps.Generator = generate.NewService(llm,
			generate.WithRequestsPerMinute(cfg.AI.RequestsPerMinute),
			generate.WithLogger(logger.Named("generate")),
		)
	} else {
		logger.Info(ctx, "ai generation disabled")
	}

	verifier, err := auth.NewVerifier([]byte(cfg.Auth.JWTSecret.Value()), cfg.Auth.Issuer)
	if err != nil {
		return fail(err)
	}
	deps.Verifier = verifier

	srv, err := apihttp.NewServer(deps, logger, &apihttp.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fail(err)
	}
	a.server = srv
	return a, nil
}
