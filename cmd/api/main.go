package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"ananse-reader/internal/adapters/identity"
	"ananse-reader/internal/app"
	"ananse-reader/internal/infra/config"
	httpinfra "ananse-reader/internal/infra/http"
	applog "ananse-reader/internal/infra/log"
	"ananse-reader/internal/infra/metrics"
	"ananse-reader/internal/infra/tracing"
	"ananse-reader/internal/usecase/bookmarks"
	"ananse-reader/internal/usecase/chapters"
	"ananse-reader/internal/usecase/likes"
	"ananse-reader/internal/usecase/profiles"
	"ananse-reader/internal/usecase/progress"
	"ananse-reader/internal/usecase/settings"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("api: invalid configuration")
	}

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		Insecure:    cfg.Tracing.Insecure,
	}, applog.Component(logger, "tracing"))
	if err != nil {
		logger.Fatal().Err(err).Msg("api: tracing setup failed")
	}

	store, closeStore, err := app.OpenStore(ctx, cfg, applog.Component(logger, "storage"))
	if err != nil {
		logger.Fatal().Err(err).Msg("api: storage unavailable")
	}
	defer closeStore()

	chapterCache, closeCache := app.NewCache(ctx, cfg, applog.Component(logger, "cache"))
	defer closeCache()

	verifier, err := identity.NewVerifier(cfg.Identity.JWKSURL, cfg.IssuerOrDefault(), cfg.Identity.ProjectID,
		identity.WithTimeout(cfg.Identity.Timeout),
		identity.WithLogger(applog.Component(logger, "identity")),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: identity verifier")
	}

	services := httpinfra.Services{
		Chapters: chapters.NewService(store,
			chapters.WithCache(chapterCache, cfg.Cache.TTL),
			chapters.WithLogger(applog.Component(logger, "chapters")),
			chapters.WithBusinessMetrics(store),
			chapters.WithPageRunes(cfg.Reader.PageRunes),
		),
		Profiles:  profiles.NewService(store, store, applog.Component(logger, "profiles")),
		Progress:  progress.NewService(store, store, applog.Component(logger, "progress")),
		Bookmarks: bookmarks.NewService(store),
		Likes:     likes.NewService(store, store, applog.Component(logger, "likes")),
		Settings:  settings.NewService(store),
	}
	server := httpinfra.NewServer(services, verifier,
		httpinfra.WithLogger(applog.Component(logger, "http")),
		httpinfra.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.RequestTimeout),
	)

	if cfg.Metrics.Enabled {
		metrics.StartServer(ctx, applog.Component(logger, "metrics"), cfg.Metrics.Addr)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start(cfg.ListenAddr())
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("api: shutting down")
	case err := <-serveErr:
		if err != nil {
			logger.Error().Err(err).Msg("api: server stopped")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: graceful shutdown failed")
	}
	traceCtx, traceCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer traceCancel()
	if err := shutdownTracing(traceCtx); err != nil {
		logger.Warn().Err(err).Msg("api: tracing shutdown failed")
	}
}
