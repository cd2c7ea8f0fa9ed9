package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of API requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	HTTPRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Number of API requests",
	}, []string{"method", "route", "status"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Duration of outgoing network requests",
		Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Number of outgoing network requests",
	}, []string{"component", "operation", "target", "status"})

	ProgressWritesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reader_progress_writes_total",
		Help: "Reading progress upserts by completion state",
	}, []string{"completed"})

	LikeTogglesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reader_like_toggles_total",
		Help: "Like toggles by resulting state",
	}, []string{"liked"})

	ChaptersPublishedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reader_chapters_published_total",
		Help: "Chapters that became visible to readers",
	})

	TokenVerifyFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "identity_token_verify_failures_total",
		Help: "Rejected identity tokens by reason",
	}, []string{"reason"})

	CacheLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_lookups_total",
		Help: "Cache lookups by backend and result",
	}, []string{"backend", "result"})
)

// MustRegister registers every collector of the package.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		HTTPRequestDuration,
		HTTPRequestTotal,
		NetworkRequestDuration,
		NetworkRequestTotal,
		ProgressWritesTotal,
		LikeTogglesTotal,
		ChaptersPublishedTotal,
		TokenVerifyFailures,
		CacheLookupsTotal,
	)
}

// StartServer serves /metrics on addr until ctx is cancelled.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest records duration and outcome of an outgoing call.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveHTTPRequest records one served API request. route is the chi pattern, not the raw path.
func ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	code := strconv.Itoa(status)
	HTTPRequestDuration.WithLabelValues(method, route, code).Observe(duration.Seconds())
	HTTPRequestTotal.WithLabelValues(method, route, code).Inc()
}

func IncProgressWrite(completed bool) {
	ProgressWritesTotal.WithLabelValues(strconv.FormatBool(completed)).Inc()
}

func IncLikeToggle(liked bool) {
	LikeTogglesTotal.WithLabelValues(strconv.FormatBool(liked)).Inc()
}

func IncChapterPublished() {
	ChaptersPublishedTotal.Inc()
}

func IncTokenVerifyFailure(reason string) {
	TokenVerifyFailures.WithLabelValues(reason).Inc()
}

// ObserveCacheLookup counts a hit or a miss for the given backend.
func ObserveCacheLookup(backend string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookupsTotal.WithLabelValues(backend, result).Inc()
}
