package cli

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/colthorp/pumpcache-go/internal/cache"
	"github.com/colthorp/pumpcache-go/internal/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// metricsHandler serves cache statistics alongside Go runtime and process metrics.
func metricsHandler(cfg core.MetricsConfig, registry *cache.Registry) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(cache.NewCollector(registry, cfg.Namespace))

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	return mux
}

// startMetricsServer serves metrics in the background. Failures are logged, not fatal.
func startMetricsServer(cfg core.MetricsConfig, registry *cache.Registry, logger zerolog.Logger) *http.Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      metricsHandler(cfg, registry),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Str("path", cfg.Path).Msg("serving metrics")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()

	return srv
}

// stopMetricsServer shuts srv down, logging any failure.
func stopMetricsServer(ctx context.Context, srv *http.Server, logger zerolog.Logger) {
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("metrics server shutdown failed")
	}
}
