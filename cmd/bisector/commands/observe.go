package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/Sumatoshi-tech/bisector/pkg/config"
	"github.com/Sumatoshi-tech/bisector/pkg/observability"
	"github.com/Sumatoshi-tech/bisector/pkg/version"
)

func observabilityConfig(cfg *config.Config, logOutput io.Writer) (observability.Config, error) {
	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	obsCfg.Environment = cfg.Observability.Environment
	obsCfg.OTLPEndpoint = cfg.Observability.OTLPEndpoint
	obsCfg.OTLPHeaders = observability.ParseOTLPHeaders(cfg.Observability.OTLPHeaders)
	obsCfg.OTLPInsecure = cfg.Observability.OTLPInsecure
	obsCfg.SampleRatio = cfg.Observability.SampleRatio
	obsCfg.Prometheus = cfg.Observability.MetricsAddr != ""
	obsCfg.LogJSON = cfg.Logging.JSON
	obsCfg.LogOutput = logOutput

	var level slog.Level

	err := level.UnmarshalText([]byte(cfg.Logging.Level))
	if err != nil {
		return observability.Config{}, fmt.Errorf("%w: logging.level: %w", config.ErrInvalidConfig, err)
	}

	if cfg.Logging.Verbose {
		level = slog.LevelDebug
	}

	obsCfg.LogLevel = level

	return obsCfg, nil
}

func initObservability(cfg *config.Config, logOutput io.Writer) (observability.Providers, error) {
	obsCfg, err := observabilityConfig(cfg, logOutput)
	if err != nil {
		return observability.Providers{}, err
	}

	return observability.Init(obsCfg)
}

// serveMetrics starts the scrape endpoint when one is configured and returns
// the function that stops it.
func serveMetrics(cfg *config.Config, providers observability.Providers) (func(), error) {
	if cfg.Observability.MetricsAddr == "" || providers.MetricsHandler == nil {
		return func() {}, nil
	}

	server, err := observability.ServeMetrics(cfg.Observability.MetricsAddr, providers.MetricsHandler, providers.Logger)
	if err != nil {
		return nil, err
	}

	providers.Logger.Info("serving metrics", "addr", server.Addr())

	return func() {
		shutdownErr := server.Shutdown(context.Background())
		if shutdownErr != nil {
			providers.Logger.Warn("metrics server shutdown failed", "error", shutdownErr)
		}
	}, nil
}
