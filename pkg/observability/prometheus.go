package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// metricsPath is where the scrape endpoint is mounted.
const metricsPath = "/metrics"

// readHeaderTimeout bounds slow clients of the metrics server.
const readHeaderTimeout = 5 * time.Second

// newPrometheusReader creates an OTel reader backed by a private Prometheus
// registry and the handler that serves it. Each call uses its own registry so
// repeated initialization does not collide.
func newPrometheusReader() (sdkmetric.Reader, http.Handler, error) {
	registry := prometheus.NewRegistry()

	exporter, err := promexporter.New(
		promexporter.WithRegisterer(registry),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	return exporter, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}

// MetricsServer serves the Prometheus scrape endpoint in the background.
type MetricsServer struct {
	server   *http.Server
	listener net.Listener
	done     chan error
}

// ServeMetrics starts serving handler on addr under /metrics. Use Addr to
// learn the bound address when addr has port 0.
func ServeMetrics(addr string, handler http.Handler, logger *slog.Logger) (*MetricsServer, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle(metricsPath, handler)

	ms := &MetricsServer{
		server:   &http.Server{Handler: mux, ReadHeaderTimeout: readHeaderTimeout},
		listener: listener,
		done:     make(chan error, 1),
	}

	go func() {
		serveErr := ms.server.Serve(listener)
		if errors.Is(serveErr, http.ErrServerClosed) {
			serveErr = nil
		}

		if serveErr != nil && logger != nil {
			logger.Error("metrics server stopped", "error", serveErr)
		}

		ms.done <- serveErr
	}()

	return ms, nil
}

// Addr returns the address the server listens on.
func (ms *MetricsServer) Addr() string {
	return ms.listener.Addr().String()
}

// Shutdown stops the server and waits for it to exit.
func (ms *MetricsServer) Shutdown(ctx context.Context) error {
	err := ms.server.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("shutdown metrics server: %w", err)
	}

	return <-ms.done
}
