package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

// instrumentationName names the tracer and the meter.
const instrumentationName = "bisector"

// Providers holds what a run needs to report about itself.
type Providers struct {
	Tracer trace.Tracer
	Meter  metric.Meter
	Logger *slog.Logger

	// MetricsHandler serves the Prometheus scrape endpoint. Nil unless
	// Config.Prometheus is set.
	MetricsHandler http.Handler

	// Shutdown flushes exporters within Config.ShutdownTimeout. Call it once
	// the run has finished; later calls are no-ops.
	Shutdown func(ctx context.Context) error
}

// Init builds the logger and, when an OTLP endpoint or Prometheus is
// configured, SDK tracer and meter providers. Otherwise tracing and metrics
// are no-ops, which is the normal case for a local bisection.
func Init(cfg Config) (Providers, error) {
	ctx := context.Background()
	target := otlpTarget{endpoint: cfg.OTLPEndpoint, headers: cfg.OTLPHeaders, insecure: cfg.OTLPInsecure}

	var stack shutdownStack

	providers := Providers{
		Tracer: nooptrace.NewTracerProvider().Tracer(instrumentationName),
		Meter:  noopmetric.NewMeterProvider().Meter(instrumentationName),
		Logger: NewLogger(cfg),
	}

	if target.enabled() || cfg.Prometheus {
		res := resource.NewWithAttributes(semconv.SchemaURL, resourceAttributes(cfg)...)

		if target.enabled() {
			tp, err := newTracerProvider(ctx, target, res, cfg.SampleRatio)
			if err != nil {
				return Providers{}, err
			}

			stack.push(tp.Shutdown)
			providers.Tracer = tp.Tracer(instrumentationName)
		}

		mp, handler, err := newMeterProvider(ctx, target, cfg.Prometheus, res)
		if err != nil {
			return Providers{}, errors.Join(err, stack.unwind(ctx))
		}

		stack.push(mp.Shutdown)
		providers.Meter = mp.Meter(instrumentationName)
		providers.MetricsHandler = handler
	}

	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}

	providers.Shutdown = func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		return stack.unwind(ctx)
	}

	return providers, nil
}

func resourceAttributes(cfg Config) []attribute.KeyValue {
	name := cfg.ServiceName
	if name == "" {
		name = defaultServiceName
	}

	attrs := []attribute.KeyValue{semconv.ServiceName(name)}

	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.ServiceVersion))
	}

	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(cfg.Environment))
	}

	return attrs
}

// otlpTarget is the collector both exporters send to.
type otlpTarget struct {
	endpoint string
	headers  map[string]string
	insecure bool
}

func (t otlpTarget) enabled() bool {
	return t.endpoint != ""
}

func (t otlpTarget) traceOptions() []otlptracegrpc.Option {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(t.endpoint)}
	if t.insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	if len(t.headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(t.headers))
	}

	return opts
}

func (t otlpTarget) metricOptions() []otlpmetricgrpc.Option {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(t.endpoint)}
	if t.insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	if len(t.headers) > 0 {
		opts = append(opts, otlpmetricgrpc.WithHeaders(t.headers))
	}

	return opts
}

func newTracerProvider(
	ctx context.Context, target otlpTarget, res *resource.Resource, ratio float64,
) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracegrpc.New(ctx, target.traceOptions()...)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	// One run is one trace, so sampling decides per run.
	sampler := sdktrace.AlwaysSample()
	if ratio > 0 && ratio < 1 {
		sampler = sdktrace.TraceIDRatioBased(ratio)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	), nil
}

func newMeterProvider(
	ctx context.Context, target otlpTarget, prometheus bool, res *resource.Resource,
) (*sdkmetric.MeterProvider, http.Handler, error) {
	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	var handler http.Handler

	if prometheus {
		reader, promHandler, err := newPrometheusReader()
		if err != nil {
			return nil, nil, err
		}

		opts = append(opts, sdkmetric.WithReader(reader))
		handler = promHandler
	}

	if target.enabled() {
		exporter, err := otlpmetricgrpc.New(ctx, target.metricOptions()...)
		if err != nil {
			return nil, nil, fmt.Errorf("create metric exporter: %w", err)
		}

		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)))
	}

	return sdkmetric.NewMeterProvider(opts...), handler, nil
}

// shutdownStack releases providers in reverse order of creation.
type shutdownStack []func(context.Context) error

func (s *shutdownStack) push(fn func(context.Context) error) {
	*s = append(*s, fn)
}

func (s *shutdownStack) unwind(ctx context.Context) error {
	var errs []error

	for i := len(*s) - 1; i >= 0; i-- {
		errs = append(errs, (*s)[i](ctx))
	}

	*s = nil

	return errors.Join(errs...)
}

// ParseOTLPHeaders parses "key=value,key=value". Pairs without "=" are
// skipped; nil is returned when nothing is left.
func ParseOTLPHeaders(raw string) map[string]string {
	var headers map[string]string

	for pair := range strings.SplitSeq(raw, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}

		if headers == nil {
			headers = make(map[string]string)
		}

		headers[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	return headers
}
