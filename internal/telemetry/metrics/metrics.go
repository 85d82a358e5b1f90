// Package metrics provides the minimal metrics provider contract used by the
// checker and explorer. Backend selection happens once, at construction: a
// Prometheus registry, an OpenTelemetry meter, or a noop provider for runs
// that do not report.
package metrics

import "context"

// Provider constructs instruments.
type Provider interface {
	NewCounter(opts CounterOpts) Counter
	NewGauge(opts GaugeOpts) Gauge
	NewHistogram(opts HistogramOpts) Histogram
	Health(ctx context.Context) error
}

type Counter interface{ Inc(delta float64, labels ...string) }

type Gauge interface {
	Set(v float64, labels ...string)
	Add(delta float64, labels ...string)
}

type Histogram interface{ Observe(v float64, labels ...string) }

// CommonOpts names an instrument. Namespace and Subsystem compose with Name
// per backend convention (underscores for Prometheus, dots for OTel).
type CommonOpts struct {
	Namespace, Subsystem, Name, Help string
	Labels                           []string
}

type CounterOpts struct{ CommonOpts }
type GaugeOpts struct{ CommonOpts }
type HistogramOpts struct {
	CommonOpts
	Buckets []float64
}

// Select returns a provider for a backend name. Unknown names fall back to
// Prometheus; empty selects noop so embedding a checker stays zero-config.
func Select(backend string) Provider {
	switch backend {
	case "":
		return NewNoopProvider()
	case "noop":
		return NewNoopProvider()
	case "otel", "opentelemetry":
		return NewOTelProvider(OTelProviderOptions{})
	default:
		return NewPrometheusProvider(PrometheusProviderOptions{})
	}
}

type noopProvider struct{}
type noopCounter struct{}
type noopGauge struct{}
type noopHistogram struct{}

// NewNoopProvider returns a provider whose instruments discard everything.
func NewNoopProvider() Provider { return noopProvider{} }

func (noopProvider) NewCounter(CounterOpts) Counter       { return noopCounter{} }
func (noopProvider) NewGauge(GaugeOpts) Gauge             { return noopGauge{} }
func (noopProvider) NewHistogram(HistogramOpts) Histogram { return noopHistogram{} }
func (noopProvider) Health(context.Context) error         { return nil }
func (noopCounter) Inc(float64, ...string)                {}
func (noopGauge) Set(float64, ...string)                  {}
func (noopGauge) Add(float64, ...string)                  {}
func (noopHistogram) Observe(float64, ...string)          {}
