package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectBackends(t *testing.T) {
	assert.IsType(t, noopProvider{}, Select(""))
	assert.IsType(t, noopProvider{}, Select("noop"))
	assert.IsType(t, &PrometheusProvider{}, Select("prometheus"))
	assert.IsType(t, &PrometheusProvider{}, Select("anything-else"))
	assert.IsType(t, &otelProvider{}, Select("otel"))
}

func TestPrometheusCountersAndGauges(t *testing.T) {
	p := NewPrometheusProvider(PrometheusProviderOptions{})
	c := p.NewCounter(CounterOpts{CommonOpts: CommonOpts{
		Namespace: "veristate", Subsystem: "checker", Name: "generated_total", Help: "test"}})
	c.Inc(3)
	c.Inc(-1) // ignored
	g := p.NewGauge(GaugeOpts{CommonOpts: CommonOpts{
		Namespace: "veristate", Subsystem: "checker", Name: "unique_states", Help: "test"}})
	g.Set(42)

	srv := httptest.NewServer(p.MetricsHandler())
	defer srv.Close()
	res, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	text := string(body)
	assert.Contains(t, text, "veristate_checker_generated_total 3")
	assert.Contains(t, text, "veristate_checker_unique_states 42")

	require.NoError(t, p.Health(context.Background()))
}

func TestPrometheusRejectsInvalidNames(t *testing.T) {
	p := NewPrometheusProvider(PrometheusProviderOptions{})
	c := p.NewCounter(CounterOpts{CommonOpts: CommonOpts{Name: "bad name!"}})
	c.Inc(1) // must not panic; instrument is a noop
	assert.Error(t, p.Health(context.Background()))
}

func TestPrometheusReregistrationReturnsSameCollector(t *testing.T) {
	p := NewPrometheusProvider(PrometheusProviderOptions{})
	opts := CounterOpts{CommonOpts: CommonOpts{Namespace: "veristate", Name: "dups_total", Help: "test"}}
	a := p.NewCounter(opts)
	b := p.NewCounter(opts)
	a.Inc(1)
	b.Inc(1)

	srv := httptest.NewServer(p.MetricsHandler())
	defer srv.Close()
	res, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	assert.Contains(t, string(body), "veristate_dups_total 2")
}

func TestOTelProviderInstrumentsDoNotPanic(t *testing.T) {
	p := NewOTelProvider(OTelProviderOptions{})
	c := p.NewCounter(CounterOpts{CommonOpts: CommonOpts{Namespace: "veristate", Name: "generated_total"}})
	c.Inc(1, "extra-label-value")
	g := p.NewGauge(GaugeOpts{CommonOpts: CommonOpts{Namespace: "veristate", Name: "unique_states", Labels: []string{"mode"}}})
	g.Set(10, "bfs")
	g.Set(4, "bfs")
	g.Add(1, "bfs")
	h := p.NewHistogram(HistogramOpts{CommonOpts: CommonOpts{Namespace: "veristate", Name: "depth"}})
	h.Observe(3)
	require.NoError(t, p.Health(context.Background()))
}

func TestBuildNames(t *testing.T) {
	fq, err := buildFQName(CommonOpts{Namespace: "a", Subsystem: "b", Name: "c"})
	require.NoError(t, err)
	assert.Equal(t, "a_b_c", fq)
	assert.Equal(t, "a.b.c", buildOTelName(CommonOpts{Namespace: "a", Subsystem: "b", Name: "c"}))
	assert.True(t, strings.HasPrefix(buildOTelName(CommonOpts{Namespace: "a", Name: "c"}), "a."))
}
