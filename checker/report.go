package checker

import (
	"fmt"
	"io"
	"sort"
	"time"

	"veristate/fingerprint"
)

// ReportData is one progress sample.
type ReportData struct {
	TotalStates  int
	UniqueStates int
	MaxDepth     int
	Duration     time.Duration
	Done         bool
}

// DiscoveryClassification says whether a discovery refutes or witnesses its
// property.
type DiscoveryClassification string

const (
	// Counterexample refutes an always or eventually property.
	Counterexample DiscoveryClassification = "counterexample"
	// Example witnesses a sometimes property.
	Example DiscoveryClassification = "example"
)

// Classification maps an expectation to its discovery kind.
func (e Expectation) Classification() DiscoveryClassification {
	if e == SometimesExpectation {
		return Example
	}
	return Counterexample
}

// DiscoveryReport pairs a discovery with its classification.
type DiscoveryReport[S fingerprint.Hasher, A any] struct {
	Name           string
	Classification DiscoveryClassification
	Path           Path[S, A]
}

// Reporter receives progress while checking and the discoveries at the end.
type Reporter[S fingerprint.Hasher, A any] interface {
	ReportChecking(data ReportData)
	ReportDiscoveries(discoveries []DiscoveryReport[S, A])
}

// WriteReporter prints progress lines to a writer.
type WriteReporter[S fingerprint.Hasher, A any] struct {
	W io.Writer
}

func (r WriteReporter[S, A]) ReportChecking(data ReportData) {
	if data.Done {
		fmt.Fprintf(r.W, "Done. states=%d, unique=%d, sec=%d\n",
			data.TotalStates, data.UniqueStates, int(data.Duration.Seconds()))
		return
	}
	fmt.Fprintf(r.W, "Checking. states=%d, unique=%d\n", data.TotalStates, data.UniqueStates)
}

func (r WriteReporter[S, A]) ReportDiscoveries(discoveries []DiscoveryReport[S, A]) {
	for _, d := range discoveries {
		fmt.Fprintf(r.W, "Discovered %q %s\n%s", d.Name, d.Classification, d.Path)
	}
}

// Report blocks until checking completes, emitting a progress sample to the
// reporter once per interval and the discoveries at the end.
func Report[S fingerprint.Hasher, A any](c Checker[S, A], r Reporter[S, A], interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	start := time.Now()
	for !c.IsDone() {
		r.ReportChecking(ReportData{
			TotalStates:  c.StateCount(),
			UniqueStates: c.UniqueStateCount(),
			MaxDepth:     c.MaxDepth(),
			Duration:     time.Since(start),
		})
		time.Sleep(interval)
	}
	_ = c.Join()
	r.ReportChecking(ReportData{
		TotalStates:  c.StateCount(),
		UniqueStates: c.UniqueStateCount(),
		MaxDepth:     c.MaxDepth(),
		Duration:     time.Since(start),
		Done:         true,
	})

	byName := c.Discoveries()
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	expectations := make(map[string]Expectation, len(byName))
	for _, p := range c.Model().Properties() {
		expectations[p.Name] = p.Expectation
	}
	reports := make([]DiscoveryReport[S, A], 0, len(names))
	for _, name := range names {
		reports = append(reports, DiscoveryReport[S, A]{
			Name:           name,
			Classification: expectations[name].Classification(),
			Path:           byName[name],
		})
	}
	r.ReportDiscoveries(reports)
}
