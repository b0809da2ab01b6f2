// Package observability assembles the observability ports from the zap,
// Prometheus and OpenTelemetry adapters.
package observability

import (
	"github.com/Parth18062003/E-Commerce-sub000/internal/infrastructure/observability/prometrics"
	"github.com/Parth18062003/E-Commerce-sub000/internal/observability"
)

// instrument describes one metric registered by StandardInstruments.
type instrument struct {
	key       observability.MetricKey
	help      string
	labels    []string
	histogram bool
}

var catalogue = []instrument{
	{key: observability.MUsecaseRequests, help: "Total number of use case invocations.",
		labels: []string{"use_case", "outcome"}},
	{key: observability.MUsecaseDuration, help: "Duration of use case execution in seconds.",
		labels: []string{"use_case"}, histogram: true},
	{key: observability.MHTTPRequests, help: "Total number of HTTP requests.",
		labels: []string{"method", "route", "status"}},
	{key: observability.MHTTPRequestDuration, help: "Duration of HTTP requests in seconds.",
		labels: []string{"method", "route", "status"}, histogram: true},
	{key: observability.MExternalRequests, help: "Calls made to external peers such as the broker.",
		labels: []string{"peer", "endpoint", "outcome"}},
	{key: observability.MExternalRequestDuration, help: "Duration of external calls in seconds.",
		labels: []string{"peer", "endpoint"}, histogram: true},
	{key: observability.MLedgerWriteConflicts, help: "Ledger writes rejected by the version check.",
		labels: []string{"operation"}},
	{key: observability.MGRPCRequests, help: "Total number of gRPC calls served.",
		labels: []string{"method", "outcome"}},
}

// StandardInstruments registers every instrument the services record against.
func StandardInstruments(r prometrics.Registry) (
	map[observability.MetricKey]observability.Counter,
	map[observability.MetricKey]observability.Histogram,
) {
	counters := make(map[observability.MetricKey]observability.Counter)
	histograms := make(map[observability.MetricKey]observability.Histogram)
	for _, in := range catalogue {
		if in.histogram {
			histograms[in.key] = r.Histogram(string(in.key), in.help, nil, in.labels...)
			continue
		}
		counters[in.key] = r.Counter(string(in.key), in.help, in.labels...)
	}
	return counters, histograms
}

// New bundles tracer, logger and the registered instruments. Nil parts and
// unknown metric keys resolve to no-op implementations.
func New(
	tracer observability.Tracer,
	logger observability.Logger,
	counters map[observability.MetricKey]observability.Counter,
	histograms map[observability.MetricKey]observability.Histogram,
) observability.Observability {
	if tracer == nil {
		tracer = observability.NopTracer()
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &bundle{
		tracer:     tracer,
		logger:     logger,
		counters:   counters,
		histograms: histograms,
	}
}

type bundle struct {
	tracer     observability.Tracer
	logger     observability.Logger
	counters   map[observability.MetricKey]observability.Counter
	histograms map[observability.MetricKey]observability.Histogram
}

func (b *bundle) Tracer() observability.Tracer   { return b.tracer }
func (b *bundle) Logger() observability.Logger   { return b.logger }
func (b *bundle) Metrics() observability.Metrics { return b }

func (b *bundle) Counter(name observability.MetricKey) observability.Counter {
	if c := b.counters[name]; c != nil {
		return c
	}
	return observability.NopCounter()
}

func (b *bundle) Histogram(name observability.MetricKey) observability.Histogram {
	if h := b.histograms[name]; h != nil {
		return h
	}
	return observability.NopHistogram()
}
