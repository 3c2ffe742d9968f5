package obs

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// defaultLatencyBucketsMS suits a CPU-bound calculator; most requests finish in single-digit ms.
var defaultLatencyBucketsMS = []float64{1, 2.5, 5, 10, 25, 50, 100, 250, 1000}

// HTTPMetrics groups the request collectors. Status is recorded by class to keep
// cardinality bounded on the admin routes.
type HTTPMetrics struct {
	Requests *prometheus.CounterVec
	Latency  *prometheus.HistogramVec
	InFlight prometheus.Gauge
}

// NewHTTPMetrics registers the HTTP collectors. bucketsMS are latency boundaries in
// milliseconds; the histogram itself is exported in seconds.
func NewHTTPMetrics(namespace string, bucketsMS []float64, reg prometheus.Registerer) *HTTPMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if len(bucketsMS) == 0 {
		bucketsMS = defaultLatencyBucketsMS
	}
	seconds := make([]float64, 0, len(bucketsMS))
	for _, ms := range bucketsMS {
		seconds = append(seconds, ms/1000)
	}
	slices.Sort(seconds)

	return &HTTPMetrics{
		Requests: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, chi route pattern and status class.",
		}, []string{"method", "route", "code"})),
		Latency: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by chi route pattern.",
			Buckets:   seconds,
		}, []string{"route"})),
		InFlight: register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_in_flight_requests",
			Help:      "Requests currently being served.",
		})),
	}
}

// statusClass maps 204 to "2xx".
func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}

// ParseBucketsCSV reads OBS_METRICS_BUCKETS_MS. Malformed and non-positive entries are
// skipped; the result is sorted and deduplicated.
func ParseBucketsCSV(csv string) []float64 {
	var out []float64
	for _, part := range strings.Split(csv, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil || v <= 0 {
			continue
		}
		out = append(out, v)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

var (
	domainOnce sync.Once

	// DiscountEvaluationsTotal counts best-discount evaluations by result
	// (applied, no_discount, invalid, error).
	DiscountEvaluationsTotal *prometheus.CounterVec
	// DiscountRulesConsidered records how many rules each evaluation priced.
	DiscountRulesConsidered prometheus.Histogram
	// DiscountRuleMutationsTotal counts rule create and delete outcomes.
	DiscountRuleMutationsTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics registers the discount collectors once per process.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		DiscountEvaluationsTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discount_evaluations_total",
			Help:      "Count of best-discount evaluations by result.",
		}, []string{"result"}))
		DiscountRulesConsidered = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "discount_rules_considered",
			Help:      "Number of rules priced per evaluation.",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
		}))
		DiscountRuleMutationsTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discount_rule_mutations_total",
			Help:      "Count of rule mutations by operation and result.",
		}, []string{"op", "result"}))
	})
}

// ObserveEvaluation records one evaluation. Safe to call before registration.
func ObserveEvaluation(result string, rulesConsidered int) {
	if DiscountEvaluationsTotal != nil {
		DiscountEvaluationsTotal.WithLabelValues(result).Inc()
	}
	if DiscountRulesConsidered != nil && rulesConsidered >= 0 {
		DiscountRulesConsidered.Observe(float64(rulesConsidered))
	}
}

// ObserveRuleMutation records a create or delete outcome. Safe to call before registration.
func ObserveRuleMutation(op, result string) {
	if DiscountRuleMutationsTotal != nil {
		DiscountRuleMutationsTotal.WithLabelValues(op, result).Inc()
	}
}

// register adds c to reg, or hands back the collector already registered with the same
// descriptor so repeated construction against one registry is harmless.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	err := reg.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing
		}
	}
	panic(fmt.Errorf("register metric: %w", err))
}
