// Package prometheus exposes the latest flushed windows as Prometheus
// gauges, plus running counters, on a /metrics endpoint.
package prometheus

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/torosent/pulse/internal/sink"
)

// Name is the registry key of this sink.
const Name = "prometheus"

const namespace = "pulse"

func init() {
	sink.Register(Name, func() sink.Sink { return New() })
}

// Sink keeps its own prometheus.Registry so several sinks never collide.
type Sink struct {
	sink.Buffer

	registry *prometheus.Registry

	windowCount    *prometheus.GaugeVec
	windowFailures *prometheus.GaugeVec
	windowLatency  *prometheus.GaugeVec
	windowPct      *prometheus.GaugeVec
	windowSLA      *prometheus.GaugeVec
	activeThreads  prometheus.Gauge

	requestsTotal *prometheus.CounterVec
	failuresTotal *prometheus.CounterVec
	bytesTotal    *prometheus.CounterVec
	eventsTotal   *prometheus.CounterVec

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

func New() *Sink {
	s := &Sink{registry: prometheus.NewRegistry()}

	s.windowCount = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "window",
		Name:      "requests",
		Help:      "Requests completed in the last flushed window",
	}, []string{"transaction"})
	s.windowFailures = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "window",
		Name:      "failures",
		Help:      "Failed requests in the last flushed window",
	}, []string{"transaction"})
	s.windowLatency = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "window",
		Name:      "latency_ms",
		Help:      "Min, mean and max latency of the last flushed window",
	}, []string{"transaction", "stat"})
	s.windowPct = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "window",
		Name:      "latency_percentile_ms",
		Help:      "Nearest-rank latency percentiles of the last flushed window",
	}, []string{"transaction", "percentile"})
	s.windowSLA = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "window",
		Name:      "sla_success",
		Help:      "Successful requests within the SLA threshold in the last flushed window",
	}, []string{"transaction"})
	s.activeThreads = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_threads",
		Help:      "Producers in flight at the last flush",
	})
	s.requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_total",
		Help:      "Requests completed since start",
	}, []string{"transaction"})
	s.failuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "failures_total",
		Help:      "Failed requests since start",
	}, []string{"transaction"})
	s.bytesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bytes_total",
		Help:      "Bytes transferred since start",
	}, []string{"transaction", "direction"})
	s.eventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_total",
		Help:      "Run annotations received",
	}, []string{"event"})

	s.registry.MustRegister(
		s.windowCount, s.windowFailures, s.windowLatency, s.windowPct, s.windowSLA,
		s.activeThreads, s.requestsTotal, s.failuresTotal, s.bytesTotal, s.eventsTotal,
	)
	return s
}

// Registry returns the sink's collector registry.
func (s *Sink) Registry() *prometheus.Registry { return s.registry }

// Setup starts serving /metrics on endpoint, a listen address such as ":9102".
// An empty endpoint only collects, for embedding Registry elsewhere.
func (s *Sink) Setup(_ context.Context, endpoint, _ string) error {
	addr := strings.TrimSpace(endpoint)
	if addr == "" {
		return nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("prometheus: listen %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	s.mu.Lock()
	s.listener = ln
	s.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	srv := s.server
	s.mu.Unlock()

	// Serve returns http.ErrServerClosed once Teardown runs.
	go func() { _ = srv.Serve(ln) }()
	return nil
}

// Addr returns the bound listen address, or "" when not serving.
func (s *Sink) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Flush applies everything queued to the collectors.
func (s *Sink) Flush(context.Context) error {
	snaps, annotations := s.Drain()
	for _, snap := range snaps {
		tx := snap.Label
		s.windowCount.WithLabelValues(tx).Set(float64(snap.Count))
		s.windowFailures.WithLabelValues(tx).Set(float64(snap.FailureCount))
		s.windowLatency.WithLabelValues(tx, "min").Set(float64(snap.MinMs))
		s.windowLatency.WithLabelValues(tx, "mean").Set(snap.MeanMs)
		s.windowLatency.WithLabelValues(tx, "max").Set(float64(snap.MaxMs))
		for pct, v := range snap.Percentiles {
			s.windowPct.WithLabelValues(tx, pct).Set(v)
		}
		s.windowSLA.WithLabelValues(tx).Set(float64(snap.SLASuccessCount))
		s.activeThreads.Set(float64(snap.ActiveThreads))

		s.requestsTotal.WithLabelValues(tx).Add(float64(snap.Count))
		s.failuresTotal.WithLabelValues(tx).Add(float64(snap.FailureCount))
		s.bytesTotal.WithLabelValues(tx, "sent").Add(float64(snap.SentBytes))
		s.bytesTotal.WithLabelValues(tx, "received").Add(float64(snap.ReceivedBytes))
	}
	for _, a := range annotations {
		s.eventsTotal.WithLabelValues(string(a.Name)).Inc()
	}
	return nil
}

// Teardown stops the HTTP server, waiting for in-flight scrapes until ctx ends.
func (s *Sink) Teardown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.server, s.listener = nil, nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("prometheus: shutdown: %w", err)
	}
	return nil
}
