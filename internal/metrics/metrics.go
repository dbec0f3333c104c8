// Package metrics exposes prometheus instrumentation for the embedding
// pipeline. A nil *Metrics is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "snipvault"

// Metrics holds the snipvault collectors
type Metrics struct {
	registry *prometheus.Registry

	// Embedding pipeline
	embeddingsTotal   *prometheus.CounterVec // status: ok, tokenize_error, inference_error
	inferenceDuration prometheus.Histogram
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter

	// Search
	searchesTotal  *prometheus.CounterVec // mode: semantic, text
	searchDuration *prometheus.HistogramVec
	searchResults  prometheus.Histogram

	// Model lifecycle
	modelState     prometheus.Gauge // 0=unloaded, 1=loading, 2=loaded
	modelLoads     *prometheus.CounterVec
	downloadsTotal *prometheus.CounterVec // artifact and status
	regenerated    *prometheus.CounterVec // status: ok, failed
}

// New creates and registers the collectors on reg. A nil registry disables
// metrics and returns nil.
func New(reg *prometheus.Registry) (*Metrics, error) {
	if reg == nil {
		return nil, nil
	}

	m := &Metrics{
		registry: reg,

		embeddingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "generated_total",
			Help:      "Embedding generation attempts by outcome",
		}, []string{"status"}),

		inferenceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "inference_duration_seconds",
			Help:      "Model forward pass duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),

		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "cache_hits_total",
			Help:      "Embedding cache hits",
		}),

		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "cache_misses_total",
			Help:      "Embedding cache misses",
		}),

		searchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Search requests by mode",
		}, []string{"mode"}),

		searchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "Search duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode"}),

		searchResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "results",
			Help:      "Number of results returned per search",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100},
		}),

		modelState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "state",
			Help:      "Model state (0=unloaded, 1=loading, 2=loaded)",
		}),

		modelLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "loads_total",
			Help:      "Model load attempts by outcome",
		}, []string{"status"}),

		downloadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "downloads_total",
			Help:      "Artifact downloads by artifact and outcome",
		}, []string{"artifact", "status"}),

		regenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "regenerated_total",
			Help:      "Snippets re-embedded during regeneration or backfill",
		}, []string{"status"}),
	}

	collectors := []prometheus.Collector{
		m.embeddingsTotal, m.inferenceDuration, m.cacheHits, m.cacheMisses,
		m.searchesTotal, m.searchDuration, m.searchResults,
		m.modelState, m.modelLoads, m.downloadsTotal, m.regenerated,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}

	return m, nil
}

// RecordEmbedding records one embedding attempt
func (m *Metrics) RecordEmbedding(status string) {
	if m == nil {
		return
	}
	m.embeddingsTotal.WithLabelValues(status).Inc()
}

// RecordInference records a forward pass duration
func (m *Metrics) RecordInference(d time.Duration) {
	if m == nil {
		return
	}
	m.inferenceDuration.Observe(d.Seconds())
}

// RecordCacheHit records an embedding cache hit
func (m *Metrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

// RecordCacheMiss records an embedding cache miss
func (m *Metrics) RecordCacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}

// RecordSearch records a completed search
func (m *Metrics) RecordSearch(mode string, d time.Duration, results int) {
	if m == nil {
		return
	}
	m.searchesTotal.WithLabelValues(mode).Inc()
	m.searchDuration.WithLabelValues(mode).Observe(d.Seconds())
	m.searchResults.Observe(float64(results))
}

// SetModelState sets the model state gauge
func (m *Metrics) SetModelState(state int) {
	if m == nil {
		return
	}
	m.modelState.Set(float64(state))
}

// RecordModelLoad records a load attempt
func (m *Metrics) RecordModelLoad(err error) {
	if m == nil {
		return
	}
	m.modelLoads.WithLabelValues(status(err)).Inc()
}

// RecordDownload records an artifact download
func (m *Metrics) RecordDownload(artifact string, err error) {
	if m == nil {
		return
	}
	m.downloadsTotal.WithLabelValues(artifact, status(err)).Inc()
}

// RecordRegenerated records one snippet processed by regeneration
func (m *Metrics) RecordRegenerated(err error) {
	if m == nil {
		return
	}
	m.regenerated.WithLabelValues(status(err)).Inc()
}

func status(err error) string {
	if err != nil {
		return "failed"
	}
	return "ok"
}

// Handler returns the HTTP handler serving the registry
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Serve exposes /metrics and /health on addr until ctx is cancelled
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics server listening", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server on %s: %w", addr, err)
	}
	return nil
}
