// Package metrics exposes scrape counters to Prometheus.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rnav"

// Metrics holds the scraper collectors
type Metrics struct {
	registry    *prometheus.Registry
	pages       *prometheus.CounterVec
	records     *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	recovered   *prometheus.CounterVec
	runs        *prometheus.CounterVec
	retries     *prometheus.CounterVec
	runDuration prometheus.Histogram
}

func registerCollector(reg prometheus.Registerer, c prometheus.Collector) error {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return nil
		}
		return fmt.Errorf("register collector: %w", err)
	}
	return nil
}

// New creates the collectors on a fresh registry.
//
// Metrics registered:
//   - rnav_scraper_pages_total{group} - pages loaded
//   - rnav_scraper_records_total{group} - records extracted
//   - rnav_scraper_rejected_emails_total{group} - addresses the normalizer rejected
//   - rnav_scraper_recovered_total{kind} - failures swallowed during traversal
//   - rnav_scraper_runs_total{group, state} - finished runs by terminal state
//   - rnav_scraper_retries_total{group} - whole-run retries after a navigation timeout
//   - rnav_scraper_run_duration_seconds - run duration
func New() (*Metrics, error) {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scraper",
			Name: "pages_total", Help: "Result pages loaded",
		}, []string{"group"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scraper",
			Name: "records_total", Help: "Records extracted from cards",
		}, []string{"group"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scraper",
			Name: "rejected_emails_total", Help: "Email addresses rejected by the normalizer",
		}, []string{"group"}),
		recovered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scraper",
			Name: "recovered_total", Help: "Failures recovered during traversal",
		}, []string{"kind"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scraper",
			Name: "runs_total", Help: "Finished runs by terminal state",
		}, []string{"group", "state"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scraper",
			Name: "retries_total", Help: "Runs retried after a navigation timeout",
		}, []string{"group"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "scraper",
			Name:    "run_duration_seconds",
			Help:    "Duration of one traversal run",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200},
		}),
	}

	collectorsToRegister := []prometheus.Collector{
		m.pages, m.records, m.rejections, m.recovered, m.runs, m.retries, m.runDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}
	for _, c := range collectorsToRegister {
		if err := registerCollector(reg, c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Registry returns the registry backing m
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) PageLoaded(group string) {
	if m == nil {
		return
	}
	m.pages.WithLabelValues(group).Inc()
}

func (m *Metrics) RecordsExtracted(group string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.records.WithLabelValues(group).Add(float64(n))
}

func (m *Metrics) EmailRejected(group string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(group).Inc()
}

func (m *Metrics) Recovered(kind string) {
	if m == nil {
		return
	}
	m.recovered.WithLabelValues(kind).Inc()
}

func (m *Metrics) RunFinished(group, state string, d time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(group, state).Inc()
	m.runDuration.Observe(d.Seconds())
}

func (m *Metrics) RunRetried(group string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(group).Inc()
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Serve exposes /metrics on addr until ctx is done
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics server shutdown: %w", err)
		}
		return nil
	}
}
