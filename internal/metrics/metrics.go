// Package metrics exposes Prometheus metrics for provisioning runs.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storm"

// Task results.
const (
	ResultSuccess  = "success"
	ResultFailure  = "failure"
	ResultTimedOut = "timed_out"
)

// Recorder records batch and pipeline metrics. A nil *Recorder records nothing.
type Recorder struct {
	registry *prometheus.Registry

	tasksTotal    *prometheus.CounterVec
	batchDuration *prometheus.HistogramVec
	pipelineState *prometheus.GaugeVec
	instances     *prometheus.GaugeVec
}

// New returns a Recorder with its own registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		tasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "batch",
				Name:      "tasks_total",
				Help:      "Total number of provisioning tasks by phase and result",
			},
			[]string{"phase", "result"},
		),
		batchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "batch",
				Name:      "duration_seconds",
				Help:      "Duration of provisioning batches in seconds",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~8.5min
			},
			[]string{"phase"},
		),
		pipelineState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "state",
				Help:      "Current deployment pipeline state (1 for the active state)",
			},
			[]string{"state"},
		),
		instances: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "fleet",
				Name:      "instances",
				Help:      "Instances seen in the last inventory by provider and role",
			},
			[]string{"provider", "role"},
		),
	}

	r.registry.MustRegister(r.tasksTotal, r.batchDuration, r.pipelineState, r.instances)
	return r
}

// Registry returns the registry metrics are registered with.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// RecordTask counts one finished task.
func (r *Recorder) RecordTask(phase, result string) {
	if r == nil {
		return
	}
	r.tasksTotal.WithLabelValues(phase, result).Inc()
}

// RecordBatch observes the duration of a batch.
func (r *Recorder) RecordBatch(phase string, d time.Duration) {
	if r == nil {
		return
	}
	r.batchDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// SetState marks state as the active pipeline state.
func (r *Recorder) SetState(state string) {
	if r == nil {
		return
	}
	r.pipelineState.Reset()
	r.pipelineState.WithLabelValues(state).Set(1)
}

// SetInstances records the instance count of a provider and role.
func (r *Recorder) SetInstances(provider, role string, n int) {
	if r == nil {
		return
	}
	r.instances.WithLabelValues(provider, role).Set(float64(n))
}

// Serve exposes /metrics on addr until ctx is done.
func (r *Recorder) Serve(ctx context.Context, addr string) error {
	if r == nil {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	}
}
