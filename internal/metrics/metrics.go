// Package metrics exports pipeline telemetry to Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yazidnurfadil/mosque-hero/internal/domain"
)

const namespace = "mosque_hero"

// Recorder implements the observer hooks of the job client, the blob store
// and the lifecycle orchestrator.
type Recorder struct {
	gatherer    prometheus.Gatherer
	transitions *prometheus.CounterVec
	jobCalls    *prometheus.HistogramVec
	blobOps     *prometheus.HistogramVec
	blobErrors  *prometheus.CounterVec
	blobBytes   prometheus.Counter
}

// New registers every collector on reg. A nil reg gets a private registry
// that also carries the Go and process collectors.
func New(reg *prometheus.Registry) (*Recorder, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
		if err := reg.Register(collectors.NewGoCollector()); err != nil {
			return nil, fmt.Errorf("metrics: register go collector: %w", err)
		}
		if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
			return nil, fmt.Errorf("metrics: register process collector: %w", err)
		}
	}
	r := &Recorder{gatherer: reg}

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "generation_transitions_total",
		Help:      "Lifecycle transitions attempted by the orchestrator.",
	}, []string{"transition", "outcome"})
	jobCalls := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "job_client_duration_seconds",
		Help:      "Latency of inference provider calls.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "outcome"})
	blobOps := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "blob_operation_duration_seconds",
		Help:      "Latency of blob store operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
	blobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "blob_operation_errors_total",
		Help:      "Blob store failures by operation and code.",
	}, []string{"operation", "code"})
	blobBytes := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "blob_uploaded_bytes_total",
		Help:      "Bytes successfully written to the blob store.",
	})

	var err error
	if r.transitions, err = register(reg, transitions); err != nil {
		return nil, err
	}
	if r.jobCalls, err = register(reg, jobCalls); err != nil {
		return nil, err
	}
	if r.blobOps, err = register(reg, blobOps); err != nil {
		return nil, err
	}
	if r.blobErrors, err = register(reg, blobErrors); err != nil {
		return nil, err
	}
	if r.blobBytes, err = register(reg, blobBytes); err != nil {
		return nil, err
	}
	return r, nil
}

// register returns the already registered collector when one exists.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, fmt.Errorf("metrics: register collector: %w", err)
	}
	return c, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

// RecordTransition counts one lifecycle transition attempt.
func (r *Recorder) RecordTransition(transition, outcome string) {
	if r == nil {
		return
	}
	r.transitions.WithLabelValues(transition, outcome).Inc()
}

// ObserveJobCall records one inference provider call.
func (r *Recorder) ObserveJobCall(operation, outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.jobCalls.WithLabelValues(operation, outcome).Observe(elapsed.Seconds())
}

// RecordBlob records one blob store operation.
func (r *Recorder) RecordBlob(operation string, duration time.Duration, sizeBytes int, err error) {
	if r == nil {
		return
	}
	r.blobOps.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		r.blobErrors.WithLabelValues(operation, string(domain.CodeOf(err))).Inc()
		return
	}
	if sizeBytes > 0 {
		r.blobBytes.Add(float64(sizeBytes))
	}
}
