package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const defaultNamespace = "filerelay"

// Observer exports staging and dispatch telemetry to Prometheus.
// All methods are safe on a nil receiver.
type Observer struct {
	staged       prometheus.Gauge
	uploads      prometheus.Counter
	uploadBytes  prometheus.Counter
	evictions    prometheus.Counter
	outcomes     *prometheus.CounterVec
	sendDuration *prometheus.HistogramVec
}

// NewObserver registers the relay metrics with reg.
func NewObserver(namespace string, reg prometheus.Registerer) (*Observer, error) {
	if namespace == "" {
		namespace = defaultNamespace
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	o := &Observer{
		staged: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "staged_files",
			Help:      "Files currently held in the staging cache.",
		}),
		uploads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Files accepted into the staging cache.",
		}),
		uploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploaded_bytes_total",
			Help:      "Cumulative size of accepted uploads.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evictions_total",
			Help:      "Staged files dropped because the cache was full.",
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_outcomes_total",
			Help:      "Per-handle dispatch outcomes.",
		}, []string{"destination", "status"}),
		sendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "send_duration_seconds",
			Help:      "Latency of downstream sends.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"destination"}),
	}
	var err error
	if o.staged, err = register(reg, o.staged); err != nil {
		return nil, err
	}
	if o.uploads, err = register(reg, o.uploads); err != nil {
		return nil, err
	}
	if o.uploadBytes, err = register(reg, o.uploadBytes); err != nil {
		return nil, err
	}
	if o.evictions, err = register(reg, o.evictions); err != nil {
		return nil, err
	}
	if o.outcomes, err = register(reg, o.outcomes); err != nil {
		return nil, err
	}
	if o.sendDuration, err = register(reg, o.sendDuration); err != nil {
		return nil, err
	}
	return o, nil
}

// register adds c to reg, reusing the collector already registered under the
// same descriptor.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register relay metric: %w", err)
	}
	return c, nil
}

func (o *Observer) SetStaged(n int) {
	if o == nil {
		return
	}
	o.staged.Set(float64(n))
}

func (o *Observer) RecordUpload(size int64) {
	if o == nil {
		return
	}
	o.uploads.Inc()
	o.uploadBytes.Add(float64(size))
}

func (o *Observer) RecordEviction() {
	if o == nil {
		return
	}
	o.evictions.Inc()
}

func (o *Observer) RecordOutcome(destination, status string) {
	if o == nil {
		return
	}
	o.outcomes.WithLabelValues(destination, status).Inc()
}

func (o *Observer) RecordSend(destination string, d time.Duration) {
	if o == nil {
		return
	}
	o.sendDuration.WithLabelValues(destination).Observe(d.Seconds())
}
