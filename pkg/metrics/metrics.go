// Package metrics defines the Prometheus metrics one worker process
// records, grounded on the teacher's internal/adapter/nlm.Metrics shape:
// a struct of CounterVec/HistogramVec/Gauge fields, constructed once
// against a caller-supplied Registerer (never the global default, since
// each worker process here is its own process with its own registry) and
// a handful of Record* helpers that are nil-receiver safe so a caller
// that chose not to wire metrics doesn't need nil checks at every call
// site.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Recorder tracks per-worker frame/connection activity.
type Recorder struct {
	ConnectionsAccepted prometheus.Counter
	ConnectionsActive   prometheus.Gauge
	FramesDispatched    *prometheus.CounterVec
	DispatchErrors      *prometheus.CounterVec
	IdleEvictions       prometheus.Counter
	FrameDispatchTime   *prometheus.HistogramVec
}

// New builds and registers a Recorder against reg.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		ConnectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tinyrpc_connections_accepted_total",
			Help: "Total connections accepted by this worker",
		}),
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tinyrpc_connections_active",
			Help: "Current number of open connections on this worker",
		}),
		FramesDispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tinyrpc_frames_dispatched_total",
				Help: "Total frames successfully dispatched, by protocol_uri",
			},
			[]string{"uri"},
		),
		DispatchErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tinyrpc_dispatch_errors_total",
				Help: "Total frame dispatch failures, by reason",
			},
			[]string{"reason"},
		),
		IdleEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tinyrpc_idle_evictions_total",
			Help: "Total connections closed by the idle reaper",
		}),
		FrameDispatchTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tinyrpc_frame_dispatch_seconds",
				Help:    "Frame dispatch duration in seconds, by protocol_uri",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"uri"},
		),
	}

	reg.MustRegister(
		r.ConnectionsAccepted,
		r.ConnectionsActive,
		r.FramesDispatched,
		r.DispatchErrors,
		r.IdleEvictions,
		r.FrameDispatchTime,
	)
	return r
}

func (r *Recorder) RecordAccept() {
	if r == nil {
		return
	}
	r.ConnectionsAccepted.Inc()
	r.ConnectionsActive.Inc()
}

func (r *Recorder) RecordTeardown() {
	if r == nil {
		return
	}
	r.ConnectionsActive.Dec()
}

func (r *Recorder) RecordDispatch(uri uint32, durationSeconds float64) {
	if r == nil {
		return
	}
	label := uriLabel(uri)
	r.FramesDispatched.WithLabelValues(label).Inc()
	r.FrameDispatchTime.WithLabelValues(label).Observe(durationSeconds)
}

func (r *Recorder) RecordDispatchError(reason string) {
	if r == nil {
		return
	}
	r.DispatchErrors.WithLabelValues(reason).Inc()
}

func (r *Recorder) RecordIdleEviction() {
	if r == nil {
		return
	}
	r.IdleEvictions.Inc()
}

func uriLabel(uri uint32) string {
	const hexDigits = "0123456789abcdef"
	b := make([]byte, 10)
	b[0], b[1] = '0', 'x'
	for i := 9; i >= 2; i-- {
		b[i] = hexDigits[uri&0xf]
		uri >>= 4
	}
	return string(b)
}
