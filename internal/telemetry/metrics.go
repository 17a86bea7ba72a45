package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes the pipeline's operational counters as Prometheus
// collectors. Callers that don't run an HTTP exporter can ignore this and
// still get identical behavior from the suppressor/ring directly; Metrics
// just mirrors those counters into a registry for scraping.
type Metrics struct {
	FramesSent       *prometheus.CounterVec
	FramesSuppressed *prometheus.CounterVec
	RingOverflow     *prometheus.CounterVec
	ResamplerRatio   *prometheus.GaugeVec
}

// NewMetrics registers the capture core's counters on reg. Pass
// prometheus.NewRegistry() for an isolated registry, or
// prometheus.DefaultRegisterer to join the process-wide one.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sttcapture",
			Name:      "frames_sent_total",
			Help:      "Frames delivered to the sink, including silence keepalives.",
		}, []string{"source"}),
		FramesSuppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sttcapture",
			Name:      "frames_suppressed_total",
			Help:      "Frames dropped by the silence suppressor.",
		}, []string{"source"}),
		RingOverflow: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sttcapture",
			Name:      "ring_overflow_samples_total",
			Help:      "Samples dropped because a source's ring buffer was full.",
		}, []string{"source"}),
		ResamplerRatio: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sttcapture",
			Name:      "resampler_ratio",
			Help:      "Input/output sample rate ratio currently in effect.",
		}, []string{"source"}),
	}

	reg.MustRegister(m.FramesSent, m.FramesSuppressed, m.RingOverflow, m.ResamplerRatio)
	return m
}
