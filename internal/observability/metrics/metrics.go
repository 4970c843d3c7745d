package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for availability and booking flows.
type BookingMetrics struct {
	attemptsTotal     *prometheus.CounterVec
	rejectionsTotal   *prometheus.CounterVec
	resolveLatency    prometheus.Histogram
	reserveLatency    *prometheus.HistogramVec
	windowsPerResolve prometheus.Histogram
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		attemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medportal",
			Subsystem: "booking",
			Name:      "attempts_total",
			Help:      "Booking attempts by final state",
		}, []string{"state"}),
		rejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medportal",
			Subsystem: "booking",
			Name:      "rejections_total",
			Help:      "Rejected booking attempts by rule",
		}, []string{"rule"}),
		resolveLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "medportal",
			Subsystem: "availability",
			Name:      "resolve_seconds",
			Help:      "Time to load a snapshot and resolve availability",
			Buckets:   prometheus.DefBuckets,
		}),
		reserveLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "medportal",
			Subsystem: "booking",
			Name:      "reserve_seconds",
			Help:      "Latency of the authoritative reservation call",
			Buckets:   prometheus.DefBuckets,
		}, []string{"state"}),
		windowsPerResolve: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "medportal",
			Subsystem: "availability",
			Name:      "windows",
			Help:      "Free windows per resolution",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.attemptsTotal, m.rejectionsTotal, m.resolveLatency, m.reserveLatency, m.windowsPerResolve)
	return m
}

func (m *BookingMetrics) ObserveAttempt(state string) {
	if m == nil {
		return
	}
	m.attemptsTotal.WithLabelValues(state).Inc()
}

func (m *BookingMetrics) ObserveRejection(rule string) {
	if m == nil {
		return
	}
	m.rejectionsTotal.WithLabelValues(rule).Inc()
}

func (m *BookingMetrics) ObserveResolve(seconds float64, windows int) {
	if m == nil {
		return
	}
	m.resolveLatency.Observe(seconds)
	m.windowsPerResolve.Observe(float64(windows))
}

func (m *BookingMetrics) ObserveReserve(state string, seconds float64) {
	if m == nil {
		return
	}
	m.reserveLatency.WithLabelValues(state).Observe(seconds)
}
