package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes counters and histograms for the booking flow and the event
// outbox. A nil *Metrics is valid and records nothing.
type Metrics struct {
	bookingAttempts *prometheus.CounterVec
	rejections      *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	bookingDuration *prometheus.HistogramVec
	eventsDelivered *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		bookingAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "attempts_total",
			Help:      "Booking and reschedule attempts by origin and outcome",
		}, []string{"origin", "outcome"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "rejections_total",
			Help:      "Validator rejections by reason",
		}, []string{"reason"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "appointment",
			Name:      "transitions_total",
			Help:      "Applied appointment status transitions",
		}, []string{"to"}),
		bookingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "duration_seconds",
			Help:      "Time spent validating and persisting a booking",
			Buckets:   prometheus.DefBuckets,
		}, []string{"origin"}),
		eventsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "events",
			Name:      "delivered_total",
			Help:      "Outbox deliveries by outcome",
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingAttempts, m.rejections, m.transitions, m.bookingDuration, m.eventsDelivered)
	return m
}

func (m *Metrics) ObserveBooking(origin, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.bookingAttempts.WithLabelValues(origin, outcome).Inc()
	m.bookingDuration.WithLabelValues(origin).Observe(took.Seconds())
}

func (m *Metrics) ObserveRejection(reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveTransition(to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(to).Inc()
}

func (m *Metrics) ObserveDelivery(outcome string) {
	if m == nil {
		return
	}
	m.eventsDelivered.WithLabelValues(outcome).Inc()
}
