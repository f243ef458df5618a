// Package metrics holds the prometheus collectors of the booking service.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "barber"

type Metrics struct {
	bookings      *prometheus.CounterVec
	retries       *prometheus.CounterVec
	subscriptions *prometheus.GaugeVec
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_total",
			Help:      "Booking attempts by result.",
		}, []string{"result"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_retries_total",
			Help:      "Store operations retried after a failure.",
		}, []string{"operation"}),
		subscriptions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_view_subscriptions",
			Help:      "Open live view subscriptions by scope.",
		}, []string{"scope"}),
	}

	reg.MustRegister(m.bookings, m.retries, m.subscriptions)
	return m
}

func (m *Metrics) Booking(result string) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(result).Inc()
}

func (m *Metrics) StoreRetry(operation string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(operation).Inc()
}

func (m *Metrics) SubscriptionOpened(scope string) {
	if m == nil {
		return
	}
	m.subscriptions.WithLabelValues(scope).Inc()
}

func (m *Metrics) SubscriptionClosed(scope string) {
	if m == nil {
		return
	}
	m.subscriptions.WithLabelValues(scope).Dec()
}
