package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes application-level Prometheus instruments.
type Metrics struct {
	paymentEvents     *prometheus.CounterVec
	messagesAdmitted  prometheus.Counter
	messagesDuplicate prometheus.Counter
	creditsConsumed   prometheus.Counter
	httpDuration      *prometheus.HistogramVec
}

// New builds and registers the application instruments on the given
// registerer (usually prometheus.DefaultRegisterer).
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		paymentEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "buddy_payment_events_total",
			Help: "Payment webhook events by kind and outcome.",
		}, []string{"kind", "outcome"}),
		messagesAdmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "buddy_messages_admitted_total",
			Help: "Inbound chat messages admitted for handling.",
		}),
		messagesDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "buddy_messages_duplicate_total",
			Help: "Inbound chat messages dropped as provider re-deliveries.",
		}),
		creditsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "buddy_credits_consumed_total",
			Help: "Credits consumed by answered questions.",
		}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "buddy_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(
		m.paymentEvents,
		m.messagesAdmitted,
		m.messagesDuplicate,
		m.creditsConsumed,
		m.httpDuration,
	)

	return m
}

func (m *Metrics) RecordPaymentEvent(kind, outcome string) {
	if m == nil {
		return
	}
	m.paymentEvents.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) RecordMessageAdmitted() {
	if m == nil {
		return
	}
	m.messagesAdmitted.Inc()
}

func (m *Metrics) RecordMessageDuplicate() {
	if m == nil {
		return
	}
	m.messagesDuplicate.Inc()
}

func (m *Metrics) RecordCreditConsumed() {
	if m == nil {
		return
	}
	m.creditsConsumed.Inc()
}

// GinMiddleware records per-request latency on the histogram.
func GinMiddleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		m.httpDuration.WithLabelValues(
			c.Request.Method,
			route,
			strconv.Itoa(c.Writer.Status()),
		).Observe(time.Since(start).Seconds())
	}
}
