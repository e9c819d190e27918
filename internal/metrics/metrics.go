// Package metrics exposes Prometheus instrumentation for the bot.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cozybot"

// Route labels for messages_total.
const (
	RouteLead       = "lead"
	RouteQuickReply = "quick_reply"
	RouteFAQ        = "faq"
	RouteAI         = "ai"
	RouteCommand    = "command"
)

// Metrics holds the bot collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	messagesTotal   *prometheus.CounterVec
	aiRequestsTotal *prometheus.CounterVec
	aiDuration      *prometheus.HistogramVec
	leadsTotal      *prometheus.CounterVec
	handlerTotal    *prometheus.CounterVec
	handlerDuration *prometheus.HistogramVec
	sendsTotal      *prometheus.CounterVec
}

// New registers the collectors on reg, or on the default registerer when reg
// is nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Inbound text messages by the route that answered them",
		}, []string{"route"}),
		aiRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_requests_total",
			Help:      "Completion requests by provider and outcome",
		}, []string{"provider", "status"}),
		aiDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ai_request_duration_seconds",
			Help:      "Latency of completion requests",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}, []string{"provider"}),
		leadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leads_total",
			Help:      "Completed lead interviews by persistence outcome",
		}, []string{"status"}),
		handlerTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telegram",
			Name:      "handled_total",
			Help:      "Telegram updates by handler and status",
		}, []string{"handler", "status"}),
		handlerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "telegram",
			Name:      "handler_duration_seconds",
			Help:      "Time spent handling a Telegram update",
			Buckets:   prometheus.DefBuckets,
		}, []string{"handler"}),
		sendsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telegram",
			Name:      "sends_total",
			Help:      "Outbound Telegram calls by action and final status",
		}, []string{"action", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.messagesTotal, m.aiRequestsTotal, m.aiDuration, m.leadsTotal, m.handlerTotal, m.handlerDuration, m.sendsTotal)
	return m
}

// ObserveRoute counts one inbound message answered by route.
func (m *Metrics) ObserveRoute(route string) {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(route).Inc()
}

// ObserveAI records one completion request.
func (m *Metrics) ObserveAI(provider, status string, took time.Duration) {
	if m == nil {
		return
	}
	m.aiRequestsTotal.WithLabelValues(provider, status).Inc()
	m.aiDuration.WithLabelValues(provider).Observe(took.Seconds())
}

// ObserveLead records how a completed interview was persisted: "saved",
// "retried" or "failed".
func (m *Metrics) ObserveLead(status string) {
	if m == nil {
		return
	}
	m.leadsTotal.WithLabelValues(status).Inc()
}

// ObserveHandler matches middleware.ObserveFunc.
func (m *Metrics) ObserveHandler(handler string, err error, took time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "fail"
	}
	m.handlerTotal.WithLabelValues(handler, status).Inc()
	m.handlerDuration.WithLabelValues(handler).Observe(took.Seconds())
}

// ObserveSend matches sender.Options.OnResult.
func (m *Metrics) ObserveSend(action string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "fail"
	}
	m.sendsTotal.WithLabelValues(action, status).Inc()
}
