package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/najoast/sntrace/core"
)

// actorMetrics implements core.Metrics using Prometheus.
type actorMetrics struct {
	messageDuration     *prometheus.HistogramVec
	messagesTotal       *prometheus.CounterVec
	panicTotal          *prometheus.CounterVec
	droppedTotal        *prometheus.CounterVec
	mailboxDepth        *prometheus.GaugeVec
	schedulerInflight   prometheus.Gauge
	schedulerTasksTotal *prometheus.CounterVec
}

// NewMetrics creates a new Prometheus implementation of core.Metrics.
func NewMetrics(reg prometheus.Registerer) core.Metrics {
	m := &actorMetrics{
		messageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sntrace_actor_message_duration_seconds",
			Help:    "Message handling time in seconds",
			Buckets: defaultBuckets,
		}, []string{"actor"}),

		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sntrace_actor_messages_total",
			Help: "Total number of messages processed",
		}, []string{"actor", "success"}),

		panicTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sntrace_actor_panics_total",
			Help: "Total number of handler panics",
		}, []string{"actor"}),

		droppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sntrace_actor_messages_dropped_total",
			Help: "Total number of messages dropped without being handled",
		}, []string{"actor", "reason"}),

		mailboxDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sntrace_actor_mailbox_depth",
			Help: "Current mailbox queue depth",
		}, []string{"actor"}),

		schedulerInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sntrace_scheduler_inflight",
			Help: "Number of scheduled tasks currently running",
		}),

		schedulerTasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sntrace_scheduler_tasks_total",
			Help: "Total number of scheduled tasks completed",
		}, []string{"success"}),
	}

	reg.MustRegister(
		m.messageDuration,
		m.messagesTotal,
		m.panicTotal,
		m.droppedTotal,
		m.mailboxDepth,
		m.schedulerInflight,
		m.schedulerTasksTotal,
	)

	return m
}

func (m *actorMetrics) MessageDuration(actor string) core.Timer {
	return newTimer(m.messageDuration.WithLabelValues(actor))
}

func (m *actorMetrics) MessageProcessed(actor string, success bool) {
	m.messagesTotal.WithLabelValues(actor, boolToStr(success)).Inc()
}

func (m *actorMetrics) MessagePanic(actor string) {
	m.panicTotal.WithLabelValues(actor).Inc()
}

func (m *actorMetrics) MessageDropped(actor string, reason core.DropReason) {
	m.droppedTotal.WithLabelValues(actor, string(reason)).Inc()
}

func (m *actorMetrics) MailboxDepth(actor string, depth int) {
	m.mailboxDepth.WithLabelValues(actor).Set(float64(depth))
}

func (m *actorMetrics) SchedulerInflight(count int) {
	m.schedulerInflight.Set(float64(count))
}

func (m *actorMetrics) SchedulerTaskCompleted(success bool) {
	m.schedulerTasksTotal.WithLabelValues(boolToStr(success)).Inc()
}

var _ core.Metrics = (*actorMetrics)(nil)
