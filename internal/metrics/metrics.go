package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server's Prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ConnectionsTotal  *prometheus.CounterVec
	AuthFailuresTotal *prometheus.CounterVec
	MessagesPublished prometheus.Counter
	DeliveryFailures  prometheus.Counter
	MessagesDropped   *prometheus.CounterVec
	AdminCommands     *prometheus.CounterVec
	CPUPercent        prometheus.Gauge
	MemoryPercent     prometheus.Gauge
}

// New creates the collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ConnectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "linechat_connections_total",
			Help: "Accepted connections by transport",
		}, []string{"transport"}),
		AuthFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "linechat_auth_failures_total",
			Help: "Handshakes that ended without a session, by reason",
		}, []string{"reason"}),
		MessagesPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "linechat_messages_published_total",
			Help: "Lines fanned out to online sessions",
		}),
		DeliveryFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "linechat_delivery_failures_total",
			Help: "Per-recipient deliveries that could not be queued",
		}),
		MessagesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "linechat_messages_dropped_total",
			Help: "Chat lines refused before fan-out, by reason",
		}, []string{"reason"}),
		AdminCommands: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "linechat_admin_commands_total",
			Help: "Executed admin commands",
		}, []string{"command"}),
		CPUPercent: factory.NewGauge(prometheus.GaugeOpts{
			Name: "linechat_host_cpu_percent",
			Help: "Host CPU usage sampled by the monitor",
		}),
		MemoryPercent: factory.NewGauge(prometheus.GaugeOpts{
			Name: "linechat_host_memory_percent",
			Help: "Host memory usage sampled by the monitor",
		}),
	}
}

// RegisterOnline exports the number of online sessions as reported by count.
func (m *Metrics) RegisterOnline(count func() int) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "linechat_sessions_online",
		Help: "Currently online sessions",
	}, func() float64 { return float64(count()) }))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ConnectionAccepted(transport string) {
	if m != nil {
		m.ConnectionsTotal.WithLabelValues(transport).Inc()
	}
}

func (m *Metrics) AuthFailed(reason string) {
	if m != nil {
		m.AuthFailuresTotal.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) MessagePublished() {
	if m != nil {
		m.MessagesPublished.Inc()
	}
}

func (m *Metrics) DeliveryFailed() {
	if m != nil {
		m.DeliveryFailures.Inc()
	}
}

func (m *Metrics) MessageDropped(reason string) {
	if m != nil {
		m.MessagesDropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) AdminCommand(name string) {
	if m != nil {
		m.AdminCommands.WithLabelValues(name).Inc()
	}
}

func (m *Metrics) SetHostUsage(cpu, memory float64) {
	if m != nil {
		m.CPUPercent.Set(cpu)
		m.MemoryPercent.Set(memory)
	}
}
