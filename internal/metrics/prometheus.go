package metrics

import (
	"net/http"
	"time"

	"github.com/berfenger/mpp2mqtt/pkg/mppsolar"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	POLL_KIND_STATUS   = "status"
	POLL_KIND_SETTINGS = "settings"
)

// Metrics holds the bridge collectors on a private registry.
type Metrics struct {
	registry        *prometheus.Registry
	commandDuration *prometheus.HistogramVec
	commandErrors   *prometheus.CounterVec
	polls           *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	commandDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mpp2mqtt_command_duration_seconds",
		Help:    "Time spent executing a device command.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
	}, []string{"command"})
	commandErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mpp2mqtt_command_errors_total",
		Help: "Device commands that returned an error.",
	}, []string{"command"})
	polls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mpp2mqtt_polls_total",
		Help: "Snapshot polls by kind and result.",
	}, []string{"kind", "result"})

	registry := prometheus.NewRegistry()
	registry.MustRegister(commandDuration, commandErrors, polls,
		collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Metrics{
		registry:        registry,
		commandDuration: commandDuration,
		commandErrors:   commandErrors,
		polls:           polls,
	}
}

// ExecutorInstrument feeds command timings and errors into the collectors.
func (m *Metrics) ExecutorInstrument() *mppsolar.ExecutorInstrument {
	return &mppsolar.ExecutorInstrument{
		RecordTime: func(command string, execTime time.Duration) {
			m.commandDuration.WithLabelValues(command).Observe(execTime.Seconds())
		},
		RecordError: func(command string, err error) {
			m.commandErrors.WithLabelValues(command).Inc()
		},
	}
}

func (m *Metrics) RecordPoll(kind string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.polls.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
