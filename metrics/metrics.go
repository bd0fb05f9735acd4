// Package metrics exposes prometheus collectors for directory operations,
// chat lock waits, picker callbacks and bot commands.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// operations counts directory operations by name and outcome. The
	// outcome is "ok" or an error kind.
	operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mentionbot_directory_operations_total",
			Help: "Directory operations by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	lockWait = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mentionbot_chat_lock_wait_seconds",
			Help:    "Time spent waiting for the chat lock before a write.",
			Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	callbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mentionbot_picker_callbacks_total",
			Help: "Picker callbacks by outcome.",
		},
		[]string{"outcome"},
	)

	commands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mentionbot_commands_total",
			Help: "Bot commands by command and outcome.",
		},
		[]string{"command", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(operations, lockWait, callbacks, commands)
}

func ObserveOperation(operation, outcome string) {
	operations.WithLabelValues(operation, outcome).Inc()
}

func ObserveLockWait(operation string, d time.Duration) {
	lockWait.WithLabelValues(operation).Observe(d.Seconds())
}

func ObserveCallback(outcome string) {
	callbacks.WithLabelValues(outcome).Inc()
}

func ObserveCommand(command, outcome string) {
	commands.WithLabelValues(command, outcome).Inc()
}

// Handler serves the default registry in the text exposition format.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}
