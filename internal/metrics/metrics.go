// Package metrics defines the Prometheus collectors of the bot.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gpt2bot"

// Outcome label values.
const (
	OK       = "ok"
	Failed   = "failed"
	Rejected = "rejected"
	Skipped  = "skipped"
)

var (
	Generations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "generations_total",
		Help:      "Generation requests by model and outcome.",
	}, []string{"model", "outcome"})

	GenerationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "generation_duration_seconds",
		Help:      "Time spent in the model adapter per generation.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
	}, []string{"model"})

	ModelLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "model_loads_total",
		Help:      "Model (re)load attempts by model and outcome.",
	}, []string{"model", "outcome"})

	Downloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "model_downloads_total",
		Help:      "Model weight downloads by model and outcome.",
	}, []string{"model", "outcome"})

	ConfigUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "config_updates_total",
		Help:      "Configuration batches by outcome.",
	}, []string{"outcome"})

	Commands = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commands_total",
		Help:      "Dispatched chat commands by name.",
	}, []string{"command"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Generation tasks accepted and not yet finished.",
	})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
