// Package metrics wires search and live-loop activity into prometheus
// collectors so a running search or live loop can be scraped the same
// way the rest of the stack's services are.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry bundles the collectors a search or live run reports into.
// It satisfies search.MetricsSink and live.MetricsSink. The episode and
// invalid-observation counters are registered too, but neither the
// evaluation loop nor the agents increment them; they move only when a
// caller invokes ObserveEpisode or ObserveInvalidObservation.
type Registry struct {
	evaluationsTotal       prometheus.Counter
	bestScore              prometheus.Gauge
	episodesTotal          prometheus.Counter
	invalidObservationsTotal prometheus.Counter
	liveStepsTotal         prometheus.Counter
	liveErrorsTotal        prometheus.Counter
}

// NewRegistry registers the olps_* collectors against reg. Pass
// prometheus.DefaultRegisterer to expose them on the default handler.
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		evaluationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "olps_search_evaluations_total",
			Help: "Total number of parameter sets scored by a search driver.",
		}),
		bestScore: factory.NewGauge(prometheus.GaugeOpts{
			Name: "olps_search_best_score",
			Help: "Best episode score observed by the most recent search run.",
		}),
		episodesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "olps_eval_episodes_total",
			Help: "Total number of evaluation episodes run.",
		}),
		invalidObservationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "olps_agent_invalid_observation_total",
			Help: "Total number of observations rejected by an agent before rebalancing.",
		}),
		liveStepsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "olps_live_steps_total",
			Help: "Total number of bar boundaries processed by the live loop.",
		}),
		liveErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "olps_live_errors_total",
			Help: "Total number of bars the live loop skipped after an observation, agent or exchange error.",
		}),
	}
}

// ObserveEvaluation implements search.MetricsSink.
func (r *Registry) ObserveEvaluation() { r.evaluationsTotal.Inc() }

// ObserveBestScore implements search.MetricsSink.
func (r *Registry) ObserveBestScore(score float64) { r.bestScore.Set(score) }

// ObserveEpisode records one completed evaluation episode.
func (r *Registry) ObserveEpisode() { r.episodesTotal.Inc() }

// ObserveInvalidObservation records one observation an agent rejected.
func (r *Registry) ObserveInvalidObservation() { r.invalidObservationsTotal.Inc() }

// ObserveLiveStep records one processed bar boundary in the live loop.
func (r *Registry) ObserveLiveStep() { r.liveStepsTotal.Inc() }

// ObserveLiveError records one bar skipped by the live loop after an
// error.
func (r *Registry) ObserveLiveError() { r.liveErrorsTotal.Inc() }
