package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "livequiz"

var (
	// GameTransitions counts applied state machine transitions by name.
	GameTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "game_transitions_total",
		Help:      "Game phase transitions applied, by transition.",
	}, []string{"transition"})

	// AnswersSubmitted counts answer submissions by result: accepted, duplicate, closed, invalid.
	AnswersSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "answers_submitted_total",
		Help:      "Answer submissions, by result.",
	}, []string{"result"})

	// AutoReveals counts reveals triggered by the pacer, by trigger: all_answered or timer.
	AutoReveals = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auto_reveals_total",
		Help:      "Reveals triggered automatically, by trigger.",
	}, []string{"trigger"})

	FeedChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "feed_changes_published_total",
		Help:      "Changes published to the change-feed, by table and type.",
	}, []string{"table", "type"})

	FeedSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "feed_subscribers",
		Help:      "Open change-feed subscriptions.",
	})
)
