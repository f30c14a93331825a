package reviewable

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	performsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agora",
		Subsystem: "review",
		Name:      "performs_total",
		Help:      "Perform calls by variant, action, and outcome.",
	}, []string{"variant", "action", "outcome"})

	conflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agora",
		Subsystem: "review",
		Name:      "version_conflicts_total",
		Help:      "Performs rejected by the optimistic version check.",
	})

	scoreContributionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agora",
		Subsystem: "review",
		Name:      "score_contributions_total",
		Help:      "Score contributions recorded, by flag kind.",
	}, []string{"kind"})

	itemsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agora",
		Subsystem: "review",
		Name:      "items_created_total",
		Help:      "Items admitted to the queue, split fresh vs reopened.",
	}, []string{"variant", "reopened"})
)
