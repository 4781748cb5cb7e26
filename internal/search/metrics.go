package search

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	searchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "geocatalog",
		Subsystem: "search",
		Name:      "requests_total",
		Help:      "Searches executed, labeled by execution mode.",
	}, []string{"mode"})

	itemsExcludedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "geocatalog",
		Subsystem: "search",
		Name:      "items_excluded_total",
		Help:      "Items dropped because filter evaluation failed on them.",
	})

	cursorRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "geocatalog",
		Subsystem: "search",
		Name:      "cursors_rejected_total",
		Help:      "Pagination tokens rejected, labeled by reason.",
	}, []string{"reason"})

	fetchBatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "geocatalog",
		Subsystem: "search",
		Name:      "fallback_batches_total",
		Help:      "Store batches fetched while evaluating filters in process.",
	})
)
