package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cd_telemetry_events_total",
			Help: "Количество событий телеметрии по домену, ключу и уровню.",
		},
		[]string{"domain", "key", "level"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cd_operation_duration_seconds",
			Help:    "Длительность операций справочника.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"domain", "key"},
	)

	invalidationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cd_cache_invalidations_total",
		Help: "Количество инвалидаций кэша по правкам таблицы-зеркала.",
	})
)
