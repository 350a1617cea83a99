package explorer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Загрузки коллекции по происхождению снимка: source, fallback, mock
	Refreshes *prometheus.CounterVec

	// Отказы источника, закрытые симулятором
	SourceFallbacks prometheus.Counter

	// Записи, отброшенные при декодировании и дедупликации
	MalformedRecords prometheus.Counter

	// Размер текущего снимка
	SnapshotEvents prometheus.Gauge

	// Время свертки фильтров по вкладкам
	ReduceDuration *prometheus.HistogramVec

	// Состояние Circuit Breaker источника (0 - closed, 1 - half-open, 2 - open)
	SourceBreakerState prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		Refreshes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "explorer_refreshes_total",
			Help: "Total number of collection refreshes by snapshot origin.",
		}, []string{"origin"}),

		SourceFallbacks: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "explorer_source_fallbacks_total",
			Help: "Total number of source failures replaced by simulated events.",
		}),

		MalformedRecords: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "explorer_malformed_records_total",
			Help: "Total number of dropped malformed or duplicate records.",
		}),

		SnapshotEvents: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "explorer_snapshot_events",
			Help: "Number of events in the current snapshot.",
		}),

		ReduceDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "explorer_reduce_duration_seconds",
			Help:    "Histogram of filter reduce latencies.",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		}, []string{"view"}),

		SourceBreakerState: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "explorer_source_circuit_breaker_state",
			Help: "Current state of the logs source circuit breaker (0=closed, 1=half-open, 2=open).",
		}),
	}
}
