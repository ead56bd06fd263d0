package diagnostics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/consultportal/internal/domain/model"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cp_diagnostics_runs_total",
		Help: "Количество запусков диагностики по итоговому статусу.",
	}, []string{"status"})
	scoreGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cp_diagnostics_score",
		Help: "Оценка последнего запуска диагностики (0-100).",
	})
	resultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cp_diagnostics_results_total",
		Help: "Количество результатов проверок по категории и статусу.",
	}, []string{"category", "status"})
	probeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cp_diagnostics_probe_duration_seconds",
		Help:    "Длительность одной диагностической проверки.",
		Buckets: prometheus.DefBuckets,
	}, []string{"probe"})
)

func observeReport(r model.HealthReport) {
	runsTotal.WithLabelValues(string(r.Status)).Inc()
	scoreGauge.Set(float64(r.Score))
	for _, res := range r.Results {
		resultsTotal.WithLabelValues(res.Category, string(res.Status)).Inc()
	}
}
