package diagnostics

import (
	"math"
	"time"

	"github.com/bigkaa/consultportal/internal/domain/model"
)

// Aggregate сворачивает результаты в отчёт.
// Результаты INFO в оценку не входят.
func Aggregate(results []model.Result, startedAt time.Time, duration time.Duration) model.HealthReport {
	if results == nil {
		results = []model.Result{}
	}
	counts := Count(results)
	return model.HealthReport{
		Status:    OverallStatus(counts),
		Score:     Score(counts),
		Counts:    counts,
		Summary:   Summarize(results),
		RootCause: Classify(results),
		Results:   results,
		StartedAt: startedAt,
		Duration:  duration,
	}
}

// Count считает результаты по статусам.
func Count(results []model.Result) model.Counts {
	var c model.Counts
	for _, r := range results {
		switch r.Status {
		case model.StatusPass:
			c.Pass++
		case model.StatusFail:
			c.Fail++
		case model.StatusWarning:
			c.Warning++
		case model.StatusInfo:
			c.Info++
		}
	}
	c.Total = c.Pass + c.Fail + c.Warning
	return c
}

// Score — доля PASS среди учитываемых результатов, 0..100.
func Score(c model.Counts) int {
	if c.Total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(c.Pass) / float64(c.Total)))
}

// OverallStatus: HEALTHY — нет FAIL и не больше 2 WARNING,
// DEGRADED — не больше 2 FAIL, иначе CRITICAL.
func OverallStatus(c model.Counts) model.HealthStatus {
	switch {
	case c.Fail == 0 && c.Warning <= 2:
		return model.HealthHealthy
	case c.Fail <= 2:
		return model.HealthDegraded
	default:
		return model.HealthCritical
	}
}

// Summarize — категория исправна, если в ней есть хотя бы один PASS.
// Категории только с INFO не попадают в сводку.
func Summarize(results []model.Result) map[string]bool {
	summary := make(map[string]bool)
	for _, r := range results {
		if r.Status == model.StatusInfo {
			continue
		}
		summary[r.Category] = summary[r.Category] || r.Status == model.StatusPass
	}
	return summary
}
