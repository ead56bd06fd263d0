package handlers

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bigkaa/consultportal/internal/api/pages"
	"github.com/bigkaa/consultportal/internal/config"
	"github.com/bigkaa/consultportal/internal/diagnostics"
	"github.com/bigkaa/consultportal/internal/domain/model"
)

// diagnosticsPageData готовит данные страницы отчёта.
// Непройденная категория раскрыта, исправления показываются только для не-PASS.
func diagnosticsPageData(report model.HealthReport) pages.DiagnosticsData {
	data := pages.DiagnosticsData{
		Status:     string(report.Status),
		ScoreLabel: fmt.Sprintf("%d/100", report.Score),
		CountsLine: fmt.Sprintf("PASS %d · FAIL %d · WARNING %d · INFO %d · %s · версия %s",
			report.Counts.Pass, report.Counts.Fail, report.Counts.Warning, report.Counts.Info,
			report.Duration.Round(time.Millisecond), config.Version),
		Cause: pages.CauseView{
			Priority:    string(report.RootCause.Priority),
			Title:       report.RootCause.Title,
			Explanation: report.RootCause.Explanation,
			Fix:         report.RootCause.Fix,
		},
	}

	for _, cat := range report.Categories() {
		ok, scored := report.Summary[cat]
		mark := "-"
		if scored {
			mark = "FAIL"
			if ok {
				mark = "OK"
			}
		}
		section := pages.SectionView{
			Label: fmt.Sprintf("%s [%s]", cat, mark),
			Open:  scored && !ok,
		}
		for _, res := range report.ResultsIn(cat) {
			section.Rows = append(section.Rows, resultRow(res))
		}
		data.Sections = append(data.Sections, section)
	}
	return data
}

func resultRow(res model.Result) pages.RowView {
	row := pages.RowView{
		Status:  string(res.Status),
		Test:    res.Test,
		Message: res.Message,
	}
	if res.Status != model.StatusPass {
		row.Fix = res.Fix
	}
	if missing, ok := res.Details[diagnostics.DetailMissing].([]string); ok && len(missing) > 0 {
		sorted := append([]string(nil), missing...)
		sort.Strings(sorted)
		row.Missing = strings.Join(sorted, ", ")
	}
	return row
}
