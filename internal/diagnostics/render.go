package diagnostics

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bigkaa/consultportal/internal/domain/model"
)

// Форматы вывода отчёта.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Render выводит отчёт в указанном формате.
func Render(w io.Writer, report model.HealthReport, format string) error {
	switch strings.ToLower(format) {
	case "", FormatText:
		return renderText(w, report)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("неизвестный формат %q, допустимые: text, json, yaml", format)
	}
}

func renderText(w io.Writer, r model.HealthReport) error {
	var b strings.Builder

	fmt.Fprintf(&b, "Состояние: %s (оценка %d/100)\n", r.Status, r.Score)
	fmt.Fprintf(&b, "Проверки: PASS %d, FAIL %d, WARNING %d, INFO %d\n",
		r.Counts.Pass, r.Counts.Fail, r.Counts.Warning, r.Counts.Info)
	fmt.Fprintf(&b, "Запуск: %s, длительность %s\n",
		r.StartedAt.Format(time.RFC3339), r.Duration.Round(time.Millisecond))
	fmt.Fprintf(&b, "Причина [%s]: %s\n", r.RootCause.Priority, r.RootCause.Title)
	if r.RootCause.Fix != "" {
		fmt.Fprintf(&b, "  Исправление: %s\n", r.RootCause.Fix)
	}

	for _, cat := range r.Categories() {
		mark := "-"
		if ok, scored := r.Summary[cat]; scored {
			mark = "FAIL"
			if ok {
				mark = "OK"
			}
		}
		fmt.Fprintf(&b, "\n=== %s [%s] ===\n", cat, mark)
		for _, res := range r.ResultsIn(cat) {
			fmt.Fprintf(&b, "  %-8s %s: %s\n", res.Status, res.Test, res.Message)
			if res.Fix != "" && res.Status != model.StatusPass {
				fmt.Fprintf(&b, "           исправление: %s\n", res.Fix)
			}
			if missing, ok := res.Details[DetailMissing].([]string); ok && len(missing) > 0 {
				sorted := append([]string(nil), missing...)
				sort.Strings(sorted)
				fmt.Fprintf(&b, "           отсутствуют: %s\n", strings.Join(sorted, ", "))
			}
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// ExitCode — код завершения CLI по статусу: 0 HEALTHY, 1 DEGRADED, 2 CRITICAL.
func ExitCode(status model.HealthStatus) int {
	switch status {
	case model.HealthHealthy:
		return 0
	case model.HealthDegraded:
		return 1
	default:
		return 2
	}
}
