package pages

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestDiagnostics_Render(t *testing.T) {
	data := DiagnosticsData{
		Status:     "DEGRADED",
		ScoreLabel: "67/100",
		CountsLine: "PASS 2 · FAIL 1",
		Cause:      CauseView{Priority: "HIGH", Title: "Тестовый консультант не найден", Fix: "создайте консультанта"},
		Sections: []SectionView{
			{Label: "Database [OK]", Rows: []RowView{{Status: "PASS", Test: "elevated read", Message: "ok"}}},
			{Label: "Test Data [FAIL]", Open: true, Rows: []RowView{{
				Status: "FAIL", Test: "consultant", Message: "consultant not found: <b>",
				Fix: "добавьте запись", Missing: "a@x, b@x",
			}}},
		},
	}

	var buf bytes.Buffer
	if err := Diagnostics(data).Render(context.Background(), &buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	html := buf.String()

	for _, want := range []string{
		`<span class="status" data-status="DEGRADED">DEGRADED</span>`,
		"<small>67/100</small>",
		"[HIGH] Тестовый консультант не найден",
		`<p class="fix">создайте консультанта</p>`,
		"<details><summary>Database [OK]</summary>",
		"<details open><summary>Test Data [FAIL]</summary>",
		`<div class="fix">Исправление: добавьте запись</div>`,
		"<div>Отсутствуют: a@x, b@x</div>",
		"consultant not found: &lt;b&gt;",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("в странице нет %q", want)
		}
	}
	if strings.Count(html, "<tr>") != 2 {
		t.Errorf("строк таблицы: %d, ожидалось 2", strings.Count(html, "<tr>"))
	}
}

func TestDiagnostics_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	if err := Diagnostics(DiagnosticsData{}).Render(ctx, &buf); err == nil {
		t.Error("ожидалась ошибка отменённого контекста")
	}
	if buf.Len() != 0 {
		t.Errorf("записано %d байт при отменённом контексте", buf.Len())
	}
}
