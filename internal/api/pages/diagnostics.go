// Package pages — HTML-страницы Consult Portal (templ-компоненты).
// Исходники *.templ, код *_templ.go генерируется командой templ generate.
package pages

// DiagnosticsData — данные страницы отчёта диагностики.
type DiagnosticsData struct {
	// Status — итоговое состояние: HEALTHY, DEGRADED, CRITICAL
	Status string
	// ScoreLabel — оценка в виде "85/100"
	ScoreLabel string
	// CountsLine — строка со счётчиками, длительностью и версией
	CountsLine string
	Cause      CauseView
	Sections   []SectionView
}

// CauseView — наиболее вероятная причина проблем.
type CauseView struct {
	Priority    string
	Title       string
	Explanation string
	Fix         string
}

// SectionView — раскрываемый блок одной категории проверок.
type SectionView struct {
	// Label — заголовок вида "Database [OK]"
	Label string
	// Open — блок раскрыт (категория не пройдена)
	Open bool
	Rows []RowView
}

// RowView — строка результата проверки.
type RowView struct {
	Status  string
	Test    string
	Message string
	// Fix — исправление, пусто для PASS
	Fix string
	// Missing — отсутствующие элементы через запятую
	Missing string
}
