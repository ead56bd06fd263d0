package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/bigkaa/consultportal/internal/api/pages"
	"github.com/bigkaa/consultportal/internal/diagnostics"
	"github.com/bigkaa/consultportal/internal/session"
)

// DevToolingHeader — заголовок, которым инструменты разработчика
// помечают свои запросы.
const DevToolingHeader = "X-Dev-Tooling"

// requestInfo собирает сведения о запросе для проверок категории Frontend.
func requestInfo(r *http.Request) *diagnostics.RequestInfo {
	dev, _ := strconv.ParseBool(r.URL.Query().Get("devTooling"))
	if !dev {
		dev, _ = strconv.ParseBool(r.Header.Get(DevToolingHeader))
	}
	return &diagnostics.RequestInfo{
		Path:       r.URL.Path,
		UserAgent:  r.UserAgent(),
		DevTooling: dev,
	}
}

// Diagnostics — GET /api/v1/diagnostics. Отчёт в JSON.
// Код ответа всегда 200: состояние системы передаётся в теле.
func (h *APIHandler) Diagnostics(w http.ResponseWriter, r *http.Request) {
	report := h.diagnostics.Report(r.Context(), session.FromContext(r.Context()), requestInfo(r))
	writeJSON(w, http.StatusOK, report)
}

// DiagnosticsPage — GET /diagnostics. HTML-страница отчёта:
// по одному раскрывающемуся блоку на категорию.
func (h *APIHandler) DiagnosticsPage(w http.ResponseWriter, r *http.Request) {
	report := h.diagnostics.Report(r.Context(), session.FromContext(r.Context()), requestInfo(r))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pages.Diagnostics(diagnosticsPageData(report)).Render(r.Context(), w); err != nil {
		h.logger.Error("Ошибка рендеринга страницы диагностики", slog.String("error", err.Error()))
	}
}
