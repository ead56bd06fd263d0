// handler.go — основной обработчик API Consult Portal.
// Объединяет health и бизнес-обработчики, ошибки сервисного слоя
// переводятся в единый формат internal/api/errors.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/consultportal/internal/api/errors"
	"github.com/bigkaa/consultportal/internal/diagnostics"
	"github.com/bigkaa/consultportal/internal/domain/model"
	"github.com/bigkaa/consultportal/internal/service"
	"github.com/bigkaa/consultportal/internal/session"
)

// maxBodySize — максимальный размер тела JSON-запроса.
const maxBodySize = 64 << 10

// Resolver — разрешение видимости клиентов консультанта.
type Resolver interface {
	Resolve(ctx context.Context, sess *session.Session, q service.VisibilityQuery) service.VisibilityResult
}

// AccountingLookup — графики платежей.
type AccountingLookup interface {
	Lookup(ctx context.Context, sess *session.Session, clientID string) ([]model.PaymentSchedule, error)
}

// MessageLister — сообщения пользователя.
type MessageLister interface {
	List(ctx context.Context, sess *session.Session, limit, offset int) ([]model.Message, error)
}

// Reporter — запуск диагностики с формированием отчёта.
type Reporter interface {
	Report(ctx context.Context, sess *session.Session, req *diagnostics.RequestInfo) model.HealthReport
}

// APIHandler — основной обработчик API Consult Portal.
type APIHandler struct {
	health      *HealthHandler
	resolver    Resolver
	accounting  AccountingLookup
	messaging   MessageLister
	diagnostics Reporter
	logger      *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	resolver Resolver,
	accounting AccountingLookup,
	messaging MessageLister,
	diag Reporter,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:      health,
		resolver:    resolver,
		accounting:  accounting,
		messaging:   messaging,
		diagnostics: diag,
		logger:      logger.With(slog.String("component", "api_handler")),
	}
}

// --- Health endpoints (делегируются в HealthHandler) ---

// HealthLive — liveness probe.
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe.
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики.
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// listResponse — ответ со страницей данных.
type listResponse[T any] struct {
	Data  []T `json:"data"`
	Count int `json:"count"`
}

func newListResponse[T any](data []T) listResponse[T] {
	if data == nil {
		data = []T{}
	}
	return listResponse[T]{Data: data, Count: len(data)}
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON читает тело запроса в dst. Пустое тело допустимо.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("некорректное тело запроса: %w", err)
	}
	return nil
}

// statusForKind — HTTP-статус для вида ошибки сервисного слоя.
func statusForKind(kind error) (int, string) {
	switch kind {
	case service.ErrValidation:
		return http.StatusBadRequest, apierrors.CodeValidationError
	case service.ErrConsultantNotFound:
		return http.StatusNotFound, apierrors.CodeNotFound
	case service.ErrForbidden:
		return http.StatusForbidden, apierrors.CodeForbidden
	case service.ErrBackendUnavailable:
		return http.StatusBadGateway, apierrors.CodeBackendUnavailable
	case service.ErrConfigurationMissing:
		return http.StatusServiceUnavailable, apierrors.CodeConfigurationMissing
	default:
		return http.StatusInternalServerError, apierrors.CodeInternalError
	}
}

// writeServiceError записывает ошибку сервисного слоя.
// Исходная ошибка показывается только администратору.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusForKind(service.KindOf(err))
	body := apierrors.Body{Error: service.PublicMessage(err), Code: code}
	if session.FromContext(r.Context()).IsAdmin() {
		body.Debug = err.Error()
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("Ошибка обработки запроса",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	apierrors.Write(w, status, body)
}
