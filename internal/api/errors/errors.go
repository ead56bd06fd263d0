// Пакет errors — ответы с ошибками HTTP API Consult Portal.
// Единый плоский формат: {"error": "...", "code": "..."}.
// Тот же формат возвращает Resolver при ошибке ({error}), поэтому
// клиенту достаточно одной схемы. Все ответы с ошибками идут через WriteError.
package errors

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"
)

// Коды ошибок, определённые в OpenAPI контракте.
const (
	CodeValidationError      = "VALIDATION_ERROR"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
	CodeNotFound             = "NOT_FOUND"
	CodeRateLimited          = "RATE_LIMITED"
	CodeConfigurationMissing = "CONFIGURATION_MISSING"
	CodeBackendUnavailable   = "BACKEND_UNAVAILABLE"
	CodeInternalError        = "INTERNAL_ERROR"
)

// Body — тело ответа с ошибкой.
type Body struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	// Debug — исходная ошибка backend (только для администраторов)
	Debug string `json:"debug,omitempty"`
}

// Write записывает ответ с ошибкой.
func Write(w http.ResponseWriter, statusCode int, body Body) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteError записывает ответ ошибки в стандартном формате.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	Write(w, statusCode, Body{Error: message, Code: code})
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden — 403 недостаточно прав.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// RateLimited — 429 с заголовком Retry-After (секунды, округление вверх).
func RateLimited(w http.ResponseWriter, message string, retryAfter time.Duration) {
	secs := int(math.Ceil(retryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	WriteError(w, http.StatusTooManyRequests, CodeRateLimited, message)
}

// ConfigurationMissing — 503 не задан доступ к backend.
func ConfigurationMissing(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusServiceUnavailable, CodeConfigurationMissing, message)
}

// BackendUnavailable — 502 backend недоступен или отклонил вызов.
func BackendUnavailable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadGateway, CodeBackendUnavailable, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
