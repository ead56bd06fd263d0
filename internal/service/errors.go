// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import (
	"errors"
	"fmt"

	"github.com/bigkaa/consultportal/internal/backend"
)

var (
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrConsultantNotFound — email консультанта не найден.
	ErrConsultantNotFound = errors.New("консультант не найден")
	// ErrForbidden — недостаточно прав для запроса.
	ErrForbidden = errors.New("недостаточно прав")
	// ErrBackendUnavailable — backend недоступен или отклонил вызов.
	ErrBackendUnavailable = errors.New("backend недоступен")
	// ErrConfigurationMissing — не задан доступ к backend.
	ErrConfigurationMissing = errors.New("не задана конфигурация доступа к backend")
	// ErrInternal — внутренняя ошибка обработки запроса.
	ErrInternal = errors.New("внутренняя ошибка")
)

// classifyBackend приводит ошибку backend к ошибке сервисного слоя.
// Исходная ошибка сохраняется в цепочке.
func classifyBackend(err error) error {
	switch backend.Kind(err) {
	case nil:
		return fmt.Errorf("%w: %w", ErrInternal, err)
	case backend.ErrConfigurationMissing:
		return fmt.Errorf("%w: %w", ErrConfigurationMissing, err)
	case backend.ErrNoSession:
		return fmt.Errorf("%w: %w", ErrForbidden, err)
	case backend.ErrInvalidIdentifier:
		return fmt.Errorf("%w: %w", ErrValidation, err)
	default:
		return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
}

// KindOf возвращает вид ошибки сервисного слоя (ErrValidation, ErrForbidden, ...).
func KindOf(err error) error {
	for _, kind := range []error{
		ErrValidation, ErrConsultantNotFound, ErrForbidden,
		ErrConfigurationMissing, ErrBackendUnavailable,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return ErrInternal
}

// PublicMessage возвращает стабильное сообщение для пользователя без деталей backend.
func PublicMessage(err error) string {
	kind := KindOf(err)
	switch kind {
	case ErrBackendUnavailable:
		if bk := backend.Kind(err); bk != nil && bk != backend.ErrConnectionFailure {
			return fmt.Sprintf("%v: %v", kind, bk)
		}
	case ErrValidation:
		// Сообщение валидации содержит имя поля и пригодно для показа
		return err.Error()
	}
	return kind.Error()
}
