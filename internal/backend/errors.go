package backend

import (
	"errors"
	"fmt"
)

// Виды ошибок доступа к backend.
var (
	// ErrConnectionFailure — сетевая ошибка или backend недоступен.
	ErrConnectionFailure = errors.New("backend недоступен")
	// ErrQueryRejected — запрос отклонён политикой доступа или backend.
	ErrQueryRejected = errors.New("запрос отклонён backend")
	// ErrProcedureMissing — процедура не существует.
	ErrProcedureMissing = errors.New("процедура не найдена")
	// ErrProcedureFailure — процедура существует, но завершилась ошибкой.
	ErrProcedureFailure = errors.New("ошибка выполнения процедуры")
	// ErrConfigurationMissing — не задан ключ или адрес для запрошенного уровня доступа.
	ErrConfigurationMissing = errors.New("не задана конфигурация доступа к backend")
	// ErrNoSession — ограниченный доступ запрошен без активной сессии.
	ErrNoSession = errors.New("нет активной сессии пользователя")
	// ErrInvalidIdentifier — недопустимое имя таблицы, столбца или процедуры.
	ErrInvalidIdentifier = errors.New("недопустимый идентификатор")
)

// Коды ошибок хранилища, используемые при классификации.
const (
	// CodeUndefinedFunction — функция не существует (PostgreSQL 42883).
	CodeUndefinedFunction = "42883"
	// CodeInsufficientPrivilege — нарушение политики доступа (PostgreSQL 42501).
	CodeInsufficientPrivilege = "42501"
	// CodeSchemaCacheMiss — PostgREST не нашёл функцию в кэше схемы.
	CodeSchemaCacheMiss = "PGRST202"
)

// Error — ошибка backend с исходным кодом и сообщением транспорта.
// Unwrap возвращает один из Err* выше.
type Error struct {
	// Kind — вид ошибки (ErrConnectionFailure, ErrQueryRejected, ...)
	Kind error
	// Op — операция: имя таблицы или rpc/<процедура>
	Op string
	// Code — код ошибки хранилища (42501, PGRST202, ...), если есть
	Code string
	// Status — HTTP-статус ответа (для REST-транспорта)
	Status int
	// Message — исходное сообщение backend
	Message string
	// Err — исходная ошибка транспорта (сетевые ошибки)
	Err error
}

func (e *Error) Error() string {
	detail := e.Message
	if detail == "" && e.Err != nil {
		detail = e.Err.Error()
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: %v [%s]: %s", e.Op, e.Kind, e.Code, detail)
	}
	if detail != "" {
		return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, detail)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Kind)
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// ClassifyCode определяет вид ошибки по коду хранилища.
// rpc — ошибка возникла при вызове процедуры.
func ClassifyCode(code string, rpc bool) error {
	switch code {
	case CodeUndefinedFunction, CodeSchemaCacheMiss:
		return ErrProcedureMissing
	case CodeInsufficientPrivilege:
		return ErrQueryRejected
	}
	if rpc {
		return ErrProcedureFailure
	}
	return ErrQueryRejected
}

// Kind возвращает вид ошибки backend или nil для прочих ошибок.
func Kind(err error) error {
	for _, kind := range []error{
		ErrConfigurationMissing, ErrNoSession, ErrConnectionFailure,
		ErrProcedureMissing, ErrProcedureFailure, ErrQueryRejected, ErrInvalidIdentifier,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// IsAccessPolicy — ошибка вызвана политикой доступа к строкам.
func IsAccessPolicy(err error) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Code == CodeInsufficientPrivilege || be.Status == 401 || be.Status == 403
	}
	return false
}
