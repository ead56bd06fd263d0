// Пакет repository — типизированные запросы к хранилищу через
// backend.Transport. Строки читаются во внутренние структуры с тегами
// json/db и явно приводятся к доменным моделям.
//
// Уровень доступа определяется транспортом, переданным в конструктор:
// один и тот же репозиторий работает и с повышенным, и с ограниченным доступом.
package repository

import (
	"context"
	"errors"

	"github.com/bigkaa/consultportal/internal/backend"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — запись не найдена (или скрыта политикой доступа).
	ErrNotFound = errors.New("запись не найдена")
)

// Имена таблиц и процедур хранилища.
const (
	tableCountries    = "countries"
	tableUsers        = "users"
	tableProfiles     = "consultant_profiles"
	tableApplications = "applications"
	tableAssignments  = "consultant_client_assignments"
	tablePayments     = "payment_schedules"
	tableMessages     = "messages"

	// ProcConsultantClients — процедура выборки клиентов консультанта.
	ProcConsultantClients = "get_consultant_clients"
)

// Ping выполняет тривиальное чтение справочника стран.
func Ping(ctx context.Context, tr backend.Transport) error {
	var rows []countryRow
	return tr.Query(ctx, tableCountries, backend.FilterSpec{
		Columns: countryColumns,
		Limit:   1,
	}, &rows)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
