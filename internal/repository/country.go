package repository

import (
	"context"

	"github.com/bigkaa/consultportal/internal/backend"
	"github.com/bigkaa/consultportal/internal/domain/model"
)

var countryColumns = []string{"id", "code", "name"}

type countryRow struct {
	ID   int    `json:"id"   db:"id"`
	Code string `json:"code" db:"code"`
	Name string `json:"name" db:"name"`
}

func (r countryRow) toModel() *model.Country {
	return &model.Country{ID: r.ID, Code: r.Code, Name: r.Name}
}

// CountryRepository — справочник стран.
type CountryRepository interface {
	// GetByID возвращает страну по идентификатору или ErrNotFound.
	GetByID(ctx context.Context, id int) (*model.Country, error)
	// GetByCode возвращает страну по коду (без учёта регистра) или ErrNotFound.
	GetByCode(ctx context.Context, code string) (*model.Country, error)
}

type countryRepo struct {
	tr backend.Transport
}

// NewCountryRepository создаёт репозиторий стран.
func NewCountryRepository(tr backend.Transport) CountryRepository {
	return &countryRepo{tr: tr}
}

func (r *countryRepo) GetByID(ctx context.Context, id int) (*model.Country, error) {
	return r.getOne(ctx, backend.FilterSpec{Eq: map[string]any{"id": id}})
}

func (r *countryRepo) GetByCode(ctx context.Context, code string) (*model.Country, error) {
	return r.getOne(ctx, backend.FilterSpec{EqFold: map[string]string{"code": code}})
}

func (r *countryRepo) getOne(ctx context.Context, f backend.FilterSpec) (*model.Country, error) {
	f.Columns = countryColumns
	f.Limit = 1

	var rows []countryRow
	if err := r.tr.Query(ctx, tableCountries, f, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0].toModel(), nil
}
