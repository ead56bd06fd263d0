package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bigkaa/consultportal/internal/backend"
	"github.com/bigkaa/consultportal/internal/domain/model"
)

// ClientQuery — параметры процедуры get_consultant_clients.
type ClientQuery struct {
	// ConsultantID — UUID консультанта
	ConsultantID string
	// CountryID — страна (обязательна)
	CountryID int
	// Search — подстрока для поиска; пустая строка = без поиска
	Search string
	// Limit, Offset — пагинация на стороне хранилища
	Limit  int
	Offset int
}

// clientRow — строка результата процедуры.
type clientRow struct {
	ID           string     `json:"id"            db:"id"`
	FirstName    *string    `json:"first_name"    db:"first_name"`
	LastName     *string    `json:"last_name"     db:"last_name"`
	Email        string     `json:"email"         db:"email"`
	CompanyName  *string    `json:"company_name"  db:"company_name"`
	BusinessType *string    `json:"business_type" db:"business_type"`
	Language     *string    `json:"language"      db:"language"`
	CountryName  *string    `json:"country_name"  db:"country_name"`
	ClientSince  *time.Time `json:"client_since"  db:"client_since"`
	AssignedAt   *time.Time `json:"assigned_at"   db:"assigned_at"`
}

// toSummary приводит строку процедуры к плоскому ClientSummary.
func (r clientRow) toSummary() model.ClientSummary {
	u := model.User{FirstName: strings.TrimSpace(deref(r.FirstName)), LastName: strings.TrimSpace(deref(r.LastName))}
	return model.ClientSummary{
		ID:           r.ID,
		FullName:     u.FullName(),
		Email:        r.Email,
		CompanyName:  deref(r.CompanyName),
		BusinessType: deref(r.BusinessType),
		Language:     deref(r.Language),
		CountryName:  deref(r.CountryName),
		ClientSince:  r.ClientSince,
		AssignedAt:   r.AssignedAt,
	}
}

// VisibilityRepository — клиенты, видимые консультанту.
type VisibilityRepository interface {
	// ListConsultantClients вызывает процедуру get_consultant_clients.
	// Порядок строк — порядок, возвращённый процедурой.
	ListConsultantClients(ctx context.Context, q ClientQuery) ([]model.ClientSummary, error)
}

type visibilityRepo struct {
	tr backend.Transport
}

// NewVisibilityRepository создаёт репозиторий видимости клиентов.
func NewVisibilityRepository(tr backend.Transport) VisibilityRepository {
	return &visibilityRepo{tr: tr}
}

func (r *visibilityRepo) ListConsultantClients(ctx context.Context, q ClientQuery) ([]model.ClientSummary, error) {
	var search any
	if s := strings.TrimSpace(q.Search); s != "" {
		search = s
	}

	var rows []clientRow
	err := r.tr.CallProcedure(ctx, ProcConsultantClients, backend.Params{
		{Name: "p_consultant_id", Value: q.ConsultantID},
		{Name: "p_country_id", Value: q.CountryID},
		{Name: "p_search", Value: search},
		{Name: "p_limit", Value: q.Limit},
		{Name: "p_offset", Value: q.Offset},
	}, &rows)
	if err != nil {
		return nil, err
	}

	out := make([]model.ClientSummary, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toSummary())
	}
	return out, nil
}
