package repository

import (
	"context"
	"time"

	"github.com/bigkaa/consultportal/internal/backend"
	"github.com/bigkaa/consultportal/internal/domain/model"
)

// userColumns — столбцы users для SELECT.
var userColumns = []string{
	"id", "email", "role", "first_name", "last_name", "company_name",
	"business_type", "language", "country_id", "is_active", "created_at",
}

type userRow struct {
	ID           string    `json:"id"            db:"id"`
	Email        string    `json:"email"         db:"email"`
	Role         string    `json:"role"          db:"role"`
	FirstName    string    `json:"first_name"    db:"first_name"`
	LastName     string    `json:"last_name"     db:"last_name"`
	CompanyName  *string   `json:"company_name"  db:"company_name"`
	BusinessType *string   `json:"business_type" db:"business_type"`
	Language     string    `json:"language"      db:"language"`
	CountryID    *int      `json:"country_id"    db:"country_id"`
	IsActive     bool      `json:"is_active"     db:"is_active"`
	CreatedAt    time.Time `json:"created_at"    db:"created_at"`
}

func (r userRow) toModel() *model.User {
	return &model.User{
		ID:           r.ID,
		Email:        r.Email,
		Role:         r.Role,
		FirstName:    r.FirstName,
		LastName:     r.LastName,
		CompanyName:  deref(r.CompanyName),
		BusinessType: deref(r.BusinessType),
		Language:     r.Language,
		CountryID:    r.CountryID,
		IsActive:     r.IsActive,
		CreatedAt:    r.CreatedAt,
	}
}

type profileRow struct {
	UserID            string  `json:"user_id"            db:"user_id"`
	CommissionRate    float64 `json:"commission_rate"    db:"commission_rate"`
	PerformanceRating float64 `json:"performance_rating" db:"performance_rating"`
}

// UserRepository — пользователи платформы.
type UserRepository interface {
	// GetByID возвращает пользователя по UUID или ErrNotFound.
	GetByID(ctx context.Context, id string) (*model.User, error)
	// FindConsultantByEmail ищет консультанта по email без учёта регистра.
	FindConsultantByEmail(ctx context.Context, email string) (*model.User, error)
	// FindClientsByEmails возвращает найденных клиентов из списка email.
	// Отсутствующие адреса пропускаются.
	FindClientsByEmails(ctx context.Context, emails []string) ([]*model.User, error)
	// GetConsultantProfile возвращает профиль консультанта или ErrNotFound.
	GetConsultantProfile(ctx context.Context, userID string) (*model.ConsultantProfile, error)
	// CurrentUser возвращает пользователя транспорта с точки зрения backend.
	CurrentUser(ctx context.Context) (*backend.AuthUser, error)
}

type userRepo struct {
	tr backend.Transport
}

// NewUserRepository создаёт репозиторий пользователей.
func NewUserRepository(tr backend.Transport) UserRepository {
	return &userRepo{tr: tr}
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	return r.getOne(ctx, backend.FilterSpec{Eq: map[string]any{"id": id}})
}

func (r *userRepo) FindConsultantByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getOne(ctx, backend.FilterSpec{
		Eq:     map[string]any{"role": model.RoleConsultant},
		EqFold: map[string]string{"email": email},
	})
}

func (r *userRepo) FindClientsByEmails(ctx context.Context, emails []string) ([]*model.User, error) {
	if len(emails) == 0 {
		return nil, nil
	}
	in := make([]any, 0, len(emails))
	for _, e := range emails {
		in = append(in, e)
	}

	var rows []userRow
	err := r.tr.Query(ctx, tableUsers, backend.FilterSpec{
		Columns: userColumns,
		Eq:      map[string]any{"role": model.RoleClient},
		In:      map[string][]any{"email": in},
		Order:   []backend.Order{{Column: "email"}},
	}, &rows)
	if err != nil {
		return nil, err
	}

	users := make([]*model.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.toModel())
	}
	return users, nil
}

func (r *userRepo) GetConsultantProfile(ctx context.Context, userID string) (*model.ConsultantProfile, error) {
	var rows []profileRow
	err := r.tr.Query(ctx, tableProfiles, backend.FilterSpec{
		Columns: []string{"user_id", "commission_rate", "performance_rating"},
		Eq:      map[string]any{"user_id": userID},
		Limit:   1,
	}, &rows)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &model.ConsultantProfile{
		UserID:            rows[0].UserID,
		CommissionRate:    rows[0].CommissionRate,
		PerformanceRating: rows[0].PerformanceRating,
	}, nil
}

func (r *userRepo) CurrentUser(ctx context.Context) (*backend.AuthUser, error) {
	return r.tr.CurrentUser(ctx)
}

func (r *userRepo) getOne(ctx context.Context, f backend.FilterSpec) (*model.User, error) {
	f.Columns = userColumns
	f.Limit = 1

	var rows []userRow
	if err := r.tr.Query(ctx, tableUsers, f, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0].toModel(), nil
}
