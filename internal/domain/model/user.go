// Пакет model — доменные модели Consult Portal.
// Модели не зависят от транспорта backend: строки хранилища
// приводятся к ним явно в слое repository.
package model

import "time"

// Роли пользователей платформы.
const (
	RoleClient     = "client"
	RoleConsultant = "consultant"
	RoleAdmin      = "admin"
)

// User — пользователь платформы (таблица users).
type User struct {
	// ID — UUID пользователя
	ID string
	// Email — адрес электронной почты (уникален без учёта регистра)
	Email string
	// Role — роль: admin, consultant, client
	Role string
	// FirstName, LastName — имя и фамилия
	FirstName string
	LastName  string
	// CompanyName — название компании клиента
	CompanyName string
	// BusinessType — тип бизнеса клиента
	BusinessType string
	// Language — предпочитаемый язык интерфейса
	Language string
	// CountryID — страна пользователя (nil если не задана)
	CountryID *int
	// IsActive — консультанты не удаляются, а деактивируются
	IsActive bool
	// CreatedAt — дата регистрации
	CreatedAt time.Time
}

// FullName возвращает имя и фамилию через пробел.
func (u *User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}

// ConsultantProfile — профиль консультанта (таблица consultant_profiles).
type ConsultantProfile struct {
	UserID            string
	CommissionRate    float64
	PerformanceRating float64
	// CountryIDs — страны, закреплённые за консультантом
	CountryIDs []int
}

// Country — справочник стран.
type Country struct {
	ID   int
	Code string
	Name string
}
