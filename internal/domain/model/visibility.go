package model

import "time"

// ClientSummary — плоское представление клиента, видимого консультанту.
// Формат JSON совпадает с ответом POST /api/v1/consultant-clients.
type ClientSummary struct {
	ID           string     `json:"id"           yaml:"id"`
	FullName     string     `json:"fullName"     yaml:"full_name"`
	Email        string     `json:"email"        yaml:"email"`
	CompanyName  string     `json:"companyName"  yaml:"company_name"`
	BusinessType string     `json:"businessType" yaml:"business_type"`
	Language     string     `json:"language"     yaml:"language"`
	CountryName  string     `json:"countryName"  yaml:"country_name"`
	ClientSince  *time.Time `json:"clientSince"  yaml:"client_since"`
	AssignedAt   *time.Time `json:"assignedAt"   yaml:"assigned_at"`
}

// Assignment — связь консультант↔клиент.
// Источник — заявка (applications) или явное назначение
// (consultant_client_assignments). Записи не удаляются.
type Assignment struct {
	ConsultantID string
	ClientID     string
	CountryID    int
	// Source — applications или assignments
	Source     string
	AssignedAt time.Time
}

// PaymentSchedule — строка графика платежей клиента.
type PaymentSchedule struct {
	ID           string    `json:"id"`
	ClientID     string    `json:"clientId"`
	ConsultantID string    `json:"consultantId"`
	Amount       float64   `json:"amount"`
	Currency     string    `json:"currency"`
	DueDate      time.Time `json:"dueDate"`
	Status       string    `json:"status"`
}

// Message — сообщение между пользователями.
type Message struct {
	ID          string     `json:"id"`
	SenderID    string     `json:"senderId"`
	RecipientID string     `json:"recipientId"`
	Body        string     `json:"body"`
	CreatedAt   time.Time  `json:"createdAt"`
	ReadAt      *time.Time `json:"readAt,omitempty"`
}
