package repository

import (
	"context"
	"time"

	"github.com/bigkaa/consultportal/internal/backend"
	"github.com/bigkaa/consultportal/internal/domain/model"
)

type paymentRow struct {
	ID           string    `json:"id"            db:"id"`
	ClientID     string    `json:"client_id"     db:"client_id"`
	ConsultantID *string   `json:"consultant_id" db:"consultant_id"`
	Amount       float64   `json:"amount"        db:"amount"`
	Currency     string    `json:"currency"      db:"currency"`
	DueDate      time.Time `json:"due_date"      db:"due_date"`
	Status       string    `json:"status"        db:"status"`
}

// AccountingRepository — графики платежей.
type AccountingRepository interface {
	// ListPaymentSchedules возвращает график платежей клиента по возрастанию даты.
	ListPaymentSchedules(ctx context.Context, clientID string) ([]model.PaymentSchedule, error)
}

type accountingRepo struct {
	tr backend.Transport
}

// NewAccountingRepository создаёт репозиторий графиков платежей.
func NewAccountingRepository(tr backend.Transport) AccountingRepository {
	return &accountingRepo{tr: tr}
}

func (r *accountingRepo) ListPaymentSchedules(ctx context.Context, clientID string) ([]model.PaymentSchedule, error) {
	var rows []paymentRow
	err := r.tr.Query(ctx, tablePayments, backend.FilterSpec{
		Columns: []string{"id", "client_id", "consultant_id", "amount", "currency", "due_date", "status"},
		Eq:      map[string]any{"client_id": clientID},
		Order:   []backend.Order{{Column: "due_date"}, {Column: "id"}},
	}, &rows)
	if err != nil {
		return nil, err
	}

	out := make([]model.PaymentSchedule, 0, len(rows))
	for _, row := range rows {
		out = append(out, model.PaymentSchedule{
			ID:           row.ID,
			ClientID:     row.ClientID,
			ConsultantID: deref(row.ConsultantID),
			Amount:       row.Amount,
			Currency:     row.Currency,
			DueDate:      row.DueDate,
			Status:       row.Status,
		})
	}
	return out, nil
}
