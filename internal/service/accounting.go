// accounting.go — графики платежей клиентов через ограниченный доступ.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/bigkaa/consultportal/internal/backend"
	"github.com/bigkaa/consultportal/internal/domain/model"
	"github.com/bigkaa/consultportal/internal/repository"
	"github.com/bigkaa/consultportal/internal/session"
)

// AccountingService — просмотр графиков платежей.
// Строки фильтруются политиками хранилища от имени пользователя.
type AccountingService struct {
	backend *backend.Client
	logger  *slog.Logger
}

// NewAccountingService создаёт сервис графиков платежей.
func NewAccountingService(client *backend.Client, logger *slog.Logger) *AccountingService {
	return &AccountingService{
		backend: client,
		logger:  logger.With(slog.String("component", "accounting_service")),
	}
}

// Lookup возвращает график платежей клиента.
// Пустой clientID — клиент текущей сессии. Клиент не может запросить чужой график.
func (s *AccountingService) Lookup(ctx context.Context, sess *session.Session, clientID string) ([]model.PaymentSchedule, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		if sess.IsAdmin() || sess.IsConsultant() {
			return nil, fmt.Errorf("%w: clientId обязателен", ErrValidation)
		}
		clientID = sess.UserID
	}
	if _, err := uuid.Parse(clientID); err != nil {
		return nil, fmt.Errorf("%w: clientId должен быть UUID", ErrValidation)
	}
	if sess != nil && sess.Role == model.RoleClient && !strings.EqualFold(clientID, sess.UserID) {
		return nil, fmt.Errorf("%w: клиент может просматривать только свой график платежей", ErrForbidden)
	}

	tr, err := s.backend.AsUser(sess)
	if err != nil {
		return nil, classifyBackend(err)
	}

	schedules, err := repository.NewAccountingRepository(tr).ListPaymentSchedules(ctx, clientID)
	if err != nil {
		s.logger.Warn("Ошибка получения графика платежей",
			slog.String("client_id", clientID),
			slog.String("error", err.Error()),
		)
		return nil, classifyBackend(err)
	}
	return schedules, nil
}
