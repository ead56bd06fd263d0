// messaging.go — список сообщений пользователя.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bigkaa/consultportal/internal/backend"
	"github.com/bigkaa/consultportal/internal/domain/model"
	"github.com/bigkaa/consultportal/internal/repository"
	"github.com/bigkaa/consultportal/internal/session"
)

// MessagingService — чтение сообщений текущего пользователя.
type MessagingService struct {
	backend *backend.Client
	logger  *slog.Logger
}

// NewMessagingService создаёт сервис сообщений.
func NewMessagingService(client *backend.Client, logger *slog.Logger) *MessagingService {
	return &MessagingService{
		backend: client,
		logger:  logger.With(slog.String("component", "messaging_service")),
	}
}

// List возвращает входящие и исходящие сообщения пользователя сессии.
// limit 0 — DefaultLimit; limit ограничивается MaxLimit.
func (s *MessagingService) List(ctx context.Context, sess *session.Session, limit, offset int) ([]model.Message, error) {
	if limit < 0 || offset < 0 {
		return nil, fmt.Errorf("%w: limit и offset должны быть >= 0", ErrValidation)
	}
	if limit == 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	tr, err := s.backend.AsUser(sess)
	if err != nil {
		return nil, classifyBackend(err)
	}

	msgs, err := repository.NewMessageRepository(tr).ListForUser(ctx, sess.UserID, limit, offset)
	if err != nil {
		s.logger.Warn("Ошибка получения сообщений",
			slog.String("user_id", sess.UserID),
			slog.String("error", err.Error()),
		)
		return nil, classifyBackend(err)
	}
	return msgs, nil
}
