package repository

import (
	"context"
	"time"

	"github.com/bigkaa/consultportal/internal/backend"
	"github.com/bigkaa/consultportal/internal/domain/model"
)

type messageRow struct {
	ID          string     `json:"id"           db:"id"`
	SenderID    string     `json:"sender_id"    db:"sender_id"`
	RecipientID string     `json:"recipient_id" db:"recipient_id"`
	Body        string     `json:"body"         db:"body"`
	CreatedAt   time.Time  `json:"created_at"   db:"created_at"`
	ReadAt      *time.Time `json:"read_at"      db:"read_at"`
}

// MessageRepository — сообщения пользователей.
type MessageRepository interface {
	// ListForUser возвращает входящие и исходящие сообщения пользователя,
	// новые первыми.
	ListForUser(ctx context.Context, userID string, limit, offset int) ([]model.Message, error)
}

type messageRepo struct {
	tr backend.Transport
}

// NewMessageRepository создаёт репозиторий сообщений.
func NewMessageRepository(tr backend.Transport) MessageRepository {
	return &messageRepo{tr: tr}
}

func (r *messageRepo) ListForUser(ctx context.Context, userID string, limit, offset int) ([]model.Message, error) {
	var rows []messageRow
	err := r.tr.Query(ctx, tableMessages, backend.FilterSpec{
		Columns: []string{"id", "sender_id", "recipient_id", "body", "created_at", "read_at"},
		AnyEq:   map[string]any{"sender_id": userID, "recipient_id": userID},
		Order:   []backend.Order{{Column: "created_at", Desc: true}, {Column: "id"}},
		Limit:   limit,
		Offset:  offset,
	}, &rows)
	if err != nil {
		return nil, err
	}

	out := make([]model.Message, 0, len(rows))
	for _, row := range rows {
		out = append(out, model.Message(row))
	}
	return out, nil
}
