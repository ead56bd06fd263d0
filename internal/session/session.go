// Пакет session — явный объект сессии пользователя.
// Сессия создаётся при успешной проверке токена (Init), передаётся
// в Resolver и батарею диагностики явно и закрывается при выходе (Close).
// Глобального хранилища текущего пользователя нет.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/bigkaa/consultportal/internal/domain/model"
)

// Session — аутентифицированный пользователь и его токен доступа.
type Session struct {
	// UserID — sub из JWT (совпадает с users.id)
	UserID string
	// Email — email из JWT
	Email string
	// Role — итоговая роль (admin, consultant, client)
	Role string
	// IssuedAt — время создания сессии
	IssuedAt time.Time
	// ExpiresAt — время истечения токена (нулевое — не ограничено)
	ExpiresAt time.Time

	mu          sync.RWMutex
	accessToken string
	closed      bool
}

// Init создаёт сессию после входа пользователя.
func Init(userID, email, role, accessToken string, expiresAt time.Time) *Session {
	return &Session{
		UserID:      userID,
		Email:       email,
		Role:        role,
		IssuedAt:    time.Now().UTC(),
		ExpiresAt:   expiresAt,
		accessToken: accessToken,
	}
}

// AccessToken возвращает токен доступа или пустую строку после Close.
func (s *Session) AccessToken() string {
	if s == nil {
		return ""
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// Close завершает сессию: токен стирается, сессия становится неактивной.
// Повторный вызов безопасен.
func (s *Session) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = ""
	s.closed = true
}

// Active — сессия открыта, токен задан и не истёк.
func (s *Session) Active() bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed || s.accessToken == "" || s.UserID == "" {
		return false
	}
	return s.ExpiresAt.IsZero() || time.Now().Before(s.ExpiresAt)
}

// IsAdmin — пользователь с ролью admin.
func (s *Session) IsAdmin() bool {
	return s != nil && s.Role == model.RoleAdmin
}

// IsConsultant — пользователь с ролью consultant.
func (s *Session) IsConsultant() bool {
	return s != nil && s.Role == model.RoleConsultant
}

// contextKey — тип ключа контекста (избегаем коллизий).
type contextKey struct{}

// WithSession помещает сессию в контекст запроса.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext извлекает сессию из контекста. Возвращает nil, если её нет.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(contextKey{}).(*Session)
	return s
}
