// Пакет backend — единая точка доступа к внешнему реляционному хранилищу.
//
// Два уровня доступа:
//   - ограниченный (AsUser) — запросы от имени пользователя, строки
//     фильтруются политиками RLS хранилища;
//   - повышенный (Elevated) — сервисный ключ, без фильтрации строк.
//     Используется только в доверенном серверном коде.
//
// Транспорты (REST в стиле PostgREST и прямое подключение к PostgreSQL)
// реализуют интерфейс Transport. Кэширования нет: каждый вызов идёт в backend.
package backend

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/bigkaa/consultportal/internal/session"
)

// Transport — операции над хранилищем на одном уровне доступа.
// dest — указатель на срез структур с тегами json и db.
type Transport interface {
	// Query читает строки таблицы по фильтру.
	Query(ctx context.Context, table string, filter FilterSpec, dest any) error
	// CallProcedure вызывает процедуру с именованными параметрами.
	CallProcedure(ctx context.Context, name string, params Params, dest any) error
	// CurrentUser возвращает пользователя, от имени которого выполняются запросы.
	CurrentUser(ctx context.Context) (*AuthUser, error)
}

// AuthUser — пользователь с точки зрения backend.
type AuthUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Param — именованный параметр процедуры.
type Param struct {
	Name  string
	Value any
}

// Params — упорядоченный список параметров процедуры.
type Params []Param

// Order — сортировка по столбцу.
type Order struct {
	Column string
	Desc   bool
}

// Search — поиск подстроки без учёта регистра по нескольким столбцам (OR).
type Search struct {
	Columns []string
	Term    string
}

// FilterSpec — типизированное описание выборки.
// Нулевые значения означают «без ограничения».
type FilterSpec struct {
	// Columns — список столбцов (пусто — все)
	Columns []string
	// Eq — точное совпадение
	Eq map[string]any
	// EqFold — совпадение без учёта регистра
	EqFold map[string]string
	// In — вхождение в список
	In map[string][]any
	// AnyEq — точное совпадение хотя бы в одном из столбцов (OR)
	AnyEq map[string]any
	// Search — подстрока в любом из столбцов
	Search *Search
	// Order — сортировка
	Order []Order
	// Limit, Offset — пагинация (0 — без ограничения)
	Limit  int
	Offset int
}

// identRe — допустимые идентификаторы таблиц, столбцов и процедур.
var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ValidIdentifier проверяет имя таблицы, столбца или процедуры.
func ValidIdentifier(name string) bool {
	return identRe.MatchString(name)
}

// Validate проверяет все идентификаторы в фильтре.
func (f FilterSpec) Validate(table string) error {
	names := []string{table}
	names = append(names, f.Columns...)
	for k := range f.Eq {
		names = append(names, k)
	}
	for k := range f.EqFold {
		names = append(names, k)
	}
	for k := range f.In {
		names = append(names, k)
	}
	for k := range f.AnyEq {
		names = append(names, k)
	}
	if f.Search != nil {
		names = append(names, f.Search.Columns...)
	}
	for _, o := range f.Order {
		names = append(names, o.Column)
	}
	for _, n := range names {
		if !ValidIdentifier(n) {
			return fmt.Errorf("%w: %q", ErrInvalidIdentifier, n)
		}
	}
	if f.Limit < 0 || f.Offset < 0 {
		return fmt.Errorf("%w: отрицательные limit/offset", ErrInvalidIdentifier)
	}
	return nil
}

// Validate проверяет имена параметров процедуры.
func (p Params) Validate(name string) error {
	if !ValidIdentifier(name) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	for _, param := range p {
		if !ValidIdentifier(param.Name) {
			return fmt.Errorf("%w: %q", ErrInvalidIdentifier, param.Name)
		}
	}
	return nil
}

// RestrictedFactory создаёт транспорт с ограниченным доступом
// от имени пользователя с указанным токеном.
type RestrictedFactory func(userID, accessToken string) Transport

// Client — точка доступа к backend с двумя уровнями доступа.
type Client struct {
	elevated   Transport
	restricted RestrictedFactory
	logger     *slog.Logger
}

// NewClient создаёт клиент backend.
// elevated может быть nil — тогда Elevated возвращает ErrConfigurationMissing.
// Все вызовы транспортов логируются на уровне debug, ошибки — warn.
func NewClient(elevated Transport, restricted RestrictedFactory, logger *slog.Logger) *Client {
	c := &Client{
		restricted: restricted,
		logger:     logger.With(slog.String("component", "backend_client")),
	}
	if elevated != nil {
		c.elevated = Logged(elevated, c.logger.With(slog.String("access", "elevated")))
	}
	return c
}

// HasElevated — сервисный доступ настроен.
func (c *Client) HasElevated() bool {
	return c.elevated != nil
}

// Elevated возвращает транспорт с повышенным доступом.
func (c *Client) Elevated() (Transport, error) {
	if c.elevated == nil {
		return nil, ErrConfigurationMissing
	}
	return c.elevated, nil
}

// AsUser возвращает транспорт с ограниченным доступом от имени сессии.
func (c *Client) AsUser(s *session.Session) (Transport, error) {
	if !s.Active() {
		return nil, ErrNoSession
	}
	if c.restricted == nil {
		return nil, ErrConfigurationMissing
	}
	return Logged(c.restricted(s.UserID, s.AccessToken()),
		c.logger.With(slog.String("access", "restricted"), slog.String("user_id", s.UserID))), nil
}

// logCall пишет отладочную запись о вызове backend.
func logCall(logger *slog.Logger, op string, start time.Time, err error) {
	attrs := []any{
		slog.String("op", op),
		slog.Duration("duration", time.Since(start)),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		logger.Warn("Вызов backend завершился ошибкой", attrs...)
		return
	}
	logger.Debug("Вызов backend", attrs...)
}

// Logged оборачивает транспорт логированием вызовов.
func Logged(t Transport, logger *slog.Logger) Transport {
	return &loggedTransport{next: t, logger: logger}
}

type loggedTransport struct {
	next   Transport
	logger *slog.Logger
}

func (l *loggedTransport) Query(ctx context.Context, table string, f FilterSpec, dest any) error {
	start := time.Now()
	err := l.next.Query(ctx, table, f, dest)
	logCall(l.logger, table, start, err)
	return err
}

func (l *loggedTransport) CallProcedure(ctx context.Context, name string, p Params, dest any) error {
	start := time.Now()
	err := l.next.CallProcedure(ctx, name, p, dest)
	logCall(l.logger, "rpc/"+name, start, err)
	return err
}

func (l *loggedTransport) CurrentUser(ctx context.Context) (*AuthUser, error) {
	start := time.Now()
	u, err := l.next.CurrentUser(ctx)
	logCall(l.logger, "auth/user", start, err)
	return u, err
}
