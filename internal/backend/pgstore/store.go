// Пакет pgstore — транспорт backend через прямое подключение к PostgreSQL.
// SELECT строятся через squirrel, строки сканируются scany по тегам db.
// Ограниченный доступ выполняется в транзакции с ролью и claims
// пользователя (set_config с is_local), поэтому действуют политики RLS.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/dbscan"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bigkaa/consultportal/internal/backend"
)

// DB — интерфейс пула подключений.
// Реализуется *pgxpool.Pool и pgxmock.PgxPoolIface.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// psql — построитель запросов с плейсхолдерами $N.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Store — транспорт PostgreSQL. Транспорты уровней доступа
// создаются методами Elevated и ForUser.
type Store struct {
	db             DB
	scan           *pgxscan.API
	restrictedRole string
	logger         *slog.Logger
}

// New создаёт PostgreSQL-транспорт.
// restrictedRole — роль БД для запросов от имени пользователя (CP_DB_RESTRICTED_ROLE).
func New(db DB, restrictedRole string, logger *slog.Logger) (*Store, error) {
	dbscanAPI, err := pgxscan.NewDBScanAPI(dbscan.WithAllowUnknownColumns(true))
	if err != nil {
		return nil, fmt.Errorf("создание dbscan API: %w", err)
	}
	api, err := pgxscan.NewAPI(dbscanAPI)
	if err != nil {
		return nil, fmt.Errorf("создание pgxscan API: %w", err)
	}
	if !backend.ValidIdentifier(restrictedRole) {
		return nil, fmt.Errorf("CP_DB_RESTRICTED_ROLE: %w: %q", backend.ErrInvalidIdentifier, restrictedRole)
	}
	return &Store{
		db:             db,
		scan:           api,
		restrictedRole: restrictedRole,
		logger:         logger.With(slog.String("component", "backend_pg")),
	}, nil
}

// Elevated возвращает транспорт с правами владельца подключения.
func (s *Store) Elevated() backend.Transport {
	return &transport{store: s}
}

// ForUser возвращает транспорт от имени пользователя.
// Совместим с backend.RestrictedFactory; токен не используется —
// его подлинность уже проверена JWT middleware.
func (s *Store) ForUser(userID, _ string) backend.Transport {
	return &transport{store: s, userID: userID, restricted: true}
}

// transport — реализация backend.Transport.
type transport struct {
	store      *Store
	userID     string
	restricted bool
}

// Query выполняет SELECT по FilterSpec.
func (t *transport) Query(ctx context.Context, table string, filter backend.FilterSpec, dest any) error {
	if err := filter.Validate(table); err != nil {
		return err
	}
	query, args, err := buildSelect(table, filter)
	if err != nil {
		return fmt.Errorf("построение запроса %s: %w", table, err)
	}

	return t.run(ctx, func(q pgxscan.Querier) error {
		if err := t.store.scan.Select(ctx, q, dest, query, args...); err != nil {
			return classify(err, table, false)
		}
		return nil
	})
}

// CallProcedure выполняет SELECT * FROM name(p => $1, ...).
func (t *transport) CallProcedure(ctx context.Context, name string, params backend.Params, dest any) error {
	if err := params.Validate(name); err != nil {
		return err
	}
	query, args, err := buildCall(name, params)
	if err != nil {
		return fmt.Errorf("построение вызова %s: %w", name, err)
	}

	return t.run(ctx, func(q pgxscan.Querier) error {
		if err := t.store.scan.Select(ctx, q, dest, query, args...); err != nil {
			return classify(err, "rpc/"+name, true)
		}
		return nil
	})
}

// CurrentUser читает строку users текущего пользователя под его ролью.
func (t *transport) CurrentUser(ctx context.Context) (*backend.AuthUser, error) {
	if !t.restricted {
		return nil, backend.ErrNoSession
	}

	var rows []backend.AuthUser
	err := t.Query(ctx, "users", backend.FilterSpec{
		Columns: []string{"id", "email", "role"},
		Eq:      map[string]any{"id": t.userID},
		Limit:   1,
	}, &rows)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &backend.Error{Kind: backend.ErrQueryRejected, Op: "auth/user", Message: "пользователь не найден или скрыт политикой доступа"}
	}
	return &rows[0], nil
}

// run выполняет fn напрямую (повышенный доступ) или в транзакции
// с ролью и claims пользователя (ограниченный доступ).
func (t *transport) run(ctx context.Context, fn func(q pgxscan.Querier) error) error {
	if !t.restricted {
		return fn(t.store.db)
	}

	tx, err := t.store.db.Begin(ctx)
	if err != nil {
		return classify(err, "begin", false)
	}

	claims, _ := json.Marshal(map[string]string{"sub": t.userID, "role": t.store.restrictedRole})
	_, err = tx.Exec(ctx,
		`SELECT set_config('role', $1, true), set_config('request.jwt.claims', $2, true), set_config('request.jwt.claim.sub', $3, true)`,
		t.store.restrictedRole, string(claims), t.userID,
	)
	if err != nil {
		_ = tx.Rollback(ctx)
		return classify(err, "set_config", false)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return classify(err, "commit", false)
	}
	return nil
}

// buildSelect строит SELECT по FilterSpec.
func buildSelect(table string, f backend.FilterSpec) (string, []any, error) {
	cols := f.Columns
	if len(cols) == 0 {
		cols = []string{"*"}
	}
	q := psql.Select(cols...).From(table)

	if len(f.Eq) > 0 {
		q = q.Where(sq.Eq(f.Eq))
	}
	for _, k := range sortedKeys(f.EqFold) {
		q = q.Where(sq.Expr("lower("+k+") = lower(?)", f.EqFold[k]))
	}
	for _, k := range sortedKeys(f.In) {
		q = q.Where(sq.Eq{k: f.In[k]})
	}
	if len(f.AnyEq) > 0 {
		either := sq.Or{}
		for _, k := range sortedKeys(f.AnyEq) {
			either = append(either, sq.Eq{k: f.AnyEq[k]})
		}
		q = q.Where(either)
	}
	if f.Search != nil && strings.TrimSpace(f.Search.Term) != "" {
		pattern := "%" + escapeLike(strings.TrimSpace(f.Search.Term)) + "%"
		or := sq.Or{}
		for _, col := range f.Search.Columns {
			or = append(or, sq.ILike{col: pattern})
		}
		q = q.Where(or)
	}
	for _, o := range f.Order {
		dir := " ASC"
		if o.Desc {
			dir = " DESC"
		}
		q = q.OrderBy(o.Column + dir)
	}
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		q = q.Offset(uint64(f.Offset))
	}
	return q.ToSql()
}

// buildCall строит вызов процедуры с именованными аргументами.
func buildCall(name string, params backend.Params) (string, []any, error) {
	named := make([]string, 0, len(params))
	args := make([]any, 0, len(params))
	for _, p := range params {
		named = append(named, p.Name+" => ?")
		args = append(args, p.Value)
	}
	raw, rawArgs, err := sq.Expr(fmt.Sprintf("SELECT * FROM %s(%s)", name, strings.Join(named, ", ")), args...).ToSql()
	if err != nil {
		return "", nil, err
	}
	query, err := sq.Dollar.ReplacePlaceholders(raw)
	return query, rawArgs, err
}

// classify преобразует ошибку pgx в backend.Error.
func classify(err error, op string, rpc bool) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &backend.Error{
			Kind:    backend.ClassifyCode(pgErr.Code, rpc),
			Op:      op,
			Code:    pgErr.Code,
			Message: pgErr.Message,
			Err:     err,
		}
	}

	var connErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connErr) || errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		pgconn.Timeout(err) {
		return &backend.Error{Kind: backend.ErrConnectionFailure, Op: op, Err: err}
	}

	kind := backend.ErrQueryRejected
	if rpc {
		kind = backend.ErrProcedureFailure
	}
	return &backend.Error{Kind: kind, Op: op, Err: err}
}

// escapeLike экранирует спецсимволы шаблона ILIKE.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
