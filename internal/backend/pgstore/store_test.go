package pgstore

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"

	"github.com/bigkaa/consultportal/internal/backend"
)

type userRow struct {
	ID    string `db:"id"`
	Email string `db:"email"`
}

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	t.Cleanup(mock.Close)

	s, err := New(mock, "authenticated", slog.Default())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, mock
}

// --- Построение SQL ---

func TestBuildSelect_EqAndFold(t *testing.T) {
	query, args, err := buildSelect("users", backend.FilterSpec{
		Columns: []string{"id", "email"},
		Eq:      map[string]any{"role": "consultant"},
		EqFold:  map[string]string{"email": "C@Example.test"},
		Limit:   1,
	})
	if err != nil {
		t.Fatalf("buildSelect: %v", err)
	}

	want := "SELECT id, email FROM users WHERE role = $1 AND lower(email) = lower($2) LIMIT 1"
	if query != want {
		t.Errorf("query = %q, ожидался %q", query, want)
	}
	if len(args) != 2 || args[0] != "consultant" || args[1] != "C@Example.test" {
		t.Errorf("args = %v", args)
	}
}

func TestBuildSelect_SearchInOrderOffset(t *testing.T) {
	query, args, err := buildSelect("users", backend.FilterSpec{
		In:     map[string][]any{"email": {"a@x.test", "b@x.test"}},
		Search: &backend.Search{Columns: []string{"first_name", "email"}, Term: "10%"},
		Order:  []backend.Order{{Column: "created_at", Desc: true}, {Column: "id"}},
		Offset: 20,
	})
	if err != nil {
		t.Fatalf("buildSelect: %v", err)
	}

	want := "SELECT * FROM users WHERE email IN ($1,$2) AND (first_name ILIKE $3 OR email ILIKE $4) ORDER BY created_at DESC, id ASC OFFSET 20"
	if query != want {
		t.Errorf("query = %q, ожидался %q", query, want)
	}
	if len(args) != 4 || args[2] != `%10\%%` {
		t.Errorf("args = %v, ожидался экранированный шаблон поиска", args)
	}
}

func TestBuildSelect_BlankSearchIgnored(t *testing.T) {
	query, _, err := buildSelect("countries", backend.FilterSpec{
		Search: &backend.Search{Columns: []string{"name"}, Term: "   "},
	})
	if err != nil {
		t.Fatalf("buildSelect: %v", err)
	}
	if query != "SELECT * FROM countries" {
		t.Errorf("query = %q", query)
	}
}

func TestBuildCall(t *testing.T) {
	query, args, err := buildCall("get_consultant_clients", backend.Params{
		{Name: "p_consultant_id", Value: "k-1"},
		{Name: "p_country_id", Value: 3},
	})
	if err != nil {
		t.Fatalf("buildCall: %v", err)
	}

	want := "SELECT * FROM get_consultant_clients(p_consultant_id => $1, p_country_id => $2)"
	if query != want {
		t.Errorf("query = %q, ожидался %q", query, want)
	}
	if len(args) != 2 || args[0] != "k-1" || args[1] != 3 {
		t.Errorf("args = %v", args)
	}
}

// --- Выполнение через pgxmock ---

func TestElevatedQuery(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email FROM users WHERE role = $1")).
		WithArgs("consultant").
		WillReturnRows(pgxmock.NewRows([]string{"id", "email"}).
			AddRow("u-1", "a@x.test").
			AddRow("u-2", "b@x.test"))

	var rows []userRow
	err := s.Elevated().Query(context.Background(), "users", backend.FilterSpec{
		Columns: []string{"id", "email"},
		Eq:      map[string]any{"role": "consultant"},
	}, &rows)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(rows) != 2 || rows[1].Email != "b@x.test" {
		t.Errorf("rows = %+v", rows)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("ожидания pgxmock не выполнены: %v", err)
	}
}

func TestRestrictedQuery_RunsInTransactionWithClaims(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT set_config('role', $1, true)")).
		WithArgs("authenticated", pgxmock.AnyArg(), "u-1").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email FROM users")).
		WillReturnRows(pgxmock.NewRows([]string{"id", "email"}).AddRow("u-1", "me@x.test"))
	mock.ExpectCommit()

	var rows []userRow
	err := s.ForUser("u-1", "token").Query(context.Background(), "users", backend.FilterSpec{
		Columns: []string{"id", "email"},
	}, &rows)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("rows = %d, ожидалась 1", len(rows))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("ожидания pgxmock не выполнены: %v", err)
	}
}

func TestRestrictedQuery_PolicyRejectionRollsBack(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("set_config").
		WithArgs("authenticated", pgxmock.AnyArg(), "u-1").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery("FROM payment_schedules").
		WillReturnError(&pgconn.PgError{Code: "42501", Message: "permission denied for table payment_schedules"})
	mock.ExpectRollback()

	var rows []userRow
	err := s.ForUser("u-1", "token").Query(context.Background(), "payment_schedules", backend.FilterSpec{}, &rows)
	if !errors.Is(err, backend.ErrQueryRejected) {
		t.Fatalf("ошибка = %v, ожидалась ErrQueryRejected", err)
	}
	if !backend.IsAccessPolicy(err) {
		t.Error("IsAccessPolicy = false для кода 42501")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("ожидания pgxmock не выполнены: %v", err)
	}
}

func TestCallProcedure_Missing(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM get_consultant_clients(")).
		WillReturnError(&pgconn.PgError{Code: "42883", Message: "function get_consultant_clients does not exist"})

	var rows []userRow
	err := s.Elevated().CallProcedure(context.Background(), "get_consultant_clients", backend.Params{
		{Name: "p_consultant_id", Value: "k-1"},
	}, &rows)
	if !errors.Is(err, backend.ErrProcedureMissing) {
		t.Fatalf("ошибка = %v, ожидалась ErrProcedureMissing", err)
	}

	var be *backend.Error
	if !errors.As(err, &be) || be.Code != "42883" {
		t.Errorf("код ошибки = %v, ожидался 42883", be)
	}
}

func TestCallProcedure_RaisedException(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("FROM get_consultant_clients").
		WillReturnError(&pgconn.PgError{Code: "P0001", Message: "country required"})

	err := s.Elevated().CallProcedure(context.Background(), "get_consultant_clients", nil, &[]userRow{})
	if !errors.Is(err, backend.ErrProcedureFailure) {
		t.Errorf("ошибка = %v, ожидалась ErrProcedureFailure", err)
	}
}

func TestQuery_ContextCanceled(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("FROM countries").WillReturnError(context.DeadlineExceeded)

	err := s.Elevated().Query(context.Background(), "countries", backend.FilterSpec{Limit: 1}, &[]userRow{})
	if !errors.Is(err, backend.ErrConnectionFailure) {
		t.Errorf("ошибка = %v, ожидалась ErrConnectionFailure", err)
	}
}

func TestCurrentUser(t *testing.T) {
	s, mock := newMockStore(t)

	if _, err := s.Elevated().CurrentUser(context.Background()); !errors.Is(err, backend.ErrNoSession) {
		t.Errorf("ошибка = %v, ожидалась ErrNoSession", err)
	}

	mock.ExpectBegin()
	mock.ExpectExec("set_config").
		WithArgs("authenticated", pgxmock.AnyArg(), "u-7").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email, role FROM users WHERE id = $1 LIMIT 1")).
		WithArgs("u-7").
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "role"}).AddRow("u-7", "k@x.test", "consultant"))
	mock.ExpectCommit()

	u, err := s.ForUser("u-7", "token").CurrentUser(context.Background())
	if err != nil {
		t.Fatalf("CurrentUser: %v", err)
	}
	if u.ID != "u-7" || u.Role != "consultant" {
		t.Errorf("user = %+v", u)
	}
}

func TestNew_InvalidRole(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	if _, err := New(mock, "auth; drop", slog.Default()); !errors.Is(err, backend.ErrInvalidIdentifier) {
		t.Errorf("ошибка = %v, ожидалась ErrInvalidIdentifier", err)
	}
}

func TestBuildSelect_AnyEq(t *testing.T) {
	query, args, err := buildSelect("messages", backend.FilterSpec{
		AnyEq: map[string]any{"sender_id": "u-1", "recipient_id": "u-1"},
		Order: []backend.Order{{Column: "created_at", Desc: true}},
		Limit: 20,
	})
	if err != nil {
		t.Fatalf("buildSelect: %v", err)
	}

	want := "SELECT * FROM messages WHERE (recipient_id = $1 OR sender_id = $2) ORDER BY created_at DESC LIMIT 20"
	if query != want {
		t.Errorf("query = %q, ожидался %q", query, want)
	}
	if len(args) != 2 {
		t.Errorf("args = %v", args)
	}
}
