package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	apierrors "github.com/bigkaa/consultportal/internal/api/errors"
	"github.com/bigkaa/consultportal/internal/backend"
	"github.com/bigkaa/consultportal/internal/diagnostics"
	"github.com/bigkaa/consultportal/internal/domain/model"
	"github.com/bigkaa/consultportal/internal/service"
	"github.com/bigkaa/consultportal/internal/session"
)

const testUserID = "3b0c5a52-1f86-4a5e-8f57-5a0e2c9d4b10"

type fakeResolver struct {
	got service.VisibilityQuery
	res service.VisibilityResult
}

func (f *fakeResolver) Resolve(_ context.Context, _ *session.Session, q service.VisibilityQuery) service.VisibilityResult {
	f.got = q
	return f.res
}

type fakeAccounting struct {
	rows []model.PaymentSchedule
	err  error
	got  string
}

func (f *fakeAccounting) Lookup(_ context.Context, _ *session.Session, clientID string) ([]model.PaymentSchedule, error) {
	f.got = clientID
	return f.rows, f.err
}

type fakeMessaging struct {
	msgs          []model.Message
	err           error
	limit, offset int
}

func (f *fakeMessaging) List(_ context.Context, _ *session.Session, limit, offset int) ([]model.Message, error) {
	f.limit, f.offset = limit, offset
	return f.msgs, f.err
}

type fakeReporter struct {
	report model.HealthReport
	req    *diagnostics.RequestInfo
}

func (f *fakeReporter) Report(_ context.Context, _ *session.Session, req *diagnostics.RequestInfo) model.HealthReport {
	f.req = req
	return f.report
}

type staticChecker struct{ status, message string }

func (c staticChecker) CheckReady() (string, string) { return c.status, c.message }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	resolver   *fakeResolver
	accounting *fakeAccounting
	messaging  *fakeMessaging
	reporter   *fakeReporter
	handler    *APIHandler
}

func newFixture() *fixture {
	f := &fixture{
		resolver:   &fakeResolver{},
		accounting: &fakeAccounting{},
		messaging:  &fakeMessaging{},
		reporter:   &fakeReporter{},
	}
	f.handler = NewAPIHandler(
		NewHealthHandler(staticChecker{status: "ok"}, nil),
		f.resolver, f.accounting, f.messaging, f.reporter, testLogger(),
	)
	return f
}

func request(method, path, body, role string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		sess := session.Init(testUserID, "u@example.test", role, "token", time.Time{})
		req = req.WithContext(session.WithSession(req.Context(), sess))
	}
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apierrors.Body {
	t.Helper()
	var body apierrors.Body
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("тело ошибки не JSON: %v", err)
	}
	return body
}

func TestConsultantClients_Success(t *testing.T) {
	f := newFixture()
	f.resolver.res = service.VisibilityResult{
		Data:  []model.ClientSummary{{ID: "c1", Email: "client1@example.test"}, {ID: "c2"}},
		Count: 2,
	}

	rec := httptest.NewRecorder()
	f.handler.ConsultantClients(rec, request(http.MethodPost, "/api/v1/consultant-clients",
		`{"consultantEmail":"consultant@example.test","countryId":1,"limit":10,"offset":5}`, model.RoleConsultant))

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался 200, получен %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Data  []model.ClientSummary `json:"data"`
		Count int                   `json:"count"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 2 || len(resp.Data) != 2 || resp.Data[0].Email != "client1@example.test" {
		t.Errorf("неверный ответ: %+v", resp)
	}
	q := f.resolver.got
	if q.ConsultantEmail != "consultant@example.test" || q.CountryID != 1 ||
		q.Limit == nil || *q.Limit != 10 || q.Offset == nil || *q.Offset != 5 {
		t.Errorf("запрос передан неверно: %+v", q)
	}
}

func TestConsultantClients_EmptyPageIsArray(t *testing.T) {
	f := newFixture()
	rec := httptest.NewRecorder()
	f.handler.ConsultantClients(rec, request(http.MethodPost, "/", `{"consultantEmail":"x@example.test","countryId":1}`, model.RoleAdmin))

	if !strings.Contains(rec.Body.String(), `"data":[]`) {
		t.Errorf("пустая страница должна быть массивом: %s", rec.Body.String())
	}
}

func TestConsultantClients_ResolverErrors(t *testing.T) {
	tests := []struct {
		name   string
		kind   error
		status int
		code   string
	}{
		{"валидация", service.ErrValidation, http.StatusBadRequest, apierrors.CodeValidationError},
		{"консультант не найден", service.ErrConsultantNotFound, http.StatusNotFound, apierrors.CodeNotFound},
		{"нет прав", service.ErrForbidden, http.StatusForbidden, apierrors.CodeForbidden},
		{"backend", service.ErrBackendUnavailable, http.StatusBadGateway, apierrors.CodeBackendUnavailable},
		{"конфигурация", service.ErrConfigurationMissing, http.StatusServiceUnavailable, apierrors.CodeConfigurationMissing},
		{"внутренняя", service.ErrInternal, http.StatusInternalServerError, apierrors.CodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.resolver.res = service.VisibilityResult{Error: tt.kind.Error(), Kind: tt.kind}

			rec := httptest.NewRecorder()
			f.handler.ConsultantClients(rec, request(http.MethodPost, "/", `{"consultantEmail":"x@example.test","countryId":1}`, model.RoleConsultant))

			if rec.Code != tt.status {
				t.Fatalf("ожидался %d, получен %d", tt.status, rec.Code)
			}
			body := decodeError(t, rec)
			if body.Code != tt.code || body.Error != tt.kind.Error() {
				t.Errorf("неверное тело: %+v", body)
			}
		})
	}
}

func TestConsultantClients_MalformedBody(t *testing.T) {
	f := newFixture()
	rec := httptest.NewRecorder()
	f.handler.ConsultantClients(rec, request(http.MethodPost, "/", `{"countryId":`, model.RoleConsultant))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("ожидался 400, получен %d", rec.Code)
	}
}

func TestAccountingLookup(t *testing.T) {
	f := newFixture()
	f.accounting.rows = []model.PaymentSchedule{{ID: "p1", Amount: 100, Currency: "EUR"}}

	rec := httptest.NewRecorder()
	f.handler.AccountingLookup(rec, request(http.MethodPost, "/", `{"clientId":"`+testUserID+`"}`, model.RoleClient))

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался 200, получен %d", rec.Code)
	}
	if f.accounting.got != testUserID {
		t.Errorf("clientId: %q", f.accounting.got)
	}
	if !strings.Contains(rec.Body.String(), `"count":1`) {
		t.Errorf("неверный ответ: %s", rec.Body.String())
	}
}

func TestAccountingLookup_DebugOnlyForAdmin(t *testing.T) {
	cause := &backend.Error{Kind: backend.ErrQueryRejected, Op: "payment_schedules", Code: "42501", Message: "permission denied"}
	err := fmt.Errorf("%w: %w", service.ErrBackendUnavailable, cause)

	for _, role := range []string{model.RoleConsultant, model.RoleAdmin} {
		t.Run(role, func(t *testing.T) {
			f := newFixture()
			f.accounting.err = err

			rec := httptest.NewRecorder()
			f.handler.AccountingLookup(rec, request(http.MethodPost, "/", `{"clientId":"`+testUserID+`"}`, role))

			if rec.Code != http.StatusBadGateway {
				t.Fatalf("ожидался 502, получен %d", rec.Code)
			}
			body := decodeError(t, rec)
			if strings.Contains(body.Error, "permission denied") {
				t.Errorf("сообщение не должно содержать деталей backend: %q", body.Error)
			}
			if gotDebug := body.Debug != ""; gotDebug != (role == model.RoleAdmin) {
				t.Errorf("debug для роли %s: %q", role, body.Debug)
			}
		})
	}
}

func TestMessagesList(t *testing.T) {
	f := newFixture()
	f.messaging.msgs = []model.Message{{ID: "m1", Body: "привет"}}

	rec := httptest.NewRecorder()
	f.handler.MessagesList(rec, request(http.MethodPost, "/", `{"limit":5,"offset":10}`, model.RoleClient))

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался 200, получен %d", rec.Code)
	}
	if f.messaging.limit != 5 || f.messaging.offset != 10 {
		t.Errorf("пагинация: limit=%d offset=%d", f.messaging.limit, f.messaging.offset)
	}
}

func TestMessagesList_ValidationError(t *testing.T) {
	f := newFixture()
	f.messaging.err = fmt.Errorf("%w: limit и offset должны быть >= 0", service.ErrValidation)

	rec := httptest.NewRecorder()
	f.handler.MessagesList(rec, request(http.MethodPost, "/", `{}`, model.RoleClient))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("ожидался 400, получен %d", rec.Code)
	}
	if body := decodeError(t, rec); !strings.Contains(body.Error, "limit") {
		t.Errorf("сообщение валидации: %q", body.Error)
	}
}

func TestDiagnostics_JSON(t *testing.T) {
	f := newFixture()
	f.reporter.report = model.HealthReport{
		Status: model.HealthDegraded,
		Score:  80,
		Results: []model.Result{
			{Category: model.CategoryDatabase, Test: "elevated read", Status: model.StatusPass},
		},
	}

	req := request(http.MethodGet, "/api/v1/diagnostics?devTooling=true", "", model.RoleAdmin)
	req.Header.Set("User-Agent", "portal-test/1.0")
	rec := httptest.NewRecorder()
	f.handler.Diagnostics(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался 200, получен %d", rec.Code)
	}
	var report model.HealthReport
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatal(err)
	}
	if report.Status != model.HealthDegraded || report.Score != 80 {
		t.Errorf("неверный отчёт: %+v", report)
	}
	ri := f.reporter.req
	if ri == nil || ri.Path != "/api/v1/diagnostics" || ri.UserAgent != "portal-test/1.0" || !ri.DevTooling {
		t.Errorf("сведения о запросе: %+v", ri)
	}
}

func TestDiagnosticsPage_HTML(t *testing.T) {
	f := newFixture()
	f.reporter.report = model.HealthReport{
		Status:  model.HealthCritical,
		Score:   20,
		Summary: map[string]bool{model.CategoryTestData: false, model.CategoryDatabase: true},
		RootCause: model.RootCause{
			Key: "consultant_missing", Title: "Нет тестового консультанта",
			Fix: "создайте консультанта", Priority: model.PriorityHigh,
		},
		Results: []model.Result{
			{Category: model.CategoryDatabase, Test: "elevated read", Status: model.StatusPass, Message: "ok"},
			{
				Category: model.CategoryTestData, Test: "consultant", Status: model.StatusFail,
				Message: "consultant not found: <script>", Fix: "добавьте запись в users",
				Details: map[string]any{diagnostics.DetailMissing: []string{"b@x", "a@x"}},
			},
		},
	}

	rec := httptest.NewRecorder()
	f.handler.DiagnosticsPage(rec, request(http.MethodGet, "/diagnostics", "", model.RoleAdmin))

	if ct := rec.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type: %q", ct)
	}
	html := rec.Body.String()
	for _, want := range []string{
		"CRITICAL", "<details><summary>Database [OK]", "<details open><summary>Test Data [FAIL]",
		"Исправление: добавьте запись в users", "Отсутствуют: a@x, b@x", "Нет тестового консультанта",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("в странице нет %q", want)
		}
	}
	if strings.Contains(html, "<script>") {
		t.Error("значения должны экранироваться")
	}
}

func TestDiagnosticsPageData(t *testing.T) {
	data := diagnosticsPageData(model.HealthReport{
		Status:  model.HealthHealthy,
		Score:   100,
		Summary: map[string]bool{model.CategoryDatabase: true},
		Results: []model.Result{
			{Category: model.CategoryDatabase, Test: "elevated read", Status: model.StatusPass, Fix: "не показывается"},
			{Category: model.CategoryFrontend, Test: "build version", Status: model.StatusInfo, Message: "dev"},
		},
	})

	if data.ScoreLabel != "100/100" || len(data.Sections) != 2 {
		t.Fatalf("данные страницы: %+v", data)
	}
	if db := data.Sections[0]; db.Label != "Database [OK]" || db.Open || db.Rows[0].Fix != "" {
		t.Errorf("Database: %+v", db)
	}
	if fe := data.Sections[1]; fe.Label != "Frontend [-]" || fe.Open {
		t.Errorf("Frontend: %+v", fe)
	}
}

func TestHealthReady(t *testing.T) {
	tests := []struct {
		name    string
		backend ReadinessChecker
		jwks    ReadinessChecker
		status  int
		overall string
	}{
		{"всё доступно", staticChecker{"ok", ""}, staticChecker{"ok", ""}, http.StatusOK, "ok"},
		{"JWKS деградирован", staticChecker{"ok", ""}, staticChecker{"degraded", ""}, http.StatusOK, "degraded"},
		{"backend недоступен", staticChecker{"fail", "нет ответа"}, nil, http.StatusServiceUnavailable, "fail"},
		{"backend не инициализирован", nil, nil, http.StatusServiceUnavailable, "fail"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.backend, tt.jwks)
			rec := httptest.NewRecorder()
			h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			if rec.Code != tt.status {
				t.Fatalf("ожидался %d, получен %d", tt.status, rec.Code)
			}
			var resp healthReadyResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("ответ не JSON: %v", err)
			}
			if resp.Status != tt.overall || resp.Service != serviceName {
				t.Errorf("неверный ответ: %+v", resp)
			}
		})
	}
}

func TestHealthLive(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler(nil, nil).HealthLive(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("liveness: %d %s", rec.Code, rec.Body.String())
	}
}

func TestStatusForKind_Unknown(t *testing.T) {
	status, code := statusForKind(errors.New("что-то другое"))
	if status != http.StatusInternalServerError || code != apierrors.CodeInternalError {
		t.Errorf("получено %d %s", status, code)
	}
}
