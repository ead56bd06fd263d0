package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bigkaa/consultportal/internal/api/handlers"
	"github.com/bigkaa/consultportal/internal/diagnostics"
	"github.com/bigkaa/consultportal/internal/domain/model"
	"github.com/bigkaa/consultportal/internal/service"
	"github.com/bigkaa/consultportal/internal/session"
)

type stubResolver struct{}

func (stubResolver) Resolve(context.Context, *session.Session, service.VisibilityQuery) service.VisibilityResult {
	return service.VisibilityResult{}
}

type stubAccounting struct{}

func (stubAccounting) Lookup(context.Context, *session.Session, string) ([]model.PaymentSchedule, error) {
	return nil, nil
}

type stubMessaging struct{}

func (stubMessaging) List(context.Context, *session.Session, int, int) ([]model.Message, error) {
	return nil, nil
}

type stubReporter struct{}

func (stubReporter) Report(context.Context, *session.Session, *diagnostics.RequestInfo) model.HealthReport {
	return model.HealthReport{Status: model.HealthHealthy, Score: 100}
}

type okChecker struct{}

func (okChecker) CheckReady() (string, string) { return "ok", "" }

// denyAfter пропускает первые n запросов.
type denyAfter struct{ n int }

func (d *denyAfter) Allow(string) bool {
	d.n--
	return d.n >= 0
}

func (d *denyAfter) RetryAfter() time.Duration { return time.Second }

// roleFromHeader — тестовая аутентификация: роль из заголовка X-Role.
func roleFromHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if role := r.Header.Get("X-Role"); role != "" {
			sess := session.Init("user-1", "", role, "token", time.Time{})
			r = r.WithContext(session.WithSession(r.Context(), sess))
		}
		next.ServeHTTP(w, r)
	})
}

func newTestRouter(limiter *denyAfter) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := handlers.NewAPIHandler(
		handlers.NewHealthHandler(okChecker{}, nil),
		stubResolver{}, stubAccounting{}, stubMessaging{}, stubReporter{}, logger,
	)
	return NewRouter(h, limiter, roleFromHeader)
}

func TestRouter_RoleChecks(t *testing.T) {
	router := newTestRouter(&denyAfter{n: 100})

	tests := []struct {
		method, path, role string
		want               int
	}{
		{http.MethodGet, "/health/live", "", http.StatusOK},
		{http.MethodGet, "/health/ready", "", http.StatusOK},
		{http.MethodPost, "/api/v1/consultant-clients", "", http.StatusUnauthorized},
		{http.MethodPost, "/api/v1/consultant-clients", model.RoleClient, http.StatusForbidden},
		{http.MethodPost, "/api/v1/consultant-clients", model.RoleConsultant, http.StatusOK},
		{http.MethodPost, "/api/v1/accounting/lookup", model.RoleClient, http.StatusOK},
		{http.MethodPost, "/api/v1/messages/list", model.RoleClient, http.StatusOK},
		{http.MethodGet, "/api/v1/diagnostics", model.RoleConsultant, http.StatusForbidden},
		{http.MethodGet, "/api/v1/diagnostics", model.RoleAdmin, http.StatusOK},
		{http.MethodGet, "/diagnostics", model.RoleAdmin, http.StatusOK},
		{http.MethodGet, "/api/v1/unknown", model.RoleAdmin, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path+" "+tt.role, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(`{}`))
			if tt.role != "" {
				req.Header.Set("X-Role", tt.role)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("ожидался %d, получен %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestRouter_DiagnosticsRateLimited(t *testing.T) {
	router := newTestRouter(&denyAfter{n: 1})

	do := func() int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/diagnostics", nil)
		req.Header.Set("X-Role", model.RoleAdmin)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	if got := do(); got != http.StatusOK {
		t.Fatalf("первый запуск: %d", got)
	}
	if got := do(); got != http.StatusTooManyRequests {
		t.Fatalf("второй запуск: ожидался 429, получен %d", got)
	}
}

func TestJWTAuthWithExclusions(t *testing.T) {
	deny := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
	}
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := JWTAuthWithExclusions(deny, "/health/", "/metrics")(next)

	for path, want := range map[string]int{
		"/health/live":        http.StatusOK,
		"/metrics":            http.StatusOK,
		"/api/v1/diagnostics": http.StatusUnauthorized,
		"/diagnostics":        http.StatusUnauthorized,
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != want {
			t.Errorf("%s: ожидался %d, получен %d", path, want, rec.Code)
		}
	}
}
