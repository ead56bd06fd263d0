package diagnostics

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPProber(t *testing.T) {
	var gotAuth, gotType string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/consultant-clients":
			gotAuth = r.Header.Get("Authorization")
			gotType = r.Header.Get("Content-Type")
			_ = json.NewDecoder(r.Body).Decode(&gotBody)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"data":[],"count":0}`))
		case "/health/ready":
			_, _ = w.Write([]byte("ok"))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"не найдено","code":"NOT_FOUND"}`))
		}
	}))
	defer srv.Close()

	p, err := NewHTTPProber(srv.URL+"/", "", 5*time.Second, slog.Default())
	if err != nil {
		t.Fatalf("NewHTTPProber: %v", err)
	}
	routes := DiagnosticRoutes(DefaultFixtures(), adminID)

	resp, err := p.Probe(context.Background(), routes[0], "tok")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if resp.StatusCode != 200 || !resp.JSON {
		t.Errorf("ответ = %+v", resp)
	}
	if gotAuth != "Bearer tok" || gotType != "application/json" {
		t.Errorf("заголовки: Authorization=%q Content-Type=%q", gotAuth, gotType)
	}
	if gotBody["consultantEmail"] != "consultant@example.test" || gotBody["countryId"] != float64(1) {
		t.Errorf("тело = %v", gotBody)
	}

	resp, err = p.Probe(context.Background(), routes[3], "tok")
	if err != nil || resp.JSON {
		t.Errorf("health/ready: ответ = %+v, err = %v (ожидался не JSON)", resp, err)
	}

	resp, err = p.Probe(context.Background(), routes[1], "tok")
	if err != nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("accounting: ответ = %+v, err = %v", resp, err)
	}
}

func TestHTTPProber_Unreachable(t *testing.T) {
	p, err := NewHTTPProber("http://127.0.0.1:1", "", time.Second, slog.Default())
	if err != nil {
		t.Fatalf("NewHTTPProber: %v", err)
	}
	if _, err := p.Probe(context.Background(), Route{Method: http.MethodGet, Path: "/health/ready"}, ""); err == nil {
		t.Error("ожидалась ошибка соединения")
	}
}

func TestNewHTTPProber_BadCA(t *testing.T) {
	if _, err := NewHTTPProber("https://api", "/nonexistent/ca.pem", time.Second, slog.Default()); err == nil {
		t.Error("ожидалась ошибка загрузки CA")
	}
}

func TestProbeAPIRoutes_NonJSON(t *testing.T) {
	env := &Env{
		Fixtures: DefaultFixtures(),
		Session:  adminSession(),
		API:      routeFunc(func(r Route) RouteResponse { return RouteResponse{StatusCode: 200, JSON: r.Method != http.MethodGet} }),
	}
	out := probeAPIRoutes(context.Background(), env)
	if len(out) != 4 {
		t.Fatalf("результатов = %d", len(out))
	}
	if out[3].Status != F || out[3].Test != "GET /health/ready" {
		t.Errorf("health/ready = %+v", out[3])
	}
}

type routeFunc func(Route) RouteResponse

func (f routeFunc) Probe(_ context.Context, r Route, _ string) (RouteResponse, error) {
	return f(r), nil
}
