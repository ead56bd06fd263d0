package diagnostics

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/bigkaa/consultportal/internal/domain/model"
)

// maxProbeBody — сколько байт ответа читается для проверки JSON.
const maxProbeBody = 1 << 20

// Route — маршрут API и синтетическое тело запроса.
type Route struct {
	Method string
	Path   string
	// Body — nil для GET
	Body any
}

// String — "POST /api/v1/...".
func (r Route) String() string {
	return r.Method + " " + r.Path
}

// RouteResponse — ответ маршрута.
type RouteResponse struct {
	StatusCode int
	// JSON — тело ответа является корректным JSON
	JSON bool
}

// RouteProber вызывает маршрут API от имени пользователя.
type RouteProber interface {
	Probe(ctx context.Context, route Route, accessToken string) (RouteResponse, error)
}

// HTTPProber вызывает маршруты по HTTP.
type HTTPProber struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewHTTPProber создаёт HTTPProber.
// baseURL — адрес API (например, http://127.0.0.1:8040).
// caCertPath — CA-сертификат для TLS (пустая строка — системный пул).
func NewHTTPProber(baseURL, caCertPath string, timeout time.Duration, logger *slog.Logger) (*HTTPProber, error) {
	httpClient := &http.Client{Timeout: timeout}
	if caCertPath != "" {
		tlsConfig, err := buildTLSConfig(caCertPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата API: %w", err)
		}
		httpClient.Transport = &http.Transport{TLSClientConfig: tlsConfig}
	}
	return &HTTPProber{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger.With(slog.String("component", "route_prober")),
	}, nil
}

// Probe выполняет запрос и проверяет, что тело ответа — JSON.
func (p *HTTPProber) Probe(ctx context.Context, route Route, accessToken string) (RouteResponse, error) {
	var payload io.Reader = http.NoBody
	if route.Body != nil {
		data, err := json.Marshal(route.Body)
		if err != nil {
			return RouteResponse{}, fmt.Errorf("кодирование тела %s: %w", route, err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, route.Method, p.baseURL+route.Path, payload)
	if err != nil {
		return RouteResponse{}, fmt.Errorf("создание запроса %s: %w", route, err)
	}
	req.Header.Set("Accept", "application/json")
	if route.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := p.httpClient.Do(req) //nolint:gosec // G704: URL из конфигурации
	if err != nil {
		return RouteResponse{}, fmt.Errorf("запрос %s: %w", route, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxProbeBody))
	if err != nil {
		return RouteResponse{StatusCode: resp.StatusCode}, fmt.Errorf("чтение ответа %s: %w", route, err)
	}

	p.logger.Debug("Маршрут API проверен",
		slog.String("route", route.String()),
		slog.Int("status", resp.StatusCode),
	)
	return RouteResponse{StatusCode: resp.StatusCode, JSON: json.Valid(data)}, nil
}

// buildTLSConfig создаёт TLS-конфигурацию с пользовательским CA-сертификатом.
func buildTLSConfig(caCertPath string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("чтение CA-сертификата %s: %w", caCertPath, err)
	}
	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("не удалось добавить CA-сертификат из %s", caCertPath)
	}
	return &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

// DiagnosticRoutes — маршруты, проверяемые батареей, с синтетическими телами.
func DiagnosticRoutes(fx Fixtures, userID string) []Route {
	return []Route{
		{Method: http.MethodPost, Path: "/api/v1/consultant-clients", Body: map[string]any{
			"consultantEmail": fx.ConsultantEmail,
			"countryId":       fx.Country.ID,
			"limit":           1,
		}},
		{Method: http.MethodPost, Path: "/api/v1/accounting/lookup", Body: map[string]any{
			"clientId": userID,
		}},
		{Method: http.MethodPost, Path: "/api/v1/messages/list", Body: map[string]any{
			"limit": 1,
		}},
		{Method: http.MethodGet, Path: "/health/ready"},
	}
}

// --- API Routes ---

func probeAPIRoutes(ctx context.Context, env *Env) []model.Result {
	const cat = model.CategoryAPIRoutes
	sess := env.Session
	if !sess.Active() {
		return []model.Result{skippedNoSession(cat, TestRoutes)}
	}
	if env.API == nil {
		return []model.Result{warn(cat, TestRoutes, "проверка маршрутов API не настроена",
			"задайте CP_DIAG_API_BASE_URL", nil)}
	}

	var out []model.Result
	for _, route := range DiagnosticRoutes(env.Fixtures, sess.UserID) {
		resp, err := env.API.Probe(ctx, route, sess.AccessToken())
		switch {
		case err != nil:
			out = append(out, fail(cat, route.String(),
				fmt.Sprintf("API route failing: %s: %v", route, err),
				"проверьте, что сервис доступен по CP_DIAG_API_BASE_URL",
				map[string]any{DetailError: err.Error()}))
		case resp.StatusCode < 200 || resp.StatusCode > 299:
			out = append(out, fail(cat, route.String(),
				fmt.Sprintf("API route failing: %s (HTTP %d)", route, resp.StatusCode),
				"проверьте журнал сервиса для этого маршрута",
				map[string]any{"status": resp.StatusCode}))
		case !resp.JSON:
			out = append(out, fail(cat, route.String(),
				fmt.Sprintf("API route failing: %s: ответ не JSON", route),
				"маршрут должен отвечать application/json",
				map[string]any{"status": resp.StatusCode}))
		default:
			out = append(out, pass(cat, route.String(), fmt.Sprintf("HTTP %d", resp.StatusCode), nil))
		}
	}
	return out
}
