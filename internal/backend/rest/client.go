// Пакет rest — транспорт backend поверх HTTP API в стиле PostgREST.
//
// Таблицы:   GET  {base}/rest/v1/{table}?select=..&col=eq.v&or=(..)&order=..&limit=..&offset=..
// Процедуры: POST {base}/rest/v1/rpc/{name} с JSON-объектом параметров
// Токен:     GET  {base}/auth/v1/user
//
// Каждый запрос несёт заголовки apikey и Authorization: Bearer.
// Повышенный доступ использует сервисный ключ в обоих заголовках,
// ограниченный — публичный ключ и токен пользователя.
package rest

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bigkaa/consultportal/internal/backend"
)

// maxErrorBody — сколько байт тела ошибки читать для диагностики.
const maxErrorBody = 64 << 10

// Client — HTTP-клиент backend. Сам по себе не выполняет запросов:
// транспорты создаются методами Elevated и ForUser.
type Client struct {
	httpClient *http.Client
	baseURL    string
	publicKey  string
	serviceKey string //nolint:gosec // G117: поле структуры, не содержит секрет напрямую
	healthPath string
	logger     *slog.Logger
}

// New создаёт REST-клиент backend.
// baseURL — базовый URL (например, https://project.backend.example).
// caCertPath — путь к CA-сертификату для TLS (пустая строка — стандартный пул).
// timeout — таймаут одного HTTP-запроса (CP_BACKEND_TIMEOUT).
func New(
	baseURL string,
	publicKey string,
	serviceKey string,
	healthPath string,
	caCertPath string,
	timeout time.Duration,
	logger *slog.Logger,
) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("CP_BACKEND_URL: %w", backend.ErrConfigurationMissing)
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("некорректный URL backend %q: %w", baseURL, err)
	}

	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
	}
	if caCertPath != "" {
		tlsConfig, err := buildTLSConfig(caCertPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата backend: %w", err)
		}
		transport.TLSClientConfig = tlsConfig
		logger.Info("CA-сертификат backend добавлен в пул доверия",
			slog.String("ca_cert", caCertPath),
		)
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout, Transport: transport},
		baseURL:    strings.TrimRight(baseURL, "/"),
		publicKey:  publicKey,
		serviceKey: serviceKey,
		healthPath: healthPath,
		logger:     logger.With(slog.String("component", "backend_rest")),
	}, nil
}

// Elevated возвращает транспорт с сервисным ключом или nil, если ключ не задан.
func (c *Client) Elevated() backend.Transport {
	if c.serviceKey == "" {
		return nil
	}
	return &transport{client: c, apiKey: c.serviceKey, bearer: c.serviceKey, elevated: true}
}

// ForUser возвращает транспорт от имени пользователя.
// Совместим с backend.RestrictedFactory.
func (c *Client) ForUser(_ string, accessToken string) backend.Transport {
	return &transport{client: c, apiKey: c.publicKey, bearer: accessToken}
}

// CheckReady проверяет доступность backend (для /health/ready).
// Любой ответ, кроме 5xx, считается признаком работающего backend.
func (c *Client) CheckReady() (status, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.healthPath, http.NoBody)
	if err != nil {
		return "fail", "ошибка создания запроса: " + err.Error()
	}
	if c.publicKey != "" {
		req.Header.Set("apikey", c.publicKey)
	}

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL из конфигурации
	if err != nil {
		return "fail", fmt.Sprintf("backend недоступен: %v", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusInternalServerError {
		return "fail", fmt.Sprintf("backend вернул статус %d", resp.StatusCode)
	}
	return "ok", "backend доступен"
}

// transport — реализация backend.Transport для одного набора учётных данных.
type transport struct {
	client   *Client
	apiKey   string
	bearer   string
	elevated bool
}

// Query выполняет GET /rest/v1/{table} с фильтрами в query string.
func (t *transport) Query(ctx context.Context, table string, filter backend.FilterSpec, dest any) error {
	if err := filter.Validate(table); err != nil {
		return err
	}

	reqURL := fmt.Sprintf("%s/rest/v1/%s", t.client.baseURL, table)
	if q := encodeFilter(filter); q != "" {
		reqURL += "?" + q
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("создание запроса %s: %w", table, err)
	}
	return t.do(req, table, false, dest)
}

// CallProcedure выполняет POST /rest/v1/rpc/{name}.
func (t *transport) CallProcedure(ctx context.Context, name string, params backend.Params, dest any) error {
	if err := params.Validate(name); err != nil {
		return err
	}

	body := make(map[string]any, len(params))
	for _, p := range params {
		body[p.Name] = p.Value
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("кодирование параметров rpc/%s: %w", name, err)
	}

	reqURL := fmt.Sprintf("%s/rest/v1/rpc/%s", t.client.baseURL, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("создание запроса rpc/%s: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return t.do(req, "rpc/"+name, true, dest)
}

// CurrentUser выполняет GET /auth/v1/user.
// Для сервисного ключа пользователя нет — возвращается ErrNoSession.
func (t *transport) CurrentUser(ctx context.Context) (*backend.AuthUser, error) {
	if t.elevated {
		return nil, backend.ErrNoSession
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.client.baseURL+"/auth/v1/user", http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("создание запроса auth/user: %w", err)
	}

	var user backend.AuthUser
	if err := t.do(req, "auth/user", false, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// do отправляет запрос, классифицирует ошибки и декодирует ответ в dest.
func (t *transport) do(req *http.Request, op string, rpc bool, dest any) error {
	req.Header.Set("Accept", "application/json")
	if t.apiKey != "" {
		req.Header.Set("apikey", t.apiKey)
	}
	if t.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+t.bearer)
	}

	resp, err := t.client.httpClient.Do(req) //nolint:gosec // G704: URL из конфигурации
	if err != nil {
		return &backend.Error{Kind: backend.ErrConnectionFailure, Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return classifyResponse(resp, op, rpc)
	}

	if dest == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("декодирование ответа %s: %w", op, err)
	}
	return nil
}

// errorPayload — тело ошибки PostgREST.
type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
	// Ошибки auth API используют поле msg/error_description
	Msg              string `json:"msg"`
	ErrorDescription string `json:"error_description"`
}

// classifyResponse преобразует неуспешный HTTP-ответ в backend.Error.
func classifyResponse(resp *http.Response, op string, rpc bool) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var payload errorPayload
	_ = json.Unmarshal(raw, &payload)

	message := firstNonEmpty(payload.Message, payload.Msg, payload.ErrorDescription, strings.TrimSpace(string(raw)))
	if payload.Hint != "" {
		message += " (" + payload.Hint + ")"
	}

	be := &backend.Error{
		Op:      op,
		Code:    payload.Code,
		Status:  resp.StatusCode,
		Message: message,
	}

	switch {
	case resp.StatusCode == http.StatusBadGateway,
		resp.StatusCode == http.StatusServiceUnavailable,
		resp.StatusCode == http.StatusGatewayTimeout:
		be.Kind = backend.ErrConnectionFailure
	case payload.Code != "":
		be.Kind = backend.ClassifyCode(payload.Code, rpc)
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		be.Kind = backend.ErrQueryRejected
	case rpc && resp.StatusCode == http.StatusNotFound:
		be.Kind = backend.ErrProcedureMissing
	case rpc:
		be.Kind = backend.ErrProcedureFailure
	default:
		be.Kind = backend.ErrQueryRejected
	}
	return be
}

// encodeFilter кодирует FilterSpec в query string PostgREST.
// Ключи сортируются для детерминированного URL.
func encodeFilter(f backend.FilterSpec) string {
	q := url.Values{}

	if len(f.Columns) > 0 {
		q.Set("select", strings.Join(f.Columns, ","))
	}
	for _, k := range sortedKeys(f.Eq) {
		q.Add(k, "eq."+formatValue(f.Eq[k]))
	}
	for _, k := range sortedKeys(f.EqFold) {
		q.Add(k, "ilike."+escapeLike(f.EqFold[k]))
	}
	for _, k := range sortedKeys(f.In) {
		vals := make([]string, 0, len(f.In[k]))
		for _, v := range f.In[k] {
			vals = append(vals, quote(formatValue(v)))
		}
		q.Add(k, "in.("+strings.Join(vals, ",")+")")
	}
	// Группы OR; несколько групп объединяются через and=(or(...),or(...))
	var groups []string
	if len(f.AnyEq) > 0 {
		conds := make([]string, 0, len(f.AnyEq))
		for _, k := range sortedKeys(f.AnyEq) {
			conds = append(conds, k+".eq."+quote(formatValue(f.AnyEq[k])))
		}
		groups = append(groups, strings.Join(conds, ","))
	}
	if f.Search != nil && strings.TrimSpace(f.Search.Term) != "" {
		pattern := quote("*" + escapeLike(strings.TrimSpace(f.Search.Term)) + "*")
		conds := make([]string, 0, len(f.Search.Columns))
		for _, col := range f.Search.Columns {
			conds = append(conds, col+".ilike."+pattern)
		}
		groups = append(groups, strings.Join(conds, ","))
	}
	switch len(groups) {
	case 0:
	case 1:
		q.Set("or", "("+groups[0]+")")
	default:
		q.Set("and", "(or("+strings.Join(groups, "),or(")+"))")
	}
	if len(f.Order) > 0 {
		parts := make([]string, 0, len(f.Order))
		for _, o := range f.Order {
			dir := "asc"
			if o.Desc {
				dir = "desc"
			}
			parts = append(parts, o.Column+"."+dir)
		}
		q.Set("order", strings.Join(parts, ","))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}
	return q.Encode()
}

// formatValue приводит значение фильтра к строке.
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprint(val)
	}
}

// escapeLike экранирует спецсимволы шаблона ILIKE.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// quote заключает значение в двойные кавычки для списков и or=(...).
func quote(s string) string {
	return `"` + strings.ReplaceAll(strings.ReplaceAll(s, `\`, `\\`), `"`, `\"`) + `"`
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// buildTLSConfig создаёт TLS-конфигурацию с кастомным CA-сертификатом.
func buildTLSConfig(caCertPath string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("чтение CA-сертификата: %w", err)
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	caCertPool.AppendCertsFromPEM(caCert)

	return &tls.Config{
		RootCAs:    caCertPool,
		MinVersion: tls.VersionTLS12,
	}, nil
}
