// auth.go — JWT middleware для аутентификации и авторизации Consult Portal.
// Проверяет подпись токена через JWKS провайдера, определяет итоговую роль
// (claim роли приложения или realm_access.roles, старшая из найденных)
// и открывает сессию пользователя на время обработки запроса.
package middleware

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/bigkaa/consultportal/internal/api/errors"
	"github.com/bigkaa/consultportal/internal/config"
	"github.com/bigkaa/consultportal/internal/domain/rbac"
	"github.com/bigkaa/consultportal/internal/session"
)

// AuthOptions — параметры проверки токена.
type AuthOptions struct {
	// Issuer — ожидаемый iss (пусто — не проверяется)
	Issuer string
	// Algorithms — допустимые алгоритмы подписи
	Algorithms []string
	// RoleClaim — claim с ролью приложения (строка или массив строк)
	RoleClaim string
	// Leeway — допустимое отклонение времени
	Leeway time.Duration
}

// JWTAuth — middleware для JWT-аутентификации.
type JWTAuth struct {
	jwks   keyfunc.Keyfunc
	opts   AuthOptions
	logger *slog.Logger
}

// NewJWTAuth создаёт JWT middleware с JWKS провайдера.
// caCertPath — опциональный путь к CA-сертификату для TLS.
func NewJWTAuth(cfg config.AuthConfig, caCertPath string, logger *slog.Logger) (*JWTAuth, error) {
	httpClient := &http.Client{Timeout: cfg.JWKSClientTimeout}
	if caCertPath != "" {
		var err error
		httpClient, err = httpClientWithCA(caCertPath, cfg.JWKSClientTimeout)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата %s: %w", caCertPath, err)
		}
		logger.Info("CA-сертификат для JWKS добавлен в пул доверия",
			slog.String("ca_cert", caCertPath),
		)
	}

	// NoErrorReturnFirstHTTPReq — стартуем, даже если провайдер ещё недоступен
	storage, err := jwkset.NewStorageFromHTTP(cfg.JWKSURL, jwkset.HTTPClientStorageOptions{
		Client:                    httpClient,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           cfg.JWKSRefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", cfg.JWKSURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	return NewJWTAuthWithKeyfunc(k, AuthOptions{
		Issuer:     cfg.Issuer,
		Algorithms: cfg.Algorithms,
		RoleClaim:  cfg.RoleClaim,
		Leeway:     cfg.Leeway,
	}, logger), nil
}

// NewJWTAuthWithKeyfunc создаёт JWT middleware с готовым keyfunc (для тестов).
func NewJWTAuthWithKeyfunc(k keyfunc.Keyfunc, opts AuthOptions, logger *slog.Logger) *JWTAuth {
	return &JWTAuth{
		jwks:   k,
		opts:   opts,
		logger: logger.With(slog.String("component", "jwt_auth")),
	}
}

// NewUnverifiedAuth создаёт middleware без проверки подписи.
// Только для локальной разработки (CP_AUTH_ENABLED=false). Роль из токена
// ничем не подтверждена: REST-backend проверяет токен только при
// ограниченном доступе, а Resolver работает с повышенным. С транспортом
// postgres такой режим запрещён (config.ValidateServe).
func NewUnverifiedAuth(opts AuthOptions, logger *slog.Logger) *JWTAuth {
	return &JWTAuth{
		opts:   opts,
		logger: logger.With(slog.String("component", "jwt_auth"), slog.Bool("unverified", true)),
	}
}

// httpClientWithCA создаёт HTTP-клиент с кастомным CA-сертификатом.
func httpClientWithCA(caCertPath string, timeout time.Duration) (*http.Client, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, err
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	caCertPool.AppendCertsFromPEM(caCert)

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				RootCAs:    caCertPool,
				MinVersion: tls.VersionTLS12,
			},
		},
	}, nil
}

// Middleware возвращает HTTP middleware для JWT-аутентификации.
// Сессия помещается в контекст и закрывается после обработки запроса.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				apierrors.Unauthorized(w, "Отсутствует заголовок Authorization")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				apierrors.Unauthorized(w, "Неверный формат Authorization: ожидается Bearer <token>")
				return
			}
			tokenString := strings.TrimSpace(parts[1])
			if tokenString == "" {
				apierrors.Unauthorized(w, "Пустой Bearer token")
				return
			}

			claims, err := j.parse(r.Context(), tokenString)
			if err != nil {
				j.logger.Debug("JWT валидация не пройдена",
					slog.String("error", err.Error()),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Невалидный или просроченный токен")
				return
			}

			subject, err := claims.GetSubject()
			if err != nil || subject == "" {
				apierrors.Unauthorized(w, "Отсутствует sub в токене")
				return
			}

			role := rbac.HighestRole(rolesFromClaims(claims, j.opts.RoleClaim))
			if role == "" {
				apierrors.Forbidden(w, "Роль пользователя не назначена")
				return
			}

			var expiresAt time.Time
			if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
				expiresAt = exp.Time
			}
			email, _ := claims["email"].(string)

			sess := session.Init(subject, email, role, tokenString, expiresAt)
			defer sess.Close()

			next.ServeHTTP(w, r.WithContext(session.WithSession(r.Context(), sess)))
		})
	}
}

// parse проверяет подпись и срок действия токена.
func (j *JWTAuth) parse(ctx context.Context, tokenString string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	parserOpts := []jwt.ParserOption{
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(j.opts.Leeway),
	}
	if len(j.opts.Algorithms) > 0 {
		parserOpts = append(parserOpts, jwt.WithValidMethods(j.opts.Algorithms))
	}
	if j.opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(j.opts.Issuer))
	}

	if j.jwks == nil {
		if _, _, err := jwt.NewParser(parserOpts...).ParseUnverified(tokenString, claims); err != nil {
			return nil, err
		}
		return claims, nil
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, j.jwks.KeyfuncCtx(ctx), parserOpts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("невалидный токен")
	}
	return claims, nil
}

// rolesFromClaims собирает роли из claim приложения и realm_access.roles.
func rolesFromClaims(claims jwt.MapClaims, roleClaim string) []string {
	var roles []string
	if roleClaim != "" {
		roles = append(roles, stringList(claims[roleClaim])...)
	}
	if realm, ok := claims["realm_access"].(map[string]any); ok {
		roles = append(roles, stringList(realm["roles"])...)
	}
	return roles
}

// stringList приводит значение claim (строка или массив) к срезу строк.
func stringList(v any) []string {
	switch val := v.(type) {
	case string:
		return []string{val}
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return val
	}
	return nil
}

// --- RBAC middleware ---

// RequireRole пропускает пользователей с ролью не ниже minimum.
// Должен использоваться ПОСЛЕ JWTAuth.Middleware().
func RequireRole(minimum string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := session.FromContext(r.Context())
			if !sess.Active() {
				apierrors.Unauthorized(w, "Отсутствует сессия пользователя")
				return
			}
			if !rbac.AtLeast(sess.Role, minimum) {
				apierrors.Forbidden(w, fmt.Sprintf("Недостаточно прав: требуется роль %s", minimum))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// --- ReadinessChecker для JWKS ---

// JWKSReadinessChecker — проверка доступности JWKS провайдера.
type JWKSReadinessChecker struct {
	jwksURL string
	client  *http.Client
}

// NewJWKSReadinessChecker создаёт checker доступности JWKS.
func NewJWKSReadinessChecker(jwksURL, caCertPath string, timeout time.Duration) (*JWKSReadinessChecker, error) {
	client := &http.Client{Timeout: timeout}
	if caCertPath != "" {
		var err error
		client, err = httpClientWithCA(caCertPath, timeout)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA для readiness checker: %w", err)
		}
	}
	return &JWKSReadinessChecker{jwksURL: jwksURL, client: client}, nil
}

const statusFail = "fail"

// CheckReady проверяет, что JWKS endpoint отвечает набором ключей.
func (k *JWKSReadinessChecker) CheckReady() (status, message string) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, k.jwksURL, http.NoBody)
	if err != nil {
		return statusFail, "ошибка создания запроса: " + err.Error()
	}
	resp, err := k.client.Do(req) //nolint:gosec // G704: URL из конфигурации
	if err != nil {
		return statusFail, fmt.Sprintf("JWKS недоступен: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusFail, fmt.Sprintf("JWKS вернул статус %d", resp.StatusCode)
	}

	var jwksResp struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwksResp); err != nil {
		return "degraded", fmt.Sprintf("JWKS: невалидный JSON: %v", err)
	}
	if len(jwksResp.Keys) == 0 {
		return "degraded", "JWKS: нет ключей"
	}
	return "ok", fmt.Sprintf("JWKS доступен, ключей: %d", len(jwksResp.Keys))
}
