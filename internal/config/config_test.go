package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// setEnvs устанавливает переменные окружения на время теста.
func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

// minimalEnvs возвращает минимальный набор переменных для успешной загрузки.
func minimalEnvs() map[string]string {
	return map[string]string{
		"CP_BACKEND_URL":   "https://backend.example.test",
		"CP_AUTH_JWKS_URL": "https://idp.example.test/jwks",
	}
}

func TestLoad_MinimalConfig(t *testing.T) {
	setEnvs(t, minimalEnvs())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	if cfg.Server.Port != 8040 {
		t.Errorf("Port = %d, ожидается 8040", cfg.Server.Port)
	}
	if cfg.LogLevel() != slog.LevelInfo {
		t.Errorf("LogLevel = %v, ожидается Info", cfg.LogLevel())
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, ожидается json", cfg.Log.Format)
	}
	if cfg.Backend.Transport != TransportREST {
		t.Errorf("Backend.Transport = %q, ожидается rest", cfg.Backend.Transport)
	}
	if cfg.Backend.Timeout != 15*time.Second {
		t.Errorf("Backend.Timeout = %v, ожидается 15s", cfg.Backend.Timeout)
	}
	if cfg.Diagnostics.RateLimitPerMinute != 6 {
		t.Errorf("RateLimitPerMinute = %d, ожидается 6", cfg.Diagnostics.RateLimitPerMinute)
	}
	if len(cfg.Auth.Algorithms) != 2 || cfg.Auth.Algorithms[0] != "RS256" {
		t.Errorf("Auth.Algorithms = %v, ожидается [RS256 ES256]", cfg.Auth.Algorithms)
	}
}

// TestLoad_MissingKeysNotFatal — отсутствие ключей backend не мешает загрузке.
func TestLoad_MissingKeysNotFatal(t *testing.T) {
	setEnvs(t, minimalEnvs())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}
	if cfg.Backend.ServiceKey != "" {
		t.Errorf("ServiceKey = %q, ожидалась пустая строка", cfg.Backend.ServiceKey)
	}
}

func TestLoad_TrimsBackendURL(t *testing.T) {
	envs := minimalEnvs()
	envs["CP_BACKEND_URL"] = "https://backend.example.test/"
	setEnvs(t, envs)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}
	if cfg.Backend.URL != "https://backend.example.test" {
		t.Errorf("Backend.URL = %q, ожидается без завершающего /", cfg.Backend.URL)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"недопустимый уровень логов", "CP_LOG_LEVEL", "verbose", "CP_LOG_LEVEL"},
		{"недопустимый формат логов", "CP_LOG_FORMAT", "xml", "CP_LOG_FORMAT"},
		{"недопустимый транспорт", "CP_BACKEND_TRANSPORT", "grpc", "CP_BACKEND_TRANSPORT"},
		{"порт вне диапазона", "CP_PORT", "70000", "CP_PORT"},
		{"нулевой таймаут backend", "CP_BACKEND_TIMEOUT", "0s", "CP_BACKEND_TIMEOUT"},
		{"нулевой лимит диагностики", "CP_DIAG_RATE_LIMIT_PER_MINUTE", "0", "CP_DIAG_RATE_LIMIT_PER_MINUTE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			envs := minimalEnvs()
			envs[tt.key] = tt.value
			setEnvs(t, envs)

			_, err := Load()
			if err == nil {
				t.Fatalf("Load() не вернул ошибку для %s=%s", tt.key, tt.value)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ошибка %q не содержит %q", err.Error(), tt.wantErr)
			}
		})
	}
}

// Без CP_DB_DSN конфигурация загружается: диагностика покажет FAIL.
func TestLoad_PostgresWithoutDSN(t *testing.T) {
	envs := minimalEnvs()
	envs["CP_BACKEND_TRANSPORT"] = "postgres"
	envs["CP_DB_DSN"] = ""
	setEnvs(t, envs)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}
	got := cfg.Presence()
	if len(got) == 0 || got[0].Name != "CP_DB_DSN" || got[0].Present {
		t.Errorf("Presence = %+v, ожидался отсутствующий CP_DB_DSN", got)
	}
}

func TestValidateServe(t *testing.T) {
	tests := []struct {
		name      string
		transport string
		enabled   bool
		wantErr   bool
	}{
		{"postgres без проверки подписи", TransportPostgres, false, true},
		{"postgres с JWKS", TransportPostgres, true, false},
		{"rest без проверки подписи", TransportREST, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.Backend.Transport = tt.transport
			cfg.Auth.Enabled = tt.enabled
			if err := cfg.ValidateServe(); (err != nil) != tt.wantErr {
				t.Errorf("ValidateServe() = %v, ожидалась ошибка: %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_AuthRequiresJWKS(t *testing.T) {
	setEnvs(t, map[string]string{"CP_BACKEND_URL": "https://backend.example.test"})

	if _, err := Load(); err == nil {
		t.Fatal("Load() не вернул ошибку без CP_AUTH_JWKS_URL")
	}
}

// TestLoad_YAMLWithEnvOverride — окружение приоритетнее YAML.
func TestLoad_YAMLWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9100
backend:
  url: https://from-yaml.example.test
  public_key: yaml-public
auth:
  jwks_url: https://idp.example.test/jwks
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("запись YAML: %v", err)
	}
	setEnvs(t, map[string]string{
		"CP_CONFIG_PATH": path,
		"CP_PORT":        "9200",
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}
	if cfg.Server.Port != 9200 {
		t.Errorf("Port = %d, ожидается 9200 из окружения", cfg.Server.Port)
	}
	if cfg.Backend.URL != "https://from-yaml.example.test" {
		t.Errorf("Backend.URL = %q, ожидается значение из YAML", cfg.Backend.URL)
	}
	if cfg.Backend.PublicKey != "yaml-public" {
		t.Errorf("Backend.PublicKey = %q, ожидается yaml-public", cfg.Backend.PublicKey)
	}
}

func TestLoad_ExplicitPathMissing(t *testing.T) {
	setEnvs(t, map[string]string{"CP_CONFIG_PATH": filepath.Join(t.TempDir(), "missing.yaml")})

	if _, err := Load(); err == nil {
		t.Fatal("Load() не вернул ошибку для отсутствующего файла")
	}
}

func TestPresence(t *testing.T) {
	cfg := &Config{
		Backend: BackendConfig{Transport: TransportREST, URL: "https://b", PublicKey: "pk"},
		Auth:    AuthConfig{Enabled: true, JWKSURL: "https://idp/jwks"},
	}

	got := cfg.Presence()
	want := []Setting{
		{Name: "CP_BACKEND_URL", Present: true},
		{Name: "CP_BACKEND_PUBLIC_KEY", Present: true},
		{Name: "CP_BACKEND_SERVICE_KEY", Present: false},
		{Name: "CP_AUTH_JWKS_URL", Present: true},
	}
	if len(got) != len(want) {
		t.Fatalf("len(Presence) = %d, ожидался %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Presence[%d] = %+v, ожидался %+v", i, got[i], want[i])
		}
	}
}

func TestPresence_BlankKeyIsMissing(t *testing.T) {
	cfg := &Config{Backend: BackendConfig{Transport: TransportREST, ServiceKey: "   "}}

	for _, s := range cfg.Presence() {
		if s.Name == "CP_BACKEND_SERVICE_KEY" && s.Present {
			t.Error("ключ из пробелов считается заданным")
		}
	}
}

func TestPresence_PostgresTransport(t *testing.T) {
	cfg := &Config{
		Backend:  BackendConfig{Transport: TransportPostgres},
		Database: DatabaseConfig{DSN: "postgres://u:p@db:5432/portal"},
	}

	got := cfg.Presence()
	if len(got) != 1 || got[0].Name != "CP_DB_DSN" || !got[0].Present {
		t.Errorf("Presence = %+v, ожидался только CP_DB_DSN", got)
	}
}
