// dephealth.go — интеграция с topologymetrics SDK для мониторинга зависимостей.
//
// Consult Portal мониторит backend хранилища:
//   - транспорт postgres — SQL checker через существующий pgxpool (critical);
//   - транспорт rest — HTTP checker к health path backend (critical).
//
// Метрики доступны на /metrics вместе с остальными Prometheus-метриками:
//   - app_dependency_health — состояние зависимости (1 = ok, 0 = fail)
//   - app_dependency_latency_seconds — задержка проверки
package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // регистрация HTTP checker factory
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	"github.com/prometheus/client_golang/prometheus"
)

// DephealthParams — параметры мониторинга зависимостей.
type DephealthParams struct {
	// ServiceID — имя вершины графа текущего приложения
	ServiceID string
	// Group — группа в метриках (CP_DEPHEALTH_GROUP)
	Group string
	// DB — *sql.DB из pgxpool (stdlib.OpenDBFromPool); nil для транспорта rest
	DB *sql.DB
	// PgConnURL — URL PostgreSQL для лейблов метрик
	PgConnURL string
	// BackendURL — базовый URL REST backend; пусто для транспорта postgres
	BackendURL string
	// BackendHealthPath — путь проверки REST backend
	BackendHealthPath string
	// CheckInterval — интервал проверки (CP_DEPHEALTH_CHECK_INTERVAL)
	CheckInterval time.Duration
	// IsEntry — лейбл isentry=yes для всех зависимостей (DEPHEALTH_ISENTRY)
	IsEntry bool
}

// DephealthService — сервис мониторинга зависимостей через topologymetrics.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService создаёт сервис мониторинга зависимостей.
// Метрики регистрируются в глобальном Prometheus registry.
func NewDephealthService(p DephealthParams, logger *slog.Logger) (*DephealthService, error) {
	return newDephealthService(p, logger)
}

// NewDephealthServiceWithRegisterer создаёт сервис с указанным Prometheus registerer.
// Используется в тестах для изоляции метрик.
func NewDephealthServiceWithRegisterer(p DephealthParams, logger *slog.Logger, registerer prometheus.Registerer) (*DephealthService, error) {
	return newDephealthService(p, logger, dephealth.WithRegisterer(registerer))
}

func newDephealthService(p DephealthParams, logger *slog.Logger, extraOpts ...dephealth.Option) (*DephealthService, error) {
	common := []dephealth.DependencyOption{
		dephealth.CheckInterval(p.CheckInterval),
		dephealth.Critical(true),
	}
	if p.IsEntry {
		common = append(common, dephealth.WithLabel("isentry", "yes"))
	}

	opts := []dephealth.Option{dephealth.WithLogger(logger)}

	switch {
	case p.DB != nil:
		pgOpts := append([]dephealth.DependencyOption{dephealth.FromURL(p.PgConnURL)}, common...)
		opts = append(opts, dephealth.AddDependency("postgresql", dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(p.DB)), pgOpts...))
	case p.BackendURL != "":
		httpOpts := append([]dephealth.DependencyOption{
			dephealth.FromURL(p.BackendURL),
			dephealth.WithHTTPHealthPath(p.BackendHealthPath),
		}, common...)
		if parsed, err := url.Parse(p.BackendURL); err == nil && parsed.Scheme == "https" {
			httpOpts = append(httpOpts, dephealth.WithHTTPTLSSkipVerify(false))
		}
		opts = append(opts, dephealth.HTTP("backend", httpOpts...))
	default:
		return nil, errors.New("dephealth: не задан ни DB, ни BackendURL")
	}
	opts = append(opts, extraOpts...)

	dh, err := dephealth.New(p.ServiceID, p.Group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен")
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей.
// Ключ — имя зависимости, значение — true если ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}
