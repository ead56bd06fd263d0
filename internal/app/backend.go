// Пакет app — сборка общих зависимостей для portal-api и portalctl.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/consultportal/internal/backend"
	"github.com/bigkaa/consultportal/internal/backend/pgstore"
	"github.com/bigkaa/consultportal/internal/backend/rest"
	"github.com/bigkaa/consultportal/internal/config"
	"github.com/bigkaa/consultportal/internal/database"
	"github.com/bigkaa/consultportal/internal/service"
)

// ReadinessChecker — проверка готовности backend.
type ReadinessChecker interface {
	CheckReady() (status, message string)
}

// Backend — клиент backend выбранного транспорта и связанные ресурсы.
type Backend struct {
	Client  *backend.Client
	Checker ReadinessChecker
	// Pool — пул PostgreSQL (nil для транспорта rest)
	Pool *pgxpool.Pool

	sqlDB *sql.DB
}

// OpenBackend создаёт клиент backend по конфигурации.
// Для транспорта postgres открывается пул и, если задано, применяются миграции.
func OpenBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error) {
	switch cfg.Backend.Transport {
	case config.TransportPostgres:
		return openPostgres(ctx, cfg, logger)
	default:
		return openREST(cfg, logger)
	}
}

func openREST(cfg *config.Config, logger *slog.Logger) (*Backend, error) {
	rc, err := rest.New(
		cfg.Backend.URL,
		cfg.Backend.PublicKey,
		cfg.Backend.ServiceKey,
		cfg.Backend.HealthPath,
		cfg.Backend.CACertPath,
		cfg.Backend.Timeout,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("создание REST-клиента backend: %w", err)
	}

	var restricted backend.RestrictedFactory
	if cfg.Backend.PublicKey != "" {
		restricted = rc.ForUser
	}
	return &Backend{
		Client:  backend.NewClient(rc.Elevated(), restricted, logger),
		Checker: rc,
	}, nil
}

func openPostgres(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error) {
	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("CP_DB_DSN: %w", backend.ErrConfigurationMissing)
	}
	if cfg.Database.MigrateOnStart {
		if err := database.Migrate(cfg.Database.DSN, logger); err != nil {
			return nil, err
		}
	}

	pool, err := database.Connect(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	store, err := pgstore.New(pool, cfg.Database.RestrictedRole, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &Backend{
		Client:  backend.NewClient(store.Elevated(), store.ForUser, logger),
		Checker: database.NewReadinessChecker(pool),
		Pool:    pool,
	}, nil
}

// DephealthParams — параметры мониторинга зависимостей для выбранного транспорта.
func (b *Backend) DephealthParams(cfg *config.Config) service.DephealthParams {
	p := service.DephealthParams{
		ServiceID:     "consultportal",
		Group:         cfg.Dephealth.Group,
		CheckInterval: cfg.Dephealth.CheckInterval,
		IsEntry:       cfg.Dephealth.IsEntry,
	}
	if b.Pool != nil {
		if b.sqlDB == nil {
			b.sqlDB = stdlib.OpenDBFromPool(b.Pool)
		}
		p.DB = b.sqlDB
		p.PgConnURL = cfg.Database.DSN
		return p
	}
	p.BackendURL = cfg.Backend.URL
	p.BackendHealthPath = cfg.Backend.HealthPath
	return p
}

// Close освобождает ресурсы backend.
func (b *Backend) Close() {
	if b.sqlDB != nil {
		_ = b.sqlDB.Close()
	}
	if b.Pool != nil {
		b.Pool.Close()
	}
}
