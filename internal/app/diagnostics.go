package app

import (
	"fmt"
	"log/slog"

	"github.com/bigkaa/consultportal/internal/backend"
	"github.com/bigkaa/consultportal/internal/config"
	"github.com/bigkaa/consultportal/internal/diagnostics"
)

// NewBattery собирает стандартную батарею диагностики.
// api — nil, если маршруты API не проверяются (запуск из CLI).
func NewBattery(cfg *config.Config, client *backend.Client, api diagnostics.RouteProber, parallel bool, logger *slog.Logger) (*diagnostics.Battery, error) {
	fixtures, err := diagnostics.LoadFixtures(cfg.Diagnostics.FixturesPath)
	if err != nil {
		return nil, fmt.Errorf("загрузка тестовых данных диагностики: %w", err)
	}

	deps := diagnostics.Deps{
		Settings: cfg.Presence(),
		Backend:  client,
		Fixtures: fixtures,
		API:      api,
		Version:  config.Version,
	}

	return diagnostics.NewDefaultBattery(deps, diagnostics.Options{
		Parallel:       parallel || cfg.Diagnostics.Parallel,
		MaxConcurrency: cfg.Diagnostics.MaxConcurrency,
		ProbeTimeout:   cfg.Diagnostics.ProbeTimeout,
	}, logger), nil
}
