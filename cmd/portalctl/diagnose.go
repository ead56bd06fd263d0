package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bigkaa/consultportal/internal/app"
	"github.com/bigkaa/consultportal/internal/backend"
	"github.com/bigkaa/consultportal/internal/diagnostics"
	"github.com/bigkaa/consultportal/internal/domain/model"
)

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Запустить диагностику и вывести отчёт",
	Long: `Запускает батарею диагностических проверок с сервисным доступом
(без сессии пользователя) и выводит отчёт.

Код завершения: 0 HEALTHY, 1 DEGRADED, 2 CRITICAL.`,
	Example: `  # Текстовый отчёт
  portalctl diagnose

  # YAML, проверки параллельно
  portalctl diagnose -o yaml --parallel`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		format, _ := cmd.Flags().GetString("output")
		parallel, _ := cmd.Flags().GetBool("parallel")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		report, err := runDiagnostics(ctx, parallel)
		if err != nil {
			return err
		}
		if err := diagnostics.Render(cmd.OutOrStdout(), report, format); err != nil {
			return err
		}
		if code := diagnostics.ExitCode(report.Status); code != 0 {
			return &exitError{code: code}
		}
		return nil
	},
}

func init() {
	diagnoseCmd.Flags().StringP("output", "o", diagnostics.FormatText, "формат отчёта: text, json, yaml")
	diagnoseCmd.Flags().Bool("parallel", false, "выполнять проверки параллельно")
}

// runDiagnostics запускает батарею. Ошибка подключения к backend не прерывает
// запуск: проверки отразят её в отчёте.
func runDiagnostics(ctx context.Context, parallel bool) (model.HealthReport, error) {
	client := backend.NewClient(nil, nil, logger)
	be, err := app.OpenBackend(ctx, cfg, logger)
	if err != nil {
		logger.Warn("Backend недоступен, диагностика продолжается без него",
			slog.String("error", err.Error()),
		)
	} else {
		defer be.Close()
		client = be.Client
	}

	battery, err := app.NewBattery(cfg, client, nil, parallel, logger)
	if err != nil {
		return model.HealthReport{}, err
	}
	return battery.Report(ctx, nil, nil), nil
}
