package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bigkaa/consultportal/internal/config"
)

var (
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "portalctl",
	Short: "Операторский CLI Consult Portal",
	Long: `portalctl — диагностика, миграции и проверка видимости клиентов.

Конфигурация читается так же, как у portal-api: YAML из CP_CONFIG_PATH
и переменные окружения CP_*. Логи пишутся в stderr, отчёты — в stdout.`,
	Version:       config.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		if verbose, _ := cmd.Flags().GetBool("verbose"); !verbose && cfg.Log.Level == "info" {
			cfg.Log.Level = "warn"
		}
		logger = newStderrLogger(cfg)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "подробные логи (уровень из CP_LOG_LEVEL)")
	rootCmd.AddCommand(diagnoseCmd, migrateCmd, resolveCmd)
}

// newStderrLogger — текстовый логгер в stderr, чтобы не смешивать логи с отчётом.
func newStderrLogger(c *config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: c.LogLevel()}))
}
