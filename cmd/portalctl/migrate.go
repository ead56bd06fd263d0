package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bigkaa/consultportal/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Миграции схемы PostgreSQL",
	Long:  "Применяет встроенные миграции к базе из CP_DB_DSN.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		if cfg.Database.DSN == "" {
			return fmt.Errorf("не задан CP_DB_DSN")
		}
		return nil
	},
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Применить все миграции",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		return database.Migrate(cfg.Database.DSN, logger)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Откатить все миграции",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		return database.MigrateDown(cfg.Database.DSN, logger)
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Показать текущую версию схемы",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		version, dirty, err := database.Version(cfg.Database.DSN)
		if err != nil {
			return err
		}
		state := ""
		if dirty {
			state = " (dirty)"
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d%s\n", version, state)
		return err
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
}
