package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bigkaa/consultportal/internal/app"
	"github.com/bigkaa/consultportal/internal/domain/model"
	"github.com/bigkaa/consultportal/internal/service"
	"github.com/bigkaa/consultportal/internal/session"
)

// operatorSubject — субъект доверенной сессии оператора.
const operatorSubject = "portalctl"

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Показать клиентов консультанта в стране",
	Long: `Выполняет запрос видимости клиентов от имени оператора
(роль admin, доверенный контекст) и выводит страницу результата.`,
	Example: `  portalctl resolve --consultant-email consultant@example.test --country 1
  portalctl resolve --consultant-id 6f1c... --country 1 --search acme -o json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		flags := cmd.Flags()
		q := service.VisibilityQuery{}
		q.ConsultantEmail, _ = flags.GetString("consultant-email")
		q.ConsultantID, _ = flags.GetString("consultant-id")
		q.CountryID, _ = flags.GetInt("country")
		q.Search, _ = flags.GetString("search")
		if flags.Changed("limit") {
			limit, _ := flags.GetInt("limit")
			q.Limit = &limit
		}
		if flags.Changed("offset") {
			offset, _ := flags.GetInt("offset")
			q.Offset = &offset
		}
		format, _ := flags.GetString("output")

		be, err := app.OpenBackend(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer be.Close()

		sess := session.Init(operatorSubject, "", model.RoleAdmin, "trusted", time.Time{})
		defer sess.Close()

		res := service.NewResolver(be.Client, logger).Resolve(cmd.Context(), sess, q)
		if !res.OK() {
			if res.Debug != "" {
				logger.Debug("Подробности ошибки", slog.String("debug", res.Debug))
			}
			return fmt.Errorf("%s", res.Error)
		}
		return printPage(cmd, res, format)
	},
}

func init() {
	f := resolveCmd.Flags()
	f.String("consultant-email", "", "email консультанта")
	f.String("consultant-id", "", "UUID консультанта")
	f.Int("country", 0, "id страны")
	f.String("search", "", "поиск по имени, email или компании")
	f.Int("limit", service.DefaultLimit, "размер страницы")
	f.Int("offset", 0, "смещение")
	f.StringP("output", "o", "text", "формат вывода: text, json, yaml")
	resolveCmd.MarkFlagsOneRequired("consultant-email", "consultant-id")
	resolveCmd.MarkFlagsMutuallyExclusive("consultant-email", "consultant-id")
	_ = resolveCmd.MarkFlagRequired("country")
}

type page struct {
	Data  []model.ClientSummary `json:"data"  yaml:"data"`
	Count int                   `json:"count" yaml:"count"`
}

func printPage(cmd *cobra.Command, res service.VisibilityResult, format string) error {
	out := cmd.OutOrStdout()
	p := page{Data: res.Data, Count: res.Count}
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(p); err != nil {
			return err
		}
		return enc.Close()
	case "text", "":
		for _, c := range p.Data {
			fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", c.ID, c.FullName, c.Email, c.CompanyName)
		}
		_, err := fmt.Fprintf(out, "Всего на странице: %d\n", p.Count)
		return err
	default:
		return fmt.Errorf("неизвестный формат %q", format)
	}
}
