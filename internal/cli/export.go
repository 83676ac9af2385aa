package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"anniv-certificate-service/internal/client"
	"anniv-certificate-service/internal/config"
	"anniv-certificate-service/internal/domain"

	"github.com/spf13/cobra"
)

// NewExportCmd downloads a certificate CSV through the admin API.
func NewExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export certificates as CSV through the admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, v, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			c := newClient(cfg)

			password := v.GetString("password")
			if password == "" {
				return fmt.Errorf("admin password required (--password or %s_PASSWORD)", envPrefix)
			}
			creds, res, err := c.Login(cmd.Context(), cfg.Admin.Username, password)
			if err != nil {
				return fmt.Errorf("login: %w", err)
			}
			slog.Debug("logged in", "name", res.Name, "expiresAt", res.ExpiresAt)

			var out io.Writer = cmd.OutOrStdout()
			if path := v.GetString("output"); path != "" && path != "-" {
				f, err := os.Create(path)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer f.Close()
				out = f
			}

			req := domain.ExportRequest{
				Columns: v.GetStringSlice("columns"),
				Query:   v.GetString("q"),
				Limit:   v.GetInt("limit"),
				Format:  "csv",
			}
			if err := c.ExportCertificates(cmd.Context(), creds, req, out); err != nil {
				return fmt.Errorf("export: %w", err)
			}
			slog.Info("certificates exported", "output", v.GetString("output"))
			return nil
		},
	}
	f := cmd.Flags()
	f.String("api", "", "API base URL (overrides client.base_url)")
	f.String("admin-username", "", "admin username")
	f.String("password", "", "admin password")
	f.StringSlice("columns", nil, "columns to export (fullNo,name,workNo,startDate,workDays,wishes,createdAt)")
	f.String("q", "", "only export certificates matching this name, employee ID or number")
	f.Int("limit", 0, "maximum number of rows (0 = all)")
	f.StringP("output", "o", "-", "output file path (- for stdout)")
	return cmd
}

func newClient(cfg config.Config) *client.Client {
	return client.New(cfg.Client.BaseURL,
		client.WithTimeout(config.TTLDuration(cfg.Client.Timeout, client.DefaultTimeout)),
		client.WithExportTimeout(config.TTLDuration(cfg.Client.ExportTimeout, client.DefaultExportTimeout)),
		client.WithLanguage(cfg.Server.Lang),
	)
}
