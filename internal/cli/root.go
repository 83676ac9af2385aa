package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"anniv-certificate-service/internal/config"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "ANNIV"

// Execute runs the CLI.
func Execute() error {
	// a missing .env is fine; the environment may already be set
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("load .env failed", "error", err)
	}
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	envConfig := os.Getenv("CONFIG_PATH")
	if envConfig == "" {
		envConfig = "config/config.yaml"
	}

	cmd := &cobra.Command{
		Use:          "anniv",
		Short:        "Anniversary quiz and certificate service",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			setupLogging(viperForCmd(cmd))
		},
	}

	f := cmd.PersistentFlags()
	f.String("config", envConfig, "path to YAML config")
	f.String("log-level", "info", "log level (debug, info, warn, error)")
	f.String("log-format", "text", "log format (text, json)")

	cmd.AddCommand(
		NewStartCmd(),
		NewMigrateCmd(),
		NewExportCmd(),
		NewPlayCmd(),
		NewHashPasswordCmd(),
	)
	return cmd
}

func setupLogging(v *viper.Viper) {
	var level slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		h = slog.NewJSONHandler(os.Stderr, opts)
	default:
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

// viperForCmd binds a command's flags and ANNIV_* environment variables.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())
	_ = v.BindPFlags(cmd.InheritedFlags())
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// loadConfig reads the YAML file named by --config and applies flag and
// environment overrides on top of it.
func loadConfig(cmd *cobra.Command) (config.Config, *viper.Viper, error) {
	v := viperForCmd(cmd)
	cfg, err := config.Load(v.GetString("config"))
	if err != nil {
		return cfg, v, fmt.Errorf("load config: %w", err)
	}
	overrides := map[string]*string{
		"port":                &cfg.Server.Port,
		"lang":                &cfg.Server.Lang,
		"storage":             &cfg.Storage.Driver,
		"sqlite":              &cfg.Storage.SQLite,
		"postgres-url":        &cfg.Postgres.URL,
		"redis-addr":          &cfg.Redis.Addr,
		"redis-password":      &cfg.Redis.Password,
		"quiz-code":           &cfg.Quiz.Code,
		"quiz-file":           &cfg.Quiz.File,
		"admin-username":      &cfg.Admin.Username,
		"admin-password-hash": &cfg.Admin.PasswordHash,
		"jwt-secret":          &cfg.Admin.JWTSecret,
		"api":                 &cfg.Client.BaseURL,
	}
	for key, dst := range overrides {
		if !v.IsSet(key) {
			continue
		}
		if s := v.GetString(key); s != "" {
			*dst = s
		}
	}
	return cfg, v, nil
}
