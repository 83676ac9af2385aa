package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"anniv-certificate-service/internal/config"
	"anniv-certificate-service/internal/domain"
	"anniv-certificate-service/internal/infra/memory"
	pgstore "anniv-certificate-service/internal/infra/postgres"
	pgmigrations "anniv-certificate-service/internal/infra/postgres/migrations"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

// NewMigrateCmd applies database migrations and seeds the quiz.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run Postgres migrations and seed the active quiz",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, v, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := runMigrationsWithConfig(cmd.Context(), cfg); err != nil {
				return err
			}
			if v.GetBool("no-seed") {
				return nil
			}
			return seedQuiz(cmd.Context(), cfg, v.GetBool("overwrite"))
		},
	}
	f := cmd.Flags()
	f.String("postgres-url", "", "Postgres connection URL")
	f.String("quiz-file", "", "seed the quiz from a JSON or YAML file instead of the built-in one")
	f.Bool("overwrite", false, "replace quiz content that is already stored")
	f.Bool("no-seed", false, "only apply migrations")
	return cmd
}

func runMigrationsWithConfig(ctx context.Context, cfg config.Config) error {
	if cfg.Postgres.URL == "" {
		return errors.New("postgres url not configured")
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)

	if err := migrator.Init(ctx); err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if group.IsZero() {
		slog.Info("database schema up to date")
		return nil
	}
	slog.Info("migrations applied", "group", group.String())
	return nil
}

func seedQuiz(ctx context.Context, cfg config.Config, overwrite bool) error {
	quiz := memory.DefaultQuiz()
	if cfg.Quiz.File != "" {
		var err error
		if quiz, err = memory.LoadQuizFile(cfg.Quiz.File); err != nil {
			return err
		}
	}
	if quiz.Code == "" {
		return fmt.Errorf("seed quiz: %w", domain.ErrQuizNotFound)
	}

	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	if err := pgstore.NewQuizLoader(pool).SaveQuiz(ctx, quiz, overwrite); err != nil {
		return err
	}
	slog.Info("quiz seeded", "quiz", quiz.Code, "questions", len(quiz.Questions), "overwrite", overwrite)
	return nil
}
