package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"anniv-certificate-service/internal/app"
	"anniv-certificate-service/internal/config"
	"anniv-certificate-service/internal/domain"
	"anniv-certificate-service/internal/i18n"
	"anniv-certificate-service/internal/infra/memory"
	pgstore "anniv-certificate-service/internal/infra/postgres"
	rediscache "anniv-certificate-service/internal/infra/redis"
	"anniv-certificate-service/internal/infra/sqlite"
	transport "anniv-certificate-service/internal/transport/http"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the anniversary API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, v, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg, v.GetBool("access-log"))
		},
	}
	f := cmd.Flags()
	f.String("port", "", "port to listen on (overrides server.port)")
	f.String("lang", "", "default response language (zh, en)")
	f.String("storage", "", "certificate storage driver (memory, sqlite, postgres)")
	f.String("sqlite", "", "SQLite database path")
	f.String("postgres-url", "", "Postgres connection URL")
	f.String("redis-addr", "", "Redis address for pass tokens and the quiz cache")
	f.String("redis-password", "", "Redis password")
	f.String("quiz-code", "", "active quiz code")
	f.String("quiz-file", "", "load the quiz from a JSON or YAML file")
	f.String("jwt-secret", "", "admin token signing secret")
	f.String("admin-password-hash", "", "bcrypt hash of the admin password")
	f.Bool("access-log", false, "log every request")
	return cmd
}

// certificateStore is a storage backend for certificates and quiz attempts.
type certificateStore interface {
	app.CertificateRepository
	app.AttemptRepository
}

// stack is the wired service graph behind the HTTP API.
type stack struct {
	quiz    *app.QuizService
	certs   *app.CertificateService
	admin   *app.AdminService
	auth    *app.AuthService
	closers []func()
}

func (s *stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func buildStack(ctx context.Context, cfg config.Config) (*stack, error) {
	st := &stack{}
	fail := func(err error) (*stack, error) {
		st.Close()
		return nil, err
	}

	target, err := domain.ParseTargetDate(cfg.Certificate.TargetDate)
	if err != nil {
		return nil, fmt.Errorf("certificate: %w", err)
	}
	window, err := domain.ParseJoinWindow(cfg.Certificate.MinJoinDate, cfg.Certificate.MaxJoinDate)
	if err != nil {
		return nil, err
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		st.closers = append(st.closers, func() { _ = redisClient.Close() })
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fail(fmt.Errorf("redis ping: %w", err))
		}
	}

	var pool *pgxpool.Pool
	if cfg.Storage.Driver == "postgres" {
		if cfg.Postgres.URL == "" {
			return fail(errors.New("postgres url not configured"))
		}
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return fail(err)
		}
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return fail(fmt.Errorf("connect postgres: %w", err))
		}
		st.closers = append(st.closers, pool.Close)
	}

	var store certificateStore
	switch cfg.Storage.Driver {
	case "", "memory":
		store = memory.NewCertificateStore()
	case "sqlite":
		db, err := sqlite.New(cfg.Storage.SQLite)
		if err != nil {
			return fail(err)
		}
		st.closers = append(st.closers, func() { _ = db.Close() })
		store = db
	case "postgres":
		store = pgstore.NewCertificateStore(pool)
	default:
		return fail(fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver))
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(memory.DefaultQuiz())
	switch {
	case cfg.Quiz.File != "":
		quiz, err := memory.LoadQuizFile(cfg.Quiz.File)
		if err != nil {
			return fail(err)
		}
		loader = memory.NewStaticQuizLoader(quiz)
	case pool != nil:
		loader = pgstore.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizzes app.QuizRepository
	var tokens app.PassTokenStore
	if redisClient != nil {
		quizzes = rediscache.NewQuizRepository(redisClient, loader, quizTTL)
		tokens = rediscache.NewPassTokenStore(redisClient)
	} else {
		quizzes = memory.NewQuizRepository(loader, quizTTL)
		tokens = memory.NewPassTokenStore()
	}

	st.admin = app.NewAdminService(store, store, quizzes, app.NewFeed(), app.AdminSettings{
		QuizCode:   cfg.Quiz.Code,
		TargetDate: target,
		Window:     window,
	})
	st.quiz = app.NewQuizService(quizzes, tokens, store, app.QuizSettings{
		ActiveCode:    cfg.Quiz.Code,
		PassTokenTTL:  config.TTLDuration(cfg.Quiz.PassTTL, 24*time.Hour),
		RevealAnswers: cfg.RevealAnswers(),
	})
	st.certs = app.NewCertificateService(store, tokens, st.admin, app.CertificateSettings{
		ScsCode:    cfg.Certificate.ScsCode,
		TargetDate: target,
		Window:     window,
	})

	if cfg.Admin.PasswordHash == "" || cfg.Admin.JWTSecret == "" {
		slog.Warn("admin console disabled: password hash or jwt secret not configured")
		return st, nil
	}
	st.auth, err = app.NewAuthService(app.AuthSettings{
		Username:     cfg.Admin.Username,
		DisplayName:  cfg.Admin.Name,
		PasswordHash: cfg.Admin.PasswordHash,
		Secret:       []byte(cfg.Admin.JWTSecret),
		TokenTTL:     config.TTLDuration(cfg.Admin.TokenTTL, 12*time.Hour),
	})
	if err != nil {
		return fail(err)
	}
	return st, nil
}

func (s *stack) router(cfg config.Config, accessLog bool) http.Handler {
	rc := transport.RouterConfig{
		Public:      transport.NewPublicHandler(s.quiz, s.certs),
		Lang:        cfg.Server.Lang,
		CORSOrigins: cfg.Server.CORSOrigins,
		AccessLog:   accessLog,
	}
	if s.auth != nil {
		rc.Admin = transport.NewAdminHandler(s.admin)
		rc.WS = transport.NewWSHandler(s.admin, cfg.Server.CORSOrigins)
		rc.Tokens = s.auth
	}
	return transport.NewRouter(rc)
}

func runServer(ctx context.Context, cfg config.Config, accessLog bool) error {
	if err := i18n.Init(cfg.Server.Lang); err != nil {
		return err
	}
	st, err := buildStack(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	port := cfg.Server.Port
	if port == "" {
		port = "8080"
	}

	// no Read/WriteTimeout: they would outlive the upgrade and cut admin websockets
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           st.router(cfg, accessLog),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting anniversary service", "port", port, "storage", cfg.Storage.Driver, "quiz", cfg.Quiz.Code)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case <-stop:
		slog.Info("shutting down server")
	case <-ctx.Done():
		slog.Info("context canceled, shutting down server")
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
