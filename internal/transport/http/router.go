package http

import (
	"net/http"

	"anniv-certificate-service/internal/i18n"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig carries the handlers and cross-cutting settings of the API.
type RouterConfig struct {
	Public      *PublicHandler
	Admin       *AdminHandler
	WS          *WSHandler
	Tokens      TokenService
	Lang        string
	CORSOrigins []string
	// AccessLog enables chi's request logger.
	AccessLog bool
}

// NewRouter wires the public wizard endpoints and the admin console API.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if cfg.AccessLog {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Language", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(i18n.Middleware(cfg.Lang))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/anniv", func(r chi.Router) {
		r.Get("/quiz", cfg.Public.GetQuiz)
		r.Post("/quiz/validate", cfg.Public.Validate)
		r.Post("/certificates/issue", cfg.Public.IssueCertificate)
	})

	if cfg.Tokens == nil || cfg.Admin == nil {
		return r
	}

	r.Post("/auth/login", LoginHandler(cfg.Tokens))

	r.Route("/admin", func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Tokens))

		r.Get("/stats", cfg.Admin.Stats)
		r.Get("/trend", cfg.Admin.Trend)
		r.Get("/survey-stats", cfg.Admin.SurveyStats)

		r.Get("/certificates", cfg.Admin.ListCertificates)
		r.Post("/certificates/export", cfg.Admin.ExportCertificates)
		r.Put("/certificates/{fullNo}", cfg.Admin.UpdateCertificate)
		r.Delete("/certificates/{fullNo}", cfg.Admin.DeleteCertificate)

		if cfg.WS != nil {
			r.Get("/ws", cfg.WS.ServeWS)
		}
	})

	return r
}
