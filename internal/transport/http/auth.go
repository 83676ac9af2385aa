package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"anniv-certificate-service/internal/domain"
)

type contextKey string

// AdminKey holds the authenticated admin username in the request context.
const AdminKey contextKey = "admin"

// TokenService issues and validates admin bearer tokens.
type TokenService interface {
	Login(username, password string) (domain.LoginResult, error)
	ValidateToken(token string) (string, error)
}

// AuthMiddleware rejects requests without a valid bearer token. Websocket
// upgrades may pass the token as ?token= since browsers cannot set headers.
func AuthMiddleware(tokens TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				writeMessage(w, r, http.StatusUnauthorized, "Unauthorized")
				return
			}
			admin, err := tokens.ValidateToken(raw)
			if err != nil {
				slog.Debug("admin token rejected", "error", err)
				writeMessage(w, r, http.StatusUnauthorized, "Unauthorized")
				return
			}
			ctx := context.WithValue(r.Context(), AdminKey, admin)
			next.ServeHTTP(w, r.WithContext(ctx))
		}
		return http.HandlerFunc(fn)
	}
}

func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginHandler serves POST /auth/login.
func LoginHandler(tokens TokenService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := decodeJSON(r, &req); err != nil || req.Username == "" || req.Password == "" {
			writeMessage(w, r, http.StatusBadRequest, "InvalidRequest")
			return
		}
		res, err := tokens.Login(req.Username, req.Password)
		if err != nil {
			slog.Info("admin login failed", "username", req.Username)
			writeError(w, r, err)
			return
		}
		slog.Info("admin login", "username", req.Username)
		writeJSON(w, http.StatusOK, res)
	}
}
