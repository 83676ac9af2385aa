package app

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"anniv-certificate-service/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const tokenIssuer = "anniv-admin"

// AuthSettings configures the single admin account.
type AuthSettings struct {
	Username     string
	DisplayName  string
	PasswordHash string
	Secret       []byte
	TokenTTL     time.Duration
}

// AuthService authenticates the admin console with bcrypt and HS256 tokens.
type AuthService struct {
	settings AuthSettings
	now      func() time.Time
}

func NewAuthService(settings AuthSettings) (*AuthService, error) {
	if len(settings.Secret) == 0 {
		return nil, errors.New("admin jwt secret is empty")
	}
	if settings.TokenTTL <= 0 {
		settings.TokenTTL = 12 * time.Hour
	}
	if settings.DisplayName == "" {
		settings.DisplayName = settings.Username
	}
	return &AuthService{settings: settings, now: time.Now}, nil
}

// Login checks credentials and returns a signed bearer token.
func (s *AuthService) Login(username, password string) (domain.LoginResult, error) {
	if s.settings.PasswordHash == "" {
		return domain.LoginResult{}, domain.ErrInvalidCredentials
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.settings.Username)) == 1
	pwErr := bcrypt.CompareHashAndPassword([]byte(s.settings.PasswordHash), []byte(password))
	if !userOK || pwErr != nil {
		return domain.LoginResult{}, domain.ErrInvalidCredentials
	}

	now := s.now()
	expires := now.Add(s.settings.TokenTTL)
	claims := jwt.RegisteredClaims{
		Subject:   s.settings.Username,
		Issuer:    tokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.settings.Secret)
	if err != nil {
		return domain.LoginResult{}, fmt.Errorf("sign token: %w", err)
	}
	return domain.LoginResult{Token: signed, Name: s.settings.DisplayName, ExpiresAt: expires}, nil
}

// ValidateToken verifies a bearer token and returns its subject.
func (s *AuthService) ValidateToken(raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return s.settings.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("validate token: %w", err)
	}
	if claims.Subject != s.settings.Username {
		return "", errors.New("validate token: unknown subject")
	}
	return claims.Subject, nil
}

// HashPassword produces the bcrypt hash stored in admin.password_hash.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// NewAuthServiceWithClock is test-only for deterministic expiry.
func NewAuthServiceWithClock(settings AuthSettings, now func() time.Time) (*AuthService, error) {
	s, err := NewAuthService(settings)
	if err != nil {
		return nil, err
	}
	s.now = now
	return s, nil
}
