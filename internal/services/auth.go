package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/desertthunder/scorebook/internal/models"
	"github.com/desertthunder/scorebook/internal/shared"
)

// AuthService exchanges credentials for a bearer token via POST /users/login.
type AuthService struct {
	api *APIService
}

// NewAuthService creates an auth client.
func NewAuthService(api *APIService) *AuthService {
	return &AuthService{api: api}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token string `json:"token" validate:"required"`
}

// Login returns the token issued for email and password.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, error) {
	req := loginRequest{Email: email, Password: password}
	if err := schemaValidator().Struct(req); err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	var resp loginResponse
	if err := s.api.Do(ctx, http.MethodPost, "/users/login", req, &resp); err != nil {
		if errors.Is(err, shared.ErrAuthRequired) || errors.Is(err, shared.ErrValidation) {
			return "", fmt.Errorf("%w: %w", shared.ErrAuthFailed, err)
		}
		return "", err
	}
	if err := schemaValidator().Struct(resp); err != nil {
		return "", shared.NewAPIError(shared.KindValidation, http.StatusOK, "login response carried no token", err)
	}
	return resp.Token, nil
}

// TokenClaims are the fields read from the bearer token.
type TokenClaims struct {
	UserID    string
	ExpiresAt time.Time // zero when the token does not expire
}

// Expired reports whether the token is past its expiry at now.
func (c TokenClaims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// ParseTokenClaims reads the subject and expiry of a JWT without verifying its signature.
//
// The server verifies the token; the client only needs the user id for cache keys.
// The subject falls back to "id", "_id" or "userId" claims.
func ParseTokenClaims(token string) (TokenClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return TokenClaims{}, fmt.Errorf("%w: %v", shared.ErrNotAuthenticated, err)
	}

	var out TokenClaims
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		out.UserID = sub
	} else {
		for _, key := range []string{"id", "_id", "userId"} {
			if v, ok := claims[key].(string); ok && v != "" {
				out.UserID = v
				break
			}
		}
	}
	if out.UserID == "" {
		return TokenClaims{}, fmt.Errorf("%w: token carries no user id", shared.ErrNotAuthenticated)
	}

	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}

// UserForToken returns the cache key user for token, or [models.AnonymousUser] when
// the token is empty, unreadable or expired at now.
func UserForToken(token string, now time.Time) string {
	if token == "" {
		return models.AnonymousUser
	}
	claims, err := ParseTokenClaims(token)
	if err != nil || claims.Expired(now) {
		return models.AnonymousUser
	}
	return claims.UserID
}

// NewAuthenticatedClient returns an [http.Client] that sends token as a bearer credential.
//
// An empty token yields a plain client so reads are made anonymously.
func NewAuthenticatedClient(token string, base http.RoundTripper, timeout time.Duration) *http.Client {
	if base == nil {
		base = http.DefaultTransport
	}
	client := &http.Client{Transport: base, Timeout: timeout}
	if token == "" {
		return client
	}
	client.Transport = &oauth2.Transport{
		Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
		Base:   base,
	}
	return client
}

// StoredToken is the on-disk form of a saved login.
type StoredToken struct {
	Token   string    `json:"token"`
	Email   string    `json:"email,omitempty"`
	SavedAt time.Time `json:"saved_at"`
}

// SaveToken writes token to path with owner-only permissions.
func SaveToken(path string, t StoredToken) error {
	path = shared.ExpandHome(path)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	if t.SavedAt.IsZero() {
		t.SavedAt = time.Now()
	}
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

// LoadToken reads a token saved by [SaveToken]; a missing file is [shared.ErrNotAuthenticated].
func LoadToken(path string) (*StoredToken, error) {
	data, err := os.ReadFile(shared.ExpandHome(path))
	if errors.Is(err, os.ErrNotExist) {
		return nil, shared.ErrNotAuthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var t StoredToken
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%w: corrupt token file: %v", shared.ErrInvalidConfig, err)
	}
	if t.Token == "" {
		return nil, shared.ErrNotAuthenticated
	}
	return &t, nil
}

// RemoveToken deletes the saved token; a missing file is not an error.
func RemoveToken(path string) error {
	if err := os.Remove(shared.ExpandHome(path)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	return nil
}

// ResolveToken prefers an explicit token, then the token file.
func ResolveToken(cfg shared.AuthConfig) string {
	if cfg.Token != "" {
		return cfg.Token
	}
	if cfg.TokenFile == "" {
		return ""
	}
	t, err := LoadToken(cfg.TokenFile)
	if err != nil {
		return ""
	}
	return t.Token
}
