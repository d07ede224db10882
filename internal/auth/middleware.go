package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/straye-as/indicator-api/internal/config"
	"go.uber.org/zap"
)

// TokenValidator turns a bearer token into a user context
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*UserContext, error)
}

// UserRecorder keeps the users table in step with authenticated identities
type UserRecorder interface {
	RecordLogin(ctx context.Context, id, email, displayName string) error
}

// AdminChecker resolves the admin status of a user
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID string) bool
}

// Middleware handles authentication for HTTP requests
type Middleware struct {
	tokens       TokenValidator
	apiKey       string
	apiKeyUserID string
	users        UserRecorder
	admins       AdminChecker
	logger       *zap.Logger
}

// NewMiddleware creates a new authentication middleware
func NewMiddleware(cfg *config.Config, users UserRecorder, admins AdminChecker, logger *zap.Logger) *Middleware {
	return NewMiddlewareWithValidator(NewJWTValidator(&cfg.AzureAd), cfg.ApiKey, users, admins, logger)
}

// NewMiddlewareWithValidator creates the middleware around an explicit token validator
func NewMiddlewareWithValidator(tokens TokenValidator, apiKey config.ApiKeyConfig, users UserRecorder, admins AdminChecker, logger *zap.Logger) *Middleware {
	userID := apiKey.UserID
	if userID == "" {
		userID = "system"
	}
	return &Middleware{
		tokens:       tokens,
		apiKey:       apiKey.Value,
		apiKeyUserID: userID,
		users:        users,
		admins:       admins,
		logger:       logger,
	}
}

// Authenticate is the main authentication middleware
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		if apiKey := r.Header.Get("x-api-key"); apiKey != "" {
			if !m.validateAPIKey(apiKey) {
				m.logger.Warn("invalid API key attempt",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			userCtx := m.systemUser()
			m.recordLogin(r.Context(), userCtx)
			m.logAuthenticated(r, userCtx, start)
			next.ServeHTTP(w, r.WithContext(WithUserContext(r.Context(), userCtx)))
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Unauthorized: missing authorization header", http.StatusUnauthorized)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			http.Error(w, "Unauthorized: invalid authorization header format", http.StatusUnauthorized)
			return
		}

		userCtx, err := m.tokens.ValidateToken(r.Context(), parts[1])
		if err != nil {
			m.logger.Warn("token validation failed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
				zap.Error(err),
			)
			http.Error(w, "Unauthorized: "+err.Error(), http.StatusUnauthorized)
			return
		}

		m.recordLogin(r.Context(), userCtx)
		m.logAuthenticated(r, userCtx, start)
		next.ServeHTTP(w, r.WithContext(WithUserContext(r.Context(), userCtx)))
	})
}

// RequireAdmin ensures the authenticated user resolves to an administrator
func (m *Middleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userCtx, ok := FromContext(r.Context())
		if !ok {
			http.Error(w, "Forbidden: no user context", http.StatusForbidden)
			return
		}

		if m.admins == nil || !m.admins.IsAdmin(r.Context(), userCtx.UserID) {
			m.logger.Warn("admin access denied",
				zap.String("path", r.URL.Path),
				zap.String("user_id", userCtx.UserID),
			)
			http.Error(w, "Forbidden: admin access required", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) systemUser() *UserContext {
	return &UserContext{
		UserID:      m.apiKeyUserID,
		DisplayName: "System",
		Email:       m.apiKeyUserID,
		AuthType:    AuthTypeAPIKey,
	}
}

// recordLogin upserts the user row. Failures never block the request: permission
// resolution treats an unknown user as a non-admin without links.
func (m *Middleware) recordLogin(ctx context.Context, userCtx *UserContext) {
	if m.users == nil {
		return
	}
	if err := m.users.RecordLogin(ctx, userCtx.UserID, userCtx.Email, userCtx.DisplayName); err != nil {
		m.logger.Warn("failed to record login",
			zap.String("user_id", userCtx.UserID),
			zap.Error(err),
		)
	}
}

func (m *Middleware) logAuthenticated(r *http.Request, userCtx *UserContext, start time.Time) {
	m.logger.Info("request authenticated",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("auth_type", string(userCtx.AuthType)),
		zap.String("user_id", userCtx.UserID),
		zap.String("user_email", userCtx.Email),
		zap.Duration("auth_duration", time.Since(start)),
	)
}

func (m *Middleware) validateAPIKey(key string) bool {
	if m.apiKey == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(m.apiKey)) == 1
}
