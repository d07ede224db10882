package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/httprate"
	"github.com/straye-as/indicator-api/internal/auth"
	"github.com/straye-as/indicator-api/internal/config"
	"github.com/straye-as/indicator-api/internal/domain"
	"go.uber.org/zap"
)

// RateLimiter limits anonymous traffic per client IP and authenticated traffic per user id
type RateLimiter struct {
	enabled      bool
	logger       *zap.Logger
	byIP         func(http.Handler) http.Handler
	byUser       func(http.Handler) http.Handler
	exemptIPs    map[string]struct{}
	exemptPaths  map[string]struct{}
	exemptPrefix []string
}

func NewRateLimiter(cfg *config.RateLimitConfig, logger *zap.Logger) *RateLimiter {
	rl := &RateLimiter{
		enabled:     cfg.Enabled,
		logger:      logger,
		exemptIPs:   make(map[string]struct{}, len(cfg.WhitelistIPs)),
		exemptPaths: make(map[string]struct{}, len(cfg.WhitelistPaths)),
	}
	for _, ip := range cfg.WhitelistIPs {
		rl.exemptIPs[ip] = struct{}{}
	}
	for _, path := range cfg.WhitelistPaths {
		if prefix, ok := strings.CutSuffix(path, "/*"); ok {
			rl.exemptPrefix = append(rl.exemptPrefix, prefix)
			continue
		}
		rl.exemptPaths[path] = struct{}{}
	}

	rl.byIP = httprate.Limit(
		cfg.RequestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) { return "ip:" + clientIP(r), nil }),
		httprate.WithLimitHandler(rl.tooManyRequests),
	)
	rl.byUser = httprate.Limit(
		cfg.RequestsPerMinuteAuth,
		time.Minute,
		httprate.WithKeyFuncs(userOrIPKey),
		httprate.WithLimitHandler(rl.tooManyRequests),
	)

	if cfg.Enabled {
		logger.Info("rate limiter initialized",
			zap.Int("requests_per_minute", cfg.RequestsPerMinute),
			zap.Int("requests_per_minute_auth", cfg.RequestsPerMinuteAuth),
			zap.Int("exempt_ips", len(cfg.WhitelistIPs)),
			zap.Int("exempt_paths", len(cfg.WhitelistPaths)),
		)
	}
	return rl
}

// Limit applies the per-user limit when a user is on the context, the per-IP limit otherwise.
// Mount after authentication.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	if !rl.enabled {
		return next
	}
	userLimited := rl.byUser(next)
	ipLimited := rl.byIP(next)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case rl.exempt(r):
			next.ServeHTTP(w, r)
		case hasUser(r):
			userLimited.ServeHTTP(w, r)
		default:
			ipLimited.ServeHTTP(w, r)
		}
	})
}

// LimitByIP applies the per-IP limit only; used ahead of authentication
func (rl *RateLimiter) LimitByIP(next http.Handler) http.Handler {
	if !rl.enabled {
		return next
	}
	ipLimited := rl.byIP(next)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.exempt(r) {
			next.ServeHTTP(w, r)
			return
		}
		ipLimited.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) exempt(r *http.Request) bool {
	if _, ok := rl.exemptPaths[r.URL.Path]; ok {
		return true
	}
	for _, prefix := range rl.exemptPrefix {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	_, ok := rl.exemptIPs[clientIP(r)]
	return ok
}

func hasUser(r *http.Request) bool {
	_, ok := auth.FromContext(r.Context())
	return ok
}

func userOrIPKey(r *http.Request) (string, error) {
	if user, ok := auth.FromContext(r.Context()); ok {
		return "user:" + user.UserID, nil
	}
	return "ip:" + clientIP(r), nil
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the socket address
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (rl *RateLimiter) tooManyRequests(w http.ResponseWriter, r *http.Request) {
	fields := []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("client_ip", clientIP(r)),
		zap.String("request_id", RequestIDFromContext(r.Context())),
	}
	if user, ok := auth.FromContext(r.Context()); ok {
		fields = append(fields, zap.String("user_id", user.UserID))
	}
	rl.logger.Warn("rate limit exceeded", fields...)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", "60")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(domain.APIError{
		Type:   domain.ErrorTypeRateLimited,
		Title:  http.StatusText(http.StatusTooManyRequests),
		Status: http.StatusTooManyRequests,
		Detail: "Too many requests. Please try again later.",
	})
}
