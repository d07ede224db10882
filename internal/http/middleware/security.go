package middleware

import (
	"fmt"
	"net/http"

	"github.com/straye-as/indicator-api/internal/config"
)

// securityHeaders builds the static header set once from configuration
func securityHeaders(cfg *config.SecurityConfig) map[string]string {
	headers := map[string]string{
		"X-Frame-Options":         cfg.FrameOptions,
		"X-XSS-Protection":        cfg.XSSProtection,
		"Content-Security-Policy": cfg.ContentSecurityPolicy,
		"Referrer-Policy":         cfg.ReferrerPolicy,
		"Permissions-Policy":      cfg.PermissionsPolicy,
	}
	if cfg.ContentTypeNosniff {
		headers["X-Content-Type-Options"] = "nosniff"
	}
	if cfg.EnableHSTS {
		hsts := fmt.Sprintf("max-age=%d", cfg.HSTSMaxAge)
		if cfg.HSTSIncludeSubdomains {
			hsts += "; includeSubDomains"
		}
		if cfg.HSTSPreload {
			hsts += "; preload"
		}
		headers["Strict-Transport-Security"] = hsts
	}
	for name, value := range headers {
		if value == "" {
			delete(headers, name)
		}
	}
	return headers
}

// SecurityHeaders returns a middleware that adds security headers to responses.
// Swagger UI needs inline scripts, so the content security policy is skipped under /swagger/.
func SecurityHeaders(cfg *config.SecurityConfig) func(http.Handler) http.Handler {
	headers := securityHeaders(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for name, value := range headers {
				if name == "Content-Security-Policy" && isSwaggerPath(r.URL.Path) {
					continue
				}
				h.Set(name, value)
			}
			h.Del("X-Powered-By")
			h.Del("Server")

			next.ServeHTTP(w, r)
		})
	}
}

func isSwaggerPath(path string) bool {
	return len(path) >= len("/swagger/") && path[:len("/swagger/")] == "/swagger/"
}
