package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/indicator-api/internal/auth"
	applog "github.com/straye-as/indicator-api/internal/logger"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// RequestIDFromContext returns the id assigned by Logging, or ""
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	written     int64
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.statusCode = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Logging assigns a request id (reusing a well-formed incoming X-Request-ID) and logs each request.
// The user is read after the handler chain ran, so authenticated requests carry user fields.
func Logging(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get(requestIDHeader)
			if _, err := uuid.Parse(requestID); err != nil {
				requestID = uuid.New().String()
			}
			w.Header().Set(requestIDHeader, requestID)

			// auth stores the user on a derived request; keep a pointer to read it back afterwards
			holder := &userHolder{}
			ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
			ctx = context.WithValue(ctx, userHolderKey{}, holder)

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r.WithContext(ctx))

			duration := time.Since(start)
			reqLogger := applog.WithRequest(logger, r.Method, r.URL.Path, requestID)
			fields := []zap.Field{
				zap.String("remote_addr", r.RemoteAddr),
				zap.Int("status_code", rw.statusCode),
				zap.Int64("response_size", rw.written),
				zap.Duration("duration", duration),
			}
			if holder.user != nil {
				reqLogger = applog.WithUser(reqLogger, holder.user.UserID, holder.user.DisplayName)
			}

			message := fmt.Sprintf("%s %-30s -> %3d (%s)", r.Method, r.URL.Path, rw.statusCode, duration.Truncate(time.Microsecond))
			switch {
			case rw.statusCode >= http.StatusInternalServerError:
				reqLogger.Error(message, fields...)
			case rw.statusCode >= http.StatusBadRequest:
				reqLogger.Warn(message, fields...)
			default:
				reqLogger.Info(message, fields...)
			}
		})
	}
}

type userHolderKey struct{}

type userHolder struct {
	user *auth.UserContext
}

// CaptureUser records the authenticated user for the request log line.
// Mount it after authentication.
func CaptureUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if holder, ok := r.Context().Value(userHolderKey{}).(*userHolder); ok {
			holder.user, _ = auth.FromContext(r.Context())
		}
		next.ServeHTTP(w, r)
	})
}
