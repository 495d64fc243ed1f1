package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"tradeacademy.io/support-desk/internal/auth"
	"tradeacademy.io/support-desk/internal/logger"
)

// JWTAuthMiddleware rejects requests without a valid agent token and
// stores the agent in the request context.
func JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.TokenFromRequest(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "No token, authorization denied", "NO_TOKEN")
			return
		}

		agent, err := auth.ValidateJWT(token)
		if err != nil {
			logger.FromContext(r.Context()).Debug("Rejected token", "error", err)
			writeError(w, http.StatusUnauthorized, "Token is not valid", "INVALID_TOKEN")
			return
		}

		ctx := auth.WithAgent(r.Context(), agent)
		ctx = logger.WithContext(ctx, logger.FromContext(ctx).With(slog.String("agent_id", agent.ID)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestLogger puts a request-scoped logger in the context and logs one
// line per request once it completes.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log := logger.L.With(
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(logger.WithContext(r.Context(), log)))

		log.Info("request",
			slog.Int("status", ww.Status()),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("latency", time.Since(start)),
			slog.String("remote_ip", clientIP(r)),
		)
	})
}

// RateLimiter is satisfied by limiter.Manager.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RateLimit allows limit requests per window per client IP for the named
// bucket. Limiter failures let the request through.
func RateLimit(l RateLimiter, bucket string, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, err := l.Allow(r.Context(), bucket+":"+clientIP(r), limit, window)
			if err != nil {
				logger.FromContext(r.Context()).Warn("Rate limiter unavailable", "bucket", bucket, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				writeError(w, http.StatusTooManyRequests, "Too many requests, please try again later", "RATE_LIMITED")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP is RemoteAddr without the port. middleware.RealIP has already
// applied any forwarding headers.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
