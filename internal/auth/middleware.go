package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/medrex/teleconsult/pkg/interfaces"
	"github.com/medrex/teleconsult/pkg/logger"
	"github.com/medrex/teleconsult/pkg/types"
)

type claimsKey struct{}

// WithClaims returns ctx carrying claims
func WithClaims(ctx context.Context, claims *types.UserClaims) context.Context {
	ctx = context.WithValue(ctx, claimsKey{}, claims)
	return context.WithValue(ctx, logger.UserIDKey, claims.UserID)
}

// ClaimsFromContext returns the claims set by Authenticate
func ClaimsFromContext(ctx context.Context) (*types.UserClaims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*types.UserClaims)
	return claims, ok && claims != nil
}

// Middleware authenticates frontend requests and limits their write rate
type Middleware struct {
	validator interfaces.TokenValidator
	limiter   interfaces.RateLimiter
	logger    *logger.Logger
	public    []string
}

// NewMiddleware creates the middleware. limiter may be nil to disable rate limiting;
// requests whose path starts with one of public skip authentication.
func NewMiddleware(validator interfaces.TokenValidator, limiter interfaces.RateLimiter, log *logger.Logger, public ...string) *Middleware {
	return &Middleware{
		validator: validator,
		limiter:   limiter,
		logger:    log,
		public:    public,
	}
}

// Authenticate validates the bearer token and stores its claims in the request context
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.isPublic(r.URL.Path) || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			writeError(w, http.StatusUnauthorized, "invalid authorization header format")
			return
		}

		claims, err := m.validator.ValidateJWT(parts[1])
		if err != nil {
			m.logger.WithContext(r.Context()).WithError(err).Warn("Token validation failed")
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// RateLimit throttles state-changing requests per user. Reads and polling are not limited.
func (m *Middleware) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.limiter == nil || r.Method == http.MethodGet || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		allowed, err := m.limiter.Allow(claims.UserID)
		if err != nil || !allowed {
			m.logger.WithUserID(claims.UserID).Warn("Rate limit exceeded")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) isPublic(path string) bool {
	for _, p := range m.public {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error":  message,
		"status": status,
	})
}
