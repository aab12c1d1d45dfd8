package middleware

import (
	"log/slog"
	"net/http"

	"github.com/felixgeelhaar/lingo/internal/auth"
)

// TokenVerifier validates bearer tokens.
type TokenVerifier interface {
	Verify(raw string) (*auth.Claims, error)
}

// RequireBearer rejects requests without a valid bearer token and stores
// the verified claims on the request context.
func RequireBearer(v TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := auth.BearerToken(r.Header.Get("Authorization"))
			if err == nil {
				var claims *auth.Claims
				if claims, err = v.Verify(raw); err == nil {
					next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
					return
				}
			}

			slog.Warn("unauthenticated request",
				"correlation_id", GetCorrelationID(r.Context()),
				"path", r.URL.Path,
				"error", err,
			)
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("WWW-Authenticate", `Bearer realm="lingo"`)
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":{"code":"UNAUTHENTICATED","message":"missing or invalid bearer token"}}`))
		})
	}
}

// UserOrIP keys rate limiting by token subject when authenticated.
func UserOrIP(r *http.Request) string {
	if c, ok := auth.ClaimsFrom(r.Context()); ok {
		return "user:" + c.Subject
	}
	return "ip:" + ClientIP(r)
}
