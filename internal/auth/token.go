// Package auth verifies the bearer tokens that identify learners. Token
// issuance lives with an external identity provider; Issue exists for the
// admin CLI and tests.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/felixgeelhaar/lingo/internal/domain"
)

// Roles carried in the role claim.
const (
	RoleLearner = "learner"
	RoleAdmin   = "admin"
)

// Claims are the JWT claims lingo understands. The subject is the user id.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 tokens signed with a shared secret.
type Verifier struct {
	secret []byte
	issuer string
	clock  domain.Clock
	leeway time.Duration
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithIssuer requires tokens to carry the given iss claim.
func WithIssuer(issuer string) Option {
	return func(v *Verifier) { v.issuer = issuer }
}

// WithClock overrides the time source used for expiry checks.
func WithClock(c domain.Clock) Option {
	return func(v *Verifier) { v.clock = c }
}

// WithLeeway tolerates clock skew on exp and nbf.
func WithLeeway(d time.Duration) Option {
	return func(v *Verifier) { v.leeway = d }
}

// NewVerifier creates a verifier for the shared secret.
func NewVerifier(secret string, opts ...Option) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New("auth: empty signing secret")
	}
	v := &Verifier{secret: []byte(secret), clock: domain.SystemClock{}}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Issue signs a token for subject valid for ttl.
func (v *Verifier) Issue(subject, role string, ttl time.Duration) (string, error) {
	now := v.clock.Now()
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(v.secret)
}

// Verify parses and validates a raw token. Every failure unwraps to
// domain.ErrUnauthenticated.
func (v *Verifier) Verify(raw string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.clock.Now),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", domain.ErrUnauthenticated)
	}
	return claims, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("%w: missing bearer token", domain.ErrUnauthenticated)
	}
	return strings.TrimSpace(token), nil
}

type claimsKey struct{}

// WithClaims stores verified claims on the context.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// ClaimsFrom returns the verified claims, if any.
func ClaimsFrom(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok
}

// Authorize checks that the authenticated caller may act for userID.
// Without claims on the context authentication is disabled and every
// caller is allowed. Admins may act for anyone.
func Authorize(ctx context.Context, userID string) error {
	c, ok := ClaimsFrom(ctx)
	if !ok {
		return nil
	}
	if c.Role == RoleAdmin || c.Subject == userID {
		return nil
	}
	return fmt.Errorf("%w: token subject %q cannot act for %q", domain.ErrForbidden, c.Subject, userID)
}

// RequireAdmin checks that the authenticated caller is an admin. Without
// claims on the context every caller is allowed.
func RequireAdmin(ctx context.Context) error {
	c, ok := ClaimsFrom(ctx)
	if !ok || c.Role == RoleAdmin {
		return nil
	}
	return fmt.Errorf("%w: role %q cannot grade exams", domain.ErrForbidden, c.Role)
}
