// Package auth verifies caller identity from HS256 bearer tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/fyrsmithlabs/folio/internal/apperr"
	"github.com/fyrsmithlabs/folio/internal/logging"
)

// MinSecretLen is the minimum signing secret length in bytes.
const MinSecretLen = 32

// ErrWeakSecret is returned for signing secrets shorter than MinSecretLen.
var ErrWeakSecret = fmt.Errorf("auth: secret must be at least %d bytes", MinSecretLen)

// Claims is the token payload. Identity is user_id, falling back to sub.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
}

// Identity returns the caller id carried by the claims.
func (c *Claims) Identity() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}

// Identity is the authenticated caller.
type Identity struct {
	UserID string
	Email  string
}

type identityKey struct{}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the caller identity, if any.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok && id.UserID != ""
}

// Verifier validates bearer tokens.
type Verifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewVerifier returns a Verifier for secret. A non-empty issuer is enforced.
func NewVerifier(secret []byte, issuer string) (*Verifier, error) {
	if len(secret) < MinSecretLen {
		return nil, ErrWeakSecret
	}
	return &Verifier{secret: secret, issuer: issuer, now: time.Now}, nil
}

// Verify parses token and returns its claims. Every failure is Unauthorized.
func (v *Verifier) Verify(token string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, apperr.E(apperr.ErrUnauthorized, "auth.verify", err)
	}
	if !parsed.Valid || claims.Identity() == "" {
		return nil, apperr.E(apperr.ErrUnauthorized, "auth.verify", errors.New("token has no subject"))
	}
	return claims, nil
}

// IssueToken signs a token for userID valid for ttl.
func IssueToken(secret []byte, issuer, userID, email string, ttl time.Duration) (string, error) {
	if len(secret) < MinSecretLen {
		return "", ErrWeakSecret
	}
	if userID == "" {
		return "", errors.New("auth: user id is required")
	}
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID: userID,
		Email:  email,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// Middleware authenticates requests with an Authorization: Bearer token and
// stores the Identity in the request context. Failures return an
// Unauthorized error for the server's error handler to render.
//
// Example usage:
//
//	api := e.Group("/api/v1", auth.Middleware(verifier))
func Middleware(v *Verifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				return apperr.Unauthorized("auth.middleware")
			}

			claims, err := v.Verify(strings.TrimSpace(token))
			if err != nil {
				return err
			}

			id := Identity{UserID: claims.Identity(), Email: claims.Email}
			ctx := WithIdentity(c.Request().Context(), id)
			ctx = logging.WithUserID(ctx, id.UserID)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// UserID returns the authenticated caller id of c, or "".
func UserID(c echo.Context) string {
	id, _ := FromContext(c.Request().Context())
	return id.UserID
}
