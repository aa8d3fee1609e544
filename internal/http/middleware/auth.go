// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file authenticates callers. A Bearer token signed with HMAC carries the
// account id in "sub" and, optionally, the marketplace side in "role". Both
// are stashed in the Gin context under "userID" and "role" for handlers,
// the rate limiter and the access log.
//
// For local development the X-User-ID / X-User-Role headers may stand in for
// a token when AllowDevHeader is set. Never enable that in production.
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// HeaderDevUserID carries the caller's account id in dev-header mode.
	HeaderDevUserID = "X-User-ID"
	// HeaderDevUserRole optionally pins the caller's side in dev-header mode.
	HeaderDevUserRole = "X-User-Role"

	ctxKeyUserID = "userID"
	ctxKeyRole   = "role"
)

var errBadToken = errors.New("invalid token")

// AuthOptions configures Auth.
type AuthOptions struct {
	// Secret verifies HS256/HS384/HS512 tokens. Empty disables token auth.
	Secret string
	// AllowDevHeader trusts X-User-ID / X-User-Role when no token is sent.
	AllowDevHeader bool
}

// Claims is the token payload accepted by Auth.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Auth resolves the caller's account id and stores it in the Gin context.
// Requests without a usable identity are rejected with 401.
func Auth(opts AuthOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw, ok := bearer(c.GetHeader("Authorization")); ok && opts.Secret != "" {
			claims, err := ParseToken(opts.Secret, raw)
			if err != nil {
				abortUnauthorized(c, "invalid_token", "invalid or expired token")
				return
			}
			c.Set(ctxKeyUserID, claims.Subject)
			if claims.Role != "" {
				c.Set(ctxKeyRole, strings.ToLower(claims.Role))
			}
			c.Next()
			return
		}

		if opts.AllowDevHeader {
			if uid := strings.TrimSpace(c.GetHeader(HeaderDevUserID)); uid != "" {
				c.Set(ctxKeyUserID, uid)
				if role := strings.TrimSpace(c.GetHeader(HeaderDevUserRole)); role != "" {
					c.Set(ctxKeyRole, strings.ToLower(role))
				}
				c.Next()
				return
			}
		}

		abortUnauthorized(c, "authentication_required", "authentication required")
	}
}

// ParseToken verifies raw against secret and returns its claims. Only HMAC
// signing methods are accepted and a subject is mandatory.
func ParseToken(secret, raw string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errBadToken
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		return nil, errBadToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, errBadToken
	}
	return claims, nil
}

// UserID returns the authenticated account id, or "" when none was set.
func UserID(c *gin.Context) string {
	return c.GetString(ctxKeyUserID)
}

// Role returns the role claim or dev header value, or "" when none was sent.
func Role(c *gin.Context) string {
	return c.GetString(ctxKeyRole)
}

func bearer(h string) (string, bool) {
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(h[len(prefix):]), true
}

func abortUnauthorized(c *gin.Context, code, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       code,
		"message":    msg,
	})
}
