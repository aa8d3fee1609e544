package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey carries the client's retry key on writes.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemScope  = "idem.scope"
	ctxKeyIdemReplay = "idem.replay" // bool: a completed result exists for the key
	ctxKeyRateBypass = "rate.bypass" // bool: limiter must not charge this request

	defaultIdemMaxLen = 200
)

var defaultIdemPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// GetIdempotencyKey returns the validated key stashed by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	s, _ := c.Value(ctxKeyIdemKey).(string)
	return s, s != ""
}

// GetIdempotencyScope returns the scope the key was bound to.
func GetIdempotencyScope(c *gin.Context) string {
	return c.GetString(ctxKeyIdemScope)
}

// IsReplay reports whether the lookup found a completed result for the key.
func IsReplay(c *gin.Context) bool {
	b, _ := c.Value(ctxKeyIdemReplay).(bool)
	return b
}

// ScopeFunc derives the resource a key is bound to.
type ScopeFunc func(*gin.Context) string

// PairScope binds keys on pair routes to "<talent_id>:<business_id>", so a key
// reused on another pair is a new request. Other routes are scoped by their
// route template.
func PairScope(c *gin.Context) string {
	talent, business := c.Param("talent_id"), c.Param("business_id")
	if talent == "" || business == "" {
		return "route:" + c.FullPath()
	}
	return talent + ":" + business
}

// IdempotencyOptions configures IdempotencyValidator. Expiry is the lookup's
// concern.
type IdempotencyOptions struct {
	MaxLen  int            // <= 0 means 200
	Pattern *regexp.Regexp // nil means ^[A-Za-z0-9._~\-:]+$
	Scope   ScopeFunc      // nil means PairScope
}

// IdempotencyLookup reports whether a completed, unexpired result exists for
// (userID, scopeID, key).
type IdempotencyLookup func(ctx context.Context, userID, scopeID, key string, now time.Time) (exists bool, err error)

// IdempotencyValidator checks the Idempotency-Key header on writes and
// records it, with its scope, on the context. A malformed key is rejected
// with 400 bad_idempotency_key. When lookup finds a stored result the request
// is flagged as a replay and exempted from rate limiting; the handler serves
// the stored result. Lookup errors are logged and treated as a miss. Safe
// methods ignore the header.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	if opts.MaxLen <= 0 {
		opts.MaxLen = defaultIdemMaxLen
	}
	if opts.Pattern == nil {
		opts.Pattern = defaultIdemPattern
	}
	if opts.Scope == nil {
		opts.Scope = PairScope
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" || isSafeMethod(c.Request.Method) {
			c.Next()
			return
		}
		if len(key) > opts.MaxLen || !opts.Pattern.MatchString(key) {
			c.Set(ErrorCodeKey, "bad_idempotency_key")
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}

		scopeID := opts.Scope(c)
		c.Set(ctxKeyIdemKey, key)
		c.Set(ctxKeyIdemScope, scopeID)

		uid := UserID(c)
		if lookup == nil || uid == "" {
			c.Next()
			return
		}
		exists, err := lookup(c.Request.Context(), uid, scopeID, key, time.Now().UTC())
		switch {
		case err != nil:
			LoggerFrom(c).Warn().Err(err).Str("scope", scopeID).Msg("idempotency lookup failed")
		case exists:
			c.Set(ctxKeyIdemReplay, true)
			c.Set(ctxKeyRateBypass, true)
		}
		c.Next()
	}
}

func isSafeMethod(m string) bool {
	return m == http.MethodGet || m == http.MethodHead || m == http.MethodOptions
}
