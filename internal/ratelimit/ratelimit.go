package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pulseops-lab/pulseops/internal/cache"
	httperr "github.com/pulseops-lab/pulseops/internal/core/errors"
)

const keyPrefix = "ratelimit:"

// Limiter enforces a fixed-window request quota per caller.
type Limiter struct {
	counter          cache.Counter
	maxRequests      int64
	window           time.Duration
	credentialHeader string
	onLimited        func()
}

func New(counter cache.Counter, maxRequests int, window time.Duration, credentialHeader string) *Limiter {
	if counter == nil {
		panic("ratelimit: counter must not be nil")
	}
	return &Limiter{
		counter:          counter,
		maxRequests:      int64(maxRequests),
		window:           window,
		credentialHeader: credentialHeader,
	}
}

// OnLimited installs a hook called for every rejected request.
func (l *Limiter) OnLimited(fn func()) {
	l.onLimited = fn
}

// Middleware rejects callers over quota with 429 before any auth or body work.
// If the counter store is unreachable the request is let through.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		count, resetIn, err := l.counter.Increment(c.Request.Context(), l.key(c), l.window)
		if err != nil {
			slog.Warn("[RateLimit] Counter unavailable, allowing request", "error", err)
			c.Next()
			return
		}

		remaining := l.maxRequests - count
		if remaining < 0 {
			remaining = 0
		}
		resetSeconds := int64(math.Ceil(resetIn.Seconds()))

		c.Header("X-RateLimit-Limit", strconv.FormatInt(l.maxRequests, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(resetSeconds, 10))

		if count > l.maxRequests {
			if l.onLimited != nil {
				l.onLimited()
			}
			slog.Debug("[RateLimit] Request rejected", "client_ip", c.ClientIP(), "count", count)
			c.Header("Retry-After", strconv.FormatInt(resetSeconds, 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, httperr.ErrorResponse{
				ErrorType: httperr.HttpRateLimited,
				Message:   "Too many requests, please try again later",
				Details: gin.H{
					"limit":       l.maxRequests,
					"window_secs": int64(l.window.Seconds()),
				},
			})
			return
		}

		c.Next()
	}
}

// key buckets by credential when one is presented, else by client IP.
// Credentials are hashed so raw keys never reach the counter store.
func (l *Limiter) key(c *gin.Context) string {
	if cred := c.GetHeader(l.credentialHeader); cred != "" {
		sum := sha256.Sum256([]byte(cred))
		return keyPrefix + "key:" + hex.EncodeToString(sum[:16])
	}
	return keyPrefix + "ip:" + c.ClientIP()
}
