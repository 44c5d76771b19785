package http

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"supportbridge/internal/logutil"
)

const (
	headerRequestID = "X-Request-ID"
	headerSignature = "X-Signature"

	// limiterIdleTTL is how long an untouched per-IP limiter is kept.
	limiterIdleTTL = 10 * time.Minute
)

// WebhookVerifier checks a provider webhook signature over the raw body.
type WebhookVerifier interface {
	VerifyWebhook(body []byte, signature string) bool
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type Middleware struct {
	verifier     WebhookVerifier // nil disables signature checks
	log          *slog.Logger
	rateLimiters map[string]*ipLimiter
	lastSweep    time.Time
	now          func() time.Time
	mu           sync.Mutex
}

func NewMiddleware(verifier WebhookVerifier, logger *slog.Logger) *Middleware {
	return &Middleware{
		verifier:     verifier,
		log:          logger,
		rateLimiters: make(map[string]*ipLimiter),
		now:          time.Now,
	}
}

// NewEngine returns a gin engine that only honours X-Forwarded-For from
// the given proxies. With none, the client IP is the TCP peer address.
func NewEngine(trustedProxies []string) (*gin.Engine, error) {
	r := gin.New()
	if err := r.SetTrustedProxies(trustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	r.Use(gin.Recovery())
	return r, nil
}

// RequestID reuses an incoming X-Request-ID or mints one, and puts it on the request context.
func (m *Middleware) RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Writer.Header().Set(headerRequestID, id)
		c.Request = c.Request.WithContext(logutil.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// AccessLog writes one structured line per request.
func (m *Middleware) AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		m.log.Info("http request",
			slog.String("request_id", logutil.RequestID(c.Request.Context())),
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)),
			slog.String("client_ip", c.ClientIP()),
		)
	}
}

// RateLimitPerIP limits requests per client IP.
func (m *Middleware) RateLimitPerIP(r rate.Limit, b int) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		now := m.now()

		m.mu.Lock()
		m.sweepLocked(now)
		entry, exists := m.rateLimiters[key]
		if !exists {
			entry = &ipLimiter{limiter: rate.NewLimiter(r, b)}
			m.rateLimiters[key] = entry
		}
		entry.lastSeen = now
		m.mu.Unlock()

		if !entry.limiter.AllowN(now, 1) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}

		c.Next()
	}
}

// sweepLocked drops limiters idle for longer than limiterIdleTTL, at most
// once per TTL. Caller holds m.mu.
func (m *Middleware) sweepLocked(now time.Time) {
	if now.Sub(m.lastSweep) < limiterIdleTTL {
		return
	}
	for ip, entry := range m.rateLimiters {
		if now.Sub(entry.lastSeen) > limiterIdleTTL {
			delete(m.rateLimiters, ip)
		}
	}
	m.lastSweep = now
}

func (m *Middleware) limiterCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rateLimiters)
}

// WebhookSignature rejects webhook calls whose X-Signature does not match the body.
func (m *Middleware) WebhookSignature() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.verifier == nil {
			c.Next()
			return
		}
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Unreadable body"})
			return
		}
		if !m.verifier.VerifyWebhook(body, c.GetHeader(headerSignature)) {
			m.log.Warn("webhook signature mismatch",
				slog.String("request_id", logutil.RequestID(c.Request.Context())),
				slog.String("client_ip", c.ClientIP()),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Next()
	}
}

// CORSMiddleware allows Cross-Origin requests
func (m *Middleware) CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Accept, Origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// SecurityHeaders adds security headers to prevent common attacks
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("X-Content-Type-Options", "nosniff")
		c.Writer.Header().Set("X-Frame-Options", "DENY")
		c.Writer.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

// RequestSizeLimiter limits request body size to prevent DoS
func RequestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
