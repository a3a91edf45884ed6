package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tejash-sr/agri/internal/core/port"
	"github.com/tejash-sr/agri/internal/infra/telemetry"
)

const (
	rateLimitProblemType  = "https://identity.agrisense.example.com/errors/rate-limit-exceeded"
	rateLimitProblemTitle = "Rate Limit Exceeded"
)

// IdentifierFunc extracts the identifier used to scope rate limits (e.g., client IP).
type IdentifierFunc func(*gin.Context) (string, bool)

// RateLimitRule configures a sliding-window limit for a particular action.
// The storage key is "<name>:<identifier>", so limits on different actions
// never interfere with each other.
type RateLimitRule struct {
	Name       string
	Limit      int
	Window     time.Duration
	Identifier IdentifierFunc
}

// RateLimiter enforces sliding-window limits backed by a RateLimitStore.
type RateLimiter struct {
	store   port.RateLimitStore
	logger  *zap.Logger
	metrics *telemetry.Metrics
	now     func() time.Time
}

// limitDecision is the outcome of evaluating one rule for one request.
type limitDecision struct {
	allowed    bool
	limit      int
	remaining  int
	reset      time.Time
	retryAfter time.Duration
	ruleName   string
}

// ProblemDetails represents an RFC 9457 compatible error payload for rate limits.
type ProblemDetails struct {
	Type       string         `json:"type"`
	Title      string         `json:"title"`
	Status     int            `json:"status"`
	Detail     string         `json:"detail"`
	Instance   string         `json:"instance"`
	RetryAfter int            `json:"retry_after"`
	TraceID    string         `json:"trace_id,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// NewRateLimiter builds a reusable rate limiter middleware helper.
func NewRateLimiter(store port.RateLimitStore, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RateLimiter{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock allows injection of a custom clock (primarily for testing).
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	if now != nil {
		rl.now = now
	}
	return rl
}

// WithMetrics attaches collectors for rejected-request accounting.
func (rl *RateLimiter) WithMetrics(m *telemetry.Metrics) *RateLimiter {
	rl.metrics = m
	return rl
}

// ClientIPIdentifier builds an IdentifierFunc using the request's client IP.
func ClientIPIdentifier() IdentifierFunc {
	return func(c *gin.Context) (string, bool) {
		ip := c.ClientIP()
		if ip == "" {
			return "", false
		}
		return ip, true
	}
}

// RateLimit returns a Gin middleware enforcing the provided rules.
// A store failure never blocks the request: the rule is skipped and logged.
func (rl *RateLimiter) RateLimit(rules ...RateLimitRule) gin.HandlerFunc {
	active := make([]RateLimitRule, 0, len(rules))
	for _, rule := range rules {
		if rule.Identifier == nil || rule.Limit <= 0 || rule.Window <= 0 {
			continue
		}
		if rule.Name == "" {
			rule.Name = "default"
		}
		active = append(active, rule)
	}

	return func(c *gin.Context) {
		if len(active) == 0 || rl.store == nil {
			c.Next()
			return
		}

		now := rl.now()
		var tightest *limitDecision

		for _, rule := range active {
			identifier, ok := rule.Identifier(c)
			if !ok || identifier == "" {
				continue
			}

			decision, err := rl.evaluate(c, rule, identifier, now)
			if err != nil {
				rl.logger.Warn("rate limit check failed",
					zap.String("rule", rule.Name),
					zap.String("identifier", identifier),
					zap.Error(err),
				)
				continue
			}

			if tightest == nil || tighter(*tightest, decision) {
				snapshot := decision
				tightest = &snapshot
			}

			if !decision.allowed {
				if rl.metrics != nil {
					rl.metrics.RateLimitedTotal.WithLabelValues(rule.Name).Inc()
				}
				rl.writeHeaders(c, decision)
				rl.reject(c, decision)
				return
			}
		}

		if tightest != nil {
			rl.writeHeaders(c, *tightest)
		}

		c.Next()
	}
}

// evaluate trims the window, counts attempts, and records the new attempt if
// the caller is still under the limit.
func (rl *RateLimiter) evaluate(c *gin.Context, rule RateLimitRule, identifier string, now time.Time) (limitDecision, error) {
	ctx := c.Request.Context()
	key := fmt.Sprintf("%s:%s", rule.Name, identifier)

	if err := rl.store.TrimWindow(ctx, key, rule.Window, now); err != nil {
		return limitDecision{}, err
	}

	count, err := rl.store.CountAttempts(ctx, key, rule.Window, now)
	if err != nil {
		return limitDecision{}, err
	}

	oldest, hasAttempts, err := rl.store.OldestAttempt(ctx, key, rule.Window, now)
	if err != nil {
		return limitDecision{}, err
	}

	decision := limitDecision{
		allowed:  true,
		limit:    rule.Limit,
		reset:    now.Add(rule.Window),
		ruleName: rule.Name,
	}
	if hasAttempts {
		decision.reset = oldest.Add(rule.Window)
	}

	if count >= rule.Limit {
		decision.allowed = false
		decision.retryAfter = maxDuration(decision.reset.Sub(now), 0)
		return decision, nil
	}

	if err := rl.store.RecordAttempt(ctx, key, now); err != nil {
		return limitDecision{}, err
	}
	count++

	decision.remaining = maxInt(rule.Limit-count, 0)
	decision.retryAfter = maxDuration(decision.reset.Sub(now), 0)
	if !hasAttempts {
		decision.reset = now.Add(rule.Window)
	}

	return decision, nil
}

// tighter reports whether candidate should replace current when choosing
// which rule's state to surface in the response headers.
func tighter(current, candidate limitDecision) bool {
	if !candidate.allowed && current.allowed {
		return true
	}
	if candidate.allowed != current.allowed {
		return false
	}
	if candidate.remaining != current.remaining {
		return candidate.remaining < current.remaining
	}
	return candidate.reset.Before(current.reset)
}

func (rl *RateLimiter) writeHeaders(c *gin.Context, decision limitDecision) {
	headers := c.Writer.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(decision.limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(maxInt(decision.remaining, 0)))
	headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.reset.Unix(), 10))

	if !decision.allowed {
		headers.Set("Retry-After", strconv.Itoa(retrySeconds(decision.retryAfter)))
	}
}

func (rl *RateLimiter) reject(c *gin.Context, decision limitDecision) {
	seconds := retrySeconds(decision.retryAfter)

	instance := c.FullPath()
	if instance == "" {
		instance = c.Request.URL.Path
	}

	c.AbortWithStatusJSON(http.StatusTooManyRequests, ProblemDetails{
		Type:       rateLimitProblemType,
		Title:      rateLimitProblemTitle,
		Status:     http.StatusTooManyRequests,
		Detail:     fmt.Sprintf("Too many requests. Try again in %d seconds.", seconds),
		Instance:   instance,
		RetryAfter: seconds,
		TraceID:    GetTraceID(c),
	})
}

func retrySeconds(d time.Duration) int {
	seconds := int(math.Ceil(d.Seconds()))
	if seconds < 0 {
		return 0
	}
	return seconds
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
