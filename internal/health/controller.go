// Package health implements the health & risk controller (component D): it
// classifies upstream outcomes and drives the credential pool's state
// machine. A per-credential circuit breaker additionally gates dispatch
// attempts; it does not move a credential out of Unhealthy, which only
// credpool.Pool.MarkActive does.
package health

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/localgw/gatewaycore/internal/credpool"
	"github.com/localgw/gatewaycore/internal/tokencache"
	"github.com/sony/gobreaker"
)

// Severity classifies a 429 outcome into a cooldown bucket.
type Severity int

const (
	SeveritySoft Severity = iota
	SeverityHard
	SeverityQuotaExhausted
)

// CooldownPolicy maps severities to cooldown durations (spec §4.4 defaults,
// configurable).
type CooldownPolicy struct {
	Soft           time.Duration
	Hard           time.Duration
	QuotaExhausted time.Duration
}

// DefaultCooldownPolicy returns the spec's documented defaults.
func DefaultCooldownPolicy() CooldownPolicy {
	return CooldownPolicy{
		Soft:           30 * time.Second,
		Hard:           time.Hour,
		QuotaExhausted: 24 * time.Hour,
	}
}

// Outcome is what the upstream dispatcher reports to D after each attempt.
type Outcome struct {
	CredentialID string
	StatusCode   int
	IsOAuth      bool
	IsTimeout    bool
	IsNetworkErr bool
	LatencyMS    uint64
	RetryAfter   time.Duration // parsed from the Retry-After header, if present
	RawBody      string        // consulted for quota-exhaustion phrasing
}

// FailureThreshold is the default consecutive-failure count at which a
// non-quota error transitions a credential to Unhealthy (spec §4.1).
const FailureThreshold = 5

// NetworkFailureThreshold is the shorter threshold used for
// timeout/network-error outcomes (spec §4.4: "same as 5xx but with a
// shorter consecutive-failures threshold").
const NetworkFailureThreshold = 3

// Controller drives pool.* mutations in response to classified outcomes.
// All mutation happens through the pool's documented methods so the
// status/stats invariants stay atomic (spec §4.4 last paragraph).
type Controller struct {
	pool   *credpool.Pool
	policy CooldownPolicy
	cache  *tokencache.Cache // invalidated on 401/403 for OAuth credentials

	mu       sync.Mutex
	breakers map[string]*gobreaker.TwoStepCircuitBreaker
}

// New builds a controller over one provider family's pool.
func New(pool *credpool.Pool, policy CooldownPolicy, cache *tokencache.Cache) *Controller {
	return &Controller{
		pool:     pool,
		policy:   policy,
		cache:    cache,
		breakers: make(map[string]*gobreaker.TwoStepCircuitBreaker),
	}
}

func (c *Controller) breakerFor(credentialID string) *gobreaker.TwoStepCircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.breakers[credentialID]; ok {
		return b
	}
	b := gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        credentialID,
		MaxRequests: 1, // one probe permitted in half-open state
		Interval:    0, // never reset counts on a timer; only on state change
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= FailureThreshold
		},
	})
	c.breakers[credentialID] = b
	return b
}

// Allow reports whether credentialID's breaker currently permits a request,
// and returns a done callback the dispatcher must call with the outcome so
// the breaker's internal counters stay in sync with real traffic. After the
// breaker's timeout one half-open probe is let through; the breaker gates
// attempts only and does not change the credential's pool status.
func (c *Controller) Allow(credentialID string) (done func(success bool), err error) {
	return c.breakerFor(credentialID).Allow()
}

// Report classifies one upstream outcome and mutates the pool accordingly.
// It must be called exactly once per dispatcher attempt, before the
// resilience pipeline considers its next retry (spec §4.8's ordering
// invariant).
func (c *Controller) Report(o Outcome) {
	switch {
	case o.StatusCode >= 200 && o.StatusCode < 300:
		c.reportSuccess(o)
	case o.StatusCode == http.StatusUnauthorized || o.StatusCode == http.StatusForbidden:
		c.reportAuthFailure(o)
	case o.StatusCode == http.StatusTooManyRequests:
		c.reportRateLimited(o)
	case o.StatusCode >= 500 && o.StatusCode < 600:
		c.reportServerError(o)
	case o.IsTimeout || o.IsNetworkErr:
		c.reportNetworkFailure(o)
	}
}

func (c *Controller) reportSuccess(o Outcome) {
	_ = c.pool.RecordSuccess(o.CredentialID, o.LatencyMS)
}

func (c *Controller) reportAuthFailure(o Outcome) {
	_ = c.pool.RecordFailure(o.CredentialID)
	if o.IsOAuth && c.cache != nil {
		c.cache.Invalidate(o.CredentialID)
	}
	if cred := c.pool.Get(o.CredentialID); cred != nil && cred.Stats.ConsecutiveFailures >= FailureThreshold {
		_ = c.pool.MarkUnhealthy(o.CredentialID, "repeated_auth_failure")
	}
}

func (c *Controller) reportRateLimited(o Outcome) {
	_ = c.pool.RecordFailure(o.CredentialID)

	severity := ClassifySeverity(o.StatusCode, o.RawBody)
	cooldown := c.cooldownFor(severity)
	if o.RetryAfter > 0 {
		cooldown = o.RetryAfter
	}
	_ = c.pool.MarkCooldown(o.CredentialID, cooldown)
}

func (c *Controller) reportServerError(o Outcome) {
	_ = c.pool.RecordFailure(o.CredentialID)
	if cred := c.pool.Get(o.CredentialID); cred != nil && cred.Stats.ConsecutiveFailures >= FailureThreshold {
		_ = c.pool.MarkUnhealthy(o.CredentialID, "repeated_server_error")
	}
}

func (c *Controller) reportNetworkFailure(o Outcome) {
	_ = c.pool.RecordFailure(o.CredentialID)
	if cred := c.pool.Get(o.CredentialID); cred != nil && cred.Stats.ConsecutiveFailures >= NetworkFailureThreshold {
		reason := "repeated_network_error"
		if o.IsTimeout {
			reason = "repeated_timeout"
		}
		_ = c.pool.MarkUnhealthy(o.CredentialID, reason)
	}
}

func (c *Controller) cooldownFor(s Severity) time.Duration {
	switch s {
	case SeverityHard:
		return c.policy.Hard
	case SeverityQuotaExhausted:
		return c.policy.QuotaExhausted
	default:
		return c.policy.Soft
	}
}

// ClassifySeverity applies a small heuristic used across the pack, matching
// case-insensitively: a body mentioning "quota", "billing" or
// "insufficient_quota" is treated as exhaustion (long cooldown); "daily
// limit" or "hard limit" is a hard block; anything else is soft. Repeated
// soft 429s are not escalated.
func ClassifySeverity(statusCode int, body string) Severity {
	if containsAny(body, "quota", "exceeded your current quota", "billing", "insufficient_quota") {
		return SeverityQuotaExhausted
	}
	if containsAny(body, "daily limit", "hard limit") {
		return SeverityHard
	}
	return SeveritySoft
}

func containsAny(haystack string, needles ...string) bool {
	lower := strings.ToLower(haystack)
	for _, n := range needles {
		if strings.Contains(lower, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

// ParseRetryAfter parses the Retry-After header per RFC 9110: either an
// integer number of seconds, or an HTTP-date.
func ParseRetryAfter(header string) (time.Duration, bool) {
	if header == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(header); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(header); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}
