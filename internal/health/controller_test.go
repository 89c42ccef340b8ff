package health

import (
	"net/http"
	"testing"
	"time"

	"github.com/localgw/gatewaycore/internal/credpool"
	"github.com/localgw/gatewaycore/internal/tokencache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestController(t *testing.T) (*Controller, *credpool.Pool) {
	t.Helper()
	pool := credpool.New("openai")
	require.NoError(t, pool.Add(credpool.NewCredential("a", "openai", credpool.Data{Kind: credpool.DataKindAPIKey, Key: "k"})))
	return New(pool, DefaultCooldownPolicy(), tokencache.New()), pool
}

func TestReportSuccessRecordsStats(t *testing.T) {
	c, pool := newTestController(t)
	c.Report(Outcome{CredentialID: "a", StatusCode: 200, LatencyMS: 120})

	cred := pool.Get("a")
	assert.EqualValues(t, 1, cred.Stats.SuccessfulRequests)
}

func TestReportRateLimitedSetsCooldown(t *testing.T) {
	c, pool := newTestController(t)
	c.Report(Outcome{CredentialID: "a", StatusCode: http.StatusTooManyRequests})

	cred := pool.Get("a")
	assert.Equal(t, credpool.StatusCooldown, cred.State.Status)
}

func TestReportRateLimitedHonorsRetryAfter(t *testing.T) {
	c, pool := newTestController(t)
	c.Report(Outcome{CredentialID: "a", StatusCode: http.StatusTooManyRequests, RetryAfter: 5 * time.Second})

	cred := pool.Get("a")
	assert.WithinDuration(t, time.Now().Add(5*time.Second), cred.State.CooldownUntil, time.Second)
}

func TestReportRateLimitedQuotaExhaustionUsesLongCooldown(t *testing.T) {
	c, pool := newTestController(t)
	c.Report(Outcome{CredentialID: "a", StatusCode: http.StatusTooManyRequests, RawBody: "You exceeded your current quota"})

	cred := pool.Get("a")
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), cred.State.CooldownUntil, time.Minute)
}

func TestReportAuthFailureInvalidatesOAuthToken(t *testing.T) {
	c, pool := newTestController(t)
	cache := tokencache.New()
	c.cache = cache
	cache.Set(tokencache.Entry{CredentialID: "a", AccessToken: "tok", ExpiresAt: time.Now().Add(time.Hour)})

	c.Report(Outcome{CredentialID: "a", StatusCode: http.StatusUnauthorized, IsOAuth: true})

	_, ok := cache.Get("a")
	assert.False(t, ok)

	cred := pool.Get("a")
	assert.EqualValues(t, 1, cred.Stats.ConsecutiveFailures)
}

func TestReportAuthFailureMarksUnhealthyAfterThreshold(t *testing.T) {
	c, pool := newTestController(t)
	for i := 0; i < FailureThreshold; i++ {
		c.Report(Outcome{CredentialID: "a", StatusCode: http.StatusUnauthorized})
	}
	cred := pool.Get("a")
	assert.Equal(t, credpool.StatusUnhealthy, cred.State.Status)
}

func TestReportServerErrorNoCooldownOnFirstOccurrence(t *testing.T) {
	c, pool := newTestController(t)
	c.Report(Outcome{CredentialID: "a", StatusCode: 500})

	cred := pool.Get("a")
	assert.Equal(t, credpool.StatusActive, cred.State.Status)
}

func TestReportNetworkFailureUsesShorterThreshold(t *testing.T) {
	c, pool := newTestController(t)
	for i := 0; i < NetworkFailureThreshold; i++ {
		c.Report(Outcome{CredentialID: "a", IsTimeout: true})
	}
	cred := pool.Get("a")
	assert.Equal(t, credpool.StatusUnhealthy, cred.State.Status)
}

func TestParseRetryAfterSeconds(t *testing.T) {
	d, ok := ParseRetryAfter("30")
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, d)
}

func TestParseRetryAfterHTTPDate(t *testing.T) {
	future := time.Now().Add(2 * time.Minute).UTC()
	d, ok := ParseRetryAfter(future.Format(http.TimeFormat))
	require.True(t, ok)
	assert.InDelta(t, 2*time.Minute, d, float64(5*time.Second))
}

func TestParseRetryAfterInvalid(t *testing.T) {
	_, ok := ParseRetryAfter("not-a-valid-value")
	assert.False(t, ok)
}

func TestAllowDeniesWhenBreakerOpen(t *testing.T) {
	c, _ := newTestController(t)
	for i := 0; i < FailureThreshold; i++ {
		done, err := c.Allow("a")
		require.NoError(t, err)
		done(false)
	}
	_, err := c.Allow("a")
	assert.Error(t, err, "breaker should be open after consecutive failures")
}
