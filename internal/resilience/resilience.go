// Package resilience wraps the upstream dispatcher with timeout, retry with
// exponential backoff, and fallback re-entry into the balancer: component I.
package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"time"

	"github.com/localgw/gatewaycore/internal/balancer"
	"github.com/localgw/gatewaycore/internal/credpool"
	"github.com/localgw/gatewaycore/internal/dispatch"
	"github.com/localgw/gatewaycore/internal/health"
	"github.com/localgw/gatewaycore/internal/translate"
)

// Policy configures the retry/backoff behavior, grounded on the teacher's
// ExponentialBackoffStrategy (equal-jitter default, capped max delay).
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Timeout      time.Duration
}

// DefaultPolicy mirrors the teacher's HTTPClientConfig defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
		Timeout:      60 * time.Second,
	}
}

func (p Policy) delay(attempt int, rng *rand.Rand) time.Duration {
	d := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt))
	if p.MaxDelay > 0 && time.Duration(d) > p.MaxDelay {
		d = float64(p.MaxDelay)
	}
	// equal jitter: half fixed, half random
	return time.Duration(d/2) + time.Duration(rng.Float64()*d/2)
}

// HealthReporter is the subset of health.Controller the pipeline needs,
// narrowed so tests can supply a fake.
type HealthReporter interface {
	Report(o health.Outcome)
	Allow(credentialID string) (done func(success bool), err error)
}

// Pipeline drives one logical request through balancer selection, the
// circuit breaker, the dispatcher, and outcome reporting, retrying within
// the originally selected provider family before the balancer's fallback
// family is tried.
type Pipeline struct {
	balancer   *balancer.Balancer
	dispatch   *dispatch.Registry
	health     map[string]HealthReporter // keyed by provider family
	policy     Policy
	rng        *rand.Rand
}

// New builds a pipeline. health maps provider family name to the
// controller guarding that family's pool.
func New(b *balancer.Balancer, d *dispatch.Registry, healthByFamily map[string]HealthReporter, policy Policy, seed int64) *Pipeline {
	return &Pipeline{
		balancer: b,
		dispatch: d,
		health:   healthByFamily,
		policy:   policy,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Send runs the non-streamed path: select a credential, dispatch, retry on
// a retryable outcome, and report every outcome to the owning family's
// health controller.
func (p *Pipeline) Send(ctx context.Context, provider, model, clientType string, req translate.NormalizedRequest, hints balancer.Hints) (dispatch.Result, error) {
	var lastErr error
	for attempt := 0; attempt < p.policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := p.wait(ctx, attempt); err != nil {
				return dispatch.Result{}, err
			}
		}

		cred, family, err := p.balancer.Select(provider, model, clientType, hints)
		if err != nil {
			return dispatch.Result{}, err
		}

		result, attemptErr := p.attemptSend(ctx, family, cred, req)
		if attemptErr == nil {
			return result, nil
		}
		lastErr = attemptErr
		if !isRetryableStatus(result.StatusCode, attemptErr) {
			return result, attemptErr
		}
	}
	return dispatch.Result{}, lastErr
}

func (p *Pipeline) attemptSend(ctx context.Context, family string, cred *credpool.Credential, req translate.NormalizedRequest) (dispatch.Result, error) {
	reporter := p.health[family]
	done, err := reporter.Allow(cred.ID)
	if err != nil {
		return dispatch.Result{}, err
	}

	d, err := p.dispatch.Get(family)
	if err != nil {
		done(false)
		return dispatch.Result{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.policy.Timeout)
	defer cancel()

	result, sendErr := d.Send(ctx, cred, req)
	result.CredentialID = cred.ID
	outcome := classifyOutcome(cred.ID, result.StatusCode, result.LatencyMS, sendErr)
	reporter.Report(outcome)
	done(sendErr == nil)
	return result, sendErr
}

// Stream runs the streamed path. Per SPEC_FULL.md's Open Question #3
// resolution, a stream that fails before any chunk has been delivered gets
// one retry; once a chunk has flowed to the caller, the error is returned
// as-is and no further retry is attempted.
func (p *Pipeline) Stream(ctx context.Context, provider, model, clientType string, req translate.NormalizedRequest, hints balancer.Hints) (dispatch.StreamResult, error) {
	attempted := false
	for {
		cred, family, err := p.balancer.Select(provider, model, clientType, hints)
		if err != nil {
			return dispatch.StreamResult{}, err
		}

		reporter := p.health[family]
		done, err := reporter.Allow(cred.ID)
		if err != nil {
			return dispatch.StreamResult{}, err
		}

		d, err := p.dispatch.Get(family)
		if err != nil {
			done(false)
			return dispatch.StreamResult{}, err
		}

		result, streamErr := d.Stream(ctx, cred, req)
		if streamErr != nil {
			reporter.Report(classifyOutcome(cred.ID, result.StatusCode, 0, streamErr))
			done(false)
			if !attempted && isRetryableStatus(result.StatusCode, streamErr) {
				attempted = true
				continue
			}
			return dispatch.StreamResult{}, streamErr
		}

		return p.wrapStreamForReporting(result, cred.ID, family, done), nil
	}
}

// SendPinned issues a single non-streamed attempt against exactly the given
// credential, bypassing balancer selection and retry/backoff entirely. Used
// for the credential-selector route (spec §6.1), where the caller has
// already named one specific credential and a miss must surface directly
// rather than falling over to a sibling.
func (p *Pipeline) SendPinned(ctx context.Context, family string, cred *credpool.Credential, req translate.NormalizedRequest) (dispatch.Result, error) {
	return p.attemptSend(ctx, family, cred, req)
}

// StreamPinned is SendPinned's streaming counterpart: one attempt, no
// fallback re-entry into the balancer on failure.
func (p *Pipeline) StreamPinned(ctx context.Context, family string, cred *credpool.Credential, req translate.NormalizedRequest) (dispatch.StreamResult, error) {
	reporter := p.health[family]
	done, err := reporter.Allow(cred.ID)
	if err != nil {
		return dispatch.StreamResult{}, err
	}

	d, err := p.dispatch.Get(family)
	if err != nil {
		done(false)
		return dispatch.StreamResult{}, err
	}

	result, streamErr := d.Stream(ctx, cred, req)
	if streamErr != nil {
		reporter.Report(classifyOutcome(cred.ID, result.StatusCode, 0, streamErr))
		done(false)
		return dispatch.StreamResult{}, streamErr
	}

	return p.wrapStreamForReporting(result, cred.ID, family, done), nil
}

// wrapStreamForReporting tees the chunk channel so the pipeline can report
// a success/failure outcome once the upstream channel closes, without the
// caller needing to know about health reporting.
func (p *Pipeline) wrapStreamForReporting(result dispatch.StreamResult, credentialID, family string, done func(success bool)) dispatch.StreamResult {
	out := make(chan translate.NormalizedChunk)
	go func() {
		defer close(out)
		sawChunk := false
		for chunk := range result.Chunks {
			sawChunk = true
			out <- chunk
		}
		p.health[family].Report(health.Outcome{CredentialID: credentialID, StatusCode: 200})
		done(sawChunk)
	}()
	return dispatch.StreamResult{Chunks: out, StatusCode: result.StatusCode, CredentialID: credentialID}
}

func (p *Pipeline) wait(ctx context.Context, attempt int) error {
	select {
	case <-time.After(p.policy.delay(attempt, p.rng)):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func classifyOutcome(credentialID string, statusCode int, latencyMS uint64, err error) health.Outcome {
	if err == nil {
		return health.Outcome{CredentialID: credentialID, StatusCode: statusCode, LatencyMS: latencyMS}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return health.Outcome{CredentialID: credentialID, IsTimeout: true}
	}
	if statusCode == 0 {
		return health.Outcome{CredentialID: credentialID, IsNetworkErr: true}
	}
	return health.Outcome{CredentialID: credentialID, StatusCode: statusCode, RawBody: err.Error()}
}

// isRetryableStatus mirrors the teacher's default RetryableErrors set: 429
// and 5xx status codes, plus bare network/timeout failures that never
// reached a status line. Other 4xx outcomes (bad request, auth, not
// found) are not retried within the same family.
func isRetryableStatus(statusCode int, err error) bool {
	if err == nil {
		return false
	}
	if statusCode == 0 {
		return true
	}
	return statusCode == 429 || (statusCode >= 500 && statusCode < 600)
}
