package resilience

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/localgw/gatewaycore/internal/balancer"
	"github.com/localgw/gatewaycore/internal/credpool"
	"github.com/localgw/gatewaycore/internal/dispatch"
	"github.com/localgw/gatewaycore/internal/health"
	"github.com/localgw/gatewaycore/internal/streamdecode"
	"github.com/localgw/gatewaycore/internal/translate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDispatcher struct {
	family     string
	sendFunc   func(ctx context.Context, cred *credpool.Credential, req translate.NormalizedRequest) (dispatch.Result, error)
	streamFunc func(ctx context.Context, cred *credpool.Credential, req translate.NormalizedRequest) (dispatch.StreamResult, error)
}

func (f *fakeDispatcher) Family() string { return f.family }
func (f *fakeDispatcher) Send(ctx context.Context, cred *credpool.Credential, req translate.NormalizedRequest) (dispatch.Result, error) {
	return f.sendFunc(ctx, cred, req)
}
func (f *fakeDispatcher) Stream(ctx context.Context, cred *credpool.Credential, req translate.NormalizedRequest) (dispatch.StreamResult, error) {
	return f.streamFunc(ctx, cred, req)
}

type fakeHealth struct {
	reports []health.Outcome
}

func (f *fakeHealth) Report(o health.Outcome) { f.reports = append(f.reports, o) }
func (f *fakeHealth) Allow(credentialID string) (func(success bool), error) {
	return func(success bool) {}, nil
}

func newPoolWithOne(provider, credID string) *credpool.Pool {
	pool := credpool.New(provider)
	_ = pool.Add(credpool.NewCredential(credID, provider, credpool.Data{Kind: credpool.DataKindAPIKey, Key: "k"}))
	return pool
}

func newTestPipeline(t *testing.T, family string, d dispatch.Dispatcher, policy Policy) (*Pipeline, *fakeHealth) {
	t.Helper()
	pool := newPoolWithOne(family, "c1")
	b := balancer.New(func(p string) (*credpool.Pool, bool) {
		if p == family {
			return pool, true
		}
		return nil, false
	}, balancer.NewModelMapper(), nil)

	reg := dispatch.NewRegistry(time.Second)
	reg.Register(family, func(client *http.Client, decoders *streamdecode.Factory) dispatch.Dispatcher { return d })

	fh := &fakeHealth{}
	p := New(b, reg, map[string]HealthReporter{family: fh}, policy, 1)
	return p, fh
}

func TestSendSucceedsFirstAttempt(t *testing.T) {
	d := &fakeDispatcher{family: "openai", sendFunc: func(ctx context.Context, cred *credpool.Credential, req translate.NormalizedRequest) (dispatch.Result, error) {
		return dispatch.Result{StatusCode: 200, Response: translate.NormalizedResponse{Model: "gpt-4o"}}, nil
	}}
	p, fh := newTestPipeline(t, "openai", d, DefaultPolicy())

	result, err := p.Send(context.Background(), "openai", "gpt-4o", "openai", translate.NormalizedRequest{Model: "gpt-4o"}, balancer.Hints{})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", result.Response.Model)
	require.Len(t, fh.reports, 1)
	assert.Equal(t, 200, fh.reports[0].StatusCode)
}

func TestSendRetriesOn429ThenSucceeds(t *testing.T) {
	attempts := 0
	d := &fakeDispatcher{family: "openai", sendFunc: func(ctx context.Context, cred *credpool.Credential, req translate.NormalizedRequest) (dispatch.Result, error) {
		attempts++
		if attempts == 1 {
			return dispatch.Result{StatusCode: 429}, fmt.Errorf("rate limited")
		}
		return dispatch.Result{StatusCode: 200}, nil
	}}
	policy := DefaultPolicy()
	policy.InitialDelay = time.Millisecond
	policy.MaxDelay = 2 * time.Millisecond
	p, _ := newTestPipeline(t, "openai", d, policy)

	_, err := p.Send(context.Background(), "openai", "gpt-4o", "openai", translate.NormalizedRequest{Model: "gpt-4o"}, balancer.Hints{})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestSendDoesNotRetryOn400(t *testing.T) {
	attempts := 0
	d := &fakeDispatcher{family: "openai", sendFunc: func(ctx context.Context, cred *credpool.Credential, req translate.NormalizedRequest) (dispatch.Result, error) {
		attempts++
		return dispatch.Result{StatusCode: 400}, fmt.Errorf("bad request")
	}}
	p, _ := newTestPipeline(t, "openai", d, DefaultPolicy())

	_, err := p.Send(context.Background(), "openai", "gpt-4o", "openai", translate.NormalizedRequest{Model: "gpt-4o"}, balancer.Hints{})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestStreamRetriesOnceBeforeAnyChunk(t *testing.T) {
	attempts := 0
	d := &fakeDispatcher{family: "openai", streamFunc: func(ctx context.Context, cred *credpool.Credential, req translate.NormalizedRequest) (dispatch.StreamResult, error) {
		attempts++
		if attempts == 1 {
			return dispatch.StreamResult{StatusCode: 503}, fmt.Errorf("unavailable")
		}
		ch := make(chan translate.NormalizedChunk, 1)
		ch <- translate.NormalizedChunk{DeltaText: "hi", Done: true}
		close(ch)
		return dispatch.StreamResult{Chunks: ch, StatusCode: 200}, nil
	}}
	p, _ := newTestPipeline(t, "openai", d, DefaultPolicy())

	result, err := p.Stream(context.Background(), "openai", "gpt-4o", "openai", translate.NormalizedRequest{Model: "gpt-4o"}, balancer.Hints{})
	require.NoError(t, err)
	var got []translate.NormalizedChunk
	for c := range result.Chunks {
		got = append(got, c)
	}
	require.Len(t, got, 1)
	assert.Equal(t, "hi", got[0].DeltaText)
	assert.Equal(t, 2, attempts)
}

func TestSendPinnedMakesExactlyOneAttemptOnFailure(t *testing.T) {
	attempts := 0
	d := &fakeDispatcher{family: "openai", sendFunc: func(ctx context.Context, cred *credpool.Credential, req translate.NormalizedRequest) (dispatch.Result, error) {
		attempts++
		return dispatch.Result{StatusCode: 503}, fmt.Errorf("unavailable")
	}}
	p, fh := newTestPipeline(t, "openai", d, DefaultPolicy())
	cred := credpool.NewCredential("c1", "openai", credpool.Data{Kind: credpool.DataKindAPIKey, Key: "k"})

	_, err := p.SendPinned(context.Background(), "openai", cred, translate.NormalizedRequest{Model: "gpt-4o"})
	require.Error(t, err)
	assert.Equal(t, 1, attempts, "pinned send must never retry or fall back")
	require.Len(t, fh.reports, 1)
}

func TestStreamPinnedDoesNotRetryOnFailure(t *testing.T) {
	attempts := 0
	d := &fakeDispatcher{family: "openai", streamFunc: func(ctx context.Context, cred *credpool.Credential, req translate.NormalizedRequest) (dispatch.StreamResult, error) {
		attempts++
		return dispatch.StreamResult{StatusCode: 500}, fmt.Errorf("boom")
	}}
	p, _ := newTestPipeline(t, "openai", d, DefaultPolicy())
	cred := credpool.NewCredential("c1", "openai", credpool.Data{Kind: credpool.DataKindAPIKey, Key: "k"})

	_, err := p.StreamPinned(context.Background(), "openai", cred, translate.NormalizedRequest{Model: "gpt-4o"})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}
