package httpapi

import (
	"context"

	"github.com/localgw/gatewaycore/internal/admission"
	"github.com/localgw/gatewaycore/internal/balancer"
	"github.com/localgw/gatewaycore/internal/dispatch"
	"github.com/localgw/gatewaycore/internal/errorkind"
	"github.com/localgw/gatewaycore/internal/translate"
)

// chatOutcome is the post-dispatch result shared by the non-stream and
// stream paths, before dialect-specific rendering.
type chatOutcome struct {
	Streaming bool
	Result    dispatch.Result
	Stream    dispatch.StreamResult
	Provider  string
}

// dispatchChat resolves the route named by selector (empty for the
// unprefixed /v1/* routes) and runs req through either the pinned
// single-credential path or the ordinary balanced/retried pipeline,
// per spec §4.2 and §6.1.
func (d Deps) dispatchChat(ctx context.Context, identity admission.Identity, selector string, req translate.NormalizedRequest) (chatOutcome, *errorkind.Error) {
	if d.RequestTimeout > 0 && !req.Stream {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.RequestTimeout)
		defer cancel()
	}

	route, rerr := d.resolveRoute(selector)
	if rerr != nil {
		return chatOutcome{}, rerr
	}

	if route.Pinned != nil {
		req.Model = d.Mapper.Resolve(req.Model)
		if req.Stream {
			sr, err := d.Pipeline.StreamPinned(ctx, route.Provider, route.Pinned, req)
			if err != nil {
				return chatOutcome{}, classifyDispatchError(sr.StatusCode, err)
			}
			return chatOutcome{Streaming: true, Stream: sr, Provider: route.Provider}, nil
		}
		res, err := d.Pipeline.SendPinned(ctx, route.Provider, route.Pinned, req)
		if err != nil {
			return chatOutcome{}, classifyDispatchError(res.StatusCode, err)
		}
		return chatOutcome{Result: res, Provider: route.Provider}, nil
	}

	hints := balancer.Hints{ClientType: string(identity.ClientType)}
	if req.Stream {
		sr, err := d.Pipeline.Stream(ctx, route.Provider, req.Model, string(identity.ClientType), req, hints)
		if err != nil {
			return chatOutcome{}, classifyDispatchError(sr.StatusCode, err)
		}
		return chatOutcome{Streaming: true, Stream: sr, Provider: route.Provider}, nil
	}
	res, err := d.Pipeline.Send(ctx, route.Provider, req.Model, string(identity.ClientType), req, hints)
	if err != nil {
		return chatOutcome{}, classifyDispatchError(res.StatusCode, err)
	}
	return chatOutcome{Result: res, Provider: route.Provider}, nil
}
