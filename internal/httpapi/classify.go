package httpapi

import (
	"errors"
	"net"

	"github.com/localgw/gatewaycore/internal/balancer"
	"github.com/localgw/gatewaycore/internal/errorkind"
)

// classifyDispatchError turns a failed Send/Stream call into the gateway's
// error taxonomy, per spec §7. statusCode is whatever the upstream last
// returned (0 if the failure never reached an HTTP response).
func classifyDispatchError(statusCode int, err error) *errorkind.Error {
	if errors.Is(err, balancer.ErrNoAvailableCredential) {
		return errorkind.New(errorkind.KindNoAvailableCredential, err.Error())
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errorkind.New(errorkind.KindUpstreamTimeout, err.Error())
	}

	switch {
	case statusCode == 401 || statusCode == 403:
		return errorkind.New(errorkind.KindUpstreamAuthError, err.Error())
	case statusCode == 429:
		return errorkind.New(errorkind.KindUpstreamRateLimited, err.Error())
	case statusCode >= 500 && statusCode < 600:
		return errorkind.New(errorkind.KindUpstreamServerError, err.Error()).WithStatus(statusCode)
	case statusCode == 0:
		return errorkind.New(errorkind.KindNoAvailableCredential, err.Error())
	default:
		return errorkind.New(errorkind.KindProtocolError, err.Error()).WithStatus(statusCode)
	}
}
