package niubiz

import (
	"context"
	"errors"
	"fmt"
	"net"

	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
)

// Failure causes recorded in logs and metrics.
const (
	causeConnectivity  = "connectivity"
	causeHTTPStatus    = "http_status"
	causeMalformedBody = "malformed_body"
)

// stepError describes why one step of the handshake failed. It never leaves the package:
// translate turns it into one of the domain kinds.
type stepError struct {
	step   string
	cause  string
	status int
	body   []byte
	err    error
}

func (e *stepError) Error() string {
	switch e.cause {
	case causeHTTPStatus:
		return fmt.Sprintf("niubiz %s: unexpected status %d", e.step, e.status)
	case causeMalformedBody:
		return fmt.Sprintf("niubiz %s: malformed response body: %v", e.step, e.err)
	default:
		return fmt.Sprintf("niubiz %s: %v", e.step, e.err)
	}
}

func (e *stepError) Unwrap() error { return e.err }

// kind maps the failure onto the domain taxonomy.
func (e *stepError) kind() error {
	switch e.cause {
	case causeConnectivity:
		return domainErrors.ErrGatewayNetworkFailure
	case causeMalformedBody:
		return domainErrors.ErrGatewayProtocolFailure
	}

	if e.step == stepSecurity && (e.status == 401 || e.status == 403) {
		return domainErrors.ErrGatewayAuthFailure
	}
	if e.status >= 500 {
		return domainErrors.ErrGatewayNetworkFailure
	}
	return domainErrors.ErrGatewayProtocolFailure
}

// translate logs the detailed failure and returns a sanitized domain error.
func (g *Gateway) translate(se *stepError) error {
	kind := se.kind()

	ev := g.logger.Error().
		Str("step", se.step).
		Str("cause", se.cause)
	if se.status != 0 {
		ev = ev.Int("status", se.status)
	}
	if len(se.body) > 0 {
		ev = ev.Str("body", truncate(se.body))
	}
	if se.err != nil {
		ev = ev.AnErr("error", se.err)
	}

	var dnsErr *net.DNSError
	switch {
	case errors.As(se.err, &dnsErr):
		ev.Str("host", dnsErr.Name).Msg("niubiz host could not be resolved")
	case errors.Is(se.err, context.DeadlineExceeded):
		ev.Msg("niubiz request timed out")
	default:
		ev.Msg("niubiz request failed")
	}

	return domainErrors.NewDomainError(domainErrors.Code(kind), "niubiz "+se.step+" failed", kind)
}
