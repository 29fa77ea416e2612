package niubiz

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cassiomorais/checkout/internal/infrastructure/observability"
)

const (
	stepSecurity      = "security"
	stepSession       = "session"
	stepAuthorization = "authorization"
)

var errEmptyToken = errors.New("empty access token")

// accessToken trades the merchant secret for a short-lived bearer token.
// The response body is the raw token, sometimes wrapped in quotes.
func (g *Gateway) accessToken(ctx context.Context) (string, error) {
	var token string
	err := g.step(ctx, stepSecurity, func(ctx context.Context) *stepError {
		status, body, err := g.post(ctx, g.cfg.BaseURL+securityPath, g.cfg.AuthKey, nil)
		if err != nil {
			return &stepError{step: stepSecurity, cause: causeConnectivity, err: err}
		}
		if status < 200 || status >= 300 {
			return &stepError{step: stepSecurity, cause: causeHTTPStatus, status: status, body: body}
		}
		token = strings.Trim(strings.TrimSpace(string(body)), `"`)
		if token == "" {
			return &stepError{step: stepSecurity, cause: causeMalformedBody, status: status, err: errEmptyToken}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

// step runs fn inside a client span and records its outcome.
func (g *Gateway) step(ctx context.Context, name string, fn func(context.Context) *stepError) error {
	ctx, span := g.tracer.Start(ctx, "niubiz."+name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("payment.provider", ProviderName),
			attribute.String("niubiz.step", name),
		),
	)
	defer span.End()

	start := time.Now()
	se := fn(ctx)
	elapsed := time.Since(start)

	if se == nil {
		g.metrics.ObserveGatewayStep(ProviderName, name, "success", elapsed)
		g.logger.Debug().Str("step", name).Dur("elapsed", elapsed).Msg("niubiz step completed")
		return nil
	}

	g.metrics.ObserveGatewayStep(ProviderName, name, se.cause, elapsed)
	span.SetAttributes(attribute.String("niubiz.failure_cause", se.cause))
	if se.status != 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", se.status))
	}
	span.SetStatus(codes.Error, se.Error())
	return g.translate(se)
}

func truncate(body []byte) string {
	return observability.TruncateBody(body, maxLoggedBody)
}
