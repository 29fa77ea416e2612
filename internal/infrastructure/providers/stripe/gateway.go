// Package stripe adapts Stripe PaymentIntents to the payment gateway capability.
package stripe

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	stripesdk "github.com/stripe/stripe-go"
	"github.com/stripe/stripe-go/paymentintent"

	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/domain/payment"
	"github.com/cassiomorais/checkout/internal/infrastructure/observability"
)

const ProviderName = "stripe"

const (
	stepIntent  = "intent"
	stepConfirm = "confirm"
)

type Config struct {
	SecretKey string
	Currency  string
}

type intentCreator interface {
	New(params *stripesdk.PaymentIntentParams) (*stripesdk.PaymentIntent, error)
}

// Gateway is the Stripe implementation of payment.Gateway. Charges are authorized with
// manual capture so an approval only reserves funds, like the primary processor does.
type Gateway struct {
	cfg     Config
	intents intentCreator
	logger  zerolog.Logger
	metrics *observability.Metrics
}

var _ payment.Gateway = (*Gateway)(nil)

func New(cfg Config, logger zerolog.Logger, metrics *observability.Metrics) *Gateway {
	g := &Gateway{
		cfg:     cfg,
		logger:  observability.Component(logger, "gateway."+ProviderName),
		metrics: metrics,
	}
	if cfg.SecretKey != "" {
		g.intents = &paymentintent.Client{B: stripesdk.GetBackend(stripesdk.APIBackend), Key: cfg.SecretKey}
	}
	return g
}

func (g *Gateway) Name() string { return ProviderName }

func (g *Gateway) configured() error {
	if g.intents != nil {
		return nil
	}
	g.logger.Error().Msg("stripe secret key is not configured")
	return domainErrors.NewDomainError("gateway_not_configured", "stripe: missing secret_key",
		domainErrors.ErrMissingConfiguration)
}

// GetSessionToken creates an unconfirmed PaymentIntent and returns its client secret.
func (g *Gateway) GetSessionToken(ctx context.Context, amount decimal.Decimal) (string, error) {
	if !amount.IsPositive() {
		return "", domainErrors.ErrInvalidAmount
	}
	if err := g.configured(); err != nil {
		return "", err
	}

	params := &stripesdk.PaymentIntentParams{
		Amount:        stripesdk.Int64(minorUnits(amount)),
		Currency:      stripesdk.String(strings.ToLower(g.cfg.Currency)),
		CaptureMethod: stripesdk.String("manual"),
	}
	params.Context = ctx

	start := time.Now()
	intent, err := g.intents.New(params)
	if err != nil {
		kind, declined := g.fail(stepIntent, start, err)
		if declined {
			kind = wrap(stepIntent, domainErrors.ErrGatewayProtocolFailure)
		}
		return "", kind
	}
	g.metrics.ObserveGatewayStep(ProviderName, stepIntent, "success", time.Since(start))
	return intent.ClientSecret, nil
}

// ProcessPayment confirms a PaymentIntent against the given payment method.
// Card errors are declines and yield a FAILED transaction.
func (g *Gateway) ProcessPayment(ctx context.Context, amount decimal.Decimal, currency, cardToken string) (*payment.Transaction, error) {
	if !amount.IsPositive() {
		return nil, domainErrors.ErrInvalidAmount
	}
	if err := g.configured(); err != nil {
		return nil, err
	}

	params := &stripesdk.PaymentIntentParams{
		Amount:        stripesdk.Int64(minorUnits(amount)),
		Currency:      stripesdk.String(strings.ToLower(currency)),
		PaymentMethod: stripesdk.String(cardToken),
		Confirm:       stripesdk.Bool(true),
		CaptureMethod: stripesdk.String("manual"),
	}
	params.Context = ctx

	start := time.Now()
	intent, err := g.intents.New(params)
	if err != nil {
		kind, declined := g.fail(stepConfirm, start, err)
		if declined {
			return payment.NewTransaction(amount, currency, payment.StatusFailed, "")
		}
		return nil, kind
	}
	g.metrics.ObserveGatewayStep(ProviderName, stepConfirm, "success", time.Since(start))

	return payment.NewTransaction(amount, currency, MapStatus(intent.Status), intent.ID)
}

// MapStatus converts a PaymentIntent status to a transaction status.
func MapStatus(status stripesdk.PaymentIntentStatus) payment.Status {
	switch status {
	case stripesdk.PaymentIntentStatusSucceeded, stripesdk.PaymentIntentStatusRequiresCapture:
		return payment.StatusCompleted
	case stripesdk.PaymentIntentStatusProcessing, stripesdk.PaymentIntentStatusRequiresAction:
		return payment.StatusPending
	default:
		return payment.StatusFailed
	}
}

func minorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// fail records the error and classifies it. declined is true for card errors, which the
// caller turns into a failed transaction instead of an error.
func (g *Gateway) fail(step string, start time.Time, err error) (kind error, declined bool) {
	elapsed := time.Since(start)

	var stripeErr *stripesdk.Error
	if errors.As(err, &stripeErr) {
		ev := g.logger.Error()
		if string(stripeErr.Type) == "card_error" {
			ev = g.logger.Info()
		}
		ev.Str("step", step).
			Str("type", string(stripeErr.Type)).
			Str("code", string(stripeErr.Code)).
			Int("status", stripeErr.HTTPStatusCode).
			Msg("stripe request failed")

		switch string(stripeErr.Type) {
		case "card_error":
			g.metrics.ObserveGatewayStep(ProviderName, step, "declined", elapsed)
			return nil, true
		case "authentication_error", "permission_error":
			g.metrics.ObserveGatewayStep(ProviderName, step, "http_status", elapsed)
			return wrap(step, domainErrors.ErrGatewayAuthFailure), false
		case "api_connection_error":
			g.metrics.ObserveGatewayStep(ProviderName, step, "connectivity", elapsed)
			return wrap(step, domainErrors.ErrGatewayNetworkFailure), false
		}
		g.metrics.ObserveGatewayStep(ProviderName, step, "http_status", elapsed)
		if stripeErr.HTTPStatusCode >= 500 {
			return wrap(step, domainErrors.ErrGatewayNetworkFailure), false
		}
		return wrap(step, domainErrors.ErrGatewayProtocolFailure), false
	}

	g.logger.Error().Str("step", step).Err(err).Msg("stripe request failed")
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		g.metrics.ObserveGatewayStep(ProviderName, step, "connectivity", elapsed)
		return wrap(step, domainErrors.ErrGatewayNetworkFailure), false
	}
	g.metrics.ObserveGatewayStep(ProviderName, step, "malformed_body", elapsed)
	return wrap(step, domainErrors.ErrGatewayProtocolFailure), false
}

func wrap(step string, kind error) error {
	return domainErrors.NewDomainError(domainErrors.Code(kind), "stripe "+step+" failed", kind)
}
