// Package mercadopago adapts the Mercado Pago SDK to the payment gateway capability.
package mercadopago

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/mperror"
	mppayment "github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/mercadopago/sdk-go/pkg/preference"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/domain/payment"
	"github.com/cassiomorais/checkout/internal/infrastructure/observability"
)

const ProviderName = "mercadopago"

const (
	stepPreference = "preference"
	stepPayment    = "payment"
)

type Config struct {
	AccessToken     string
	PaymentMethodID string
	PayerEmail      string
	Currency        string
}

type paymentCreator interface {
	Create(ctx context.Context, request mppayment.Request) (*mppayment.Response, error)
}

type preferenceCreator interface {
	Create(ctx context.Context, request preference.Request) (*preference.Response, error)
}

// Gateway is the Mercado Pago implementation of payment.Gateway. The session token is the
// id of a checkout preference; authorization is a direct card payment.
type Gateway struct {
	cfg         Config
	payments    paymentCreator
	preferences preferenceCreator
	logger      zerolog.Logger
	metrics     *observability.Metrics
}

var _ payment.Gateway = (*Gateway)(nil)

// New builds the SDK clients when an access token is present. Without one the gateway
// still constructs and reports ErrMissingConfiguration on use.
func New(cfg Config, logger zerolog.Logger, metrics *observability.Metrics) (*Gateway, error) {
	g := &Gateway{
		cfg:     cfg,
		logger:  observability.Component(logger, "gateway."+ProviderName),
		metrics: metrics,
	}
	if cfg.AccessToken == "" {
		return g, nil
	}

	sdkCfg, err := config.New(cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("mercadopago: failed creating sdk config: %w", err)
	}
	g.payments = mppayment.NewClient(sdkCfg)
	g.preferences = preference.NewClient(sdkCfg)
	return g, nil
}

func (g *Gateway) Name() string { return ProviderName }

func (g *Gateway) configured() error {
	var missing []string
	if g.payments == nil || g.preferences == nil {
		missing = append(missing, "access_token")
	}
	if g.cfg.Currency == "" {
		missing = append(missing, "currency")
	}
	if len(missing) == 0 {
		return nil
	}
	g.logger.Error().Strs("missing", missing).Msg("mercadopago gateway is not configured")
	return domainErrors.NewDomainError("gateway_not_configured",
		"mercadopago: missing "+strings.Join(missing, ", "), domainErrors.ErrMissingConfiguration)
}

func (g *Gateway) GetSessionToken(ctx context.Context, amount decimal.Decimal) (string, error) {
	if !amount.IsPositive() {
		return "", domainErrors.ErrInvalidAmount
	}
	if err := g.configured(); err != nil {
		return "", err
	}

	var req preference.Request
	if err := remarshal(map[string]any{
		"items": []map[string]any{{
			"title":       "Checkout",
			"quantity":    1,
			"unit_price":  amount.InexactFloat64(),
			"currency_id": g.cfg.Currency,
		}},
	}, &req); err != nil {
		return "", err
	}

	start := time.Now()
	resp, err := g.preferences.Create(ctx, req)
	if err != nil {
		return "", g.fail(stepPreference, start, err)
	}
	id := fmt.Sprint(resp.ID)
	if id == "" {
		return "", g.fail(stepPreference, start, errEmptyID)
	}
	g.metrics.ObserveGatewayStep(ProviderName, stepPreference, "success", time.Since(start))
	return id, nil
}

func (g *Gateway) ProcessPayment(ctx context.Context, amount decimal.Decimal, currency, cardToken string) (*payment.Transaction, error) {
	if !amount.IsPositive() {
		return nil, domainErrors.ErrInvalidAmount
	}
	if err := g.configured(); err != nil {
		return nil, err
	}
	// The payments API has no currency field; the account currency is what gets charged.
	if !strings.EqualFold(currency, g.cfg.Currency) {
		return nil, domainErrors.NewValidationError("currency", "mercadopago account charges in "+g.cfg.Currency)
	}

	// Same construction as the SDK's JSON contract, so field names track the API docs.
	body := map[string]any{
		"transaction_amount": amount.InexactFloat64(),
		"token":              cardToken,
		"installments":       1,
		"payment_method_id":  g.cfg.PaymentMethodID,
		"description":        "Checkout payment",
	}
	if g.cfg.PayerEmail != "" {
		body["payer"] = map[string]any{"email": g.cfg.PayerEmail}
	}
	var req mppayment.Request
	if err := remarshal(body, &req); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := g.payments.Create(ctx, req)
	if err != nil {
		return nil, g.fail(stepPayment, start, err)
	}
	g.metrics.ObserveGatewayStep(ProviderName, stepPayment, "success", time.Since(start))

	status := MapStatus(resp.Status)
	if status == payment.StatusFailed {
		g.logger.Info().
			Str("status", resp.Status).
			Str("status_detail", resp.StatusDetail).
			Msg("mercadopago declined the payment")
	}
	return payment.NewTransaction(amount, g.cfg.Currency, status, fmt.Sprintf("%d", resp.ID))
}

// MapStatus converts a Mercado Pago payment status to a transaction status.
func MapStatus(status string) payment.Status {
	switch status {
	case "approved", "authorized":
		return payment.StatusCompleted
	case "pending", "in_process":
		return payment.StatusPending
	default:
		return payment.StatusFailed
	}
}

var errEmptyID = errors.New("response has no id")

// fail logs and counts an SDK failure and returns the sanitized domain kind.
func (g *Gateway) fail(step string, start time.Time, err error) error {
	kind, cause, status := classify(err)
	g.metrics.ObserveGatewayStep(ProviderName, step, cause, time.Since(start))

	ev := g.logger.Error().Str("step", step).Str("cause", cause).Err(err)
	if status != 0 {
		ev = ev.Int("status", status)
	}
	ev.Msg("mercadopago request failed")

	return domainErrors.NewDomainError(domainErrors.Code(kind), "mercadopago "+step+" failed", kind)
}

func classify(err error) (kind error, cause string, status int) {
	var respErr *mperror.ResponseError
	if errors.As(err, &respErr) {
		switch {
		case respErr.StatusCode == 401 || respErr.StatusCode == 403:
			return domainErrors.ErrGatewayAuthFailure, "http_status", respErr.StatusCode
		case respErr.StatusCode >= 500:
			return domainErrors.ErrGatewayNetworkFailure, "http_status", respErr.StatusCode
		default:
			return domainErrors.ErrGatewayProtocolFailure, "http_status", respErr.StatusCode
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domainErrors.ErrGatewayNetworkFailure, "connectivity", 0
	}
	return domainErrors.ErrGatewayProtocolFailure, "malformed_body", 0
}

func remarshal(in any, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
