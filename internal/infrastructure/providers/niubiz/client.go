// Package niubiz implements the payment gateway capability against the Niubiz e-commerce API.
//
// Every public operation runs the whole handshake from scratch: the merchant secret is traded
// for an access token on the security endpoint, and that token authenticates exactly one
// session or authorization call. Nothing is cached between operations.
package niubiz

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/domain/payment"
	"github.com/cassiomorais/checkout/internal/infrastructure/observability"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	ProviderName = "niubiz"

	securityPath      = "/api.security/v1/security"
	sessionPath       = "/api.ecommerce/v2/ecommerce/token/session/"
	authorizationPath = "/api.authorization/v3/authorization/ecommerce/"

	maxResponseBytes = 1 << 20
	maxLoggedBody    = 512

	// purchaseNumberLimit bounds the random order number sent with each authorization.
	purchaseNumberLimit = 100000
)

// Config holds the merchant credentials and protocol constants.
type Config struct {
	// AuthKey is the static merchant secret, sent verbatim as the Authorization header of
	// the security call (typically "Basic <base64>").
	AuthKey            string
	MerchantID         string
	BaseURL            string
	Channel            string
	CaptureType        string
	Countable          bool
	ClientIP           string
	MerchantDefineData map[string]any
}

// Gateway is the Niubiz implementation of payment.Gateway.
type Gateway struct {
	cfg            Config
	httpClient     *http.Client
	logger         zerolog.Logger
	metrics        *observability.Metrics
	tracer         trace.Tracer
	purchaseNumber func() int
}

var _ payment.Gateway = (*Gateway)(nil)

// Option configures a Gateway.
type Option func(*Gateway)

// WithHTTPClient replaces the default instrumented HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) { g.httpClient = c }
}

// WithMetrics records per-step outcomes on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// WithPurchaseNumber overrides the purchase number generator.
func WithPurchaseNumber(fn func() int) Option {
	return func(g *Gateway) { g.purchaseNumber = fn }
}

// New creates a Niubiz gateway. Missing credentials are not an error here; they are
// reported by each operation before any request is sent.
func New(cfg Config, logger zerolog.Logger, opts ...Option) *Gateway {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Channel == "" {
		cfg.Channel = "web"
	}
	if cfg.CaptureType == "" {
		cfg.CaptureType = "manual"
	}
	cfg.MerchantDefineData = normalizeDefineData(cfg.MerchantDefineData)

	g := &Gateway{
		cfg: cfg,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   30 * time.Second,
		},
		logger:         observability.Component(logger, "gateway."+ProviderName),
		tracer:         otel.Tracer("github.com/cassiomorais/checkout/niubiz"),
		purchaseNumber: func() int { return rand.IntN(purchaseNumberLimit) },
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *Gateway) Name() string { return ProviderName }

// checkConfig reports missing settings as ErrMissingConfiguration.
func (g *Gateway) checkConfig() error {
	var missing []string
	if g.cfg.AuthKey == "" {
		missing = append(missing, "auth_key")
	}
	if g.cfg.MerchantID == "" {
		missing = append(missing, "merchant_id")
	}
	if g.cfg.BaseURL == "" {
		missing = append(missing, "base_url")
	}
	if len(missing) == 0 {
		return nil
	}

	g.metrics.ObserveGatewayStep(ProviderName, "preflight", "missing_configuration", 0)
	g.logger.Error().Strs("missing", missing).Msg("niubiz gateway is not configured")
	return domainErrors.NewDomainError(
		"gateway_not_configured",
		fmt.Sprintf("niubiz: missing %s", strings.Join(missing, ", ")),
		domainErrors.ErrMissingConfiguration,
	)
}

// post sends one request and returns the status code and body. A non-nil error always
// means the exchange could not complete at the transport level.
func (g *Gateway) post(ctx context.Context, url, authorization string, body io.Reader) (int, []byte, error) {
	if body == nil {
		body = http.NoBody
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", authorization)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, data, nil
}

// normalizeDefineData upper-cases MDD keys; config loaders fold them to lower case.
func normalizeDefineData(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[strings.ToUpper(k)] = v
	}
	return out
}
