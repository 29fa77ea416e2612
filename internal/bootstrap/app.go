package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/cassiomorais/checkout/internal/controller"
	"github.com/cassiomorais/checkout/internal/domain/payment"
	"github.com/cassiomorais/checkout/internal/infrastructure/config"
	"github.com/cassiomorais/checkout/internal/infrastructure/observability"
	"github.com/cassiomorais/checkout/internal/infrastructure/providers"
	"github.com/cassiomorais/checkout/internal/infrastructure/providers/mercadopago"
	"github.com/cassiomorais/checkout/internal/infrastructure/providers/niubiz"
	"github.com/cassiomorais/checkout/internal/infrastructure/providers/stripe"
	"github.com/cassiomorais/checkout/internal/service"
)

type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Metrics  *observability.Metrics
	Factory  *providers.Factory
	Payments *service.PaymentService
	Handler  http.Handler

	tracer *sdktrace.TracerProvider
}

func New(ctx context.Context, serviceName string, metricsNamespace string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.InitLogger(cfg.Observability.LogLevel, os.Stdout).
		With().Str("instance", cfg.InstanceID).Logger()
	logger.Info().Str("service", serviceName).Str("provider", cfg.Payment.Provider).Msg("Starting")

	app := &App{Config: cfg, Logger: logger}

	if cfg.Observability.EnableTracing {
		tp, err := observability.InitTracer(serviceName, cfg.Observability.JaegerEndpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		} else {
			app.tracer = tp
			logger.Info().Msg("Tracing enabled")
		}
	}

	var reg prometheus.Registerer = prometheus.DefaultRegisterer
	if !cfg.Observability.EnableMetrics {
		reg = prometheus.NewRegistry()
	}
	app.Metrics = observability.NewMetrics(metricsNamespace, reg)
	logger.Info().Msg("Metrics initialized")

	gateways, err := BuildGateways(cfg, logger, app.Metrics)
	if err != nil {
		return nil, fmt.Errorf("build gateways: %w", err)
	}
	app.Factory = providers.NewFactory(logger, app.Metrics, providers.BreakerSettings{
		ConsecutiveFailures: uint32(cfg.Payment.CircuitBreakerThreshold),
		OpenTimeout:         cfg.Payment.CircuitBreakerTimeout,
	}, gateways...)

	gateway, err := app.Factory.Get(cfg.Payment.Provider)
	if err != nil {
		return nil, fmt.Errorf("select provider: %w", err)
	}

	app.Payments = service.NewPaymentService(gateway, decimal.NewFromFloat(cfg.Payment.SessionAmount), service.Options{
		Timeout: cfg.Payment.RequestTimeout,
		Metrics: app.Metrics,
		Logger:  logger,
	})

	app.Handler = controller.NewRouter(controller.RouterDeps{
		PaymentService:     app.Payments,
		Breakers:           app.Factory,
		Provider:           cfg.Payment.Provider,
		Metrics:            app.Metrics,
		CORSConfig:         cfg.Server.CORS,
		JWTSecret:          cfg.Auth.JWTSecret,
		RateLimitPerMinute: cfg.Server.RateLimitPerMinute,
		EnableTracing:      app.tracer != nil,
		ServiceName:        serviceName,
	})

	logger.Info().Strs("registered", app.Factory.Names()).Msg("Payment gateways ready")
	return app, nil
}

// BuildGateways constructs every supported gateway. Gateways without credentials are still
// registered and answer each call with a missing configuration error.
func BuildGateways(cfg *config.Config, logger zerolog.Logger, metrics *observability.Metrics) ([]payment.Gateway, error) {
	nb := niubiz.New(niubiz.Config{
		AuthKey:            cfg.Niubiz.AuthKey,
		MerchantID:         cfg.Niubiz.MerchantID,
		BaseURL:            cfg.Niubiz.BaseURL,
		Channel:            cfg.Niubiz.Channel,
		CaptureType:        cfg.Niubiz.CaptureType,
		Countable:          cfg.Niubiz.Countable,
		ClientIP:           cfg.Niubiz.ClientIP,
		MerchantDefineData: cfg.Niubiz.MerchantDefineData,
	}, logger, niubiz.WithMetrics(metrics))

	mp, err := mercadopago.New(mercadopago.Config{
		AccessToken:     cfg.MercadoPago.AccessToken,
		PaymentMethodID: cfg.MercadoPago.PaymentMethodID,
		PayerEmail:      cfg.MercadoPago.PayerEmail,
		Currency:        cfg.Payment.DefaultCurrency,
	}, logger, metrics)
	if err != nil {
		return nil, fmt.Errorf("mercadopago: %w", err)
	}

	st := stripe.New(stripe.Config{
		SecretKey: cfg.Stripe.SecretKey,
		Currency:  cfg.Payment.DefaultCurrency,
	}, logger, metrics)

	return []payment.Gateway{nb, mp, st, providers.NewMockProvider("mock")}, nil
}

// Close flushes pending spans.
func (a *App) Close(ctx context.Context) {
	if a.tracer == nil {
		return
	}
	if err := observability.Shutdown(ctx, a.tracer); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to flush traces")
	}
}
