package service

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	paymentApp "github.com/cassiomorais/checkout/internal/application/payment"
	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/domain/payment"
	"github.com/cassiomorais/checkout/internal/infrastructure/observability"
)

// PaymentService is the boundary the transport calls. It owns the per-request deadline
// and the outcome metrics; the use cases own the business rules.
type PaymentService struct {
	provider       string
	processPayment *paymentApp.ProcessPaymentUseCase
	sessionToken   *paymentApp.GetSessionTokenUseCase
	timeout        time.Duration
	metrics        *observability.Metrics
	logger         zerolog.Logger
}

// Options carries the optional collaborators of a PaymentService.
type Options struct {
	// Timeout bounds one whole gateway operation. Zero means no extra deadline.
	Timeout time.Duration
	Metrics *observability.Metrics
	Logger  zerolog.Logger
}

// NewPaymentService wires both use cases against the same gateway.
func NewPaymentService(gateway payment.Gateway, sessionAmount decimal.Decimal, opts Options) *PaymentService {
	logger := observability.Component(opts.Logger, "payment_service")
	return &PaymentService{
		provider:       gateway.Name(),
		processPayment: paymentApp.NewProcessPaymentUseCase(gateway, logger),
		sessionToken:   paymentApp.NewGetSessionTokenUseCase(gateway, sessionAmount, paymentApp.LogAudit{Logger: logger}),
		timeout:        opts.Timeout,
		metrics:        opts.Metrics,
		logger:         logger,
	}
}

// Provider returns the name of the gateway behind this service.
func (s *PaymentService) Provider() string { return s.provider }

// CreatePayment charges a tokenized card.
func (s *PaymentService) CreatePayment(ctx context.Context, amount float64, currency, cardToken string) (*payment.Transaction, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, domainErrors.ErrInvalidAmount
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.processPayment.Execute(ctx, decimal.NewFromFloat(amount), currency, cardToken)
	if err != nil {
		s.recordError("create_payment", err)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.TransactionsTotal.WithLabelValues(s.provider, string(tx.Status())).Inc()
	}
	return tx, nil
}

// FetchSessionToken returns a session key for the checkout form.
func (s *PaymentService) FetchSessionToken(ctx context.Context) (string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	token, err := s.sessionToken.Execute(ctx)
	if err != nil {
		s.recordError("fetch_session_token", err)
		if s.metrics != nil {
			s.metrics.SessionTokensTotal.WithLabelValues(s.provider, "error").Inc()
		}
		return "", err
	}

	if s.metrics != nil {
		s.metrics.SessionTokensTotal.WithLabelValues(s.provider, "issued").Inc()
	}
	return token, nil
}

func (s *PaymentService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *PaymentService) recordError(operation string, err error) {
	code := domainErrors.Code(err)
	if s.metrics != nil {
		s.metrics.PaymentErrors.WithLabelValues(s.provider, operation, code).Inc()
	}

	ev := s.logger.Warn()
	if code == "internal_error" {
		ev = s.logger.Error()
	}
	ev.Str("operation", operation).Str("error_type", code).Err(err).Msg("payment operation failed")
}
