package providers

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/domain/payment"
)

// MockProvider is an offline gateway for local development and load tests.
type MockProvider struct {
	name        string
	declineRate float64 // 0.0 to 1.0
	latency     time.Duration
	timeoutRate float64 // 0.0 to 1.0
}

type MockProviderOption func(*MockProvider)

// WithDeclineRate sets the share of payments answered with a FAILED transaction.
func WithDeclineRate(rate float64) MockProviderOption {
	return func(p *MockProvider) { p.declineRate = rate }
}

func WithLatency(d time.Duration) MockProviderOption {
	return func(p *MockProvider) { p.latency = d }
}

// WithTimeoutRate sets the share of calls that fail as unreachable.
func WithTimeoutRate(rate float64) MockProviderOption {
	return func(p *MockProvider) { p.timeoutRate = rate }
}

func NewMockProvider(name string, opts ...MockProviderOption) *MockProvider {
	p := &MockProvider{
		name:    name,
		latency: 100 * time.Millisecond,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

var _ payment.Gateway = (*MockProvider)(nil)

func (p *MockProvider) Name() string { return p.name }

func (p *MockProvider) GetSessionToken(ctx context.Context, amount decimal.Decimal) (string, error) {
	if !amount.IsPositive() {
		return "", domainErrors.ErrInvalidAmount
	}
	if err := p.simulate(ctx); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s_sess_%s", p.name, uuid.New().String()), nil
}

func (p *MockProvider) ProcessPayment(ctx context.Context, amount decimal.Decimal, currency, cardToken string) (*payment.Transaction, error) {
	if !amount.IsPositive() {
		return nil, domainErrors.ErrInvalidAmount
	}
	if err := p.simulate(ctx); err != nil {
		return nil, err
	}

	status := payment.StatusCompleted
	if rand.Float64() < p.declineRate {
		status = payment.StatusFailed
	}
	return payment.NewTransaction(amount, currency, status, fmt.Sprintf("%s_txn_%s", p.name, uuid.New().String()[:8]))
}

// simulate waits for the configured latency and rolls for a timeout.
func (p *MockProvider) simulate(ctx context.Context) error {
	select {
	case <-time.After(p.latency):
	case <-ctx.Done():
		return domainErrors.NewDomainError("gateway_unavailable", p.name+" call cancelled",
			fmt.Errorf("%w: %w", domainErrors.ErrGatewayNetworkFailure, ctx.Err()))
	}

	if rand.Float64() < p.timeoutRate {
		return domainErrors.NewDomainError("gateway_unavailable", p.name+" simulated timeout",
			domainErrors.ErrGatewayNetworkFailure)
	}
	return nil
}
