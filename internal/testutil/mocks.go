package testutil

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/cassiomorais/checkout/internal/domain/payment"
)

// --- Gateway Mock ---

// MockGateway is a mock implementation of payment.Gateway.
type MockGateway struct {
	mu sync.Mutex

	NameValue string

	GetSessionTokenFunc func(ctx context.Context, amount decimal.Decimal) (string, error)
	ProcessPaymentFunc  func(ctx context.Context, amount decimal.Decimal, currency, cardToken string) (*payment.Transaction, error)

	SessionCalls  int
	PaymentCalls  int
	LastAmount    decimal.Decimal
	LastCurrency  string
	LastCardToken string
	LastContext   context.Context
}

func NewMockGateway(name string) *MockGateway {
	return &MockGateway{NameValue: name}
}

func (m *MockGateway) Name() string {
	if m.NameValue == "" {
		return "mock"
	}
	return m.NameValue
}

func (m *MockGateway) GetSessionToken(ctx context.Context, amount decimal.Decimal) (string, error) {
	m.mu.Lock()
	m.SessionCalls++
	m.LastAmount = amount
	m.LastContext = ctx
	m.mu.Unlock()

	if m.GetSessionTokenFunc != nil {
		return m.GetSessionTokenFunc(ctx, amount)
	}
	return "session-key", nil
}

func (m *MockGateway) ProcessPayment(ctx context.Context, amount decimal.Decimal, currency, cardToken string) (*payment.Transaction, error) {
	m.mu.Lock()
	m.PaymentCalls++
	m.LastAmount = amount
	m.LastCurrency = currency
	m.LastCardToken = cardToken
	m.LastContext = ctx
	m.mu.Unlock()

	if m.ProcessPaymentFunc != nil {
		return m.ProcessPaymentFunc(ctx, amount, currency, cardToken)
	}
	return payment.NewTransaction(amount, currency, payment.StatusCompleted, "mock-provider-id")
}

// Calls returns the number of session and payment calls made so far.
func (m *MockGateway) Calls() (sessions, payments int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.SessionCalls, m.PaymentCalls
}
