package payment

import (
	"context"

	"github.com/shopspring/decimal"
)

// Gateway is the capability every card processor integration implements.
//
// Implementations keep no state between calls: each operation runs its own credential
// exchange. A processor decline is reported as a Transaction with StatusFailed, never as an
// error. Errors are always one of the kinds in the domain errors package.
type Gateway interface {
	// Name returns the provider name used for registration and metrics.
	Name() string
	// GetSessionToken returns a session key for the processor's hosted payment form.
	GetSessionToken(ctx context.Context, amount decimal.Decimal) (string, error)
	// ProcessPayment submits an authorization for a pre-tokenized card.
	ProcessPayment(ctx context.Context, amount decimal.Decimal, currency, cardToken string) (*Transaction, error)
}
