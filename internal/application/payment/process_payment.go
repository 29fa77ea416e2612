package payment

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/domain/payment"
)

// ProcessPaymentUseCase charges a tokenized card through the configured gateway.
type ProcessPaymentUseCase struct {
	gateway payment.Gateway
	logger  zerolog.Logger
}

// NewProcessPaymentUseCase creates a new ProcessPaymentUseCase.
func NewProcessPaymentUseCase(gateway payment.Gateway, logger zerolog.Logger) *ProcessPaymentUseCase {
	return &ProcessPaymentUseCase{gateway: gateway, logger: logger}
}

// Execute validates the amount and delegates to the gateway. A declined charge comes back
// as a FAILED transaction with a nil error. Gateway errors are returned as they are.
func (uc *ProcessPaymentUseCase) Execute(ctx context.Context, amount decimal.Decimal, currency, cardToken string) (*payment.Transaction, error) {
	if !amount.IsPositive() {
		return nil, domainErrors.ErrInvalidAmount
	}

	tx, err := uc.gateway.ProcessPayment(ctx, amount, currency, cardToken)
	if err != nil {
		return nil, err
	}

	providerID, _ := tx.ProviderID()
	uc.logger.Info().
		Str("transaction_id", tx.ID()).
		Str("provider", uc.gateway.Name()).
		Str("provider_id", providerID).
		Str("amount", tx.Amount().String()).
		Str("currency", tx.Currency()).
		Str("status", string(tx.Status())).
		Msg("payment processed")

	return tx, nil
}
