package payment

import (
	"strconv"
	"time"

	"github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/shopspring/decimal"
)

// Status represents the outcome of a payment attempt.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// transactionIDPrefix is prepended to the creation timestamp to build local ids.
const transactionIDPrefix = "tx_"

// Transaction is the immutable result of a payment attempt.
//
// The local id is never derived from the provider's identifier. Two transactions created within
// the same millisecond share an id; callers that need stronger uniqueness must not rely on it.
type Transaction struct {
	id         string
	amount     decimal.Decimal
	currency   string
	status     Status
	providerID string
}

// NewTransaction builds a transaction stamped with a fresh local id.
// An empty providerID means the provider did not assign one.
func NewTransaction(amount decimal.Decimal, currency string, status Status, providerID string) (*Transaction, error) {
	if !amount.IsPositive() {
		return nil, errors.ErrInvalidAmount
	}
	return &Transaction{
		id:         newTransactionID(time.Now()),
		amount:     amount,
		currency:   currency,
		status:     status,
		providerID: providerID,
	}, nil
}

func newTransactionID(now time.Time) string {
	return transactionIDPrefix + strconv.FormatInt(now.UnixMilli(), 10)
}

func (t *Transaction) ID() string              { return t.id }
func (t *Transaction) Amount() decimal.Decimal { return t.amount }
func (t *Transaction) Currency() string        { return t.currency }
func (t *Transaction) Status() Status          { return t.status }

// ProviderID returns the processor's transaction identifier, if it assigned one.
func (t *Transaction) ProviderID() (string, bool) {
	return t.providerID, t.providerID != ""
}

// Succeeded reports whether the processor authorized the charge.
func (t *Transaction) Succeeded() bool {
	return t.status == StatusCompleted
}
