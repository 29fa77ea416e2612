package testutil

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/cassiomorais/checkout/internal/domain/payment"
)

// NewTestTransaction builds a transaction or fails the test.
func NewTestTransaction(t *testing.T, amount string, currency string, status payment.Status, providerID string) *payment.Transaction {
	t.Helper()
	tx, err := payment.NewTransaction(decimal.RequireFromString(amount), currency, status, providerID)
	if err != nil {
		t.Fatalf("new test transaction: %v", err)
	}
	return tx
}
