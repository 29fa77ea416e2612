package controller

import (
	"github.com/cassiomorais/checkout/internal/domain/payment"
)

// --- Request DTOs ---

// CreatePaymentRequest holds the input for charging a tokenized card. Amount is a pointer
// so a missing field is a validation error while 0 reaches the amount rule.
type CreatePaymentRequest struct {
	Amount    *float64 `json:"amount" validate:"required"`
	Currency  string   `json:"currency" validate:"required,len=3,alpha"`
	CardToken string   `json:"cardToken" validate:"required"`
}

// --- Response DTOs ---

// SessionTokenResponse carries the session key the checkout form is initialized with.
type SessionTokenResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
}

// PaymentResponse wraps a processed transaction.
type PaymentResponse struct {
	Message string              `json:"message"`
	Data    TransactionResponse `json:"data"`
}

// TransactionResponse represents a transaction in API responses.
type TransactionResponse struct {
	ID         string  `json:"id"`
	Amount     float64 `json:"amount"`
	Currency   string  `json:"currency"`
	Status     string  `json:"status"`
	ProviderID *string `json:"providerId,omitempty"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// --- Conversion helpers ---

// FromTransaction converts a domain transaction to API response.
func FromTransaction(tx *payment.Transaction) TransactionResponse {
	resp := TransactionResponse{
		ID:       tx.ID(),
		Amount:   tx.Amount().InexactFloat64(),
		Currency: tx.Currency(),
		Status:   string(tx.Status()),
	}
	if id, ok := tx.ProviderID(); ok {
		resp.ProviderID = &id
	}
	return resp
}
