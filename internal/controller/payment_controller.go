package controller

import (
	"context"
	"net/http"

	"github.com/cassiomorais/checkout/internal/domain/payment"
)

const (
	msgSessionToken     = "session token generated"
	msgPaymentProcessed = "payment processed"
)

// PaymentService is the boundary the controller drives.
type PaymentService interface {
	CreatePayment(ctx context.Context, amount float64, currency, cardToken string) (*payment.Transaction, error)
	FetchSessionToken(ctx context.Context) (string, error)
}

// PaymentController handles payment-related HTTP requests.
type PaymentController struct {
	paymentService PaymentService
}

// NewPaymentController creates a new PaymentController.
func NewPaymentController(paymentService PaymentService) *PaymentController {
	return &PaymentController{paymentService: paymentService}
}

// SessionToken handles GET /payments/session-token
func (h *PaymentController) SessionToken(w http.ResponseWriter, r *http.Request) {
	token, err := h.paymentService.FetchSessionToken(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SessionTokenResponse{Message: msgSessionToken, Token: token})
}

// CreatePayment handles POST /payments. Declined charges are still 201 with status FAILED.
func (h *PaymentController) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	tx, err := h.paymentService.CreatePayment(r.Context(), *req.Amount, req.Currency, req.CardToken)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, PaymentResponse{Message: msgPaymentProcessed, Data: FromTransaction(tx)})
}
