package niubiz

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/domain/payment"
)

// actionAuthorized is the only ACTION_DESCRIPTION that counts as an approval.
const actionAuthorized = "Authorized"

var errMissingAction = errors.New("response has no ACTION_DESCRIPTION")

type authorizationOrder struct {
	TokenID        string      `json:"tokenId"`
	PurchaseNumber int         `json:"purchaseNumber"`
	Amount         json.Number `json:"amount"`
	Currency       string      `json:"currency"`
}

type authorizationRequest struct {
	Channel     string             `json:"channel"`
	CaptureType string             `json:"captureType"`
	Countable   bool               `json:"countable"`
	Order       authorizationOrder `json:"order"`
}

// authorizationResult is what we keep from the processor's reply.
type authorizationResult struct {
	action        string
	transactionID string
}

// ProcessPayment authorizes a charge against a tokenized card. A processor decline is
// returned as a FAILED transaction, not as an error.
func (g *Gateway) ProcessPayment(ctx context.Context, amount decimal.Decimal, currency, cardToken string) (*payment.Transaction, error) {
	if !amount.IsPositive() {
		return nil, domainErrors.ErrInvalidAmount
	}
	if err := g.checkConfig(); err != nil {
		return nil, err
	}

	token, err := g.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(authorizationRequest{
		Channel:     g.cfg.Channel,
		CaptureType: g.cfg.CaptureType,
		Countable:   g.cfg.Countable,
		Order: authorizationOrder{
			TokenID:        cardToken,
			PurchaseNumber: g.purchaseNumber(),
			Amount:         json.Number(amount.String()),
			Currency:       currency,
		},
	})
	if err != nil {
		return nil, err
	}

	var result authorizationResult
	err = g.step(ctx, stepAuthorization, func(ctx context.Context) *stepError {
		status, body, err := g.post(ctx, g.cfg.BaseURL+authorizationPath+g.cfg.MerchantID, token, bytes.NewReader(payload))
		if err != nil {
			return &stepError{step: stepAuthorization, cause: causeConnectivity, err: err}
		}

		parsed, parseErr := parseAuthorization(body)
		switch {
		case status >= 200 && status < 300:
			if parseErr != nil {
				return &stepError{step: stepAuthorization, cause: causeMalformedBody, status: status, body: body, err: parseErr}
			}
		case status >= 400 && status < 500 && parseErr == nil:
			// Declines come back as 4xx with a readable action description.
		default:
			return &stepError{step: stepAuthorization, cause: causeHTTPStatus, status: status, body: body}
		}
		result = parsed
		return nil
	})
	if err != nil {
		return nil, err
	}

	txStatus := payment.StatusFailed
	if result.action == actionAuthorized {
		txStatus = payment.StatusCompleted
	} else {
		g.logger.Info().
			Str("action", result.action).
			Str("transaction_id", result.transactionID).
			Msg("niubiz declined the authorization")
	}

	return payment.NewTransaction(amount, currency, txStatus, result.transactionID)
}

// parseAuthorization reads ACTION_DESCRIPTION and TRANSACTION_ID from the top level,
// then from dataMap, then from data.
func parseAuthorization(body []byte) (authorizationResult, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var root map[string]any
	if err := dec.Decode(&root); err != nil {
		return authorizationResult{}, err
	}

	scopes := []map[string]any{root}
	for _, key := range []string{"dataMap", "data"} {
		if nested, ok := root[key].(map[string]any); ok {
			scopes = append(scopes, nested)
		}
	}

	var result authorizationResult
	for _, scope := range scopes {
		if result.action == "" {
			result.action = stringField(scope["ACTION_DESCRIPTION"])
		}
		if result.transactionID == "" {
			result.transactionID = stringField(scope["TRANSACTION_ID"])
		}
	}
	if result.action == "" {
		return authorizationResult{}, errMissingAction
	}
	return result, nil
}

func stringField(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case nil:
		return ""
	default:
		return fmt.Sprint(val)
	}
}
