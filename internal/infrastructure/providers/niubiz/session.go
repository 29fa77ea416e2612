package niubiz

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/shopspring/decimal"

	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/domain/payment"
)

var errMissingSessionKey = errors.New("response has no sessionKey")

type antifraud struct {
	ClientIP           string         `json:"clientIp"`
	MerchantDefineData map[string]any `json:"merchantDefineData"`
}

type sessionRequest struct {
	Channel   string      `json:"channel"`
	Amount    json.Number `json:"amount"`
	Antifraud antifraud   `json:"antifraud"`
}

type sessionResponse struct {
	SessionKey     string `json:"sessionKey"`
	ExpirationTime int64  `json:"expirationTime"`
}

// GetSessionToken returns the session key the checkout form needs, for the given amount.
func (g *Gateway) GetSessionToken(ctx context.Context, amount decimal.Decimal) (string, error) {
	if !amount.IsPositive() {
		return "", domainErrors.ErrInvalidAmount
	}
	if err := g.checkConfig(); err != nil {
		return "", err
	}

	token, err := g.accessToken(ctx)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(sessionRequest{
		Channel: g.cfg.Channel,
		Amount:  json.Number(amount.String()),
		Antifraud: antifraud{
			ClientIP:           g.clientIP(ctx),
			MerchantDefineData: g.cfg.MerchantDefineData,
		},
	})
	if err != nil {
		return "", err
	}

	var sessionKey string
	err = g.step(ctx, stepSession, func(ctx context.Context) *stepError {
		status, body, err := g.post(ctx, g.cfg.BaseURL+sessionPath+g.cfg.MerchantID, token, bytes.NewReader(payload))
		if err != nil {
			return &stepError{step: stepSession, cause: causeConnectivity, err: err}
		}
		if status < 200 || status >= 300 {
			return &stepError{step: stepSession, cause: causeHTTPStatus, status: status, body: body}
		}

		var resp sessionResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return &stepError{step: stepSession, cause: causeMalformedBody, status: status, body: body, err: err}
		}
		if resp.SessionKey == "" {
			return &stepError{step: stepSession, cause: causeMalformedBody, status: status, body: body, err: errMissingSessionKey}
		}
		sessionKey = resp.SessionKey
		return nil
	})
	if err != nil {
		return "", err
	}
	return sessionKey, nil
}

// clientIP prefers the caller's address over the configured fallback.
func (g *Gateway) clientIP(ctx context.Context) string {
	if ip := payment.RequestMetaFrom(ctx).ClientIP; ip != "" {
		return ip
	}
	return g.cfg.ClientIP
}
