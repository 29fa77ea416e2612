package payment

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/cassiomorais/checkout/internal/domain/payment"
)

// SessionAudit receives one record per issued session key.
type SessionAudit interface {
	SessionIssued(ctx context.Context, record SessionRecord)
}

// SessionRecord describes an issued session key. The key itself is never recorded.
type SessionRecord struct {
	Provider  string
	Amount    decimal.Decimal
	ClientIP  string
	RequestID string
	UserID    string
	IssuedAt  time.Time
}

// LogAudit writes session records to a logger.
type LogAudit struct {
	Logger zerolog.Logger
}

func (a LogAudit) SessionIssued(_ context.Context, r SessionRecord) {
	a.Logger.Info().
		Str("audit", "session_token").
		Str("provider", r.Provider).
		Str("amount", r.Amount.String()).
		Str("client_ip", r.ClientIP).
		Str("request_id", r.RequestID).
		Str("user_id", r.UserID).
		Time("issued_at", r.IssuedAt).
		Msg("session token issued")
}

// GetSessionTokenUseCase obtains a checkout session key for a fixed amount.
type GetSessionTokenUseCase struct {
	gateway payment.Gateway
	amount  decimal.Decimal
	audit   SessionAudit
	now     func() time.Time
}

// NewGetSessionTokenUseCase creates a new GetSessionTokenUseCase. A nil audit disables
// audit records.
func NewGetSessionTokenUseCase(gateway payment.Gateway, amount decimal.Decimal, audit SessionAudit) *GetSessionTokenUseCase {
	return &GetSessionTokenUseCase{
		gateway: gateway,
		amount:  amount,
		audit:   audit,
		now:     time.Now,
	}
}

// Execute returns the gateway's session key unmodified.
func (uc *GetSessionTokenUseCase) Execute(ctx context.Context) (string, error) {
	token, err := uc.gateway.GetSessionToken(ctx, uc.amount)
	if err != nil {
		return "", err
	}

	if uc.audit != nil {
		meta := payment.RequestMetaFrom(ctx)
		uc.audit.SessionIssued(ctx, SessionRecord{
			Provider:  uc.gateway.Name(),
			Amount:    uc.amount,
			ClientIP:  meta.ClientIP,
			RequestID: meta.RequestID,
			UserID:    meta.UserID,
			IssuedAt:  uc.now(),
		})
	}
	return token, nil
}
