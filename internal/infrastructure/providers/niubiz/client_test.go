package niubiz

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/domain/payment"
	"github.com/cassiomorais/checkout/internal/infrastructure/observability"
)

const (
	testAuthKey    = "Basic dGVzdDp0ZXN0"
	testMerchantID = "456879852"
	testToken      = "eyJ-access-token"
)

// fakeNiubiz serves the three endpoints and counts the calls made to each.
type fakeNiubiz struct {
	securityHits      atomic.Int32
	sessionHits       atomic.Int32
	authorizationHits atomic.Int32

	securityStatus int
	securityBody   string

	sessionStatus int
	sessionBody   string
	sessionAuth   atomic.Value
	sessionBodyIn atomic.Value

	authorizationStatus int
	authorizationBody   string
	authorizationAuth   atomic.Value
	authorizationBodyIn atomic.Value
}

func newFakeNiubiz() *fakeNiubiz {
	return &fakeNiubiz{
		securityStatus:      http.StatusCreated,
		securityBody:        testToken,
		sessionStatus:       http.StatusOK,
		sessionBody:         `{"sessionKey":"sess-123","expirationTime":1700000000000}`,
		authorizationStatus: http.StatusOK,
		authorizationBody:   `{"dataMap":{"ACTION_DESCRIPTION":"Authorized","TRANSACTION_ID":"9999"}}`,
	}
}

func (f *fakeNiubiz) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+securityPath, func(w http.ResponseWriter, r *http.Request) {
		f.securityHits.Add(1)
		assert.Equal(t, testAuthKey, r.Header.Get("Authorization"))
		w.WriteHeader(f.securityStatus)
		_, _ = io.WriteString(w, f.securityBody)
	})
	mux.HandleFunc("POST "+sessionPath+"{merchant}", func(w http.ResponseWriter, r *http.Request) {
		f.sessionHits.Add(1)
		assert.Equal(t, testMerchantID, r.PathValue("merchant"))
		f.sessionAuth.Store(r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		f.sessionBodyIn.Store(body)
		w.WriteHeader(f.sessionStatus)
		_, _ = io.WriteString(w, f.sessionBody)
	})
	mux.HandleFunc("POST "+authorizationPath+"{merchant}", func(w http.ResponseWriter, r *http.Request) {
		f.authorizationHits.Add(1)
		assert.Equal(t, testMerchantID, r.PathValue("merchant"))
		f.authorizationAuth.Store(r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		f.authorizationBodyIn.Store(body)
		w.WriteHeader(f.authorizationStatus)
		_, _ = io.WriteString(w, f.authorizationBody)
	})
	return mux
}

func testConfig(baseURL string) Config {
	return Config{
		AuthKey:     testAuthKey,
		MerchantID:  testMerchantID,
		BaseURL:     baseURL,
		Channel:     "web",
		CaptureType: "manual",
		Countable:   true,
		ClientIP:    "127.0.0.1",
		MerchantDefineData: map[string]any{
			"mdd4":  "test@test.com",
			"MDD77": 1,
		},
	}
}

func newTestGateway(t *testing.T, fake *fakeNiubiz, opts ...Option) (*Gateway, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	opts = append([]Option{
		WithHTTPClient(srv.Client()),
		WithPurchaseNumber(func() int { return 4242 }),
	}, opts...)
	return New(testConfig(srv.URL), zerolog.Nop(), opts...), srv
}

func TestGateway_Name(t *testing.T) {
	g := New(Config{}, zerolog.Nop())
	assert.Equal(t, "niubiz", g.Name())
}

func TestGateway_ProcessPayment_Authorized(t *testing.T) {
	fake := newFakeNiubiz()
	g, _ := newTestGateway(t, fake)

	tx, err := g.ProcessPayment(context.Background(), decimal.NewFromInt(100), "PEN", "tok_abc")
	require.NoError(t, err)

	assert.Equal(t, payment.StatusCompleted, tx.Status())
	assert.True(t, tx.Amount().Equal(decimal.NewFromInt(100)))
	assert.Equal(t, "PEN", tx.Currency())
	providerID, ok := tx.ProviderID()
	assert.True(t, ok)
	assert.Equal(t, "9999", providerID)

	assert.EqualValues(t, 1, fake.securityHits.Load())
	assert.EqualValues(t, 1, fake.authorizationHits.Load())
	assert.EqualValues(t, 0, fake.sessionHits.Load())
	assert.Equal(t, testToken, fake.authorizationAuth.Load())

	var sent map[string]any
	require.NoError(t, json.Unmarshal(fake.authorizationBodyIn.Load().([]byte), &sent))
	assert.Equal(t, "web", sent["channel"])
	assert.Equal(t, "manual", sent["captureType"])
	assert.Equal(t, true, sent["countable"])

	order := sent["order"].(map[string]any)
	assert.Equal(t, "tok_abc", order["tokenId"])
	assert.EqualValues(t, 4242, order["purchaseNumber"])
	assert.EqualValues(t, 100, order["amount"])
	assert.Equal(t, "PEN", order["currency"])
}

func TestGateway_ProcessPayment_TopLevelAction(t *testing.T) {
	fake := newFakeNiubiz()
	fake.authorizationBody = `{"ACTION_DESCRIPTION":"Authorized","TRANSACTION_ID":12345}`
	g, _ := newTestGateway(t, fake)

	tx, err := g.ProcessPayment(context.Background(), decimal.RequireFromString("10.50"), "USD", "tok")
	require.NoError(t, err)

	assert.Equal(t, payment.StatusCompleted, tx.Status())
	providerID, _ := tx.ProviderID()
	assert.Equal(t, "12345", providerID)
}

func TestGateway_ProcessPayment_Declined(t *testing.T) {
	fake := newFakeNiubiz()
	fake.authorizationBody = `{"dataMap":{"ACTION_DESCRIPTION":"Denied","TRANSACTION_ID":"7777"}}`
	g, _ := newTestGateway(t, fake)

	tx, err := g.ProcessPayment(context.Background(), decimal.NewFromInt(100), "PEN", "tok_abc")
	require.NoError(t, err)

	assert.Equal(t, payment.StatusFailed, tx.Status())
	assert.False(t, tx.Succeeded())
	providerID, _ := tx.ProviderID()
	assert.Equal(t, "7777", providerID)
}

func TestGateway_ProcessPayment_DeclinedWithClientErrorStatus(t *testing.T) {
	fake := newFakeNiubiz()
	fake.authorizationStatus = http.StatusBadRequest
	fake.authorizationBody = `{"errorCode":400,"data":{"ACTION_DESCRIPTION":"Operacion Denegada."}}`
	g, _ := newTestGateway(t, fake)

	tx, err := g.ProcessPayment(context.Background(), decimal.NewFromInt(100), "PEN", "tok_abc")
	require.NoError(t, err)

	assert.Equal(t, payment.StatusFailed, tx.Status())
	_, ok := tx.ProviderID()
	assert.False(t, ok)
}

func TestGateway_ProcessPayment_MissingAuthKey(t *testing.T) {
	fake := newFakeNiubiz()
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.AuthKey = ""
	g := New(cfg, zerolog.Nop(), WithHTTPClient(srv.Client()))

	tx, err := g.ProcessPayment(context.Background(), decimal.NewFromInt(100), "PEN", "tok_abc")
	assert.Nil(t, tx)
	assert.ErrorIs(t, err, domainErrors.ErrMissingConfiguration)

	_, err = g.GetSessionToken(context.Background(), decimal.NewFromInt(100))
	assert.ErrorIs(t, err, domainErrors.ErrMissingConfiguration)

	assert.EqualValues(t, 0, fake.securityHits.Load())
	assert.EqualValues(t, 0, fake.sessionHits.Load())
	assert.EqualValues(t, 0, fake.authorizationHits.Load())
}

func TestGateway_ProcessPayment_NonPositiveAmount(t *testing.T) {
	fake := newFakeNiubiz()
	g, _ := newTestGateway(t, fake)

	_, err := g.ProcessPayment(context.Background(), decimal.Zero, "PEN", "tok_abc")
	assert.ErrorIs(t, err, domainErrors.ErrInvalidAmount)
	assert.EqualValues(t, 0, fake.securityHits.Load())
}

func TestGateway_ProcessPayment_FreshTokenPerCall(t *testing.T) {
	fake := newFakeNiubiz()
	g, _ := newTestGateway(t, fake)

	for i := 0; i < 2; i++ {
		_, err := g.ProcessPayment(context.Background(), decimal.NewFromInt(100), "PEN", "tok_abc")
		require.NoError(t, err)
	}

	assert.EqualValues(t, 2, fake.securityHits.Load())
	assert.EqualValues(t, 2, fake.authorizationHits.Load())
}

func TestGateway_GetSessionToken(t *testing.T) {
	fake := newFakeNiubiz()
	fake.securityBody = "\"" + testToken + "\"\n"
	g, _ := newTestGateway(t, fake)

	ctx := payment.WithRequestMeta(context.Background(), payment.RequestMeta{ClientIP: "10.1.2.3"})
	key, err := g.GetSessionToken(ctx, decimal.NewFromInt(1000))
	require.NoError(t, err)

	assert.Equal(t, "sess-123", key)
	assert.EqualValues(t, 1, fake.securityHits.Load())
	assert.EqualValues(t, 1, fake.sessionHits.Load())
	assert.Equal(t, testToken, fake.sessionAuth.Load())

	var sent map[string]any
	require.NoError(t, json.Unmarshal(fake.sessionBodyIn.Load().([]byte), &sent))
	assert.Equal(t, "web", sent["channel"])
	assert.EqualValues(t, 1000, sent["amount"])

	antifraud := sent["antifraud"].(map[string]any)
	assert.Equal(t, "10.1.2.3", antifraud["clientIp"])
	mdd := antifraud["merchantDefineData"].(map[string]any)
	assert.Equal(t, "test@test.com", mdd["MDD4"])
	assert.EqualValues(t, 1, mdd["MDD77"])
	assert.NotContains(t, mdd, "mdd4")
}

func TestGateway_GetSessionToken_FallsBackToConfiguredClientIP(t *testing.T) {
	fake := newFakeNiubiz()
	g, _ := newTestGateway(t, fake)

	_, err := g.GetSessionToken(context.Background(), decimal.NewFromInt(1000))
	require.NoError(t, err)

	var sent map[string]any
	require.NoError(t, json.Unmarshal(fake.sessionBodyIn.Load().([]byte), &sent))
	assert.Equal(t, "127.0.0.1", sent["antifraud"].(map[string]any)["clientIp"])
}

func TestGateway_GetSessionToken_MissingSessionKey(t *testing.T) {
	fake := newFakeNiubiz()
	fake.sessionBody = `{"expirationTime":1}`
	g, _ := newTestGateway(t, fake)

	_, err := g.GetSessionToken(context.Background(), decimal.NewFromInt(1000))
	assert.ErrorIs(t, err, domainErrors.ErrGatewayProtocolFailure)
}

func TestGateway_Failures(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(f *fakeNiubiz)
		wantErr error
		step    string
		cause   string
	}{
		{
			name:    "security rejects credentials",
			mutate:  func(f *fakeNiubiz) { f.securityStatus = http.StatusUnauthorized; f.securityBody = "Unauthorized access" },
			wantErr: domainErrors.ErrGatewayAuthFailure,
			step:    stepSecurity,
			cause:   causeHTTPStatus,
		},
		{
			name:    "security forbidden",
			mutate:  func(f *fakeNiubiz) { f.securityStatus = http.StatusForbidden },
			wantErr: domainErrors.ErrGatewayAuthFailure,
			step:    stepSecurity,
			cause:   causeHTTPStatus,
		},
		{
			name:    "security empty token",
			mutate:  func(f *fakeNiubiz) { f.securityBody = "  " },
			wantErr: domainErrors.ErrGatewayProtocolFailure,
			step:    stepSecurity,
			cause:   causeMalformedBody,
		},
		{
			name:    "security server error",
			mutate:  func(f *fakeNiubiz) { f.securityStatus = http.StatusBadGateway },
			wantErr: domainErrors.ErrGatewayNetworkFailure,
			step:    stepSecurity,
			cause:   causeHTTPStatus,
		},
		{
			name:    "authorization malformed body",
			mutate:  func(f *fakeNiubiz) { f.authorizationBody = "<html>oops</html>" },
			wantErr: domainErrors.ErrGatewayProtocolFailure,
			step:    stepAuthorization,
			cause:   causeMalformedBody,
		},
		{
			name: "authorization client error without action",
			mutate: func(f *fakeNiubiz) {
				f.authorizationStatus = http.StatusBadRequest
				f.authorizationBody = `{"errorMessage":"bad request"}`
			},
			wantErr: domainErrors.ErrGatewayProtocolFailure,
			step:    stepAuthorization,
			cause:   causeHTTPStatus,
		},
		{
			name:    "authorization server error",
			mutate:  func(f *fakeNiubiz) { f.authorizationStatus = http.StatusInternalServerError },
			wantErr: domainErrors.ErrGatewayNetworkFailure,
			step:    stepAuthorization,
			cause:   causeHTTPStatus,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeNiubiz()
			tt.mutate(fake)
			metrics := observability.NewMetrics("test", prometheus.NewRegistry())
			g, _ := newTestGateway(t, fake, WithMetrics(metrics))

			tx, err := g.ProcessPayment(context.Background(), decimal.NewFromInt(100), "PEN", "tok_abc")
			assert.Nil(t, tx)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.NotContains(t, err.Error(), "oops")

			assert.Equal(t, 1.0, testutil.ToFloat64(
				metrics.GatewayRequestsTotal.WithLabelValues(ProviderName, tt.step, tt.cause)))
		})
	}
}

func TestGateway_SecurityFailureStopsHandshake(t *testing.T) {
	fake := newFakeNiubiz()
	fake.securityStatus = http.StatusUnauthorized
	g, _ := newTestGateway(t, fake)

	_, err := g.GetSessionToken(context.Background(), decimal.NewFromInt(1000))
	assert.ErrorIs(t, err, domainErrors.ErrGatewayAuthFailure)
	assert.EqualValues(t, 0, fake.sessionHits.Load())
}

func TestGateway_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	baseURL := srv.URL
	srv.Close()

	g := New(testConfig(baseURL), zerolog.Nop())

	_, err := g.ProcessPayment(context.Background(), decimal.NewFromInt(100), "PEN", "tok_abc")
	assert.ErrorIs(t, err, domainErrors.ErrGatewayNetworkFailure)

	_, err = g.GetSessionToken(context.Background(), decimal.NewFromInt(100))
	assert.ErrorIs(t, err, domainErrors.ErrGatewayNetworkFailure)
}

func TestParseAuthorization(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantAction string
		wantID     string
		wantErr    bool
	}{
		{"top level", `{"ACTION_DESCRIPTION":"Authorized","TRANSACTION_ID":"1"}`, "Authorized", "1", false},
		{"dataMap", `{"dataMap":{"ACTION_DESCRIPTION":"Authorized","TRANSACTION_ID":"2"}}`, "Authorized", "2", false},
		{"data", `{"data":{"ACTION_DESCRIPTION":"Denied"}}`, "Denied", "", false},
		{"top level wins", `{"ACTION_DESCRIPTION":"Denied","dataMap":{"ACTION_DESCRIPTION":"Authorized"}}`, "Denied", "", false},
		{"numeric id", `{"dataMap":{"ACTION_DESCRIPTION":"Authorized","TRANSACTION_ID":993112345678}}`, "Authorized", "993112345678", false},
		{"no action", `{"dataMap":{}}`, "", "", true},
		{"not json", `Authorized`, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAuthorization([]byte(tt.body))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAction, got.action)
			assert.Equal(t, tt.wantID, got.transactionID)
		})
	}
}
