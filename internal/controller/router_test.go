package controller_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cassiomorais/checkout/internal/controller"
	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/infrastructure/config"
	"github.com/cassiomorais/checkout/internal/infrastructure/observability"
	"github.com/cassiomorais/checkout/internal/infrastructure/providers"
	"github.com/cassiomorais/checkout/internal/middleware"
	"github.com/cassiomorais/checkout/internal/service"
	"github.com/cassiomorais/checkout/internal/testutil"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type testServer struct {
	handler http.Handler
	gateway *testutil.MockGateway
	factory *providers.Factory
}

func newTestServer(t *testing.T, jwtSecret string) *testServer {
	t.Helper()

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics("test", reg)
	gw := testutil.NewMockGateway("niubiz")
	factory := providers.NewFactory(zerolog.Nop(), metrics,
		providers.BreakerSettings{ConsecutiveFailures: 2, OpenTimeout: time.Minute}, gw)

	guarded, err := factory.Get("niubiz")
	require.NoError(t, err)

	svc := service.NewPaymentService(guarded, decimal.NewFromInt(1000), service.Options{
		Timeout: 5 * time.Second,
		Metrics: metrics,
		Logger:  zerolog.Nop(),
	})

	router := controller.NewRouter(controller.RouterDeps{
		PaymentService: svc,
		Breakers:       factory,
		Provider:       "niubiz",
		Metrics:        metrics,
		Gatherer:       reg,
		CORSConfig:     config.CORSConfig{AllowedOrigins: []string{"*"}},
		JWTSecret:      jwtSecret,
		ServiceName:    "checkout-test",
	})
	return &testServer{handler: router, gateway: gw, factory: factory}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func TestRouter_Health(t *testing.T) {
	srv := newTestServer(t, "")

	for _, path := range []string{"/health", "/health/live", "/health/ready"} {
		t.Run(path, func(t *testing.T) {
			w := srv.do(httptest.NewRequest(http.MethodGet, path, nil))
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
	assert.Equal(t, 0, srv.gateway.SessionCalls)
}

func TestRouter_SessionToken(t *testing.T) {
	srv := newTestServer(t, "")

	w := srv.do(httptest.NewRequest(http.MethodGet, "/payments/session-token", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"session token generated","token":"session-key"}`, w.Body.String())
	assert.True(t, srv.gateway.LastAmount.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestRouter_CreatePayment(t *testing.T) {
	srv := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(`{"amount":25.9,"currency":"PEN","cardToken":"tok"}`))
	req.Header.Set("Content-Type", "application/json")
	w := srv.do(req)

	require.Equal(t, http.StatusCreated, w.Code)

	var resp controller.PaymentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "COMPLETED", resp.Data.Status)
	assert.Equal(t, 25.9, resp.Data.Amount)
	assert.True(t, srv.gateway.LastAmount.Equal(decimal.RequireFromString("25.9")))
}

func TestRouter_CreatePayment_ZeroAmountNeverReachesGateway(t *testing.T) {
	srv := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(`{"amount":0,"currency":"PEN","cardToken":"tok"}`))
	w := srv.do(req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_amount")
	_, payments := srv.gateway.Calls()
	assert.Zero(t, payments)
}

func TestRouter_RequiresAuthWhenSecretSet(t *testing.T) {
	srv := newTestServer(t, testSecret)

	w := srv.do(httptest.NewRequest(http.MethodGet, "/payments/session-token", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := middleware.IssueToken(testSecret, "merchant-1", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/payments/session-token", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = srv.do(req)
	assert.Equal(t, http.StatusOK, w.Code)

	// health stays public
	w = srv.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_ReadinessFollowsBreaker(t *testing.T) {
	srv := newTestServer(t, "")
	srv.gateway.GetSessionTokenFunc = func(context.Context, decimal.Decimal) (string, error) {
		return "", domainErrors.ErrGatewayNetworkFailure
	}

	for range 2 {
		w := srv.do(httptest.NewRequest(http.MethodGet, "/payments/session-token", nil))
		assert.Equal(t, http.StatusBadGateway, w.Code)
	}

	w := srv.do(httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "circuit open")

	// open circuit rejects without calling the gateway
	w = srv.do(httptest.NewRequest(http.MethodGet, "/payments/session-token", nil))
	assert.Equal(t, http.StatusBadGateway, w.Code)
	sessions, _ := srv.gateway.Calls()
	assert.Equal(t, 2, sessions)
}

func TestRouter_Metrics(t *testing.T) {
	srv := newTestServer(t, "")
	srv.do(httptest.NewRequest(http.MethodGet, "/payments/session-token", nil))

	w := srv.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "test_session_tokens_total")
}

func TestRouter_NotFound(t *testing.T) {
	srv := newTestServer(t, "")

	w := srv.do(httptest.NewRequest(http.MethodGet, "/accounts", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"route not found","code":"not_found"}`, w.Body.String())
}
