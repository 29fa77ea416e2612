package controller

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cassiomorais/checkout/internal/infrastructure/config"
	"github.com/cassiomorais/checkout/internal/infrastructure/observability"
	customMW "github.com/cassiomorais/checkout/internal/middleware"
)

type RouterDeps struct {
	PaymentService PaymentService
	Breakers       BreakerStates
	Provider       string
	Metrics        *observability.Metrics
	// Gatherer serves /metrics; nil uses the default registry.
	Gatherer           prometheus.Gatherer
	CORSConfig         config.CORSConfig
	JWTSecret          string
	RateLimitPerMinute int
	EnableTracing      bool
	ServiceName        string
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()
	r.NotFound(notFound)

	r.Use(chimw.RequestID)
	if deps.EnableTracing {
		r.Use(customMW.Tracing(deps.ServiceName))
	}
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(customMW.SecurityHeaders())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSConfig.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: deps.CORSConfig.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))

	healthH := NewHealthController(deps.Breakers, deps.Provider)
	paymentH := NewPaymentController(deps.PaymentService)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/payments", func(r chi.Router) {
		r.Use(customMW.RateLimit(deps.RateLimitPerMinute))
		r.Use(customMW.RequireAuth(deps.JWTSecret))
		r.Use(customMW.RequestMeta())

		r.Get("/session-token", paymentH.SessionToken)
		r.Post("/", paymentH.CreatePayment)
	})

	return r
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "route not found", Code: "not_found"})
}
