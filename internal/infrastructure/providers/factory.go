package providers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"

	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/domain/payment"
	"github.com/cassiomorais/checkout/internal/infrastructure/observability"
)

// BreakerSettings tunes the circuit breaker placed in front of every gateway.
type BreakerSettings struct {
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
}

// DefaultBreakerSettings is used when the caller passes a zero value.
var DefaultBreakerSettings = BreakerSettings{ConsecutiveFailures: 10, OpenTimeout: 30 * time.Second}

// Factory keeps the registered gateways and a circuit breaker per gateway.
type Factory struct {
	mu       sync.RWMutex
	gateways map[string]payment.Gateway
	breakers map[string]*gobreaker.CircuitBreaker[any]
	settings BreakerSettings
	metrics  *observability.Metrics
	logger   zerolog.Logger
}

func NewFactory(logger zerolog.Logger, metrics *observability.Metrics, settings BreakerSettings, gateways ...payment.Gateway) *Factory {
	if settings.ConsecutiveFailures == 0 {
		settings.ConsecutiveFailures = DefaultBreakerSettings.ConsecutiveFailures
	}
	if settings.OpenTimeout <= 0 {
		settings.OpenTimeout = DefaultBreakerSettings.OpenTimeout
	}

	f := &Factory{
		gateways: make(map[string]payment.Gateway),
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
		settings: settings,
		metrics:  metrics,
		logger:   observability.Component(logger, "providers"),
	}
	for _, g := range gateways {
		f.Register(g)
	}
	return f
}

// Register adds or replaces a gateway under its own name.
func (f *Factory) Register(g payment.Gateway) {
	name := g.Name()
	threshold := f.settings.ConsecutiveFailures

	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     f.settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: isBreakerSuccess,
		IsExcluded:   isCallerCancellation,
		OnStateChange: func(name string, from, to gobreaker.State) {
			f.metrics.SetBreakerState(name, float64(to))
			f.logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})

	f.mu.Lock()
	f.gateways[name] = g
	f.breakers[name] = breaker
	f.mu.Unlock()

	f.metrics.SetBreakerState(name, float64(gobreaker.StateClosed))
}

// Get returns the named gateway guarded by its circuit breaker.
func (f *Factory) Get(name string) (payment.Gateway, error) {
	f.mu.RLock()
	g, ok := f.gateways[name]
	breaker := f.breakers[name]
	f.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown provider %q: %w", name, domainErrors.ErrProviderNotFound)
	}
	return &guardedGateway{inner: g, breaker: breaker, metrics: f.metrics}, nil
}

// BreakerState reports the breaker state of the named gateway.
func (f *Factory) BreakerState(name string) (gobreaker.State, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	b, ok := f.breakers[name]
	if !ok {
		return gobreaker.StateClosed, false
	}
	return b.State(), true
}

// Names lists the registered gateways in sorted order.
func (f *Factory) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	names := make([]string, 0, len(f.gateways))
	for name := range f.gateways {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// isBreakerSuccess decides which outcomes count against the breaker. Only failures that
// say something about the processor's health do.
func isBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	return !domainErrors.IsGatewayFailure(err)
}

// callerCanceled marks a failure caused by the caller going away. The breaker ignores it.
type callerCanceled struct{ err error }

func (c *callerCanceled) Error() string { return c.err.Error() }
func (c *callerCanceled) Unwrap() error { return c.err }

func isCallerCancellation(err error) bool {
	var cc *callerCanceled
	return errors.As(err, &cc)
}

type guardedGateway struct {
	inner   payment.Gateway
	breaker *gobreaker.CircuitBreaker[any]
	metrics *observability.Metrics
}

func (g *guardedGateway) Name() string { return g.inner.Name() }

func (g *guardedGateway) GetSessionToken(ctx context.Context, amount decimal.Decimal) (string, error) {
	out, err := g.execute(ctx, func() (any, error) {
		return g.inner.GetSessionToken(ctx, amount)
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

func (g *guardedGateway) ProcessPayment(ctx context.Context, amount decimal.Decimal, currency, cardToken string) (*payment.Transaction, error) {
	out, err := g.execute(ctx, func() (any, error) {
		return g.inner.ProcessPayment(ctx, amount, currency, cardToken)
	})
	if err != nil {
		return nil, err
	}
	return out.(*payment.Transaction), nil
}

func (g *guardedGateway) execute(ctx context.Context, fn func() (any, error)) (any, error) {
	name := g.inner.Name()

	out, err := g.breaker.Execute(func() (any, error) {
		out, err := fn()
		// Only an explicit cancel is excluded; an expired deadline still counts.
		if err != nil && errors.Is(ctx.Err(), context.Canceled) {
			return out, &callerCanceled{err: err}
		}
		return out, err
	})

	var cc *callerCanceled
	if errors.As(err, &cc) {
		g.metrics.ObserveBreaker(name, "canceled")
		return out, cc.err
	}

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		g.metrics.ObserveBreaker(name, "rejected")
		return nil, domainErrors.NewDomainError(
			domainErrors.Code(domainErrors.ErrGatewayNetworkFailure),
			name+" circuit breaker is open",
			domainErrors.ErrGatewayNetworkFailure,
		)
	case err != nil && domainErrors.IsGatewayFailure(err):
		g.metrics.ObserveBreaker(name, "failure")
	default:
		g.metrics.ObserveBreaker(name, "success")
	}
	return out, err
}
