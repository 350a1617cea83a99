package connectors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xela07ax/spaceai-audit-explorer/internal/audit"
)

// Fetcher — все, что умеет отдать коллекцию событий.
type Fetcher interface {
	FetchEvents(ctx context.Context) ([]audit.Event, error)
}

type ReliabilityOptions struct {
	CBMaxRequests uint32
	CBInterval    time.Duration
	CBTimeout     time.Duration
	RateLimit     float64 // запросов в секунду
	RateBurst     int
	RetryAttempts uint
	CallTimeout   time.Duration

	// Необязательный gauge состояния предохранителя
	StateGauge prometheus.Gauge
}

func (o ReliabilityOptions) withDefaults() ReliabilityOptions {
	if o.CBMaxRequests == 0 {
		o.CBMaxRequests = 1
	}
	if o.CBTimeout <= 0 {
		o.CBTimeout = 30 * time.Second
	}
	if o.RateLimit <= 0 {
		o.RateLimit = 5
	}
	if o.RateBurst <= 0 {
		o.RateBurst = 1
	}
	if o.RetryAttempts == 0 {
		o.RetryAttempts = 3
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 10 * time.Second
	}
	return o
}

// ReliabilityWrapper — лимитер, предохранитель и повторы вокруг источника логов.
type ReliabilityWrapper struct {
	next    Fetcher
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	opts    ReliabilityOptions
}

func NewReliabilityWrapper(next Fetcher, opts ReliabilityOptions, logger *zap.Logger) *ReliabilityWrapper {
	opts = opts.withDefaults()
	logger = logger.With(zap.String("mod", "reliability"))

	// Настройка предохранителя
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "logs-api",
		MaxRequests: opts.CBMaxRequests,
		Interval:    opts.CBInterval,
		Timeout:     opts.CBTimeout, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Каждый вызов уже включает повторы, поэтому хватает трех провалов подряд
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
			if opts.StateGauge != nil {
				opts.StateGauge.Set(float64(to))
			}
		},
	})

	return &ReliabilityWrapper{
		next:    next,
		cb:      cb,
		limiter: rate.NewLimiter(rate.Limit(opts.RateLimit), opts.RateBurst),
		opts:    opts,
	}
}

// State — текущее состояние предохранителя.
func (w *ReliabilityWrapper) State() gobreaker.State {
	return w.cb.State()
}

func (w *ReliabilityWrapper) FetchEvents(ctx context.Context) ([]audit.Event, error) {
	// 1. Rate Limiter
	if err := w.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("connectors: rate limit exceeded: %w", err)
	}

	// 2. Circuit Breaker
	res, err := w.cb.Execute(func() (interface{}, error) {
		var events []audit.Event

		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(w.opts.RetryAttempts),
			retry.LastErrorOnly(true),
			retry.RetryIf(retryable),
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				// Источник сам сказал, когда приходить (Retry-After)
				var tErr *ThrottleError
				if errors.As(err, &tErr) {
					return tErr.RetryAfter
				}
				// Сетевой лаг, 5xx: экспоненциальный бэкофф
				return retry.BackOffDelay(n, err, config)
			}),
		)

		retryErr := r.Do(func() error {
			tCtx, cancel := context.WithTimeout(ctx, w.opts.CallTimeout)
			defer cancel()

			var callErr error
			events, callErr = w.next.FetchEvents(tCtx)
			return callErr
		})
		return events, retryErr
	})
	if err != nil {
		return nil, err
	}
	return res.([]audit.Event), nil
}

// retryable: испорченный ответ и клиентские 4xx повторять бессмысленно, 429 можно.
func retryable(err error) bool {
	if errors.Is(err, ErrMalformedResponse) {
		return false
	}
	var tErr *ThrottleError
	if errors.As(err, &tErr) {
		return true
	}
	var sErr *StatusError
	if errors.As(err, &sErr) {
		return sErr.Temporary()
	}
	return true
}
