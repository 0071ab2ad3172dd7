package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const instrumentationName = "bookcircle/importer"

// ResilienceConfig bounds the calls made to one source.
type ResilienceConfig struct {
	Timeout         time.Duration
	MaxTries        uint
	InitialInterval time.Duration
	RatePerSecond   float64
	Burst           int
	// BreakerFailures consecutive failures open the breaker for
	// BreakerCooldown.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

func DefaultResilienceConfig() ResilienceConfig {
	return ResilienceConfig{
		Timeout:         10 * time.Second,
		MaxTries:        3,
		InitialInterval: 200 * time.Millisecond,
		RatePerSecond:   1,
		Burst:           3,
		BreakerFailures: 5,
		BreakerCooldown: 30 * time.Second,
	}
}

// ResilientSource wraps a Source with a per-call timeout, retries with
// exponential backoff, a circuit breaker and a rate limiter. Every failure
// other than ErrNoData comes out as ErrSourceUnavailable.
type ResilientSource struct {
	source  Source
	cfg     ResilienceConfig
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
	tracer  trace.Tracer
	calls   metric.Int64Counter
}

func NewResilientSource(source Source, cfg ResilienceConfig, logger *slog.Logger) *ResilientSource {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxTries == 0 {
		cfg.MaxTries = 1
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    source.Name(),
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNoData)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Source circuit breaker changed state", "source", name, "from", from.String(), "to", to.String())
		},
	})

	calls, err := otel.Meter(instrumentationName).Int64Counter(
		"bookcircle.source.calls",
		metric.WithDescription("Bibliographic source lookups by source and outcome"),
	)
	if err != nil {
		calls, _ = noop.NewMeterProvider().Meter(instrumentationName).Int64Counter("bookcircle.source.calls")
	}

	return &ResilientSource{
		source:  source,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, burst),
		breaker: breaker,
		logger:  logger,
		tracer:  otel.Tracer(instrumentationName),
		calls:   calls,
	}
}

func (s *ResilientSource) Name() string {
	return s.source.Name()
}

func (s *ResilientSource) Lookup(ctx context.Context, isbn string) (*Record, error) {
	ctx, span := s.tracer.Start(ctx, "importer.source_lookup", trace.WithAttributes(
		attribute.String("source", s.Name()),
		attribute.String("isbn", isbn),
	))
	defer span.End()

	out, err := s.breaker.Execute(func() (interface{}, error) {
		return s.lookupWithRetry(ctx, isbn)
	})

	switch {
	case err == nil:
		s.count(ctx, "ok")
		return out.(*Record), nil
	case errors.Is(err, ErrNoData):
		s.count(ctx, "no_data")
		return nil, ErrNoData
	default:
		s.count(ctx, "unavailable")
		span.RecordError(err)
		span.SetStatus(codes.Error, "source unavailable")
		s.logger.Warn("Bibliographic source failed", "source", s.Name(), "isbn", isbn, "err", err)
		return nil, fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, s.Name(), err)
	}
}

func (s *ResilientSource) lookupWithRetry(ctx context.Context, isbn string) (*Record, error) {
	b := backoff.NewExponentialBackOff()
	if s.cfg.InitialInterval > 0 {
		b.InitialInterval = s.cfg.InitialInterval
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(s.cfg.MaxTries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			s.logger.Debug("Retrying source lookup", "source", s.Name(), "isbn", isbn, "wait", wait, "err", err)
		}),
	}
	if s.cfg.Timeout > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(time.Duration(s.cfg.MaxTries)*s.cfg.Timeout))
	}

	return backoff.Retry(ctx, func() (*Record, error) {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}

		callCtx := ctx
		if s.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
			defer cancel()
		}

		rec, err := s.source.Lookup(callCtx, isbn)
		if err != nil {
			if !Retryable(err) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		if rec == nil {
			return nil, backoff.Permanent(ErrNoData)
		}
		return rec, nil
	}, opts...)
}

func (s *ResilientSource) count(ctx context.Context, outcome string) {
	s.calls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", s.Name()),
		attribute.String("outcome", outcome),
	))
}

// Retryable reports whether a failed lookup is worth repeating: transport
// errors, timeouts, 5xx and 429 are; missing data, bad payloads and other
// statuses are not.
func Retryable(err error) bool {
	if errors.Is(err, ErrNoData) || errors.Is(err, ErrBadPayload) || errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= http.StatusInternalServerError || statusErr.Code == http.StatusTooManyRequests
	}
	return true
}
