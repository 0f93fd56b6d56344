package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mqtt-automations/internal/shared"
	"golang.org/x/time/rate"
)

const (
	defaultMaxAttempts = 5
	defaultBaseDelay   = time.Second
	defaultRetryAfter  = time.Second
	backoffFactor      = 1.5
)

// APIError is a non-2xx response from the remote service.
type APIError struct {
	Status     int
	Message    string
	RetryAfter time.Duration // set on 429 responses
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("spotify API error: status %d", e.Status)
	}
	return fmt.Sprintf("spotify API error: status %d: %s", e.Status, e.Message)
}

// Kind tags the outcome of a single remote call.
type Kind int

const (
	KindOK Kind = iota
	KindRateLimited
	KindTransient
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindRateLimited:
		return "rate_limited"
	case KindTransient:
		return "transient"
	case KindFatal:
		return "fatal"
	default:
		return ""
	}
}

// Outcome is the classified result of a remote call.
type Outcome struct {
	Kind       Kind
	RetryAfter time.Duration // only for [KindRateLimited]
	Err        error
}

// Classify maps a call error onto an [Outcome].
//
// 429 is rate limited, 5xx and network failures are transient, everything else
// (other 4xx, cancellation, decoding failures) is fatal.
func Classify(err error) Outcome {
	if err == nil {
		return Outcome{Kind: KindOK}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Outcome{Kind: KindFatal, Err: err}
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Status == http.StatusTooManyRequests:
			wait := apiErr.RetryAfter
			if wait <= 0 {
				wait = defaultRetryAfter
			}
			return Outcome{Kind: KindRateLimited, RetryAfter: wait, Err: err}
		case apiErr.Status >= http.StatusInternalServerError:
			return Outcome{Kind: KindTransient, Err: err}
		default:
			return Outcome{Kind: KindFatal, Err: err}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return Outcome{Kind: KindTransient, Err: err}
	}

	return Outcome{Kind: KindFatal, Err: err}
}

// Policy retries remote calls by [Outcome] kind and paces them with a rate limiter.
type Policy struct {
	MaxAttempts int           // total calls, including the first
	BaseDelay   time.Duration // transient delay is BaseDelay * 1.5^attempt
	Limiter     *rate.Limiter
	Sleep       func(ctx context.Context, d time.Duration) error
	Logger      *log.Logger
}

// NewPolicy builds a [Policy] from config. A non-positive request rate disables pacing.
func NewPolicy(cfg shared.RetryConfig, logger *log.Logger) *Policy {
	p := &Policy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay.Duration,
		Sleep:       sleepWithContext,
		Logger:      logger,
	}
	if cfg.RequestsPerSecond > 0 {
		p.Limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return p
}

// Backoff returns the transient delay before the retry following attempt (1-based).
func (p *Policy) Backoff(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = defaultBaseDelay
	}
	return time.Duration(float64(base) * math.Pow(backoffFactor, float64(attempt)))
}

// Do runs fn until it succeeds, fails fatally or the attempt budget is spent.
func (p *Policy) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepWithContext
	}

	var last Outcome
	for attempt := 1; attempt <= attempts; attempt++ {
		if p.Limiter != nil {
			if err := p.Limiter.Wait(ctx); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
		}

		last = Classify(fn(ctx))
		switch last.Kind {
		case KindOK:
			return nil
		case KindFatal:
			return fmt.Errorf("%s: %w", op, last.Err)
		}

		if attempt == attempts {
			break
		}

		delay := p.Backoff(attempt)
		if last.Kind == KindRateLimited {
			delay = last.RetryAfter
		}

		if p.Logger != nil {
			p.Logger.Warn("retrying remote call",
				"op", op, "attempt", attempt, "max", attempts, "kind", last.Kind, "delay", delay, "error", last.Err)
		}

		if err := sleep(ctx, delay); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	return fmt.Errorf("%s: %w after %d attempts: %w", op, shared.ErrRetriesExhausted, attempts, last.Err)
}

// call is [Policy.Do] for functions that return a value.
func call[T any](ctx context.Context, p *Policy, op string, fn func(context.Context) (T, error)) (T, error) {
	var result T
	err := p.Do(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}

// parseRetryAfter reads the Retry-After header as seconds or an HTTP date.
func parseRetryAfter(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}

	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	if when, err := http.ParseTime(retryAfter); err == nil {
		if until := time.Until(when); until > 0 {
			return until
		}
	}

	return 0
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
