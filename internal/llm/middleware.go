package llm

import (
	"context"
	"log"
	"time"
)

// Middleware decorates a Client to inject cross-cutting concerns
// (rate limiting, retries, timeouts, logging, hooks).
type Middleware func(Client) Client

// Wrap applies middlewares in left-to-right order.
// Example: Wrap(inner, A, B) => A(B(inner))
func Wrap(inner Client, mws ...Middleware) Client {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}

// -------- Rate Limiting --------

// RateLimit limits request rate using the token-bucket rpsLimiter.
// If rps <= 0, the limiter is effectively disabled.
func RateLimit(rps float64, burst int) Middleware {
	return func(next Client) Client {
		rl := newRPSLimiter(rps, burst) // nil when disabled
		return &rateLimited{next: next, rl: rl}
	}
}

type rateLimited struct {
	next Client
	rl   *rpsLimiter
}

func (c *rateLimited) Name() string { return c.next.Name() }
func (c *rateLimited) Close() error {
	c.rl.Stop()
	return c.next.Close()
}
func (c *rateLimited) Generate(ctx context.Context, req Request) (Response, error) {
	if err := c.rl.Acquire(ctx); err != nil {
		return Response{}, err
	}
	return c.next.Generate(ctx, req)
}

// -------- Per-attempt timeout --------

// WithTimeout bounds every Generate call with its own deadline. Combined
// with Retry (Retry outside, WithTimeout inside), each attempt gets a fresh
// timeout and an expired attempt is retried like any transient failure.
func WithTimeout(d time.Duration) Middleware {
	return func(next Client) Client {
		return &timed{next: next, d: d}
	}
}

type timed struct {
	next Client
	d    time.Duration
}

func (t *timed) Name() string { return t.next.Name() }
func (t *timed) Close() error { return t.next.Close() }
func (t *timed) Generate(ctx context.Context, req Request) (Response, error) {
	if t.d <= 0 {
		return t.next.Generate(ctx, req)
	}
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.Generate(ctx, req)
}

// -------- Retry with exponential backoff --------

// Retry retries Generate up to maxAttempts total attempts with exponential
// backoff starting at baseDelay (baseDelay, 2x, 4x, ...). Permanent errors
// are not retried. If the parent context is canceled, it stops immediately.
func Retry(maxAttempts int, baseDelay time.Duration) Middleware {
	return RetryWithSleep(maxAttempts, baseDelay, time.Sleep)
}

// RetryWithSleep is Retry with an injected sleep so tests can observe
// backoff without real delays.
func RetryWithSleep(maxAttempts int, baseDelay time.Duration, sleep func(time.Duration)) Middleware {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	if sleep == nil {
		sleep = time.Sleep
	}
	return func(next Client) Client {
		return &retrying{next: next, max: maxAttempts, base: baseDelay, sleep: sleep}
	}
}

type retrying struct {
	next  Client
	max   int
	base  time.Duration
	sleep func(time.Duration)
}

func (r *retrying) Name() string { return r.next.Name() }
func (r *retrying) Close() error { return r.next.Close() }

func (r *retrying) Generate(ctx context.Context, req Request) (Response, error) {
	var last error
	for i := 0; i < r.max; i++ {
		if i > 0 {
			r.sleep(r.base * time.Duration(1<<(i-1)))
		}
		resp, err := r.next.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		if IsPermanent(err) {
			return Response{}, err
		}
		last = err
		// Stop immediately if the parent context is canceled; a per-attempt
		// deadline expiring is an ordinary transient failure.
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		default:
		}
	}
	return Response{}, last
}

// -------- Logging & Hooks --------

// WithLogging logs request size and errors. Provide a custom logger or nil
// to use log.Default().
func WithLogging(logger *log.Logger) Middleware {
	if logger == nil {
		logger = log.Default()
	}
	return func(next Client) Client {
		return &logging{next: next, log: logger}
	}
}

type logging struct {
	next Client
	log  *log.Logger
}

func (l *logging) Name() string { return l.next.Name() }
func (l *logging) Close() error { return l.next.Close() }
func (l *logging) Generate(ctx context.Context, req Request) (Response, error) {
	l.log.Printf("LLM request (%s): %d bytes", PhaseFrom(ctx), len(req.System)+len(req.Prompt))
	resp, err := l.next.Generate(ctx, req)
	if err != nil {
		l.log.Printf("LLM error (%s): %v", PhaseFrom(ctx), err)
	}
	return resp, err
}

// WithHooks calls HookFrom(ctx).Before/After around Generate.
// If no hook is present in the context, it is a no-op.
func WithHooks() Middleware {
	return func(next Client) Client {
		return &hooked{next: next}
	}
}

type hooked struct{ next Client }

func (h *hooked) Name() string { return h.next.Name() }
func (h *hooked) Close() error { return h.next.Close() }
func (h *hooked) Generate(ctx context.Context, req Request) (Response, error) {
	if hook := HookFrom(ctx); hook != nil {
		hook.Before(ctx, PhaseFrom(ctx), req)
	}
	resp, err := h.next.Generate(ctx, req)
	if hook := HookFrom(ctx); hook != nil {
		hook.After(ctx, PhaseFrom(ctx), resp, err)
	}
	return resp, err
}
