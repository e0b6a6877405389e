package llm

import (
	"context"
	"time"
)

// VisionMiddleware decorates a VisionClient the same way Middleware
// decorates a Client.
type VisionMiddleware func(VisionClient) VisionClient

// WrapVision applies middlewares in left-to-right order.
func WrapVision(inner VisionClient, mws ...VisionMiddleware) VisionClient {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}

// RetryVision retries AnalyzeImages and GenerateImages with the same bounded
// exponential backoff as Retry. Permanent errors short-circuit.
func RetryVision(maxAttempts int, baseDelay time.Duration) VisionMiddleware {
	return RetryVisionWithSleep(maxAttempts, baseDelay, time.Sleep)
}

// RetryVisionWithSleep is RetryVision with an injected sleep for tests.
func RetryVisionWithSleep(maxAttempts int, baseDelay time.Duration, sleep func(time.Duration)) VisionMiddleware {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	if sleep == nil {
		sleep = time.Sleep
	}
	return func(next VisionClient) VisionClient {
		return &retryingVision{next: next, max: maxAttempts, base: baseDelay, sleep: sleep}
	}
}

type retryingVision struct {
	next  VisionClient
	max   int
	base  time.Duration
	sleep func(time.Duration)
}

func (r *retryingVision) Name() string { return r.next.Name() }
func (r *retryingVision) Close() error { return r.next.Close() }

func (r *retryingVision) AnalyzeImages(ctx context.Context, req VisionRequest) (Response, error) {
	var last error
	for i := 0; i < r.max; i++ {
		if i > 0 {
			r.sleep(r.base * time.Duration(1<<(i-1)))
		}
		resp, err := r.next.AnalyzeImages(ctx, req)
		if err == nil {
			return resp, nil
		}
		if IsPermanent(err) {
			return Response{}, err
		}
		last = err
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		default:
		}
	}
	return Response{}, last
}

func (r *retryingVision) GenerateImages(ctx context.Context, req ImageRequest) ([]GeneratedImage, error) {
	var last error
	for i := 0; i < r.max; i++ {
		if i > 0 {
			r.sleep(r.base * time.Duration(1<<(i-1)))
		}
		imgs, err := r.next.GenerateImages(ctx, req)
		if err == nil {
			return imgs, nil
		}
		if IsPermanent(err) {
			return nil, err
		}
		last = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
	}
	return nil, last
}

// VisionTimeout bounds every vision call with its own deadline.
func VisionTimeout(d time.Duration) VisionMiddleware {
	return func(next VisionClient) VisionClient {
		return &timedVision{next: next, d: d}
	}
}

type timedVision struct {
	next VisionClient
	d    time.Duration
}

func (t *timedVision) Name() string { return t.next.Name() }
func (t *timedVision) Close() error { return t.next.Close() }

func (t *timedVision) AnalyzeImages(ctx context.Context, req VisionRequest) (Response, error) {
	if t.d <= 0 {
		return t.next.AnalyzeImages(ctx, req)
	}
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.AnalyzeImages(ctx, req)
}

func (t *timedVision) GenerateImages(ctx context.Context, req ImageRequest) ([]GeneratedImage, error) {
	if t.d <= 0 {
		return t.next.GenerateImages(ctx, req)
	}
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.GenerateImages(ctx, req)
}
