package llm

import (
	"context"
	"errors"
)

// ErrEmptyResponse reports a provider response that carried no usable
// content at all (no candidates, empty text). It is retryable: the same
// request often succeeds on a later attempt.
var ErrEmptyResponse = errors.New("llm: empty response from provider")

// Request is one text-generation call. Temperature and MaxTokens are
// step-level configuration chosen by the caller, not read from env ad hoc.
type Request struct {
	System      string
	Prompt      string
	Locale      string
	Temperature float32
	MaxTokens   int32
}

// Response is the raw provider output before sanitization and parsing.
// Citations is the provider-declared source list when the provider exposes
// one; it may be empty.
type Response struct {
	Text      string
	Citations []string
}

// Client is a text-generation provider.
// Cross-cutting concerns (rate limiting, retries, timeouts, logging, hooks)
// are applied via Middleware, not inside implementations.
type Client interface {
	Name() string
	Generate(ctx context.Context, req Request) (Response, error)
	Close() error
}

// VisionRequest asks for an analysis pass over an ordered set of
// publicly accessible image URLs.
type VisionRequest struct {
	ImageURLs    []string
	Locale       string
	BrandContext string
}

// ImageRequest asks for 1-4 generated test images.
type ImageRequest struct {
	Prompt   string
	Negative string
	Count    int
}

// GeneratedImage is one produced image as raw bytes.
type GeneratedImage struct {
	Bytes []byte
	MIME  string
}

// VisionClient is a vision provider: analysis over image sets and
// test-image generation.
type VisionClient interface {
	Name() string
	AnalyzeImages(ctx context.Context, req VisionRequest) (Response, error)
	GenerateImages(ctx context.Context, req ImageRequest) ([]GeneratedImage, error)
	Close() error
}

// PermanentError indicates an error that will not resolve with retries.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err carries a PermanentError anywhere in its
// chain.
func IsPermanent(err error) bool {
	var pErr *PermanentError
	return errors.As(err, &pErr)
}
