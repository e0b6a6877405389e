package llm

import (
	"context"
	"sync"
)

// FakeClient returns scripted responses in order for offline use and tests.
// Each entry is either a Response or an error; when the script runs out the
// last entry repeats.
type FakeClient struct {
	mu       sync.Mutex
	script   []FakeResult
	Requests []Request
}

// FakeResult is one scripted outcome.
type FakeResult struct {
	Resp Response
	Err  error
}

func NewFakeClient(script ...FakeResult) *FakeClient {
	return &FakeClient{script: script}
}

func (f *FakeClient) Name() string { return "FakeLLM" }
func (f *FakeClient) Close() error { return nil }

func (f *FakeClient) Generate(ctx context.Context, req Request) (Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Requests = append(f.Requests, req)
	if len(f.script) == 0 {
		return Response{Text: "fake response body long enough to pass the sanitizer floor"}, nil
	}
	out := f.script[0]
	if len(f.script) > 1 {
		f.script = f.script[1:]
	}
	return out.Resp, out.Err
}

// Attempts reports how many Generate calls were made.
func (f *FakeClient) Attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Requests)
}

// FakeVision is the scripted counterpart for VisionClient.
type FakeVision struct {
	mu       sync.Mutex
	script   []FakeResult
	images   []GeneratedImage
	imageErr error

	AnalyzeCalls  []VisionRequest
	GenerateCalls []ImageRequest
}

func NewFakeVision(script ...FakeResult) *FakeVision {
	return &FakeVision{script: script}
}

// ScriptImages sets the result of GenerateImages.
func (f *FakeVision) ScriptImages(imgs []GeneratedImage, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images = imgs
	f.imageErr = err
}

func (f *FakeVision) Name() string { return "FakeVision" }
func (f *FakeVision) Close() error { return nil }

func (f *FakeVision) AnalyzeImages(ctx context.Context, req VisionRequest) (Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.AnalyzeCalls = append(f.AnalyzeCalls, req)
	if len(f.script) == 0 {
		return Response{}, ErrEmptyResponse
	}
	out := f.script[0]
	if len(f.script) > 1 {
		f.script = f.script[1:]
	}
	return out.Resp, out.Err
}

func (f *FakeVision) GenerateImages(ctx context.Context, req ImageRequest) ([]GeneratedImage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.GenerateCalls = append(f.GenerateCalls, req)
	if f.imageErr != nil {
		return nil, f.imageErr
	}
	return f.images, nil
}
