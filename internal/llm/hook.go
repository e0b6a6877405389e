package llm

import "context"

// PromptHook observes generation calls. Hooks receive the wizard step
// ("phase") stored in the context by the pipeline.
type PromptHook interface {
	Before(ctx context.Context, phase string, req Request)
	After(ctx context.Context, phase string, resp Response, err error)
}

type ctxKeyHook struct{}
type ctxKeyPhase struct{}

// WithHookContext attaches a PromptHook to the context used by Generate.
func WithHookContext(ctx context.Context, hook PromptHook) context.Context {
	return context.WithValue(ctx, ctxKeyHook{}, hook)
}

// WithPhase tags the context with the pipeline step issuing the call.
func WithPhase(ctx context.Context, phase string) context.Context {
	return context.WithValue(ctx, ctxKeyPhase{}, phase)
}

// HookFrom returns the hook stored in the context.
func HookFrom(ctx context.Context) PromptHook {
	if v := ctx.Value(ctxKeyHook{}); v != nil {
		if h, ok := v.(PromptHook); ok {
			return h
		}
	}
	return nil
}

// PhaseFrom returns the phase string stored in the context.
func PhaseFrom(ctx context.Context) string {
	if v := ctx.Value(ctxKeyPhase{}); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return "unknown"
}
