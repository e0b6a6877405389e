package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"brandkit/internal/gateway/config"
	"brandkit/internal/gateway/handler"
	"brandkit/internal/gateway/server"
	"brandkit/internal/llm"
	"brandkit/internal/pipeline"
)

type App struct {
	server *server.Server
	text   llm.Client
	vision llm.VisionClient
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	store, err := initStore(cfg)
	if err != nil {
		return nil, err
	}
	media, err := initMediaStore(cfg)
	if err != nil {
		return nil, err
	}

	text, vision, err := initProviders(context.Background(), cfg.Provider)
	if err != nil {
		return nil, err
	}

	ctrl := pipeline.NewController(store, media, text, vision, log.Default())
	kb := handler.NewKBHandler(ctrl, store)

	mux := server.NewMux(kb)
	srv := server.New(cfg.Port, mux)

	return &App{server: srv, text: text, vision: vision}, nil
}

// initProviders builds the decorated model gateways. Retry sits outside the
// per-attempt timeout so an expired attempt is retried like any other
// transient failure; the rate limiter sits outermost so retries also pay
// for tokens.
func initProviders(ctx context.Context, cfg config.ProviderConfig) (llm.Client, llm.VisionClient, error) {
	var text llm.Client
	switch {
	case cfg.PerplexityKey != "":
		c, err := llm.NewPerplexityClient(cfg.PerplexityKey, cfg.PplxModel)
		if err != nil {
			return nil, nil, fmt.Errorf("init perplexity client: %w", err)
		}
		text = c
	case cfg.GeminiKey != "":
		c, err := llm.NewGeminiClient(ctx, cfg.GeminiKey, cfg.GeminiModel)
		if err != nil {
			return nil, nil, fmt.Errorf("init gemini client: %w", err)
		}
		text = c
	default:
		log.Printf("providers: no API key configured, using fake text client")
		text = llm.NewFakeClient()
	}
	text = llm.Wrap(text,
		llm.RateLimit(cfg.RPS, 1),
		llm.WithLogging(nil),
		llm.WithHooks(),
		llm.Retry(4, time.Second),
		llm.WithTimeout(90*time.Second),
	)

	var vision llm.VisionClient
	if cfg.GeminiKey != "" {
		v, err := llm.NewGeminiVision(ctx, cfg.GeminiKey, cfg.VisionModel, cfg.ImageModel)
		if err != nil {
			return nil, nil, fmt.Errorf("init gemini vision: %w", err)
		}
		vision = v
	} else {
		log.Printf("providers: no API key configured, using fake vision client")
		vision = llm.NewFakeVision()
	}
	vision = llm.WrapVision(vision,
		llm.RetryVision(4, time.Second),
		llm.VisionTimeout(2*time.Minute),
	)

	return text, vision, nil
}

func (a *App) Start() error {
	return a.server.Start()
}

func (a *App) Shutdown(ctx context.Context) error {
	if a.text != nil {
		_ = a.text.Close()
	}
	if a.vision != nil {
		_ = a.vision.Close()
	}
	return a.server.Shutdown(ctx)
}
