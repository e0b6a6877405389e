package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// PerplexityClient calls the Perplexity Chat Completions API
// (OpenAI-compatible). Its responses carry a citations array, which maps
// directly onto Response.Citations.
// See: https://docs.perplexity.ai/api-reference/chat-completions
type PerplexityClient struct {
	http    *http.Client
	apiKey  string
	model   string
	baseURL string
}

// NewPerplexityClient creates a Perplexity client. If apiKey is empty, it
// falls back to the PERPLEXITY_API_KEY env var.
func NewPerplexityClient(apiKey, model string) (*PerplexityClient, error) {
	if apiKey == "" {
		apiKey = os.Getenv("PERPLEXITY_API_KEY")
	}
	if model == "" {
		model = "sonar-pro"
	}
	return &PerplexityClient{
		// Per-request deadlines come from the WithTimeout middleware; the
		// transport itself carries no timeout.
		http:    &http.Client{},
		apiKey:  apiKey,
		model:   model,
		baseURL: "https://api.perplexity.ai/chat/completions",
	}, nil
}

func (p *PerplexityClient) Name() string { return "Perplexity:" + p.model }
func (p *PerplexityClient) Close() error { return nil }

type pplxChatReq struct {
	Model       string        `json:"model"`
	Messages    []pplxMessage `json:"messages"`
	Temperature float32       `json:"temperature,omitempty"`
	MaxTokens   int32         `json:"max_tokens,omitempty"`
}
type pplxMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
type pplxChatResp struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Citations []string `json:"citations"`
}

// Generate assembles a system + user message pair and returns the answer
// text with the provider's citation list.
func (p *PerplexityClient) Generate(ctx context.Context, req Request) (Response, error) {
	msgs := make([]pplxMessage, 0, 2)
	if req.System != "" {
		msgs = append(msgs, pplxMessage{Role: "system", Content: req.System})
	}
	msgs = append(msgs, pplxMessage{Role: "user", Content: req.Prompt})

	body := pplxChatReq{
		Model:       p.model,
		Messages:    msgs,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	b, _ := json.Marshal(body)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(b))
	if err != nil {
		return Response{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.http.Do(httpReq)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		const max = 2048
		if len(raw) > max {
			raw = raw[:max]
		}
		err := fmt.Errorf("perplexity: unexpected status %s: %s", resp.Status, string(raw))
		// Oversized prompts will not shrink on retry.
		if resp.StatusCode == 400 && strings.Contains(string(raw), "maximum context length") {
			return Response{}, NewPermanentError(err)
		}
		return Response{}, err
	}

	var out pplxChatResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Response{}, err
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return Response{}, ErrEmptyResponse
	}
	return Response{
		Text:      out.Choices[0].Message.Content,
		Citations: out.Citations,
	}, nil
}
