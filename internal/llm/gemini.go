package llm

import (
	"context"
	"fmt"
	"mime"
	"path"
	"strings"

	genai "google.golang.org/genai"
)

// GeminiClient is a thin wrapper around the official genai client.
// It only focuses on the API call itself. Cross-cutting concerns
// (rate limiting, retries, timeouts, logging, hooks) are applied via
// Middleware.
type GeminiClient struct {
	cli   *genai.Client
	model string
}

func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	// NOTE: apiKey is currently unused here; the genai client reads it from
	// env. Keep the parameter for a consistent factory signature.
	_ = apiKey

	cli, err := genai.NewClient(ctx, &genai.ClientConfig{Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	return &GeminiClient{cli: cli, model: model}, nil
}

func (g *GeminiClient) Name() string { return "Gemini:" + g.model }
func (g *GeminiClient) Close() error { return nil }

// Generate sends system + user text and returns plain text plus any
// grounding citations the model attached.
func (g *GeminiClient) Generate(ctx context.Context, req Request) (Response, error) {
	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(req.Temperature)
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = req.MaxTokens
	}

	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: req.Prompt}}}},
		cfg,
	)
	if err != nil {
		return Response{}, err
	}
	return geminiResponse(resp)
}

func geminiResponse(resp *genai.GenerateContentResponse) (Response, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil ||
		len(resp.Candidates[0].Content.Parts) == 0 {
		return Response{}, ErrEmptyResponse
	}
	cand := resp.Candidates[0]

	var b strings.Builder
	for _, p := range cand.Content.Parts {
		if p != nil && p.Text != "" {
			b.WriteString(p.Text)
		}
	}
	text := b.String()
	if strings.TrimSpace(text) == "" {
		return Response{}, ErrEmptyResponse
	}

	var cites []string
	if gm := cand.GroundingMetadata; gm != nil {
		for _, ch := range gm.GroundingChunks {
			if ch != nil && ch.Web != nil && ch.Web.URI != "" {
				cites = append(cites, ch.Web.URI)
			}
		}
	}
	return Response{Text: text, Citations: cites}, nil
}

// GeminiVision uses the same genai backend for image-set analysis and
// test-image generation (Imagen).
type GeminiVision struct {
	cli        *genai.Client
	model      string
	imageModel string
}

func NewGeminiVision(ctx context.Context, apiKey, model, imageModel string) (*GeminiVision, error) {
	_ = apiKey

	cli, err := genai.NewClient(ctx, &genai.ClientConfig{Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	if imageModel == "" {
		imageModel = "imagen-3.0-generate-002"
	}
	return &GeminiVision{cli: cli, model: model, imageModel: imageModel}, nil
}

func (g *GeminiVision) Name() string { return "GeminiVision:" + g.model }
func (g *GeminiVision) Close() error { return nil }

// AnalyzeImages sends the ordered image URLs plus the analysis instruction
// as one multimodal request.
func (g *GeminiVision) AnalyzeImages(ctx context.Context, req VisionRequest) (Response, error) {
	if len(req.ImageURLs) == 0 {
		return Response{}, NewPermanentError(fmt.Errorf("vision: no image urls"))
	}

	parts := make([]*genai.Part, 0, len(req.ImageURLs)+1)
	for _, u := range req.ImageURLs {
		parts = append(parts, &genai.Part{
			FileData: &genai.FileData{FileURI: u, MIMEType: mimeFromURL(u)},
		})
	}
	parts = append(parts, &genai.Part{Text: visionInstruction(req.Locale, req.BrandContext)})

	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Parts: parts}},
		&genai.GenerateContentConfig{},
	)
	if err != nil {
		return Response{}, err
	}
	return geminiResponse(resp)
}

// GenerateImages produces 1-4 test images for the given base prompt.
func (g *GeminiVision) GenerateImages(ctx context.Context, req ImageRequest) ([]GeneratedImage, error) {
	n := req.Count
	if n < 1 {
		n = 1
	}
	if n > 4 {
		n = 4
	}
	resp, err := g.cli.Models.GenerateImages(ctx, g.imageModel, req.Prompt,
		&genai.GenerateImagesConfig{
			NumberOfImages: int32(n),
			NegativePrompt: req.Negative,
		},
	)
	if err != nil {
		return nil, err
	}
	if resp == nil || len(resp.GeneratedImages) == 0 {
		return nil, ErrEmptyResponse
	}
	out := make([]GeneratedImage, 0, len(resp.GeneratedImages))
	for _, gi := range resp.GeneratedImages {
		if gi == nil || gi.Image == nil || len(gi.Image.ImageBytes) == 0 {
			continue
		}
		m := gi.Image.MIMEType
		if m == "" {
			m = "image/png"
		}
		out = append(out, GeneratedImage{Bytes: gi.Image.ImageBytes, MIME: m})
	}
	if len(out) == 0 {
		return nil, ErrEmptyResponse
	}
	return out, nil
}

func visionInstruction(locale, brandContext string) string {
	var b strings.Builder
	b.WriteString("Analyze the attached brand images as a set and derive one coherent visual guide.\n")
	b.WriteString("Respond in locale: ")
	if locale == "" {
		locale = "en"
	}
	b.WriteString(locale)
	b.WriteString("\n")
	if brandContext != "" {
		b.WriteString("\n[BRAND CONTEXT]\n")
		b.WriteString(brandContext)
		b.WriteString("\n")
	}
	b.WriteString(`
Return a markdown summary followed by one fenced json block:
` + "```json" + `
{
  "style_direction": "string",
  "palette": ["#RRGGBB", "..."],
  "imagery": ["category", "..."],
  "producer_notes": "string"
}
` + "```" + `
All four fields are required. Describe only what is visible in the images;
do not invent brand attributes.`)
	return b.String()
}

func mimeFromURL(u string) string {
	ext := path.Ext(u)
	if i := strings.IndexAny(ext, "?#"); i >= 0 {
		ext = ext[:i]
	}
	if m := mime.TypeByExtension(ext); m != "" && strings.HasPrefix(m, "image/") {
		return m
	}
	return "image/jpeg"
}
