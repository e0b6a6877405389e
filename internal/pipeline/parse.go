package pipeline

import (
	"encoding/json"
	"regexp"
	"strings"

	"brandkit/internal/gateway/entity"
)

// StructuredContent is the validated output of one generated step.
type StructuredContent struct {
	Title     string
	Markdown  string
	Citations []string
	Payload   json.RawMessage
}

var (
	reURL       = regexp.MustCompile(`https?://[^\s<>"')\]]+`)
	reJSONFence = regexp.MustCompile("(?s)```json\\s*(.*?)```")
	reHeading   = regexp.MustCompile(`(?m)^#\s+(.+)$`)
)

// ParseContent extracts the structured fields from sanitized model output.
// Parsing is tolerant by design: the markdown body is the primary payload,
// citations are best effort (provider-declared list merged with URLs found
// in the text), and a missing citation list is a content-quality concern,
// not a structural failure.
func ParseContent(clean string, providerCitations []string) StructuredContent {
	out := StructuredContent{Markdown: strings.TrimSpace(clean)}

	if m := reHeading.FindStringSubmatch(out.Markdown); m != nil {
		out.Title = strings.TrimSpace(m[1])
	}

	if m := reJSONFence.FindStringSubmatch(out.Markdown); m != nil {
		raw := strings.TrimSpace(m[1])
		var scratch any
		if json.Unmarshal([]byte(raw), &scratch) == nil {
			out.Payload = json.RawMessage(raw)
		}
	}

	seen := make(map[string]struct{})
	add := func(u string) {
		u = strings.TrimRight(strings.TrimSpace(u), ".,;")
		if u == "" {
			return
		}
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		out.Citations = append(out.Citations, u)
	}
	for _, u := range providerCitations {
		add(u)
	}
	for _, u := range reURL.FindAllString(out.Markdown, -1) {
		add(u)
	}
	return out
}

// guidePayload is the fixed schema the vision response must satisfy.
type guidePayload struct {
	StyleDirection string   `json:"style_direction"`
	Palette        []string `json:"palette"`
	Imagery        []string `json:"imagery"`
	ProducerNotes  string   `json:"producer_notes"`
}

// ParseVisualGuide validates the vision response against the guide schema.
// A response missing any required section is a SchemaViolation: terminal,
// never retried at the gateway, reported so the caller can start a fresh
// top-level attempt.
func ParseVisualGuide(clean string, sessionID entity.SessionID) (entity.VisualGuide, error) {
	m := reJSONFence.FindStringSubmatch(clean)
	if m == nil {
		return entity.VisualGuide{}, faultf(KindSchemaViolation, "vision response has no json block")
	}
	var p guidePayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(m[1])), &p); err != nil {
		return entity.VisualGuide{}, newFault(KindSchemaViolation, err)
	}

	var missing []string
	if strings.TrimSpace(p.StyleDirection) == "" {
		missing = append(missing, "style_direction")
	}
	if len(p.Palette) == 0 {
		missing = append(missing, "palette")
	}
	if len(p.Imagery) == 0 {
		missing = append(missing, "imagery")
	}
	if strings.TrimSpace(p.ProducerNotes) == "" {
		missing = append(missing, "producer_notes")
	}
	if len(missing) > 0 {
		return entity.VisualGuide{}, faultf(KindSchemaViolation,
			"guide missing required sections: %s", strings.Join(missing, ", "))
	}

	summary := strings.TrimSpace(reJSONFence.ReplaceAllString(clean, ""))
	return entity.VisualGuide{
		SessionID:      sessionID,
		StyleDirection: strings.TrimSpace(p.StyleDirection),
		Palette:        p.Palette,
		Imagery:        p.Imagery,
		ProducerNotes:  strings.TrimSpace(p.ProducerNotes),
		Summary:        summary,
	}, nil
}
