package pipeline

import (
	"encoding/json"
	"strings"
	"testing"

	"brandkit/internal/gateway/entity"
)

func TestParseContent(t *testing.T) {
	body := `# Acme Research Profile

Acme builds industrial sensors. See https://acme.example/about.

` + "```json\n{\"founded\": 1998}\n```" + `

## Sources
- https://acme.example/about
- https://example.org/report.
`
	got := ParseContent(body, []string{"https://pplx.example/cite"})

	if got.Title != "Acme Research Profile" {
		t.Fatalf("title = %q", got.Title)
	}
	if !strings.Contains(got.Markdown, "industrial sensors") {
		t.Fatalf("markdown body lost: %q", got.Markdown)
	}

	var payload map[string]any
	if err := json.Unmarshal(got.Payload, &payload); err != nil {
		t.Fatalf("payload not valid json: %v", err)
	}
	if payload["founded"] != float64(1998) {
		t.Fatalf("payload = %v", payload)
	}

	want := []string{
		"https://pplx.example/cite",
		"https://acme.example/about",
		"https://example.org/report",
	}
	if len(got.Citations) != len(want) {
		t.Fatalf("citations = %v", got.Citations)
	}
	for i, u := range want {
		if got.Citations[i] != u {
			t.Fatalf("citation[%d] = %q, want %q", i, got.Citations[i], u)
		}
	}
}

func TestParseContentTolerant(t *testing.T) {
	// No heading, no json, no urls: still a usable document.
	got := ParseContent("just a plain paragraph of generated text", nil)
	if got.Title != "" || got.Payload != nil || len(got.Citations) != 0 {
		t.Fatalf("expected bare markdown, got %+v", got)
	}
	if got.Markdown == "" {
		t.Fatalf("markdown must survive")
	}

	// Malformed fenced json is dropped, not fatal.
	got = ParseContent("# T\n\n```json\n{not json\n```\n", nil)
	if got.Payload != nil {
		t.Fatalf("malformed payload should be dropped, got %s", got.Payload)
	}
}

func TestParseVisualGuide(t *testing.T) {
	guide, err := ParseVisualGuide(validGuideText, entity.SessionID("s"))
	if err != nil {
		t.Fatalf("ParseVisualGuide: %v", err)
	}
	if guide.StyleDirection != "minimal industrial" {
		t.Fatalf("style = %q", guide.StyleDirection)
	}
	if len(guide.Palette) != 2 || guide.Palette[0] != "#0A0A0A" {
		t.Fatalf("palette = %v", guide.Palette)
	}
	if len(guide.Imagery) != 2 {
		t.Fatalf("imagery = %v", guide.Imagery)
	}
	if guide.ProducerNotes == "" {
		t.Fatalf("producer notes lost")
	}
	if strings.Contains(guide.Summary, "```") {
		t.Fatalf("summary must not carry the json fence: %q", guide.Summary)
	}
}

func TestParseVisualGuideSchemaViolations(t *testing.T) {
	cases := map[string]string{
		"no json block":  "a prose-only answer about the imagery",
		"invalid json":   "```json\n{oops\n```",
		"missing fields": "```json\n{\"style_direction\":\"x\"}\n```",
		"empty arrays":   "```json\n{\"style_direction\":\"x\",\"palette\":[],\"imagery\":[],\"producer_notes\":\"y\"}\n```",
	}
	for name, in := range cases {
		if _, err := ParseVisualGuide(in, "s"); KindOf(err) != KindSchemaViolation {
			t.Fatalf("%s: expected SchemaViolation, got %v", name, err)
		}
	}
}
