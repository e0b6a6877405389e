package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"brandkit/internal/gateway/entity"
	"brandkit/internal/gateway/repository/kb"
	"brandkit/internal/llm"
)

const sessID = entity.SessionID("sess-1")

func newSession(t *testing.T, store *kb.MemoryStore) entity.Session {
	t.Helper()
	sess, err := store.CreateSession(context.Background(), entity.Session{
		ID:      sessID,
		UserID:  entity.DemoUserID,
		Locale:  "en",
		Step:    StepWelcome,
		Subject: "https://acme.example",
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return sess
}

func longBody(heading, detail string) string {
	return "# " + heading + "\n\n" + detail + " This paragraph is long enough to clear the sanitizer's minimum usable length floor."
}

const validGuideText = `The set leans minimal and industrial with restrained color use.

` + "```json" + `
{
  "style_direction": "minimal industrial",
  "palette": ["#0A0A0A", "#E8E4DC"],
  "imagery": ["machinery close-ups", "muted workspaces"],
  "producer_notes": "avoid stock-photo smiles; natural light only"
}
` + "```" + `
`

func TestRunStep_ChainsPriorContextVerbatim(t *testing.T) {
	store := kb.NewMemoryStore()
	newSession(t, store)

	research := longBody("Research Profile", "Acme builds industrial sensors for factories across Europe.")
	brand := longBody("Brand Story", "Acme began in a Hamburg workshop and still designs every sensor in-house.")

	fake := llm.NewFakeClient(
		llm.FakeResult{Resp: llm.Response{Text: research}},
		llm.FakeResult{Resp: llm.Response{Text: brand}},
		llm.FakeResult{Resp: llm.Response{Text: longBody("Competitors", "Acme's closest competitor is Sensortech GmbH.")}},
	)
	c := NewController(store, kb.NewMemoryMediaStore(), fake, llm.NewFakeVision(), nil)

	ctx := context.Background()
	for _, step := range []string{StepResearch, StepBrand, StepCompetitors} {
		if _, err := c.RunStep(ctx, sessID, step); err != nil {
			t.Fatalf("RunStep(%s): %v", step, err)
		}
	}

	// The competitors request is the third one; its prompt must embed both
	// prior documents' markdown verbatim.
	if len(fake.Requests) != 3 {
		t.Fatalf("expected 3 generate calls, got %d", len(fake.Requests))
	}
	prompt := fake.Requests[2].Prompt
	if !strings.Contains(prompt, research) {
		t.Fatalf("competitors prompt missing research body:\n%s", prompt)
	}
	if !strings.Contains(prompt, brand) {
		t.Fatalf("competitors prompt missing brand body:\n%s", prompt)
	}
}

func TestRunStep_MissingContextSurfaced(t *testing.T) {
	store := kb.NewMemoryStore()
	newSession(t, store)
	c := NewController(store, kb.NewMemoryMediaStore(), llm.NewFakeClient(), llm.NewFakeVision(), nil)

	_, err := c.RunStep(context.Background(), sessID, StepCompetitors)
	if KindOf(err) != KindMissingContext {
		t.Fatalf("expected MissingContext, got %v", err)
	}
	if len(store.Documents()) != 0 {
		t.Fatalf("no document may be persisted on failure")
	}
}

func TestRunStep_ReasoningOnlyResponseNeverPersisted(t *testing.T) {
	store := kb.NewMemoryStore()
	newSession(t, store)

	fake := llm.NewFakeClient(llm.FakeResult{Resp: llm.Response{
		Text: "<think>I should look up what Acme does... probably sensors? Let me reason about it.</think>",
	}})
	c := NewController(store, kb.NewMemoryMediaStore(), fake, llm.NewFakeVision(), nil)

	_, err := c.RunStep(context.Background(), sessID, StepResearch)
	if KindOf(err) != KindEmptyContent {
		t.Fatalf("expected EmptyContent, got %v", err)
	}
	if len(store.Documents()) != 0 {
		t.Fatalf("reasoning-only output must never become a document")
	}
	sess, _ := store.GetSession(context.Background(), sessID)
	if sess.Step != StepWelcome {
		t.Fatalf("session.step must not advance on failure, got %q", sess.Step)
	}
}

func TestRunStep_TransientFailuresRetriedWithBackoff(t *testing.T) {
	store := kb.NewMemoryStore()
	newSession(t, store)

	netErr := errors.New("dial tcp: i/o timeout")
	inner := llm.NewFakeClient(
		llm.FakeResult{Err: netErr},
		llm.FakeResult{Err: netErr},
		llm.FakeResult{Resp: llm.Response{Text: longBody("Research Profile", "Acme builds industrial sensors.")}},
	)
	var total time.Duration
	client := llm.Wrap(inner, llm.RetryWithSleep(4, time.Second, func(d time.Duration) { total += d }))
	c := NewController(store, kb.NewMemoryMediaStore(), client, llm.NewFakeVision(), nil)

	res, err := c.RunStep(context.Background(), sessID, StepResearch)
	if err != nil {
		t.Fatalf("RunStep: %v", err)
	}
	if got := len(store.Documents()); got != 1 {
		t.Fatalf("expected exactly one persisted document, got %d", got)
	}
	if total < 3*time.Second {
		t.Fatalf("expected backoff >= 1s + 2s, got %v", total)
	}
	if res.Document.Status != entity.DocumentDraft {
		t.Fatalf("pipeline must write drafts, got %q", res.Document.Status)
	}
}

func TestRunStep_RetryBudgetExhausted(t *testing.T) {
	store := kb.NewMemoryStore()
	newSession(t, store)

	netErr := errors.New("connection refused")
	inner := llm.NewFakeClient(llm.FakeResult{Err: netErr})
	client := llm.Wrap(inner, llm.RetryWithSleep(4, time.Second, func(time.Duration) {}))
	c := NewController(store, kb.NewMemoryMediaStore(), client, llm.NewFakeVision(), nil)

	_, err := c.RunStep(context.Background(), sessID, StepResearch)
	if KindOf(err) != KindProviderExhausted {
		t.Fatalf("expected ProviderExhausted, got %v", err)
	}
	if !errors.Is(err, netErr) {
		t.Fatalf("fault must carry the last underlying error, got %v", err)
	}
	if inner.Attempts() != 4 {
		t.Fatalf("expected 4 attempts, got %d", inner.Attempts())
	}
	sess, _ := store.GetSession(context.Background(), sessID)
	if sess.Step != StepWelcome {
		t.Fatalf("session.step changed on exhaustion: %q", sess.Step)
	}
	if len(store.Documents()) != 0 {
		t.Fatalf("documents changed on exhaustion")
	}
}

func TestRunStep_PermanentRejectionNotRetried(t *testing.T) {
	store := kb.NewMemoryStore()
	newSession(t, store)

	rejection := llm.NewPermanentError(errors.New("400: maximum context length exceeded"))
	inner := llm.NewFakeClient(llm.FakeResult{Err: rejection})
	client := llm.Wrap(inner, llm.RetryWithSleep(4, time.Second, func(time.Duration) {
		t.Fatalf("permanent rejection must not back off")
	}))
	c := NewController(store, kb.NewMemoryMediaStore(), client, llm.NewFakeVision(), nil)

	_, err := c.RunStep(context.Background(), sessID, StepResearch)
	if KindOf(err) != KindProviderExhausted {
		t.Fatalf("expected ProviderExhausted, got %v", err)
	}
	if inner.Attempts() != 1 {
		t.Fatalf("expected a single attempt, got %d", inner.Attempts())
	}
	if !strings.Contains(err.Error(), "permanently") {
		t.Fatalf("fault should name the permanent rejection: %v", err)
	}
	if !errors.Is(err, rejection) {
		t.Fatalf("fault must carry the underlying rejection, got %v", err)
	}
}

func TestRunStep_ExportFinishesWizard(t *testing.T) {
	store := kb.NewMemoryStore()
	newSession(t, store)
	c := NewController(store, kb.NewMemoryMediaStore(), llm.NewFakeClient(), llm.NewFakeVision(), nil)
	ctx := context.Background()

	// Export before its turn leaves the pointer alone.
	res, err := c.RunStep(ctx, sessID, StepExport)
	if err != nil {
		t.Fatalf("RunStep export: %v", err)
	}
	if res.Session.Step != StepWelcome {
		t.Fatalf("out-of-order export moved the pointer to %q", res.Session.Step)
	}

	if err := store.UpdateSessionStep(ctx, sessID, StepVisual); err != nil {
		t.Fatalf("UpdateSessionStep: %v", err)
	}
	res, err = c.RunStep(ctx, sessID, StepExport)
	if err != nil {
		t.Fatalf("RunStep export: %v", err)
	}
	if res.Session.Step != StepExport {
		t.Fatalf("expected pointer at export, got %q", res.Session.Step)
	}
	if len(store.Documents()) != 0 {
		t.Fatalf("export must not create documents")
	}
}

func TestVisualGuideRead(t *testing.T) {
	store := kb.NewMemoryStore()
	newSession(t, store)
	c := NewController(store, kb.NewMemoryMediaStore(), llm.NewFakeClient(), llm.NewFakeVision(), nil)
	ctx := context.Background()

	_, err := c.VisualGuide(ctx, sessID)
	if KindOf(err) != KindValidation {
		t.Fatalf("missing guide must be a validation fault, got %v", err)
	}

	if _, err := store.SaveVisualAnalysis(ctx, entity.VisualGuide{
		SessionID:      sessID,
		StyleDirection: "minimal",
		Palette:        []string{"#000"},
		Imagery:        []string{"machines"},
		ProducerNotes:  "notes",
	}, nil); err != nil {
		t.Fatalf("SaveVisualAnalysis: %v", err)
	}
	guide, err := c.VisualGuide(ctx, sessID)
	if err != nil {
		t.Fatalf("VisualGuide: %v", err)
	}
	if guide.StyleDirection != "minimal" {
		t.Fatalf("unexpected guide %+v", guide)
	}
}

func TestRunStep_AdvancesOnlyExpectedStep(t *testing.T) {
	store := kb.NewMemoryStore()
	newSession(t, store)

	fake := llm.NewFakeClient(
		llm.FakeResult{Resp: llm.Response{Text: longBody("Research Profile", "Initial research run.")}},
		llm.FakeResult{Resp: llm.Response{Text: longBody("Research Profile", "Regenerated research run.")}},
	)
	c := NewController(store, kb.NewMemoryMediaStore(), fake, llm.NewFakeVision(), nil)
	ctx := context.Background()

	res, err := c.RunStep(ctx, sessID, StepResearch)
	if err != nil {
		t.Fatalf("RunStep: %v", err)
	}
	if res.Session.Step != StepResearch {
		t.Fatalf("expected advance to research, got %q", res.Session.Step)
	}

	// Regeneration of the same step must not advance further.
	res, err = c.RunStep(ctx, sessID, StepResearch)
	if err != nil {
		t.Fatalf("RunStep regen: %v", err)
	}
	if res.Session.Step != StepResearch {
		t.Fatalf("regeneration moved the step pointer to %q", res.Session.Step)
	}

	// The regenerated document supersedes the first by recency.
	doc, err := store.LatestDocument(ctx, sessID, StepResearch)
	if err != nil {
		t.Fatalf("LatestDocument: %v", err)
	}
	if !strings.Contains(doc.Content, "Regenerated") {
		t.Fatalf("latest document is not the regeneration: %q", doc.Content)
	}
}

func TestApplyChatEdit_ReplacesContentOnly(t *testing.T) {
	store := kb.NewMemoryStore()
	newSession(t, store)

	fake := llm.NewFakeClient(
		llm.FakeResult{Resp: llm.Response{Text: longBody("Research Profile", "Research body.")}},
		llm.FakeResult{Resp: llm.Response{Text: longBody("Brand Story", "Original brand story.")}},
	)
	c := NewController(store, kb.NewMemoryMediaStore(), fake, llm.NewFakeVision(), nil)
	ctx := context.Background()

	if _, err := c.RunStep(ctx, sessID, StepResearch); err != nil {
		t.Fatalf("RunStep research: %v", err)
	}
	if _, err := c.RunStep(ctx, sessID, StepBrand); err != nil {
		t.Fatalf("RunStep brand: %v", err)
	}
	before, _ := store.GetSession(ctx, sessID)

	edited := "# Brand Story\n\nRewritten by the user through chat."
	doc, err := c.ApplyChatEdit(ctx, sessID, StepBrand, edited, "tone was off")
	if err != nil {
		t.Fatalf("ApplyChatEdit: %v", err)
	}
	if doc.Content != edited {
		t.Fatalf("content not replaced: %q", doc.Content)
	}

	after, _ := store.GetSession(ctx, sessID)
	if after.Step != before.Step {
		t.Fatalf("ApplyChatEdit mutated session.step: %q -> %q", before.Step, after.Step)
	}
	research, _ := store.LatestDocument(ctx, sessID, StepResearch)
	if strings.Contains(research.Content, "Rewritten") {
		t.Fatalf("edit bled into another step's document")
	}
}

func TestApplyChatEdit_NoDocumentIsValidationFault(t *testing.T) {
	store := kb.NewMemoryStore()
	newSession(t, store)
	c := NewController(store, kb.NewMemoryMediaStore(), llm.NewFakeClient(), llm.NewFakeVision(), nil)

	_, err := c.ApplyChatEdit(context.Background(), sessID, StepBrand, "# New\n\ncontent", "r")
	if KindOf(err) != KindValidation {
		t.Fatalf("expected validation fault, got %v", err)
	}
}

func TestAnalyzeVision_TransitionsWholeBatch(t *testing.T) {
	store := kb.NewMemoryStore()
	media := kb.NewMemoryMediaStore()
	newSession(t, store)
	ctx := context.Background()

	for _, key := range []string{"a.png", "b.png", "c.png"} {
		if err := media.Put(ctx, "sess-1/"+key, []byte("png"), "image/png"); err != nil {
			t.Fatalf("media put: %v", err)
		}
		if _, err := store.CreateImage(ctx, entity.Image{
			SessionID: sessID,
			Path:      "sess-1/" + key,
			MIME:      "image/png",
			Role:      entity.ImageRoleUser,
			Status:    entity.ImageUploaded,
		}); err != nil {
			t.Fatalf("create image: %v", err)
		}
	}
	// A rejected image must stay out of the batch.
	if _, err := store.CreateImage(ctx, entity.Image{
		SessionID: sessID, Path: "sess-1/bad.png", Status: entity.ImageRejected,
	}); err != nil {
		t.Fatalf("create image: %v", err)
	}

	vision := llm.NewFakeVision(llm.FakeResult{Resp: llm.Response{Text: validGuideText}})
	c := NewController(store, media, llm.NewFakeClient(), vision, nil)

	guide, err := c.AnalyzeVision(ctx, VisionInput{SessionID: sessID})
	if err != nil {
		t.Fatalf("AnalyzeVision: %v", err)
	}
	if guide.StyleDirection != "minimal industrial" {
		t.Fatalf("unexpected style direction %q", guide.StyleDirection)
	}
	if len(vision.AnalyzeCalls) != 1 || len(vision.AnalyzeCalls[0].ImageURLs) != 3 {
		t.Fatalf("expected one analysis over 3 urls, got %+v", vision.AnalyzeCalls)
	}

	imgs, _ := store.ListImages(ctx, sessID)
	analyzed := 0
	for _, img := range imgs {
		switch img.Status {
		case entity.ImageAnalyzed:
			analyzed++
		case entity.ImageRejected:
			// untouched terminal image
		default:
			t.Fatalf("image %q left in status %q", img.Path, img.Status)
		}
	}
	if analyzed != 3 {
		t.Fatalf("expected 3 analyzed images, got %d", analyzed)
	}
}

func TestAnalyzeVision_SchemaViolationChangesNothing(t *testing.T) {
	store := kb.NewMemoryStore()
	media := kb.NewMemoryMediaStore()
	newSession(t, store)
	ctx := context.Background()

	if err := media.Put(ctx, "sess-1/a.png", []byte("png"), "image/png"); err != nil {
		t.Fatalf("media put: %v", err)
	}
	if _, err := store.CreateImage(ctx, entity.Image{
		SessionID: sessID, Path: "sess-1/a.png", Status: entity.ImageUploaded,
	}); err != nil {
		t.Fatalf("create image: %v", err)
	}

	// Guide missing palette and producer_notes.
	bad := "A summary of the imagery set that is long enough to pass sanitization.\n\n```json\n{\"style_direction\":\"minimal\",\"imagery\":[\"x\"]}\n```\n"
	vision := llm.NewFakeVision(llm.FakeResult{Resp: llm.Response{Text: bad}})
	c := NewController(store, media, llm.NewFakeClient(), vision, nil)

	_, err := c.AnalyzeVision(ctx, VisionInput{SessionID: sessID})
	if KindOf(err) != KindSchemaViolation {
		t.Fatalf("expected SchemaViolation, got %v", err)
	}
	imgs, _ := store.ListImages(ctx, sessID)
	if imgs[0].Status != entity.ImageUploaded {
		t.Fatalf("image status changed on schema failure: %q", imgs[0].Status)
	}
	if _, err := store.GetVisualGuide(ctx, sessID); !errors.Is(err, entity.ErrNotFound) {
		t.Fatalf("guide written despite schema failure")
	}
}

func TestAnalyzeVision_GuideRoundTrip(t *testing.T) {
	store := kb.NewMemoryStore()
	media := kb.NewMemoryMediaStore()
	newSession(t, store)
	ctx := context.Background()

	if err := media.Put(ctx, "sess-1/a.png", []byte("png"), "image/png"); err != nil {
		t.Fatalf("media put: %v", err)
	}
	if _, err := store.CreateImage(ctx, entity.Image{
		SessionID: sessID, Path: "sess-1/a.png", Status: entity.ImageUploaded,
	}); err != nil {
		t.Fatalf("create image: %v", err)
	}
	vision := llm.NewFakeVision(llm.FakeResult{Resp: llm.Response{Text: validGuideText}})
	c := NewController(store, media, llm.NewFakeClient(), vision, nil)

	written, err := c.AnalyzeVision(ctx, VisionInput{SessionID: sessID})
	if err != nil {
		t.Fatalf("AnalyzeVision: %v", err)
	}
	read, err := store.GetVisualGuide(ctx, sessID)
	if err != nil {
		t.Fatalf("GetVisualGuide: %v", err)
	}
	if read.StyleDirection != written.StyleDirection ||
		read.ProducerNotes != written.ProducerNotes ||
		len(read.Palette) != len(written.Palette) ||
		len(read.Imagery) != len(written.Imagery) {
		t.Fatalf("round-trip mismatch:\nwrote %+v\nread  %+v", written, read)
	}
}

func TestGenerateTestImages(t *testing.T) {
	store := kb.NewMemoryStore()
	media := kb.NewMemoryMediaStore()
	newSession(t, store)

	vision := llm.NewFakeVision()
	vision.ScriptImages([]llm.GeneratedImage{
		{Bytes: []byte("img-one"), MIME: "image/png"},
		{Bytes: []byte("img-two"), MIME: "image/png"},
	}, nil)
	c := NewController(store, media, llm.NewFakeClient(), vision, nil)

	urls, err := c.GenerateTestImages(context.Background(), sessID, "warehouse at dawn", "people", 2)
	if err != nil {
		t.Fatalf("GenerateTestImages: %v", err)
	}
	if len(urls) != 2 {
		t.Fatalf("expected 2 urls, got %d", len(urls))
	}
	imgs, _ := store.ListImages(context.Background(), sessID)
	if len(imgs) != 2 {
		t.Fatalf("expected 2 image rows, got %d", len(imgs))
	}
	for _, img := range imgs {
		if img.Role != entity.ImageRoleGenerated || img.Status != entity.ImageUploaded {
			t.Fatalf("unexpected image row %+v", img)
		}
		if _, ok := media.Object(img.Path); !ok {
			t.Fatalf("bytes missing for %q", img.Path)
		}
	}

	if _, err := c.GenerateTestImages(context.Background(), sessID, "x", "", 5); KindOf(err) != KindValidation {
		t.Fatalf("count > 4 must be a validation fault, got %v", err)
	}
}

func TestApproveStep(t *testing.T) {
	store := kb.NewMemoryStore()
	newSession(t, store)
	fake := llm.NewFakeClient(llm.FakeResult{Resp: llm.Response{Text: longBody("Research Profile", "Body.")}})
	c := NewController(store, kb.NewMemoryMediaStore(), fake, llm.NewFakeVision(), nil)
	ctx := context.Background()

	if _, err := c.RunStep(ctx, sessID, StepResearch); err != nil {
		t.Fatalf("RunStep: %v", err)
	}
	if err := c.ApproveStep(ctx, sessID, StepResearch); err != nil {
		t.Fatalf("ApproveStep: %v", err)
	}
	doc, _ := store.LatestDocument(ctx, sessID, StepResearch)
	if doc.Status != entity.DocumentApproved {
		t.Fatalf("expected approved, got %q", doc.Status)
	}
}
