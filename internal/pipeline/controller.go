package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"brandkit/internal/gateway/entity"
	"brandkit/internal/llm"
)

// Store is the pipeline's view of the persistence layer. Writes that must
// be visible all-or-nothing (a step result, a completed vision pass) are
// single calls so the implementation can wrap them in one transaction.
type Store interface {
	GetSession(ctx context.Context, id entity.SessionID) (entity.Session, error)
	UpdateSessionStep(ctx context.Context, id entity.SessionID, step string) error

	LatestDocument(ctx context.Context, id entity.SessionID, docType string) (entity.Document, error)
	SaveStepResult(ctx context.Context, doc entity.Document, sources []entity.Source) (entity.Document, error)
	ReplaceDocumentContent(ctx context.Context, id entity.SessionID, docType, title, content string) (entity.Document, error)
	SetDocumentStatus(ctx context.Context, id entity.SessionID, docType string, status entity.DocumentStatus) error

	ListImages(ctx context.Context, id entity.SessionID) ([]entity.Image, error)
	CreateImage(ctx context.Context, img entity.Image) (entity.Image, error)
	SaveVisualAnalysis(ctx context.Context, guide entity.VisualGuide, imageIDs []int64) (entity.VisualGuide, error)
	GetVisualGuide(ctx context.Context, id entity.SessionID) (entity.VisualGuide, error)

	AppendChatMessage(ctx context.Context, msg entity.ChatMessage) (entity.ChatMessage, error)
}

// MediaStore is the pipeline's view of object storage.
type MediaStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	URL(ctx context.Context, key string) (string, error)
}

// Controller drives the wizard step sequence: it resolves prior-step
// context, runs the gateway call, sanitizes and parses the output, and
// persists accepted artifacts. One Controller serves all sessions; each
// call is an independent request-driven task.
type Controller struct {
	store  Store
	media  MediaStore
	text   llm.Client
	vision llm.VisionClient
	log    *log.Logger
}

func NewController(store Store, media MediaStore, text llm.Client, vision llm.VisionClient, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.Default()
	}
	return &Controller{store: store, media: media, text: text, vision: vision, log: logger}
}

// StepResult is the outcome of one successful RunStep call.
type StepResult struct {
	Session  entity.Session
	Document entity.Document
	Content  StructuredContent
	Sources  []entity.Source
	Guide    *entity.VisualGuide
}

// RunStep executes one wizard step for the session. On success the step's
// artifact is persisted (draft) and session.step advances iff this was the
// next expected step. On failure prior state is left untouched and the
// classified fault surfaces to the caller.
func (c *Controller) RunStep(ctx context.Context, sessionID entity.SessionID, step string) (StepResult, error) {
	sess, err := c.session(ctx, sessionID)
	if err != nil {
		return StepResult{}, err
	}
	if !IsStep(step) {
		return StepResult{}, faultf(KindValidation, "unknown step %q", step)
	}

	if step == StepVisual {
		guide, err := c.AnalyzeVision(ctx, VisionInput{SessionID: sessionID, Locale: sess.Locale})
		if err != nil {
			return StepResult{}, err
		}
		sess = c.advance(ctx, sess, step)
		return StepResult{Session: sess, Guide: &guide}, nil
	}

	if step == StepExport {
		// Export packaging is owned by the delivery layer; running the
		// step marks the wizard finished and moves the pointer.
		sess = c.advance(ctx, sess, step)
		return StepResult{Session: sess}, nil
	}

	if !Generable(step) {
		return StepResult{}, faultf(KindValidation, "step %q has no generated content", step)
	}

	prior, err := c.resolveContext(ctx, sessionID, step)
	if err != nil {
		return StepResult{}, err
	}
	prompt, err := BuildPrompt(step, sess.Locale, sess.Subject, prior)
	if err != nil {
		return StepResult{}, err
	}

	cfg := stepConfigs[step]
	resp, err := c.text.Generate(llm.WithPhase(ctx, step), llm.Request{
		System:      prompt.System,
		Prompt:      prompt.User,
		Locale:      sess.Locale,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	})
	if err != nil {
		return StepResult{}, classifyProviderErr(err)
	}

	clean, err := llm.Sanitize(resp.Text)
	if err != nil {
		return StepResult{}, newFault(KindEmptyContent, err)
	}
	content := ParseContent(clean, resp.Citations)

	doc := entity.Document{
		SessionID: sessionID,
		DocType:   step,
		Title:     content.Title,
		Content:   content.Markdown,
		Payload:   content.Payload,
		Status:    entity.DocumentDraft,
	}
	sources := make([]entity.Source, 0, len(content.Citations))
	for _, u := range content.Citations {
		sources = append(sources, entity.Source{
			SessionID: sessionID,
			URL:       u,
			Provider:  c.text.Name(),
		})
	}
	saved, err := c.store.SaveStepResult(ctx, doc, sources)
	if err != nil {
		return StepResult{}, newFault(KindPersistence, err)
	}

	sess = c.advance(ctx, sess, step)
	return StepResult{Session: sess, Document: saved, Content: content, Sources: sources}, nil
}

// ApplyChatEdit replaces the current document content for a step without
// touching the generation pipeline or session.step.
func (c *Controller) ApplyChatEdit(ctx context.Context, sessionID entity.SessionID, step, newContent, reason string) (entity.Document, error) {
	if _, err := c.session(ctx, sessionID); err != nil {
		return entity.Document{}, err
	}
	if !Generable(step) {
		return entity.Document{}, faultf(KindValidation, "step %q has no editable document", step)
	}
	if strings.TrimSpace(newContent) == "" {
		return entity.Document{}, faultf(KindValidation, "updated content is empty")
	}

	title := ""
	if m := reHeading.FindStringSubmatch(newContent); m != nil {
		title = strings.TrimSpace(m[1])
	}
	doc, err := c.store.ReplaceDocumentContent(ctx, sessionID, step, title, newContent)
	if errors.Is(err, entity.ErrNotFound) {
		return entity.Document{}, faultf(KindValidation, "step %q has no document to edit", step)
	}
	if err != nil {
		return entity.Document{}, newFault(KindPersistence, err)
	}

	c.recordChat(ctx, sessionID, entity.ChatRoleUser, fmt.Sprintf("edit %s: %s", step, reason))
	c.recordChat(ctx, sessionID, entity.ChatRoleAssistant, fmt.Sprintf("updated the %s document", step))
	return doc, nil
}

// ApproveStep marks a step's current document approved. Approval is an
// explicit user action; the generator itself only ever writes drafts.
func (c *Controller) ApproveStep(ctx context.Context, sessionID entity.SessionID, step string) error {
	if _, err := c.session(ctx, sessionID); err != nil {
		return err
	}
	if !Generable(step) {
		return faultf(KindValidation, "step %q has no document to approve", step)
	}
	err := c.store.SetDocumentStatus(ctx, sessionID, step, entity.DocumentApproved)
	if errors.Is(err, entity.ErrNotFound) {
		return faultf(KindValidation, "step %q has no document to approve", step)
	}
	if err != nil {
		return newFault(KindPersistence, err)
	}
	return nil
}

// VisionInput parameterizes one vision-analysis pass.
type VisionInput struct {
	SessionID    entity.SessionID
	ImageURLs    []string // optional override; default is the session's eligible images
	Locale       string
	BrandContext string
	Reanalyze    bool
}

// AnalyzeVision runs the vision provider over the session's eligible image
// set and upserts the VisualGuide. Image statuses flip to analyzed as one
// set, and only after the guide validates; a schema failure changes
// nothing.
func (c *Controller) AnalyzeVision(ctx context.Context, in VisionInput) (entity.VisualGuide, error) {
	sess, err := c.session(ctx, in.SessionID)
	if err != nil {
		return entity.VisualGuide{}, err
	}
	locale := in.Locale
	if locale == "" {
		locale = sess.Locale
	}

	images, err := c.store.ListImages(ctx, in.SessionID)
	if err != nil {
		return entity.VisualGuide{}, newFault(KindPersistence, err)
	}
	batch, err := AnalysisBatch(images, in.Reanalyze)
	if err != nil {
		return entity.VisualGuide{}, err
	}

	urls := in.ImageURLs
	if len(urls) == 0 {
		urls = make([]string, 0, len(batch))
		for _, img := range batch {
			u, err := c.media.URL(ctx, img.Path)
			if err != nil {
				return entity.VisualGuide{}, newFault(KindPersistence, err)
			}
			urls = append(urls, u)
		}
	}

	brandContext := in.BrandContext
	if brandContext == "" {
		if doc, err := c.store.LatestDocument(ctx, in.SessionID, StepBrand); err == nil {
			brandContext = doc.Content
		}
	}

	resp, err := c.vision.AnalyzeImages(llm.WithPhase(ctx, StepVisual), llm.VisionRequest{
		ImageURLs:    urls,
		Locale:       locale,
		BrandContext: brandContext,
	})
	if err != nil {
		return entity.VisualGuide{}, classifyProviderErr(err)
	}
	clean, err := llm.Sanitize(resp.Text)
	if err != nil {
		return entity.VisualGuide{}, newFault(KindEmptyContent, err)
	}
	guide, err := ParseVisualGuide(clean, in.SessionID)
	if err != nil {
		return entity.VisualGuide{}, err
	}

	ids := make([]int64, 0, len(batch))
	for _, img := range batch {
		ids = append(ids, img.ID)
	}
	saved, err := c.store.SaveVisualAnalysis(ctx, guide, ids)
	if err != nil {
		return entity.VisualGuide{}, newFault(KindPersistence, err)
	}
	return saved, nil
}

// GenerateTestImages produces up to four test images for the session and
// stores them with role=generated, returning their accessible URLs.
func (c *Controller) GenerateTestImages(ctx context.Context, sessionID entity.SessionID, basePrompt, negative string, count int) ([]string, error) {
	if _, err := c.session(ctx, sessionID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(basePrompt) == "" {
		return nil, faultf(KindValidation, "base_prompt is required")
	}
	if count < 1 || count > 4 {
		return nil, faultf(KindValidation, "count must be between 1 and 4")
	}

	imgs, err := c.vision.GenerateImages(llm.WithPhase(ctx, "generate-images"), llm.ImageRequest{
		Prompt:   basePrompt,
		Negative: negative,
		Count:    count,
	})
	if err != nil {
		return nil, classifyProviderErr(err)
	}

	urls := make([]string, 0, len(imgs))
	for i, img := range imgs {
		sum := sha256.Sum256(img.Bytes)
		hash := hex.EncodeToString(sum[:])
		key := fmt.Sprintf("%s/generated/%d-%s%s", sessionID, time.Now().UnixMilli()+int64(i), hash[:12], extForMIME(img.MIME))
		if err := c.media.Put(ctx, key, img.Bytes, img.MIME); err != nil {
			return nil, newFault(KindPersistence, err)
		}
		if _, err := c.store.CreateImage(ctx, entity.Image{
			SessionID: sessionID,
			Path:      key,
			MIME:      img.MIME,
			Size:      int64(len(img.Bytes)),
			SHA256:    hash,
			Role:      entity.ImageRoleGenerated,
			Status:    entity.ImageUploaded,
		}); err != nil {
			return nil, newFault(KindPersistence, err)
		}
		u, err := c.media.URL(ctx, key)
		if err != nil {
			return nil, newFault(KindPersistence, err)
		}
		urls = append(urls, u)
	}
	return urls, nil
}

// VisualGuide returns the session's stored guide.
func (c *Controller) VisualGuide(ctx context.Context, sessionID entity.SessionID) (entity.VisualGuide, error) {
	if _, err := c.session(ctx, sessionID); err != nil {
		return entity.VisualGuide{}, err
	}
	guide, err := c.store.GetVisualGuide(ctx, sessionID)
	if errors.Is(err, entity.ErrNotFound) {
		return entity.VisualGuide{}, faultf(KindValidation, "session %q has no visual guide", sessionID)
	}
	if err != nil {
		return entity.VisualGuide{}, newFault(KindPersistence, err)
	}
	return guide, nil
}

// RecordChat appends one message to the session's chat log.
func (c *Controller) RecordChat(ctx context.Context, sessionID entity.SessionID, role entity.ChatRole, content string) (entity.ChatMessage, error) {
	if _, err := c.session(ctx, sessionID); err != nil {
		return entity.ChatMessage{}, err
	}
	msg, err := c.store.AppendChatMessage(ctx, entity.ChatMessage{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
	})
	if err != nil {
		return entity.ChatMessage{}, newFault(KindPersistence, err)
	}
	return msg, nil
}

func (c *Controller) session(ctx context.Context, id entity.SessionID) (entity.Session, error) {
	if id.IsZero() {
		return entity.Session{}, faultf(KindValidation, "session_id is required")
	}
	sess, err := c.store.GetSession(ctx, id)
	if errors.Is(err, entity.ErrNotFound) {
		return entity.Session{}, faultf(KindValidation, "session %q not found", id)
	}
	if err != nil {
		return entity.Session{}, newFault(KindPersistence, err)
	}
	return sess, nil
}

// resolveContext loads the current document of every dependency step. A
// missing dependency is left out of the map; BuildPrompt converts the gap
// into a MissingContext fault so the caller decides policy.
func (c *Controller) resolveContext(ctx context.Context, sessionID entity.SessionID, step string) (map[string]string, error) {
	prior := make(map[string]string)
	for _, dep := range Dependencies(step) {
		doc, err := c.store.LatestDocument(ctx, sessionID, dep)
		if errors.Is(err, entity.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, newFault(KindPersistence, err)
		}
		prior[dep] = doc.Content
	}
	return prior, nil
}

// advance moves session.step forward when the executed step was the next
// expected one. Regenerations of earlier steps leave the pointer alone.
// A failed pointer update is logged, not surfaced: the artifact write
// already succeeded and re-running the step is idempotent.
func (c *Controller) advance(ctx context.Context, sess entity.Session, step string) entity.Session {
	if step != NextStep(sess.Step) {
		return sess
	}
	if err := c.store.UpdateSessionStep(ctx, sess.ID, step); err != nil {
		c.log.Printf("pipeline: advance %s -> %s failed: %v", sess.Step, step, err)
		return sess
	}
	sess.Step = step
	return sess
}

func (c *Controller) recordChat(ctx context.Context, sessionID entity.SessionID, role entity.ChatRole, content string) {
	if _, err := c.store.AppendChatMessage(ctx, entity.ChatMessage{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
	}); err != nil {
		c.log.Printf("pipeline: chat append failed: %v", err)
	}
}

// classifyProviderErr maps a gateway error to its terminal fault kind.
// Anything escaping the retry middleware lands in ProviderExhausted; a
// permanent rejection (which short-circuits the retry loop) is called out
// in the message so diagnostics don't suggest a spent retry budget.
func classifyProviderErr(err error) error {
	if llm.IsPermanent(err) {
		return newFault(KindProviderExhausted, fmt.Errorf("provider rejected the request permanently: %w", err))
	}
	return newFault(KindProviderExhausted, err)
}

func extForMIME(m string) string {
	switch m {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".bin"
	}
}
