package kb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"brandkit/internal/gateway/entity"
)

// MemoryStore is an in-memory Store for tests and local development. It
// mirrors the Postgres store's semantics, including most-recent-created
// document selection and atomic vision writes.
type MemoryStore struct {
	mu        sync.Mutex
	nextID    int64
	sessions  map[entity.SessionID]entity.Session
	documents []entity.Document
	sources   []entity.Source
	images    []entity.Image
	guides    map[entity.SessionID]entity.VisualGuide
	chat      []entity.ChatMessage
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[entity.SessionID]entity.Session),
		guides:   make(map[entity.SessionID]entity.VisualGuide),
	}
}

func (s *MemoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *MemoryStore) CreateSession(_ context.Context, sess entity.Session) (entity.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.ID.IsZero() {
		return entity.Session{}, fmt.Errorf("session id is required")
	}
	if _, ok := s.sessions[sess.ID]; ok {
		return entity.Session{}, fmt.Errorf("session %q already exists", sess.ID)
	}
	if sess.Step == "" {
		sess.Step = "welcome"
	}
	if sess.Locale == "" {
		sess.Locale = "en"
	}
	sess.CreatedAt = time.Now()
	sess.UpdatedAt = sess.CreatedAt
	s.sessions[sess.ID] = sess
	return sess, nil
}

func (s *MemoryStore) GetSession(_ context.Context, id entity.SessionID) (entity.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return entity.Session{}, entity.ErrNotFound
	}
	return sess, nil
}

func (s *MemoryStore) UpdateSessionStep(_ context.Context, id entity.SessionID, step string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return entity.ErrNotFound
	}
	sess.Step = step
	sess.UpdatedAt = time.Now()
	s.sessions[id] = sess
	return nil
}

func (s *MemoryStore) LatestDocument(_ context.Context, id entity.SessionID, docType string) (entity.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Documents are append-only; the last matching row is the most recent.
	for i := len(s.documents) - 1; i >= 0; i-- {
		d := s.documents[i]
		if d.SessionID == id && d.DocType == docType {
			return d, nil
		}
	}
	return entity.Document{}, entity.ErrNotFound
}

func (s *MemoryStore) SaveStepResult(_ context.Context, doc entity.Document, sources []entity.Source) (entity.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc.ID = s.id()
	doc.CreatedAt = time.Now()
	s.documents = append(s.documents, doc)
	for _, src := range sources {
		src.ID = s.id()
		src.CreatedAt = doc.CreatedAt
		s.sources = append(s.sources, src)
	}
	return doc, nil
}

func (s *MemoryStore) ReplaceDocumentContent(_ context.Context, id entity.SessionID, docType, title, content string) (entity.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.documents) - 1; i >= 0; i-- {
		d := s.documents[i]
		if d.SessionID == id && d.DocType == docType {
			d.Content = content
			if title != "" {
				d.Title = title
			}
			s.documents[i] = d
			return d, nil
		}
	}
	return entity.Document{}, entity.ErrNotFound
}

func (s *MemoryStore) SetDocumentStatus(_ context.Context, id entity.SessionID, docType string, status entity.DocumentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.documents) - 1; i >= 0; i-- {
		d := s.documents[i]
		if d.SessionID == id && d.DocType == docType {
			d.Status = status
			s.documents[i] = d
			return nil
		}
	}
	return entity.ErrNotFound
}

func (s *MemoryStore) CreateImage(_ context.Context, img entity.Image) (entity.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	img.ID = s.id()
	img.CreatedAt = time.Now()
	s.images = append(s.images, img)
	return img, nil
}

func (s *MemoryStore) ListImages(_ context.Context, id entity.SessionID) ([]entity.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.Image
	for _, img := range s.images {
		if img.SessionID == id {
			out = append(out, img)
		}
	}
	return out, nil
}

func (s *MemoryStore) SaveVisualAnalysis(_ context.Context, guide entity.VisualGuide, imageIDs []int64) (entity.VisualGuide, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	guide.UpdatedAt = time.Now()
	s.guides[guide.SessionID] = guide
	want := make(map[int64]struct{}, len(imageIDs))
	for _, id := range imageIDs {
		want[id] = struct{}{}
	}
	for i, img := range s.images {
		if _, ok := want[img.ID]; !ok {
			continue
		}
		if img.SessionID != guide.SessionID {
			continue
		}
		if img.Status == entity.ImageUploaded || img.Status == entity.ImageAnalyzed {
			s.images[i].Status = entity.ImageAnalyzed
		}
	}
	return guide, nil
}

func (s *MemoryStore) GetVisualGuide(_ context.Context, id entity.SessionID) (entity.VisualGuide, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	guide, ok := s.guides[id]
	if !ok {
		return entity.VisualGuide{}, entity.ErrNotFound
	}
	return guide, nil
}

func (s *MemoryStore) AppendChatMessage(_ context.Context, msg entity.ChatMessage) (entity.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg.ID = s.id()
	msg.CreatedAt = time.Now()
	s.chat = append(s.chat, msg)
	return msg, nil
}

func (s *MemoryStore) ListChatMessages(_ context.Context, id entity.SessionID, limit int) ([]entity.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.ChatMessage
	for _, msg := range s.chat {
		if msg.SessionID == id {
			out = append(out, msg)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Documents returns a copy of all stored documents, for test assertions.
func (s *MemoryStore) Documents() []entity.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entity.Document, len(s.documents))
	copy(out, s.documents)
	return out
}

// Sources returns a copy of all stored sources, for test assertions.
func (s *MemoryStore) Sources() []entity.Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entity.Source, len(s.sources))
	copy(out, s.sources)
	return out
}
