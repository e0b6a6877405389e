package kb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"brandkit/internal/gateway/entity"
)

func seedSession(t *testing.T, s *MemoryStore) entity.Session {
	t.Helper()
	sess, err := s.CreateSession(context.Background(), entity.Session{
		ID:      "sess-1",
		UserID:  entity.DemoUserID,
		Subject: "Acme",
	})
	require.NoError(t, err)
	return sess
}

func TestMemoryStoreSessionLifecycle(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	sess := seedSession(t, s)
	require.Equal(t, "welcome", sess.Step)
	require.Equal(t, "en", sess.Locale)

	_, err := s.CreateSession(ctx, entity.Session{ID: "sess-1"})
	require.Error(t, err, "duplicate session id must be rejected")

	require.NoError(t, s.UpdateSessionStep(ctx, "sess-1", "research"))
	got, err := s.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, "research", got.Step)

	_, err = s.GetSession(ctx, "missing")
	require.ErrorIs(t, err, entity.ErrNotFound)
	require.ErrorIs(t, s.UpdateSessionStep(ctx, "missing", "research"), entity.ErrNotFound)
}

func TestMemoryStoreLatestDocumentWinsByRecency(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedSession(t, s)

	first, err := s.SaveStepResult(ctx, entity.Document{
		SessionID: "sess-1", DocType: "research", Content: "first run", Status: entity.DocumentDraft,
	}, []entity.Source{{SessionID: "sess-1", URL: "https://a.example"}})
	require.NoError(t, err)

	second, err := s.SaveStepResult(ctx, entity.Document{
		SessionID: "sess-1", DocType: "research", Content: "second run", Status: entity.DocumentDraft,
	}, nil)
	require.NoError(t, err)
	require.Greater(t, second.ID, first.ID)

	latest, err := s.LatestDocument(ctx, "sess-1", "research")
	require.NoError(t, err)
	require.Equal(t, "second run", latest.Content)

	_, err = s.LatestDocument(ctx, "sess-1", "brand")
	require.ErrorIs(t, err, entity.ErrNotFound)

	require.Len(t, s.Sources(), 1)
	require.Len(t, s.Documents(), 2)
}

func TestMemoryStoreReplaceAndStatus(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedSession(t, s)

	_, err := s.ReplaceDocumentContent(ctx, "sess-1", "brand", "", "x")
	require.ErrorIs(t, err, entity.ErrNotFound)

	_, err = s.SaveStepResult(ctx, entity.Document{
		SessionID: "sess-1", DocType: "brand", Title: "Old", Content: "old", Status: entity.DocumentDraft,
	}, nil)
	require.NoError(t, err)

	doc, err := s.ReplaceDocumentContent(ctx, "sess-1", "brand", "New Title", "new content")
	require.NoError(t, err)
	require.Equal(t, "New Title", doc.Title)
	require.Equal(t, "new content", doc.Content)

	// Blank title keeps the existing one.
	doc, err = s.ReplaceDocumentContent(ctx, "sess-1", "brand", "", "newer content")
	require.NoError(t, err)
	require.Equal(t, "New Title", doc.Title)

	require.NoError(t, s.SetDocumentStatus(ctx, "sess-1", "brand", entity.DocumentApproved))
	latest, err := s.LatestDocument(ctx, "sess-1", "brand")
	require.NoError(t, err)
	require.Equal(t, entity.DocumentApproved, latest.Status)
}

func TestMemoryStoreVisualAnalysis(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedSession(t, s)

	a, err := s.CreateImage(ctx, entity.Image{SessionID: "sess-1", Path: "a.png", Status: entity.ImageUploaded})
	require.NoError(t, err)
	b, err := s.CreateImage(ctx, entity.Image{SessionID: "sess-1", Path: "b.png", Status: entity.ImageUploaded})
	require.NoError(t, err)
	rejected, err := s.CreateImage(ctx, entity.Image{SessionID: "sess-1", Path: "c.png", Status: entity.ImageRejected})
	require.NoError(t, err)

	_, err = s.GetVisualGuide(ctx, "sess-1")
	require.ErrorIs(t, err, entity.ErrNotFound)

	guide := entity.VisualGuide{
		SessionID:      "sess-1",
		StyleDirection: "minimal",
		Palette:        []string{"#000"},
		Imagery:        []string{"machines"},
		ProducerNotes:  "no stock smiles",
	}
	// The rejected image is deliberately included in the id list; its
	// terminal status must survive.
	saved, err := s.SaveVisualAnalysis(ctx, guide, []int64{a.ID, b.ID, rejected.ID})
	require.NoError(t, err)
	require.False(t, saved.UpdatedAt.IsZero())

	imgs, err := s.ListImages(ctx, "sess-1")
	require.NoError(t, err)
	byPath := map[string]entity.ImageStatus{}
	for _, img := range imgs {
		byPath[img.Path] = img.Status
	}
	require.Equal(t, entity.ImageAnalyzed, byPath["a.png"])
	require.Equal(t, entity.ImageAnalyzed, byPath["b.png"])
	require.Equal(t, entity.ImageRejected, byPath["c.png"])

	// Upsert: a second analysis replaces the guide.
	guide.StyleDirection = "bold"
	_, err = s.SaveVisualAnalysis(ctx, guide, []int64{a.ID})
	require.NoError(t, err)
	got, err := s.GetVisualGuide(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, "bold", got.StyleDirection)
}

func TestMemoryStoreChatLog(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedSession(t, s)

	for _, content := range []string{"one", "two", "three"} {
		_, err := s.AppendChatMessage(ctx, entity.ChatMessage{
			SessionID: "sess-1", Role: entity.ChatRoleUser, Content: content,
		})
		require.NoError(t, err)
	}
	msgs, err := s.ListChatMessages(ctx, "sess-1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.Equal(t, "one", msgs[0].Content)

	msgs, err = s.ListChatMessages(ctx, "sess-1", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
}

func TestMemoryMediaStore(t *testing.T) {
	m := NewMemoryMediaStore()
	ctx := context.Background()

	_, err := m.URL(ctx, "missing")
	require.Error(t, err)

	require.NoError(t, m.Put(ctx, "sess-1/a.png", []byte("bytes"), "image/png"))
	u, err := m.URL(ctx, "sess-1/a.png")
	require.NoError(t, err)
	require.Equal(t, "https://media.local/sess-1/a.png", u)

	b, ok := m.Object("sess-1/a.png")
	require.True(t, ok)
	require.Equal(t, []byte("bytes"), b)
}
