package kb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"brandkit/internal/gateway/entity"
)

// PostgresStore persists all knowledge-base entities. It implements
// pipeline.Store. Writes that must land all-or-nothing run in a single
// transaction; everything else relies on row-level atomicity.
type PostgresStore struct {
	db         *sql.DB
	schemaOnce sync.Once
	schemaErr  error
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) ensureSchema() error {
	if s == nil || s.db == nil {
		return fmt.Errorf("db is nil")
	}
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.Exec(`
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL DEFAULT '',
    locale TEXT NOT NULL DEFAULT 'en',
    step TEXT NOT NULL DEFAULT 'welcome',
    subject TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS documents (
    id BIGSERIAL PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
    doc_type TEXT NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL,
    payload JSONB,
    status TEXT NOT NULL DEFAULT 'draft',
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_documents_latest ON documents(session_id, doc_type, created_at DESC);
CREATE TABLE IF NOT EXISTS sources (
    id BIGSERIAL PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
    url TEXT NOT NULL,
    snippet TEXT NOT NULL DEFAULT '',
    provider TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS images (
    id BIGSERIAL PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
    path TEXT NOT NULL,
    mime TEXT NOT NULL DEFAULT '',
    size BIGINT NOT NULL DEFAULT 0,
    sha256 TEXT NOT NULL DEFAULT '',
    role TEXT NOT NULL DEFAULT 'user',
    status TEXT NOT NULL DEFAULT 'uploading',
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_images_session ON images(session_id, status);
CREATE TABLE IF NOT EXISTS visual_guides (
    session_id TEXT PRIMARY KEY REFERENCES sessions(session_id) ON DELETE CASCADE,
    style_direction TEXT NOT NULL,
    palette JSONB NOT NULL,
    imagery JSONB NOT NULL,
    producer_notes TEXT NOT NULL,
    summary TEXT NOT NULL DEFAULT '',
    updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS chat_messages (
    id BIGSERIAL PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_chat_session ON chat_messages(session_id, created_at);
`)
	})
	return s.schemaErr
}

// -------- sessions --------

func (s *PostgresStore) CreateSession(ctx context.Context, sess entity.Session) (entity.Session, error) {
	if err := s.ensureSchema(); err != nil {
		return entity.Session{}, err
	}
	if sess.ID.IsZero() {
		return entity.Session{}, fmt.Errorf("session id is required")
	}
	if sess.Step == "" {
		sess.Step = "welcome"
	}
	if sess.Locale == "" {
		sess.Locale = "en"
	}
	row := s.db.QueryRowContext(ctx, `
INSERT INTO sessions (session_id, user_id, locale, step, subject)
VALUES ($1, $2, $3, $4, $5)
RETURNING created_at, updated_at`,
		sess.ID.String(), sess.UserID.String(), sess.Locale, sess.Step, sess.Subject)
	if err := row.Scan(&sess.CreatedAt, &sess.UpdatedAt); err != nil {
		return entity.Session{}, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) GetSession(ctx context.Context, id entity.SessionID) (entity.Session, error) {
	if err := s.ensureSchema(); err != nil {
		return entity.Session{}, err
	}
	var (
		sess           entity.Session
		rawID, rawUser string
	)
	row := s.db.QueryRowContext(ctx, `
SELECT session_id, user_id, locale, step, subject, created_at, updated_at
FROM sessions WHERE session_id = $1`, id.String())
	err := row.Scan(&rawID, &rawUser, &sess.Locale, &sess.Step, &sess.Subject, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return entity.Session{}, entity.ErrNotFound
	}
	if err != nil {
		return entity.Session{}, fmt.Errorf("get session: %w", err)
	}
	sess.ID = entity.SessionID(rawID)
	sess.UserID = entity.UserID(rawUser)
	return sess, nil
}

func (s *PostgresStore) UpdateSessionStep(ctx context.Context, id entity.SessionID, step string) error {
	if err := s.ensureSchema(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE sessions SET step = $2, updated_at = NOW() WHERE session_id = $1`,
		id.String(), step)
	if err != nil {
		return fmt.Errorf("update session step: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return entity.ErrNotFound
	}
	return nil
}

// -------- documents --------

// LatestDocument returns the most recently created document for the
// (session, doc_type) pair. That row is the authoritative context source
// for later steps; older regenerations remain as history.
func (s *PostgresStore) LatestDocument(ctx context.Context, id entity.SessionID, docType string) (entity.Document, error) {
	if err := s.ensureSchema(); err != nil {
		return entity.Document{}, err
	}
	row := s.db.QueryRowContext(ctx, `
SELECT id, session_id, doc_type, title, content, COALESCE(payload, 'null'::jsonb), status, created_at
FROM documents WHERE session_id = $1 AND doc_type = $2
ORDER BY created_at DESC, id DESC LIMIT 1`, id.String(), docType)
	return scanDocument(row)
}

// SaveStepResult writes a step's document and its sources in one
// transaction so a failed write leaves nothing visible to later steps.
func (s *PostgresStore) SaveStepResult(ctx context.Context, doc entity.Document, sources []entity.Source) (entity.Document, error) {
	if err := s.ensureSchema(); err != nil {
		return entity.Document{}, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return entity.Document{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	payload := []byte("null")
	if len(doc.Payload) > 0 {
		payload = doc.Payload
	}
	row := tx.QueryRowContext(ctx, `
INSERT INTO documents (session_id, doc_type, title, content, payload, status)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, created_at`,
		doc.SessionID.String(), doc.DocType, doc.Title, doc.Content, payload, string(doc.Status))
	if err := row.Scan(&doc.ID, &doc.CreatedAt); err != nil {
		return entity.Document{}, fmt.Errorf("insert document: %w", err)
	}
	for _, src := range sources {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO sources (session_id, url, snippet, provider) VALUES ($1, $2, $3, $4)`,
			src.SessionID.String(), src.URL, src.Snippet, src.Provider); err != nil {
			return entity.Document{}, fmt.Errorf("insert source: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return entity.Document{}, fmt.Errorf("commit: %w", err)
	}
	return doc, nil
}

// ReplaceDocumentContent updates the current (most recent) document row in
// place. Used by chat edits, which supersede content without creating a
// new generation.
func (s *PostgresStore) ReplaceDocumentContent(ctx context.Context, id entity.SessionID, docType, title, content string) (entity.Document, error) {
	if err := s.ensureSchema(); err != nil {
		return entity.Document{}, err
	}
	row := s.db.QueryRowContext(ctx, `
UPDATE documents SET content = $3, title = CASE WHEN $4 = '' THEN title ELSE $4 END
WHERE id = (
    SELECT id FROM documents WHERE session_id = $1 AND doc_type = $2
    ORDER BY created_at DESC, id DESC LIMIT 1
)
RETURNING id, session_id, doc_type, title, content, COALESCE(payload, 'null'::jsonb), status, created_at`,
		id.String(), docType, content, strings.TrimSpace(title))
	return scanDocument(row)
}

func (s *PostgresStore) SetDocumentStatus(ctx context.Context, id entity.SessionID, docType string, status entity.DocumentStatus) error {
	if err := s.ensureSchema(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE documents SET status = $3
WHERE id = (
    SELECT id FROM documents WHERE session_id = $1 AND doc_type = $2
    ORDER BY created_at DESC, id DESC LIMIT 1
)`, id.String(), docType, string(status))
	if err != nil {
		return fmt.Errorf("set document status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return entity.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (entity.Document, error) {
	var (
		doc           entity.Document
		rawID, status string
		payload       []byte
	)
	err := row.Scan(&doc.ID, &rawID, &doc.DocType, &doc.Title, &doc.Content, &payload, &status, &doc.CreatedAt)
	if err == sql.ErrNoRows {
		return entity.Document{}, entity.ErrNotFound
	}
	if err != nil {
		return entity.Document{}, fmt.Errorf("scan document: %w", err)
	}
	doc.SessionID = entity.SessionID(rawID)
	doc.Status = entity.DocumentStatus(status)
	if string(payload) != "null" {
		doc.Payload = json.RawMessage(payload)
	}
	return doc, nil
}

// -------- images --------

func (s *PostgresStore) CreateImage(ctx context.Context, img entity.Image) (entity.Image, error) {
	if err := s.ensureSchema(); err != nil {
		return entity.Image{}, err
	}
	row := s.db.QueryRowContext(ctx, `
INSERT INTO images (session_id, path, mime, size, sha256, role, status)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, created_at`,
		img.SessionID.String(), img.Path, img.MIME, img.Size, img.SHA256, string(img.Role), string(img.Status))
	if err := row.Scan(&img.ID, &img.CreatedAt); err != nil {
		return entity.Image{}, fmt.Errorf("insert image: %w", err)
	}
	return img, nil
}

func (s *PostgresStore) ListImages(ctx context.Context, id entity.SessionID) ([]entity.Image, error) {
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, session_id, path, mime, size, sha256, role, status, created_at
FROM images WHERE session_id = $1 ORDER BY created_at, id`, id.String())
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()

	var out []entity.Image
	for rows.Next() {
		var (
			img                 entity.Image
			rawID, role, status string
		)
		if err := rows.Scan(&img.ID, &rawID, &img.Path, &img.MIME, &img.Size, &img.SHA256, &role, &status, &img.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		img.SessionID = entity.SessionID(rawID)
		img.Role = entity.ImageRole(role)
		img.Status = entity.ImageStatus(status)
		out = append(out, img)
	}
	return out, rows.Err()
}

// -------- visual guides --------

// SaveVisualAnalysis upserts the guide and flips the analyzed batch in one
// transaction: either the whole analysis lands or none of it does.
func (s *PostgresStore) SaveVisualAnalysis(ctx context.Context, guide entity.VisualGuide, imageIDs []int64) (entity.VisualGuide, error) {
	if err := s.ensureSchema(); err != nil {
		return entity.VisualGuide{}, err
	}
	palette, err := json.Marshal(guide.Palette)
	if err != nil {
		return entity.VisualGuide{}, fmt.Errorf("marshal palette: %w", err)
	}
	imagery, err := json.Marshal(guide.Imagery)
	if err != nil {
		return entity.VisualGuide{}, fmt.Errorf("marshal imagery: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return entity.VisualGuide{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
INSERT INTO visual_guides (session_id, style_direction, palette, imagery, producer_notes, summary, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW())
ON CONFLICT (session_id) DO UPDATE SET
    style_direction = EXCLUDED.style_direction,
    palette = EXCLUDED.palette,
    imagery = EXCLUDED.imagery,
    producer_notes = EXCLUDED.producer_notes,
    summary = EXCLUDED.summary,
    updated_at = NOW()
RETURNING updated_at`,
		guide.SessionID.String(), guide.StyleDirection, palette, imagery, guide.ProducerNotes, guide.Summary)
	if err := row.Scan(&guide.UpdatedAt); err != nil {
		return entity.VisualGuide{}, fmt.Errorf("upsert visual guide: %w", err)
	}

	for _, imgID := range imageIDs {
		if _, err := tx.ExecContext(ctx, `
UPDATE images SET status = 'analyzed'
WHERE id = $1 AND session_id = $2 AND status IN ('uploaded', 'analyzed')`,
			imgID, guide.SessionID.String()); err != nil {
			return entity.VisualGuide{}, fmt.Errorf("transition image %d: %w", imgID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return entity.VisualGuide{}, fmt.Errorf("commit: %w", err)
	}
	return guide, nil
}

func (s *PostgresStore) GetVisualGuide(ctx context.Context, id entity.SessionID) (entity.VisualGuide, error) {
	if err := s.ensureSchema(); err != nil {
		return entity.VisualGuide{}, err
	}
	var (
		guide            entity.VisualGuide
		rawID            string
		palette, imagery []byte
	)
	row := s.db.QueryRowContext(ctx, `
SELECT session_id, style_direction, palette, imagery, producer_notes, summary, updated_at
FROM visual_guides WHERE session_id = $1`, id.String())
	err := row.Scan(&rawID, &guide.StyleDirection, &palette, &imagery, &guide.ProducerNotes, &guide.Summary, &guide.UpdatedAt)
	if err == sql.ErrNoRows {
		return entity.VisualGuide{}, entity.ErrNotFound
	}
	if err != nil {
		return entity.VisualGuide{}, fmt.Errorf("get visual guide: %w", err)
	}
	guide.SessionID = entity.SessionID(rawID)
	if err := json.Unmarshal(palette, &guide.Palette); err != nil {
		return entity.VisualGuide{}, fmt.Errorf("unmarshal palette: %w", err)
	}
	if err := json.Unmarshal(imagery, &guide.Imagery); err != nil {
		return entity.VisualGuide{}, fmt.Errorf("unmarshal imagery: %w", err)
	}
	return guide, nil
}

// -------- chat --------

func (s *PostgresStore) AppendChatMessage(ctx context.Context, msg entity.ChatMessage) (entity.ChatMessage, error) {
	if err := s.ensureSchema(); err != nil {
		return entity.ChatMessage{}, err
	}
	row := s.db.QueryRowContext(ctx, `
INSERT INTO chat_messages (session_id, role, content) VALUES ($1, $2, $3)
RETURNING id, created_at`,
		msg.SessionID.String(), string(msg.Role), msg.Content)
	if err := row.Scan(&msg.ID, &msg.CreatedAt); err != nil {
		return entity.ChatMessage{}, fmt.Errorf("insert chat message: %w", err)
	}
	return msg, nil
}

func (s *PostgresStore) ListChatMessages(ctx context.Context, id entity.SessionID, limit int) ([]entity.ChatMessage, error) {
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, session_id, role, content, created_at
FROM chat_messages WHERE session_id = $1 ORDER BY created_at, id LIMIT $2`,
		id.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	defer rows.Close()

	var out []entity.ChatMessage
	for rows.Next() {
		var (
			msg         entity.ChatMessage
			rawID, role string
		)
		if err := rows.Scan(&msg.ID, &rawID, &role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		msg.SessionID = entity.SessionID(rawID)
		msg.Role = entity.ChatRole(role)
		out = append(out, msg)
	}
	return out, rows.Err()
}
