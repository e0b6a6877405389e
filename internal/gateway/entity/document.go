package entity

import (
	"encoding/json"
	"time"
)

// DocumentStatus is the lifecycle flag of a persisted document.
// The generation pipeline always writes StatusDraft; StatusApproved is set
// only by an explicit user or chat approval action.
type DocumentStatus string

const (
	DocumentDraft    DocumentStatus = "draft"
	DocumentApproved DocumentStatus = "approved"
)

// Document is one persisted artifact per (session, doc_type). The most
// recently created row per (session, doc_type) is the authoritative context
// source for later steps; regenerations supersede by creation time.
type Document struct {
	ID        int64
	SessionID SessionID
	DocType   string
	Title     string
	Content   string // markdown body
	Payload   json.RawMessage
	Status    DocumentStatus
	CreatedAt time.Time
}

// Source is a citation produced by research. Append-only; never mutated.
type Source struct {
	ID        int64
	SessionID SessionID
	URL       string
	Snippet   string
	Provider  string
	CreatedAt time.Time
}

// ChatRole is the author of a chat message.
type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatMessage is one entry of the ordered, append-only session chat log.
type ChatMessage struct {
	ID        int64
	SessionID SessionID
	Role      ChatRole
	Content   string
	CreatedAt time.Time
}
