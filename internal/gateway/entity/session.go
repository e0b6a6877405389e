package entity

import (
	"strings"
	"time"
)

// SessionID identifies one wizard run.
type SessionID string

func NormalizeSessionID(raw string) SessionID {
	return SessionID(strings.TrimSpace(raw))
}

func (id SessionID) String() string {
	return strings.TrimSpace(string(id))
}

func (id SessionID) IsZero() bool {
	return id.String() == ""
}

// Session is one wizard run: who owns it, which locale the content is
// produced in, and which step the wizard currently points at.
type Session struct {
	ID        SessionID
	UserID    UserID
	Locale    string
	Step      string
	Subject   string // company name or site URL the research is about
	CreatedAt time.Time
	UpdatedAt time.Time
}
