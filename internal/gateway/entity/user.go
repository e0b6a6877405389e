package entity

import "strings"

const DemoUserID UserID = "demo-user"

// UserID scopes sessions to their owner. There is no account system yet;
// unauthenticated callers run under DemoUserID.
type UserID string

func NormalizeUserID(raw string) UserID {
	return UserID(strings.TrimSpace(raw))
}

func (id UserID) String() string {
	return strings.TrimSpace(string(id))
}

func (id UserID) IsZero() bool {
	return id.String() == ""
}
