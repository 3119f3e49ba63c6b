package entity

import (
	"time"

	"github.com/google/uuid"
)

// ChatSession is the single authoritative chat for one document fingerprint.
type ChatSession struct {
	Id           uuid.UUID
	FileHash     string
	ContextUnits []ContextUnit
	Messages     []Message
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ContextUnit is one page of source material. An empty Summary means not yet summarized.
type ContextUnit struct {
	Text       string
	PageNumber int
	Summary    string
}

func (u ContextUnit) HasSummary() bool {
	return u.Summary != ""
}

// LastMessages returns up to n of the most recent messages, oldest first.
func (s *ChatSession) LastMessages(n int) []Message {
	if n <= 0 || len(s.Messages) <= n {
		return s.Messages
	}
	return s.Messages[len(s.Messages)-n:]
}

// Clone returns a deep copy so callers can mutate without touching stored state.
func (s *ChatSession) Clone() *ChatSession {
	if s == nil {
		return nil
	}
	out := *s
	out.ContextUnits = append([]ContextUnit(nil), s.ContextUnits...)
	out.Messages = make([]Message, len(s.Messages))
	for i, m := range s.Messages {
		out.Messages[i] = m.clone()
	}
	return &out
}
