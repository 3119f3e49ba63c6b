package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ChatSession mirrors the persisted session document; pages and messages live in jsonb columns.
type ChatSession struct {
	Id           uuid.UUID                        `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	FileHash     string                           `gorm:"type:text;not null;uniqueIndex:idx_chat_sessions_file_hash"`
	PdfContext   datatypes.JSONSlice[PdfPage]     `gorm:"type:jsonb;not null;default:'[]'"`
	ChatMessages datatypes.JSONSlice[ChatMessage] `gorm:"type:jsonb;not null;default:'[]'"`
	CreatedAt    time.Time                        `gorm:"autoCreateTime"`
	UpdatedAt    time.Time                        `gorm:"autoUpdateTime"`
}

func (ChatSession) TableName() string {
	return "chat_sessions"
}

type PdfPage struct {
	Text       string `json:"text"`
	PageNumber int    `json:"pageNumber"`
	Summary    string `json:"summary,omitempty"`
}

type ChatMessage struct {
	Id        string         `json:"id"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	UserId    string         `json:"userId,omitempty"`
	Type      string         `json:"type"` // "user" | "ai"
	Citations []ChatCitation `json:"citations,omitempty"`
}

type ChatCitation struct {
	Page int    `json:"page"`
	Text string `json:"text"`
}

const (
	ChatMessageTypeUser = "user"
	ChatMessageTypeAI   = "ai"
)
