package dto

import (
	"encoding/json"
	"time"
)

// REST requests. pdfContext and chatMessages stay raw so the service can report the
// exact shape violation.

type CreateChatSessionRequest struct {
	FileHash   string          `json:"fileHash" validate:"required" msg:"File hash is required"`
	PdfContext json.RawMessage `json:"pdfContext"`
}

type FileHashRequest struct {
	FileHash string `json:"fileHash" validate:"required" msg:"File hash is required"`
}

type UpdateChatSessionRequest struct {
	FileHash     string          `json:"fileHash" validate:"required" msg:"File hash is required"`
	PdfContext   json.RawMessage `json:"pdfContext,omitempty"`
	ChatMessages json.RawMessage `json:"chatMessages,omitempty"`
}

type SendChatMessageRequest struct {
	Message      string `json:"message" validate:"required" msg:"Message is required"`
	SystemPrompt string `json:"systemPrompt,omitempty"`
	UserId       string `json:"userId,omitempty"`
	FileHash     string `json:"fileHash" validate:"required" msg:"File hash is required"`
}

// REST responses

type PdfPageResponse struct {
	Text       string `json:"text"`
	PageNumber int    `json:"pageNumber"`
	Summary    string `json:"summary,omitempty"`
}

type CitationResponse struct {
	Page int    `json:"page"`
	Text string `json:"text"`
}

type ChatMessageResponse struct {
	Id        string             `json:"id"`
	Message   string             `json:"message"`
	Timestamp time.Time          `json:"timestamp"`
	UserId    string             `json:"userId,omitempty"`
	Type      string             `json:"type"`
	Citations []CitationResponse `json:"citations,omitempty"`
}

type ChatSessionResponse struct {
	FileHash     string                `json:"fileHash"`
	PdfContext   []PdfPageResponse     `json:"pdfContext"`
	ChatMessages []ChatMessageResponse `json:"chatMessages"`
	CreatedAt    time.Time             `json:"createdAt"`
	UpdatedAt    time.Time             `json:"updatedAt"`
}

type ChatSessionResult struct {
	Success  bool                 `json:"success"`
	FileHash string               `json:"fileHash"`
	Message  string               `json:"message,omitempty"`
	Session  *ChatSessionResponse `json:"session,omitempty"`
}

type SendChatMessageResponse struct {
	Success   bool      `json:"success"`
	Response  string    `json:"response"`
	FileHash  string    `json:"fileHash"`
	Timestamp time.Time `json:"timestamp"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}
