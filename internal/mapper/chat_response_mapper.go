package mapper

import (
	"pdfchat-be/internal/dto"
	"pdfchat-be/internal/entity"
	"pdfchat-be/internal/model"
)

// Response Mappers

func (m *ChatMapper) SessionToResponse(s *entity.ChatSession) *dto.ChatSessionResponse {
	if s == nil {
		return nil
	}
	return &dto.ChatSessionResponse{
		FileHash:     s.FileHash,
		PdfContext:   m.ContextUnitsToResponse(s.ContextUnits),
		ChatMessages: m.MessagesToResponse(s.Messages),
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

func (m *ChatMapper) ContextUnitsToResponse(units []entity.ContextUnit) []dto.PdfPageResponse {
	out := make([]dto.PdfPageResponse, len(units))
	for i, u := range units {
		out[i] = dto.PdfPageResponse{
			Text:       u.Text,
			PageNumber: u.PageNumber,
			Summary:    u.Summary,
		}
	}
	return out
}

func (m *ChatMapper) MessagesToResponse(messages []entity.Message) []dto.ChatMessageResponse {
	out := make([]dto.ChatMessageResponse, len(messages))
	for i, msg := range messages {
		out[i] = m.MessageToResponse(msg)
	}
	return out
}

func (m *ChatMapper) MessageToResponse(msg entity.Message) dto.ChatMessageResponse {
	res := dto.ChatMessageResponse{
		Id:        msg.Id,
		Message:   msg.Body,
		Timestamp: msg.Timestamp,
		UserId:    msg.Author,
		Type:      model.ChatMessageTypeUser,
	}
	if msg.IsAssistant() {
		res.Type = model.ChatMessageTypeAI
		res.Citations = make([]dto.CitationResponse, len(msg.Citations))
		for i, c := range msg.Citations {
			res.Citations[i] = dto.CitationResponse{Page: c.Page, Text: c.Text}
		}
	}
	return res
}

func (m *ChatMapper) MessageToSocketPayload(msg entity.Message, fileHash string) dto.SocketMessagePayload {
	return dto.SocketMessagePayload{
		ChatMessageResponse: m.MessageToResponse(msg),
		FileHash:            fileHash,
	}
}
