package mapper

import (
	"pdfchat-be/internal/entity"
	"pdfchat-be/internal/model"

	"gorm.io/datatypes"
)

type ChatMapper struct{}

func NewChatMapper() *ChatMapper {
	return &ChatMapper{}
}

// Session Mappers

func (m *ChatMapper) ChatSessionToEntity(s *model.ChatSession) *entity.ChatSession {
	if s == nil {
		return nil
	}

	return &entity.ChatSession{
		Id:           s.Id,
		FileHash:     s.FileHash,
		ContextUnits: m.PdfPagesToEntities(s.PdfContext),
		Messages:     m.ChatMessagesToEntities(s.ChatMessages),
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

func (m *ChatMapper) ChatSessionToModel(s *entity.ChatSession) *model.ChatSession {
	if s == nil {
		return nil
	}

	return &model.ChatSession{
		Id:           s.Id,
		FileHash:     s.FileHash,
		PdfContext:   datatypes.NewJSONSlice(m.ContextUnitsToModels(s.ContextUnits)),
		ChatMessages: datatypes.NewJSONSlice(m.MessagesToModels(s.Messages)),
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

// Page Mappers

func (m *ChatMapper) PdfPagesToEntities(pages []model.PdfPage) []entity.ContextUnit {
	units := make([]entity.ContextUnit, len(pages))
	for i, p := range pages {
		units[i] = entity.ContextUnit{
			Text:       p.Text,
			PageNumber: p.PageNumber,
			Summary:    p.Summary,
		}
	}
	return units
}

func (m *ChatMapper) ContextUnitsToModels(units []entity.ContextUnit) []model.PdfPage {
	pages := make([]model.PdfPage, len(units))
	for i, u := range units {
		pages[i] = model.PdfPage{
			Text:       u.Text,
			PageNumber: u.PageNumber,
			Summary:    u.Summary,
		}
	}
	return pages
}

// Message Mappers

func (m *ChatMapper) ChatMessagesToEntities(messages []model.ChatMessage) []entity.Message {
	out := make([]entity.Message, len(messages))
	for i, msg := range messages {
		out[i] = m.ChatMessageToEntity(msg)
	}
	return out
}

func (m *ChatMapper) ChatMessageToEntity(msg model.ChatMessage) entity.Message {
	if msg.Type != model.ChatMessageTypeAI {
		// Legacy or unknown types are treated as user turns; user turns never carry citations.
		return entity.NewUserMessage(msg.Id, msg.Message, msg.UserId, msg.Timestamp)
	}

	citations := make([]entity.Citation, len(msg.Citations))
	for i, c := range msg.Citations {
		citations[i] = entity.Citation{Page: c.Page, Text: c.Text}
	}
	out := entity.NewAssistantMessage(msg.Id, msg.Message, msg.Timestamp, citations)
	if msg.UserId != "" {
		out.Author = msg.UserId
	}
	return out
}

func (m *ChatMapper) MessagesToModels(messages []entity.Message) []model.ChatMessage {
	out := make([]model.ChatMessage, len(messages))
	for i, msg := range messages {
		out[i] = m.MessageToModel(msg)
	}
	return out
}

func (m *ChatMapper) MessageToModel(msg entity.Message) model.ChatMessage {
	out := model.ChatMessage{
		Id:        msg.Id,
		Message:   msg.Body,
		Timestamp: msg.Timestamp,
		UserId:    msg.Author,
		Type:      model.ChatMessageTypeUser,
	}
	if !msg.IsAssistant() {
		return out
	}

	out.Type = model.ChatMessageTypeAI
	out.Citations = make([]model.ChatCitation, len(msg.Citations))
	for i, c := range msg.Citations {
		out.Citations[i] = model.ChatCitation{Page: c.Page, Text: c.Text}
	}
	return out
}
