package mapper

import (
	"encoding/json"
	"testing"
	"time"

	"pdfchat-be/internal/entity"
	"pdfchat-be/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatMessageToEntity_RoleMapping(t *testing.T) {
	m := NewChatMapper()
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	user := m.ChatMessageToEntity(model.ChatMessage{
		Id: "1", Message: "hi", Timestamp: ts, UserId: "conn-1", Type: "user",
		Citations: []model.ChatCitation{{Page: 1, Text: "ignored"}},
	})
	assert.Equal(t, entity.RoleUser, user.Role)
	assert.Empty(t, user.Citations)
	assert.Equal(t, "conn-1", user.Author)

	legacy := m.ChatMessageToEntity(model.ChatMessage{Id: "2", Message: "old", Type: "system"})
	assert.Equal(t, entity.RoleUser, legacy.Role)

	ai := m.ChatMessageToEntity(model.ChatMessage{Id: "3", Message: "answer", Type: "ai"})
	assert.Equal(t, entity.RoleAssistant, ai.Role)
	assert.Equal(t, entity.AssistantAuthor, ai.Author)
	assert.NotNil(t, ai.Citations)
}

func TestMessageToModel_UserNeverCarriesCitations(t *testing.T) {
	m := NewChatMapper()
	msg := entity.NewUserMessage("1", "q", "conn-1", time.Now())
	msg.Citations = []entity.Citation{{Page: 2, Text: "smuggled"}}

	out := m.MessageToModel(msg)
	assert.Equal(t, model.ChatMessageTypeUser, out.Type)
	assert.Nil(t, out.Citations)

	ai := m.MessageToModel(entity.NewAssistantMessage("2", "a", time.Now(), []entity.Citation{{Page: 2, Text: "x"}}))
	assert.Equal(t, model.ChatMessageTypeAI, ai.Type)
	assert.Equal(t, "ai", ai.UserId)
	assert.Len(t, ai.Citations, 1)
}

func TestMessageToSocketPayload_FlattensFileHash(t *testing.T) {
	m := NewChatMapper()
	msg := entity.NewAssistantMessage("a1", "It is about cats.", time.Now(), []entity.Citation{{Page: 2, Text: "cats"}})

	raw, err := json.Marshal(m.MessageToSocketPayload(msg, "abc123"))
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "abc123", body["fileHash"])
	assert.Equal(t, "ai", body["type"])
	assert.Equal(t, "It is about cats.", body["message"])
	assert.Len(t, body["citations"], 1)
}

func TestSessionToResponse_EmptyCollectionsAreArrays(t *testing.T) {
	m := NewChatMapper()
	raw, err := json.Marshal(m.SessionToResponse(&entity.ChatSession{FileHash: "abc123"}))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"pdfContext":[]`)
	assert.Contains(t, string(raw), `"chatMessages":[]`)
}
