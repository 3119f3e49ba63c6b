package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"pdfchat-be/internal/entity"
	"pdfchat-be/internal/mapper"
	"pdfchat-be/internal/model"
	"pdfchat-be/internal/pkg/apperror"

	"github.com/oklog/ulid/v2"
)

const (
	MsgPdfContextRequired  = "PDF context array is required"
	MsgPdfContextMalformed = "PDF context must be an array of objects with 'text' and 'pageNumber' properties"
	MsgPageNumbersInvalid  = "PDF context page numbers must be unique positive integers"
	MsgChatMessagesInvalid = "Chat messages must be an array of objects with 'message' and 'type' properties"
)

// IsJSONArray reports whether raw holds a JSON array (as opposed to being absent, null or another kind).
func IsJSONArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}

// ParseContextUnits validates a caller-supplied pdfContext array: objects with a string `text`,
// an integral numeric `pageNumber` and an optional string `summary`.
func ParseContextUnits(raw json.RawMessage) ([]entity.ContextUnit, error) {
	if !IsJSONArray(raw) {
		return nil, apperror.Validation(MsgPdfContextRequired)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, apperror.Validation(MsgPdfContextRequired)
	}

	units := make([]entity.ContextUnit, 0, len(items))
	for _, item := range items {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(item, &fields); err != nil || fields == nil {
			return nil, apperror.Validation(MsgPdfContextMalformed)
		}

		text, ok := jsonString(fields["text"])
		if !ok {
			return nil, apperror.Validation(MsgPdfContextMalformed)
		}
		page, ok := jsonInt(fields["pageNumber"])
		if !ok {
			return nil, apperror.Validation(MsgPdfContextMalformed)
		}

		unit := entity.ContextUnit{Text: text, PageNumber: page}
		if rawSummary, present := fields["summary"]; present && !isJSONNull(rawSummary) {
			summary, ok := jsonString(rawSummary)
			if !ok {
				return nil, apperror.Validation(MsgPdfContextMalformed)
			}
			unit.Summary = summary
		}
		units = append(units, unit)
	}

	if err := ValidateContextUnits(units); err != nil {
		return nil, err
	}
	return units, nil
}

// ValidateContextUnits enforces 1-based page numbers, unique within the batch.
func ValidateContextUnits(units []entity.ContextUnit) error {
	if units == nil {
		return apperror.Validation(MsgPdfContextRequired)
	}
	seen := make(map[int]struct{}, len(units))
	for _, u := range units {
		if u.PageNumber < 1 {
			return apperror.Validation(MsgPageNumbersInvalid)
		}
		if _, dup := seen[u.PageNumber]; dup {
			return apperror.Validation(MsgPageNumbersInvalid)
		}
		seen[u.PageNumber] = struct{}{}
	}
	return nil
}

type wireChatMessage struct {
	Id        string               `json:"id"`
	Message   *string              `json:"message"`
	Timestamp *time.Time           `json:"timestamp"`
	UserId    string               `json:"userId"`
	Type      string               `json:"type"`
	Citations []model.ChatCitation `json:"citations"`
}

// ParseChatMessages reads the chatMessages array of a partial update. Missing ids and timestamps
// are assigned here; type must be "user" or "ai".
func ParseChatMessages(raw json.RawMessage) ([]entity.Message, error) {
	if !IsJSONArray(raw) {
		return nil, apperror.Validation(MsgChatMessagesInvalid)
	}

	var items []wireChatMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, apperror.Validation(MsgChatMessagesInvalid)
	}

	m := mapper.NewChatMapper()
	now := time.Now()
	out := make([]entity.Message, 0, len(items))
	for _, item := range items {
		if item.Message == nil {
			return nil, apperror.Validation(MsgChatMessagesInvalid)
		}
		if item.Type != model.ChatMessageTypeUser && item.Type != model.ChatMessageTypeAI {
			return nil, apperror.Validation(fmt.Sprintf("%s (got type %q)", MsgChatMessagesInvalid, item.Type))
		}

		persisted := model.ChatMessage{
			Id:        item.Id,
			Message:   *item.Message,
			Timestamp: now,
			UserId:    item.UserId,
			Type:      item.Type,
			Citations: item.Citations,
		}
		if persisted.Id == "" {
			persisted.Id = ulid.Make().String()
		}
		if item.Timestamp != nil {
			persisted.Timestamp = *item.Timestamp
		}
		out = append(out, m.ChatMessageToEntity(persisted))
	}
	return out, nil
}

func isJSONNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func jsonString(raw json.RawMessage) (string, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return "", false
	}
	return s, true
}

// jsonInt accepts JSON numbers with an integral value (2 and 2.0) and rejects strings.
func jsonInt(raw json.RawMessage) (int, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] == '"' || isJSONNull(trimmed) {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(trimmed, &f); err != nil {
		return 0, false
	}
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}
