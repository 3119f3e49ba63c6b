package events

import "time"

const (
	TypeSessionCreated         = "SESSION_CREATED"
	TypeSessionContextReplaced = "SESSION_CONTEXT_REPLACED"
	TypeSessionDeleted         = "SESSION_DELETED"
	TypeChatTurnCompleted      = "CHAT_TURN_COMPLETED"
)

func NewSessionCreated(fileHash string) BaseEvent {
	return BaseEvent{
		Type:       TypeSessionCreated,
		Data:       map[string]interface{}{"fileHash": fileHash},
		OccurredAt: time.Now(),
	}
}

func NewSessionContextReplaced(fileHash string, pages int) BaseEvent {
	return BaseEvent{
		Type:       TypeSessionContextReplaced,
		Data:       map[string]interface{}{"fileHash": fileHash, "pages": pages},
		OccurredAt: time.Now(),
	}
}

func NewSessionDeleted(fileHash string) BaseEvent {
	return BaseEvent{
		Type:       TypeSessionDeleted,
		Data:       map[string]interface{}{"fileHash": fileHash},
		OccurredAt: time.Now(),
	}
}

// NewChatTurnCompleted describes one finished turn. degraded is true when the answer is the apology.
func NewChatTurnCompleted(fileHash, userMessageID, aiMessageID string, citations int, degraded bool, took time.Duration) BaseEvent {
	return BaseEvent{
		Type: TypeChatTurnCompleted,
		Data: map[string]interface{}{
			"fileHash":      fileHash,
			"userMessageId": userMessageID,
			"aiMessageId":   aiMessageID,
			"citations":     citations,
			"degraded":      degraded,
			"durationMs":    took.Milliseconds(),
		},
		OccurredAt: time.Now(),
	}
}
