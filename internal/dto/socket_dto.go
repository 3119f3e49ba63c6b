package dto

// Client -> server event names.
const (
	EventJoinFile    = "join_file"
	EventLeaveFile   = "leave_file"
	EventSendMessage = "send_message"
	EventTypingStart = "typing_start"
	EventTypingStop  = "typing_stop"
)

// Server -> client event names.
const (
	EventChatHistory       = "chat_history"
	EventUserJoinedFile    = "user_joined_file"
	EventUserLeftFile      = "user_left_file"
	EventMessageReceived   = "message_received"
	EventAIResponse        = "ai_response"
	EventError             = "error"
	EventUserTyping        = "user_typing"
	EventUserStoppedTyping = "user_stopped_typing"
)

// Error codes carried in ErrorPayload.Error.
const (
	ErrCodeFileHashRequired    = "FILE_HASH_REQUIRED"
	ErrCodeChatSessionNotFound = "CHAT_SESSION_NOT_FOUND"
	ErrCodeInvalidPayload      = "INVALID_PAYLOAD"
	ErrCodeUnknownEvent        = "UNKNOWN_EVENT"
)

type JoinFileEvent struct {
	FileHash string `json:"fileHash"`
	UserId   string `json:"userId,omitempty"`
}

type LeaveFileEvent struct {
	FileHash string `json:"fileHash"`
	UserId   string `json:"userId,omitempty"`
}

type SendMessageEvent struct {
	Message  string `json:"message"`
	FileHash string `json:"fileHash"`
	UserId   string `json:"userId,omitempty"`
}

type TypingEvent struct {
	FileHash string `json:"fileHash,omitempty"`
}

type ChatHistoryPayload struct {
	FileHash   string                `json:"fileHash"`
	Messages   []ChatMessageResponse `json:"messages"`
	PdfContext []PdfPageResponse     `json:"pdfContext"`
}

type PresencePayload struct {
	FileHash string `json:"fileHash"`
	UserId   string `json:"userId"`
}

// SocketMessagePayload is a chat message plus the document it belongs to.
type SocketMessagePayload struct {
	ChatMessageResponse
	FileHash string `json:"fileHash"`
}

type TypingPayload struct {
	UserId   string `json:"userId"`
	FileHash string `json:"fileHash,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}
