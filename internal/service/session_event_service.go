package service

import (
	"context"
	"time"

	"pdfchat-be/internal/dto"
	"pdfchat-be/internal/entity"
	"pdfchat-be/internal/mapper"
	"pdfchat-be/internal/metrics"
	"pdfchat-be/internal/pkg/logger"
	"pdfchat-be/pkg/events"
	"pdfchat-be/pkg/llm"
	"pdfchat-be/pkg/reasoning"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	ApologyMessage = "I apologize, but I encountered an error processing your request."

	msgProcessFailed = "Failed to process your message"
	msgJoinFailed    = "Failed to join file"

	outcomeAnswered = "answered"
	outcomeDegraded = "degraded"
)

var tracer = otel.Tracer("pdfchat-be/service")

// ISessionEventService reacts to realtime events from one connection. Outcomes, including
// failures, are reported to clients through the RoomBroker rather than returned.
type ISessionEventService interface {
	JoinFile(ctx context.Context, connID string, req dto.JoinFileEvent)
	LeaveFile(ctx context.Context, connID string, req dto.LeaveFileEvent)
	SendMessage(ctx context.Context, connID string, req dto.SendMessageEvent)
	TypingStart(ctx context.Context, connID string, req dto.TypingEvent)
	TypingStop(ctx context.Context, connID string, req dto.TypingEvent)
	Disconnect(ctx context.Context, connID string)
}

type sessionEventService struct {
	broker        RoomBroker
	sessions      IChatSessionService
	gateway       ReasoningGateway
	publisher     IPublisherService
	mapper        *mapper.ChatMapper
	historyWindow int
	logger        logger.ILogger
	metrics       *metrics.Metrics
}

func NewSessionEventService(
	broker RoomBroker,
	sessions IChatSessionService,
	gateway ReasoningGateway,
	publisher IPublisherService,
	historyWindow int,
	log logger.ILogger,
	m *metrics.Metrics,
) ISessionEventService {
	if historyWindow <= 0 {
		historyWindow = reasoning.DefaultHistoryWindow
	}
	return &sessionEventService{
		broker:        broker,
		sessions:      sessions,
		gateway:       gateway,
		publisher:     publisher,
		mapper:        mapper.NewChatMapper(),
		historyWindow: historyWindow,
		logger:        log,
		metrics:       m,
	}
}

func (s *sessionEventService) JoinFile(ctx context.Context, connID string, req dto.JoinFileEvent) {
	if req.FileHash == "" {
		s.emitError(connID, MsgFileHashRequired, dto.ErrCodeFileHashRequired)
		return
	}

	if err := s.broker.Join(connID, req.FileHash); err != nil {
		s.logger.Error("SessionEventService", "Failed to join room", map[string]interface{}{
			"conn_id":   connID,
			"file_hash": req.FileHash,
			"error":     err,
		})
		s.emitError(connID, msgJoinFailed, err.Error())
		return
	}

	session, err := s.sessions.GetByFingerprint(ctx, req.FileHash)
	if err != nil {
		s.logger.Error("SessionEventService", "Failed to load chat history", map[string]interface{}{
			"conn_id":   connID,
			"file_hash": req.FileHash,
			"error":     err,
		})
		s.emitError(connID, msgJoinFailed, err.Error())
		return
	}

	history := dto.ChatHistoryPayload{
		FileHash:   req.FileHash,
		Messages:   []dto.ChatMessageResponse{},
		PdfContext: []dto.PdfPageResponse{},
	}
	if session != nil {
		history.Messages = s.mapper.MessagesToResponse(session.Messages)
		history.PdfContext = s.mapper.ContextUnitsToResponse(session.ContextUnits)
	}
	s.emit(s.broker.EmitToConnection(connID, dto.EventChatHistory, history), dto.EventChatHistory, req.FileHash)

	presence := dto.PresencePayload{FileHash: req.FileHash, UserId: connID}
	s.emit(s.broker.BroadcastToRoomExcept(req.FileHash, dto.EventUserJoinedFile, presence, connID), dto.EventUserJoinedFile, req.FileHash)

	s.logger.Info("SessionEventService", "Connection joined file", map[string]interface{}{
		"conn_id":   connID,
		"user_id":   req.UserId,
		"file_hash": req.FileHash,
	})
}

func (s *sessionEventService) LeaveFile(ctx context.Context, connID string, req dto.LeaveFileEvent) {
	if req.FileHash == "" {
		return
	}

	if err := s.broker.Leave(connID, req.FileHash); err != nil {
		s.logger.Error("SessionEventService", "Failed to leave room", map[string]interface{}{
			"conn_id":   connID,
			"file_hash": req.FileHash,
			"error":     err,
		})
		return
	}

	presence := dto.PresencePayload{FileHash: req.FileHash, UserId: connID}
	s.emit(s.broker.EmitToRoom(req.FileHash, dto.EventUserLeftFile, presence), dto.EventUserLeftFile, req.FileHash)

	s.logger.Info("SessionEventService", "Connection left file", map[string]interface{}{
		"conn_id":   connID,
		"file_hash": req.FileHash,
	})
}

// SendMessage runs one chat turn: receipt to the sender, reasoning call, one atomic append of
// both messages, then the answer to the whole room. Once the receipt is out the turn always
// ends with an ai_response, degraded to the apology if the reasoning service fails.
func (s *sessionEventService) SendMessage(ctx context.Context, connID string, req dto.SendMessageEvent) {
	if req.FileHash == "" {
		s.emitError(connID, MsgFileHashRequired, dto.ErrCodeFileHashRequired)
		return
	}

	started := time.Now()
	ctx, span := tracer.Start(ctx, "chat.turn")
	defer span.End()
	span.SetAttributes(
		attribute.String("chat.file_hash", req.FileHash),
		attribute.String("chat.conn_id", connID),
	)

	// The sender always receives the broadcast, even without an explicit join.
	if err := s.broker.Join(connID, req.FileHash); err != nil {
		s.logger.Warn("SessionEventService", "Failed to join sender to room", map[string]interface{}{
			"conn_id":   connID,
			"file_hash": req.FileHash,
			"error":     err.Error(),
		})
	}

	session, err := s.sessions.GetByFingerprint(ctx, req.FileHash)
	if err != nil {
		s.logger.Error("SessionEventService", "Failed to load chat session", map[string]interface{}{
			"conn_id":   connID,
			"file_hash": req.FileHash,
			"error":     err,
		})
		span.SetStatus(codes.Error, "session lookup failed")
		s.emitError(connID, msgProcessFailed, err.Error())
		return
	}
	if session == nil {
		s.emitError(connID, MsgChatSessionNotFound, dto.ErrCodeChatSessionNotFound)
		return
	}

	// RECEIVED -> ACK_SENT
	author := req.UserId
	if author == "" {
		author = connID
	}
	userMsg := entity.NewUserMessage(ulid.Make().String(), req.Message, author, time.Now())
	session.Messages = append(session.Messages, userMsg)
	s.emit(s.broker.EmitToConnection(connID, dto.EventMessageReceived, s.mapper.MessageToSocketPayload(userMsg, req.FileHash)),
		dto.EventMessageReceived, req.FileHash)

	// CONTEXT_BUILT -> ANSWERED
	history := toTurns(session.LastMessages(s.historyWindow))
	pages := toPages(session.ContextUnits)

	outcome := outcomeAnswered
	var aiMsg entity.Message
	answer, err := s.gateway.CompleteWithCitations(ctx, history, pages)
	if err != nil {
		outcome = outcomeDegraded
		s.metrics.IncUpstreamError("complete_with_citations")
		s.logger.Error("SessionEventService", "Reasoning call failed, sending apology", map[string]interface{}{
			"file_hash": req.FileHash,
			"error":     err,
		})
		span.RecordError(err)
		aiMsg = entity.NewAssistantMessage(ulid.Make().String(), ApologyMessage, time.Now(), nil)
	} else {
		aiMsg = entity.NewAssistantMessage(ulid.Make().String(), answer.Message, time.Now(), toCitations(answer.Citations))
	}

	// PERSISTED. A storage failure is logged; room members still get the answer.
	if err := s.sessions.AppendMessages(ctx, req.FileHash, userMsg, aiMsg); err != nil {
		s.logger.Error("SessionEventService", "Failed to persist chat turn", map[string]interface{}{
			"file_hash": req.FileHash,
			"error":     err,
		})
		span.SetStatus(codes.Error, "persist failed")
	}

	// BROADCAST
	s.emit(s.broker.EmitToRoom(req.FileHash, dto.EventAIResponse, s.mapper.MessageToSocketPayload(aiMsg, req.FileHash)),
		dto.EventAIResponse, req.FileHash)

	took := time.Since(started)
	s.metrics.ObserveTurn(outcome, took)
	span.SetAttributes(attribute.String("chat.outcome", outcome), attribute.Int("chat.citations", len(aiMsg.Citations)))
	s.publish(ctx, events.NewChatTurnCompleted(req.FileHash, userMsg.Id, aiMsg.Id, len(aiMsg.Citations), outcome == outcomeDegraded, took))
}

func (s *sessionEventService) TypingStart(ctx context.Context, connID string, req dto.TypingEvent) {
	payload := dto.TypingPayload{UserId: connID, FileHash: req.FileHash}
	s.emit(s.broker.BroadcastExcept(dto.EventUserTyping, payload, connID), dto.EventUserTyping, req.FileHash)
}

func (s *sessionEventService) TypingStop(ctx context.Context, connID string, req dto.TypingEvent) {
	payload := dto.TypingPayload{UserId: connID, FileHash: req.FileHash}
	s.emit(s.broker.BroadcastExcept(dto.EventUserStoppedTyping, payload, connID), dto.EventUserStoppedTyping, req.FileHash)
}

func (s *sessionEventService) Disconnect(ctx context.Context, connID string) {
	s.logger.Info("SessionEventService", "Connection disconnected", map[string]interface{}{
		"conn_id": connID,
	})
}

func (s *sessionEventService) emitError(connID, message, code string) {
	payload := dto.ErrorPayload{Message: message, Error: code}
	s.emit(s.broker.EmitToConnection(connID, dto.EventError, payload), dto.EventError, "")
}

func (s *sessionEventService) emit(err error, event, fileHash string) {
	if err == nil {
		return
	}
	s.logger.Error("SessionEventService", "Failed to emit event", map[string]interface{}{
		"event":     event,
		"file_hash": fileHash,
		"error":     err,
	})
}

func (s *sessionEventService) publish(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("SessionEventService", "Failed to publish domain event", map[string]interface{}{
			"type":  event.EventType(),
			"error": err.Error(),
		})
	}
}

func toTurns(messages []entity.Message) []reasoning.Turn {
	turns := make([]reasoning.Turn, len(messages))
	for i, m := range messages {
		role := llm.RoleUser
		if m.IsAssistant() {
			role = llm.RoleAssistant
		}
		turns[i] = reasoning.Turn{Role: role, Content: m.Body}
	}
	return turns
}

func toPages(units []entity.ContextUnit) []reasoning.Page {
	pages := make([]reasoning.Page, len(units))
	for i, u := range units {
		pages[i] = reasoning.Page{PageNumber: u.PageNumber, Summary: u.Summary}
	}
	return pages
}

func toCitations(citations []reasoning.Citation) []entity.Citation {
	out := make([]entity.Citation, len(citations))
	for i, c := range citations {
		out[i] = entity.Citation{Page: c.Page, Text: c.Text}
	}
	return out
}
