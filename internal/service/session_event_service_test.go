package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"pdfchat-be/internal/dto"
	"pdfchat-be/internal/entity"
	"pdfchat-be/internal/pkg/apperror"
	"pdfchat-be/internal/pkg/logger"
	"pdfchat-be/pkg/events"
	"pdfchat-be/pkg/llm"
	"pdfchat-be/pkg/reasoning"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frame struct {
	conn    string
	event   string
	payload interface{}
}

// fakeBroker is an in-memory RoomBroker that records every frame per connection.
type fakeBroker struct {
	mu     sync.Mutex
	conns  map[string]bool
	rooms  map[string]map[string]bool
	frames []frame
}

func newFakeBroker(conns ...string) *fakeBroker {
	b := &fakeBroker{conns: map[string]bool{}, rooms: map[string]map[string]bool{}}
	for _, c := range conns {
		b.conns[c] = true
	}
	return b
}

func (b *fakeBroker) Join(connID, room string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rooms[room] == nil {
		b.rooms[room] = map[string]bool{}
	}
	b.rooms[room][connID] = true
	return nil
}

func (b *fakeBroker) Leave(connID, room string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.rooms[room], connID)
	return nil
}

func (b *fakeBroker) EmitToRoom(room, event string, payload interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.rooms[room] {
		b.frames = append(b.frames, frame{c, event, payload})
	}
	return nil
}

func (b *fakeBroker) EmitToConnection(connID, event string, payload interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = append(b.frames, frame{connID, event, payload})
	return nil
}

func (b *fakeBroker) BroadcastExcept(event string, payload interface{}, senderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.conns {
		if c != senderID {
			b.frames = append(b.frames, frame{c, event, payload})
		}
	}
	return nil
}

func (b *fakeBroker) BroadcastToRoomExcept(room, event string, payload interface{}, senderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.rooms[room] {
		if c != senderID {
			b.frames = append(b.frames, frame{c, event, payload})
		}
	}
	return nil
}

func (b *fakeBroker) framesFor(conn string) []frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []frame
	for _, f := range b.frames {
		if f.conn == conn {
			out = append(out, f)
		}
	}
	return out
}

func (b *fakeBroker) eventsFor(conn string) []string {
	var out []string
	for _, f := range b.framesFor(conn) {
		out = append(out, f.event)
	}
	return out
}

type failingAppendStore struct {
	IChatSessionService
}

func (failingAppendStore) AppendMessages(ctx context.Context, fileHash string, msgs ...entity.Message) error {
	return errors.New("disk full")
}

type turnFixture struct {
	*sessionFixture
	broker *fakeBroker
	events ISessionEventService
}

func newTurnFixture(conns ...string) *turnFixture {
	sf := newSessionFixture()
	broker := newFakeBroker(conns...)
	return &turnFixture{
		sessionFixture: sf,
		broker:         broker,
		events:         NewSessionEventService(broker, sf.svc, sf.gateway, sf.publisher, 10, logger.NewNopLogger(), nil),
	}
}

func (f *turnFixture) seedSession(t *testing.T, fileHash string) {
	t.Helper()
	require.NoError(t, f.svc.ReplaceContext(context.Background(), fileHash, []entity.ContextUnit{
		{Text: "Hello world", PageNumber: 1, Summary: "A greeting."},
	}))
}

func TestSendMessage_ReceiptPrecedesAnswer(t *testing.T) {
	f := newTurnFixture("sender")
	f.seedSession(t, "abc123")

	f.gateway.beforeAnswer = func() {
		assert.Equal(t, []string{dto.EventMessageReceived}, f.broker.eventsFor("sender"),
			"receipt must be out before the reasoning call")
	}

	f.events.SendMessage(context.Background(), "sender", dto.SendMessageEvent{Message: "What is this?", FileHash: "abc123"})

	frames := f.broker.framesFor("sender")
	require.Len(t, frames, 2)
	assert.Equal(t, dto.EventMessageReceived, frames[0].event)
	assert.Equal(t, dto.EventAIResponse, frames[1].event)

	receipt := frames[0].payload.(dto.SocketMessagePayload)
	assert.Equal(t, "What is this?", receipt.Message)
	assert.Equal(t, "sender", receipt.UserId)
	assert.Equal(t, "user", receipt.Type)
	assert.Equal(t, "abc123", receipt.FileHash)

	s, err := f.svc.GetByFingerprint(context.Background(), "abc123")
	require.NoError(t, err)
	require.Len(t, s.Messages, 2)
	assert.Equal(t, receipt.Id, s.Messages[0].Id)
	assert.Equal(t, frames[1].payload.(dto.SocketMessagePayload).Id, s.Messages[1].Id)
	assert.Equal(t, 1, f.publisher.count(events.TypeChatTurnCompleted))
}

func TestSendMessage_GatewayFailureSendsApology(t *testing.T) {
	f := newTurnFixture("sender")
	f.seedSession(t, "abc123")
	f.gateway.answerErr = apperror.Upstream("complete with citations", errors.New("timeout"))

	f.events.SendMessage(context.Background(), "sender", dto.SendMessageEvent{Message: "hi", FileHash: "abc123", UserId: "alice"})

	frames := f.broker.framesFor("sender")
	require.Len(t, frames, 2)
	answer := frames[1].payload.(dto.SocketMessagePayload)
	assert.Equal(t, dto.EventAIResponse, frames[1].event)
	assert.Equal(t, ApologyMessage, answer.Message)
	assert.Empty(t, answer.Citations)

	s, err := f.svc.GetByFingerprint(context.Background(), "abc123")
	require.NoError(t, err)
	require.Len(t, s.Messages, 2)
	assert.Equal(t, "alice", s.Messages[0].Author)
	assert.Equal(t, ApologyMessage, s.Messages[1].Body)
	assert.NotNil(t, s.Messages[1].Citations)
	assert.Empty(t, s.Messages[1].Citations)
}

func TestSendMessage_MissingFileHashOnlyTellsSender(t *testing.T) {
	f := newTurnFixture("sender", "other")
	f.seedSession(t, "abc123")
	require.NoError(t, f.broker.Join("other", "abc123"))

	f.events.SendMessage(context.Background(), "sender", dto.SendMessageEvent{Message: "hi"})

	frames := f.broker.framesFor("sender")
	require.Len(t, frames, 1)
	assert.Equal(t, dto.EventError, frames[0].event)
	assert.Equal(t, dto.ErrorPayload{Message: "File hash is required", Error: "FILE_HASH_REQUIRED"}, frames[0].payload)
	assert.Empty(t, f.broker.framesFor("other"))

	s, err := f.svc.GetByFingerprint(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Empty(t, s.Messages)
}

func TestSendMessage_AllRoomMembersGetSameAnswer(t *testing.T) {
	f := newTurnFixture("a", "b", "outsider")
	f.seedSession(t, "abc123")
	f.gateway.answer = &reasoning.Answer{
		Message:   "It greets the world.",
		Citations: []reasoning.Citation{{Page: 1, Text: "Hello world"}},
	}

	f.events.JoinFile(context.Background(), "a", dto.JoinFileEvent{FileHash: "abc123"})
	f.events.JoinFile(context.Background(), "b", dto.JoinFileEvent{FileHash: "abc123"})
	f.events.SendMessage(context.Background(), "a", dto.SendMessageEvent{Message: "What is it?", FileHash: "abc123"})

	pick := func(conn string) dto.SocketMessagePayload {
		for _, fr := range f.broker.framesFor(conn) {
			if fr.event == dto.EventAIResponse {
				return fr.payload.(dto.SocketMessagePayload)
			}
		}
		t.Fatalf("%s got no ai_response", conn)
		return dto.SocketMessagePayload{}
	}
	fromA, fromB := pick("a"), pick("b")
	assert.Equal(t, fromA, fromB)
	assert.Equal(t, "It greets the world.", fromA.Message)
	assert.Equal(t, []dto.CitationResponse{{Page: 1, Text: "Hello world"}}, fromA.Citations)

	assert.NotContains(t, f.broker.eventsFor("b"), dto.EventMessageReceived)
	assert.Empty(t, f.broker.framesFor("outsider"))
}

func TestSendMessage_UnknownSession(t *testing.T) {
	f := newTurnFixture("sender")

	f.events.SendMessage(context.Background(), "sender", dto.SendMessageEvent{Message: "hi", FileHash: "missing"})

	frames := f.broker.framesFor("sender")
	require.Len(t, frames, 1)
	assert.Equal(t, dto.ErrorPayload{Message: "Chat session not found", Error: "CHAT_SESSION_NOT_FOUND"}, frames[0].payload)
}

func TestSendMessage_ContextIsWindowedHistoryAndSummaries(t *testing.T) {
	f := newTurnFixture("sender")
	f.seedSession(t, "abc123")
	ctx := context.Background()
	for i := 0; i < 6; i++ {
		require.NoError(t, f.svc.AppendMessages(ctx, "abc123",
			entity.NewUserMessage(fmt.Sprintf("u%d", i), fmt.Sprintf("q%d", i), "x", time.Now()),
			entity.NewAssistantMessage(fmt.Sprintf("a%d", i), fmt.Sprintf("r%d", i), time.Now(), nil),
		))
	}

	f.events.SendMessage(ctx, "sender", dto.SendMessageEvent{Message: "latest", FileHash: "abc123"})

	f.gateway.mu.Lock()
	defer f.gateway.mu.Unlock()
	require.Len(t, f.gateway.lastHistory, 10)
	assert.Equal(t, reasoning.Turn{Role: llm.RoleUser, Content: "latest"}, f.gateway.lastHistory[9])
	assert.Equal(t, reasoning.Turn{Role: llm.RoleAssistant, Content: "r5"}, f.gateway.lastHistory[8])
	assert.Equal(t, reasoning.Turn{Role: llm.RoleAssistant, Content: "r1"}, f.gateway.lastHistory[0])
	assert.Equal(t, []reasoning.Page{{PageNumber: 1, Summary: "A greeting."}}, f.gateway.lastPages)
}

func TestSendMessage_PersistenceFailureStillBroadcasts(t *testing.T) {
	sf := newSessionFixture()
	require.NoError(t, sf.svc.ReplaceContext(context.Background(), "abc123", []entity.ContextUnit{{Text: "t", PageNumber: 1, Summary: "s"}}))
	broker := newFakeBroker("sender")
	svc := NewSessionEventService(broker, failingAppendStore{sf.svc}, sf.gateway, nil, 10, logger.NewNopLogger(), nil)

	svc.SendMessage(context.Background(), "sender", dto.SendMessageEvent{Message: "hi", FileHash: "abc123"})

	assert.Equal(t, []string{dto.EventMessageReceived, dto.EventAIResponse}, broker.eventsFor("sender"))
}

func TestJoinFile_SendsHistoryAndAnnounces(t *testing.T) {
	f := newTurnFixture("first", "second")
	f.seedSession(t, "abc123")

	f.events.JoinFile(context.Background(), "first", dto.JoinFileEvent{FileHash: "abc123"})
	f.events.JoinFile(context.Background(), "second", dto.JoinFileEvent{FileHash: "abc123"})

	second := f.broker.framesFor("second")
	require.Len(t, second, 1)
	history := second[0].payload.(dto.ChatHistoryPayload)
	assert.Equal(t, dto.EventChatHistory, second[0].event)
	require.Len(t, history.PdfContext, 1)
	assert.Equal(t, "A greeting.", history.PdfContext[0].Summary)
	assert.NotNil(t, history.Messages)

	first := f.broker.framesFor("first")
	require.Len(t, first, 2)
	assert.Equal(t, dto.EventUserJoinedFile, first[1].event)
	assert.Equal(t, dto.PresencePayload{FileHash: "abc123", UserId: "second"}, first[1].payload)
}

func TestJoinFile_NoSessionSendsEmptyHistory(t *testing.T) {
	f := newTurnFixture("c")

	f.events.JoinFile(context.Background(), "c", dto.JoinFileEvent{FileHash: "fresh"})

	frames := f.broker.framesFor("c")
	require.Len(t, frames, 1)
	history := frames[0].payload.(dto.ChatHistoryPayload)
	assert.Empty(t, history.Messages)
	assert.NotNil(t, history.Messages)
	assert.NotNil(t, history.PdfContext)
}

func TestJoinFile_MissingFileHash(t *testing.T) {
	f := newTurnFixture("c")
	f.events.JoinFile(context.Background(), "c", dto.JoinFileEvent{})
	assert.Equal(t, []string{dto.EventError}, f.broker.eventsFor("c"))
}

func TestLeaveFile_NotifiesRemainingMembers(t *testing.T) {
	f := newTurnFixture("a", "b")
	require.NoError(t, f.broker.Join("a", "abc123"))
	require.NoError(t, f.broker.Join("b", "abc123"))

	f.events.LeaveFile(context.Background(), "a", dto.LeaveFileEvent{FileHash: "abc123"})
	f.events.LeaveFile(context.Background(), "b", dto.LeaveFileEvent{})

	assert.Empty(t, f.broker.framesFor("a"))
	frames := f.broker.framesFor("b")
	require.Len(t, frames, 1)
	assert.Equal(t, dto.EventUserLeftFile, frames[0].event)
	assert.Equal(t, dto.PresencePayload{FileHash: "abc123", UserId: "a"}, frames[0].payload)
}

func TestTyping_GoesToEveryoneButSender(t *testing.T) {
	f := newTurnFixture("typist", "x", "y")

	f.events.TypingStart(context.Background(), "typist", dto.TypingEvent{FileHash: "abc123"})
	f.events.TypingStop(context.Background(), "typist", dto.TypingEvent{})

	assert.Empty(t, f.broker.framesFor("typist"))
	for _, c := range []string{"x", "y"} {
		frames := f.broker.framesFor(c)
		require.Len(t, frames, 2)
		assert.Equal(t, dto.TypingPayload{UserId: "typist", FileHash: "abc123"}, frames[0].payload)
		assert.Equal(t, dto.EventUserStoppedTyping, frames[1].event)
	}
}
