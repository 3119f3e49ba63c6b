package handler

import (
	"context"
	"encoding/json"

	"pdfchat-be/internal/dto"
	"pdfchat-be/internal/pkg/logger"
	"pdfchat-be/internal/service"
	internalWS "pdfchat-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const msgInvalidPayload = "Invalid event payload"

// SocketHandler upgrades /ws connections and routes their events to the session event service.
type SocketHandler struct {
	hub    *internalWS.Hub
	events service.ISessionEventService
	logger logger.ILogger

	// async runs send_message turns off the read loop so one slow answer does not stall the socket.
	async func(func())
}

func NewSocketHandler(hub *internalWS.Hub, events service.ISessionEventService, log logger.ILogger) *SocketHandler {
	return &SocketHandler{
		hub:    hub,
		events: events,
		logger: log,
		async:  func(fn func()) { go fn() },
	}
}

// ServeWs handles websocket requests from the peer.
func (h *SocketHandler) ServeWs(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return websocket.New(func(conn *websocket.Conn) {
			internalWS.ServeWs(h.hub, conn, h)
		})(c)
	}
	return fiber.ErrUpgradeRequired
}

func (h *SocketHandler) HandleEvent(ctx context.Context, client *internalWS.Client, env internalWS.Envelope) {
	data := env.Data
	if len(data) == 0 || string(data) == "null" {
		data = json.RawMessage("{}")
	}

	switch env.Event {
	case dto.EventJoinFile:
		var req dto.JoinFileEvent
		if h.decode(client, data, &req) {
			h.events.JoinFile(ctx, client.ID, req)
		}
	case dto.EventLeaveFile:
		var req dto.LeaveFileEvent
		if h.decode(client, data, &req) {
			h.events.LeaveFile(ctx, client.ID, req)
		}
	case dto.EventSendMessage:
		var req dto.SendMessageEvent
		if h.decode(client, data, &req) {
			connID := client.ID
			h.async(func() {
				// The turn outlives this frame; it must finish even if the sender disconnects.
				h.events.SendMessage(context.Background(), connID, req)
			})
		}
	case dto.EventTypingStart:
		var req dto.TypingEvent
		if h.decode(client, data, &req) {
			h.events.TypingStart(ctx, client.ID, req)
		}
	case dto.EventTypingStop:
		var req dto.TypingEvent
		if h.decode(client, data, &req) {
			h.events.TypingStop(ctx, client.ID, req)
		}
	default:
		h.logger.Warn("SocketHandler", "Unknown event", map[string]interface{}{"conn_id": client.ID, "event": env.Event})
		h.reply(client, dto.ErrorPayload{Message: "Unknown event: " + env.Event, Error: dto.ErrCodeUnknownEvent})
	}
}

func (h *SocketHandler) HandleMalformed(ctx context.Context, client *internalWS.Client, err error) {
	h.logger.Warn("SocketHandler", "Malformed frame", map[string]interface{}{"conn_id": client.ID, "error": err.Error()})
	h.reply(client, dto.ErrorPayload{Message: msgInvalidPayload, Error: dto.ErrCodeInvalidPayload})
}

func (h *SocketHandler) HandleDisconnect(ctx context.Context, client *internalWS.Client) {
	h.events.Disconnect(ctx, client.ID)
}

func (h *SocketHandler) decode(client *internalWS.Client, data json.RawMessage, out interface{}) bool {
	if err := json.Unmarshal(data, out); err != nil {
		h.HandleMalformed(context.Background(), client, err)
		return false
	}
	return true
}

func (h *SocketHandler) reply(client *internalWS.Client, payload dto.ErrorPayload) {
	if err := h.hub.EmitToConnection(client.ID, dto.EventError, payload); err != nil {
		h.logger.Error("SocketHandler", "Failed to send error frame", map[string]interface{}{"conn_id": client.ID, "error": err})
	}
}

// RegisterRoutes registers the websocket endpoint.
func (h *SocketHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/ws", h.ServeWs)
}
