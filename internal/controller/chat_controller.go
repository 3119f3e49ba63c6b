package controller

import (
	"time"

	"pdfchat-be/internal/dto"
	"pdfchat-be/internal/entity"
	"pdfchat-be/internal/mapper"
	"pdfchat-be/internal/pkg/apperror"
	"pdfchat-be/internal/pkg/logger"
	"pdfchat-be/internal/pkg/serverutils"
	"pdfchat-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/oklog/ulid/v2"
)

const (
	msgSessionExists  = "Chat session already exists"
	msgSessionCreated = "Chat session created/updated successfully"
	msgSessionUpdated = "Chat session updated successfully"
	msgSessionDeleted = "Chat session deleted successfully"
	msgInvalidBody    = "Invalid request body"
)

type IChatController interface {
	RegisterRoutes(r fiber.Router)
	CreateSession(ctx *fiber.Ctx) error
	GetSession(ctx *fiber.Ctx) error
	UpdateSession(ctx *fiber.Ctx) error
	DeleteSession(ctx *fiber.Ctx) error
	SendMessage(ctx *fiber.Ctx) error
}

type chatController struct {
	sessions service.IChatSessionService
	gateway  service.ReasoningGateway
	mapper   *mapper.ChatMapper
	logger   logger.ILogger
}

func NewChatController(sessions service.IChatSessionService, gateway service.ReasoningGateway, log logger.ILogger) IChatController {
	return &chatController{
		sessions: sessions,
		gateway:  gateway,
		mapper:   mapper.NewChatMapper(),
		logger:   log,
	}
}

func (c *chatController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/chat")
	h.Post("/session/create", c.CreateSession)
	h.Post("/session/get", c.GetSession)
	h.Post("/session/update", c.UpdateSession)
	h.Post("/session/delete", c.DeleteSession)
	h.Post("/send", c.SendMessage)
}

// CreateSession returns an existing session untouched; otherwise it summarizes the
// supplied pages and creates the session.
func (c *chatController) CreateSession(ctx *fiber.Ctx) error {
	var req dto.CreateChatSessionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return apperror.Validation(msgInvalidBody)
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	existing, err := c.sessions.GetByFingerprint(ctx.UserContext(), req.FileHash)
	if err != nil {
		return c.fail(ctx, "Failed to create/update chat session", err)
	}
	if existing != nil {
		return ctx.JSON(c.result(req.FileHash, msgSessionExists, existing))
	}

	units, err := service.ParseContextUnits(req.PdfContext)
	if err != nil {
		return err
	}
	if err := c.sessions.ReplaceContext(ctx.UserContext(), req.FileHash, units); err != nil {
		return c.fail(ctx, "Failed to create/update chat session", err)
	}

	session, err := c.sessions.GetByFingerprint(ctx.UserContext(), req.FileHash)
	if err != nil {
		return c.fail(ctx, "Failed to create/update chat session", err)
	}
	return ctx.JSON(c.result(req.FileHash, msgSessionCreated, session))
}

func (c *chatController) GetSession(ctx *fiber.Ctx) error {
	var req dto.FileHashRequest
	if err := ctx.BodyParser(&req); err != nil {
		return apperror.Validation(msgInvalidBody)
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	session, err := c.sessions.GetByFingerprint(ctx.UserContext(), req.FileHash)
	if err != nil {
		return c.fail(ctx, "Failed to get chat session", err)
	}
	if session == nil {
		return c.notFound(ctx, req.FileHash)
	}
	return ctx.JSON(c.result(req.FileHash, "", session))
}

// UpdateSession replaces the context and/or appends messages. Both inputs are parsed
// before either is applied.
func (c *chatController) UpdateSession(ctx *fiber.Ctx) error {
	var req dto.UpdateChatSessionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return apperror.Validation(msgInvalidBody)
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	existing, err := c.sessions.GetByFingerprint(ctx.UserContext(), req.FileHash)
	if err != nil {
		return c.fail(ctx, "Failed to update chat session", err)
	}
	if existing == nil {
		return c.notFound(ctx, req.FileHash)
	}

	var units []entity.ContextUnit
	if service.IsJSONArray(req.PdfContext) {
		if units, err = service.ParseContextUnits(req.PdfContext); err != nil {
			return err
		}
	}
	var messages []entity.Message
	if service.IsJSONArray(req.ChatMessages) {
		if messages, err = service.ParseChatMessages(req.ChatMessages); err != nil {
			return err
		}
	}

	if units != nil {
		if err := c.sessions.ReplaceContext(ctx.UserContext(), req.FileHash, units); err != nil {
			return c.fail(ctx, "Failed to update chat session", err)
		}
	}
	if len(messages) > 0 {
		if err := c.sessions.AppendMessages(ctx.UserContext(), req.FileHash, messages...); err != nil {
			return c.fail(ctx, "Failed to update chat session", err)
		}
	}

	session, err := c.sessions.GetByFingerprint(ctx.UserContext(), req.FileHash)
	if err != nil {
		return c.fail(ctx, "Failed to update chat session", err)
	}
	return ctx.JSON(c.result(req.FileHash, msgSessionUpdated, session))
}

func (c *chatController) DeleteSession(ctx *fiber.Ctx) error {
	var req dto.FileHashRequest
	if err := ctx.BodyParser(&req); err != nil {
		return apperror.Validation(msgInvalidBody)
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	if err := c.sessions.Delete(ctx.UserContext(), req.FileHash); err != nil {
		return c.fail(ctx, "Failed to delete chat session", err)
	}
	return ctx.JSON(dto.ChatSessionResult{Success: true, FileHash: req.FileHash, Message: msgSessionDeleted})
}

// SendMessage is a plain completion without citations; both sides are still logged to the session.
func (c *chatController) SendMessage(ctx *fiber.Ctx) error {
	var req dto.SendChatMessageRequest
	if err := ctx.BodyParser(&req); err != nil {
		return apperror.Validation(msgInvalidBody)
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	response, err := c.gateway.Complete(ctx.UserContext(), req.Message, req.SystemPrompt)
	if err != nil {
		return c.fail(ctx, "Failed to process message", err)
	}

	now := time.Now().UTC()
	userMsg := entity.NewUserMessage(ulid.Make().String(), req.Message, req.UserId, now)
	aiMsg := entity.NewAssistantMessage(ulid.Make().String(), response, now, nil)
	if err := c.sessions.AppendMessages(ctx.UserContext(), req.FileHash, userMsg, aiMsg); err != nil {
		return c.fail(ctx, "Failed to process message", err)
	}

	return ctx.JSON(dto.SendChatMessageResponse{
		Success:   true,
		Response:  response,
		FileHash:  req.FileHash,
		Timestamp: now,
	})
}

func (c *chatController) result(fileHash, message string, session *entity.ChatSession) dto.ChatSessionResult {
	return dto.ChatSessionResult{
		Success:  true,
		FileHash: fileHash,
		Message:  message,
		Session:  c.mapper.SessionToResponse(session),
	}
}

func (c *chatController) notFound(ctx *fiber.Ctx, fileHash string) error {
	body := serverutils.ErrorResponse(fiber.StatusNotFound, service.MsgChatSessionNotFound).WithFileHash(fileHash)
	return ctx.Status(body.Code).JSON(body)
}

// fail lets validation errors reach the error middleware and reports everything else as a 500
// with the operation's message.
func (c *chatController) fail(ctx *fiber.Ctx, message string, err error) error {
	if apperror.IsValidation(err) || apperror.IsNotFound(err) {
		return err
	}
	c.logger.Error("ChatController", message, map[string]interface{}{"path": ctx.Path(), "error": err})
	body := serverutils.ErrorResponse(fiber.StatusInternalServerError, message).WithDetails(err)
	return ctx.Status(body.Code).JSON(body)
}
