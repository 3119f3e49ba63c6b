package serverutils

import (
	"errors"

	"pdfchat-be/internal/pkg/apperror"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandlerMiddleware turns errors returned by handlers into the chat API error shape.
// Validation -> 400, not found -> 404, fiber errors keep their code, everything else -> 500.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		body := classify(err)
		return ctx.Status(body.Code).JSON(body)
	}
}

func classify(err error) *ErrorBody {
	var validationErr *apperror.ValidationError
	var notFoundErr *apperror.NotFoundError
	var fiberErr *fiber.Error

	switch {
	case errors.As(err, &validationErr):
		return ErrorResponse(fiber.StatusBadRequest, validationErr.Message)
	case errors.As(err, &notFoundErr):
		return ErrorResponse(fiber.StatusNotFound, notFoundErr.Message)
	case errors.As(err, &fiberErr):
		return ErrorResponse(fiberErr.Code, fiberErr.Message)
	case apperror.IsUpstream(err):
		return ErrorResponse(fiber.StatusInternalServerError, "Reasoning service failed").WithDetails(err)
	default:
		return ErrorResponse(fiber.StatusInternalServerError, "Internal server error").WithDetails(err)
	}
}
