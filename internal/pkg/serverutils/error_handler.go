package serverutils

import (
	"errors"

	"agent-memory-be/pkg/acb"

	"github.com/gofiber/fiber/v2"
)

// StatusForCode maps a build failure code to its HTTP status.
func StatusForCode(code string) int {
	switch code {
	case acb.CodeValidation:
		return fiber.StatusBadRequest
	case acb.CodeBudgetExhausted:
		return fiber.StatusUnprocessableEntity
	case acb.CodeRetrievalFailed:
		return fiber.StatusBadGateway
	case acb.CodeDeadlineExceeded:
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

// ErrorHandlerMiddleware turns errors returned by handlers into JSON
// envelopes. Build failures never carry a partial bundle.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		var buildErr *acb.BuildError
		var validationErr *ValidationError
		var fiberErr *fiber.Error

		switch {
		case errors.As(err, &buildErr):
			status := StatusForCode(buildErr.Code)
			return ctx.Status(status).JSON(ReasonResponse(status, buildErr.Code, buildErr.Error()))
		case errors.As(err, &validationErr):
			return ctx.Status(fiber.StatusBadRequest).JSON(ReasonResponse(fiber.StatusBadRequest, acb.CodeValidation, validationErr.Error()))
		case errors.As(err, &fiberErr):
			return ctx.Status(fiberErr.Code).JSON(ErrorResponse(fiberErr.Code, fiberErr.Message))
		default:
			return ctx.Status(fiber.StatusInternalServerError).JSON(ErrorResponse(fiber.StatusInternalServerError, err.Error()))
		}
	}
}
