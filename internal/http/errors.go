package http

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"qrlink/internal/apperr"
)

// respondError maps application errors to status codes. Anything that is
// not an *apperr.Error is logged and reported as a 500.
func respondError(ctx *Context, err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		switch appErr.Kind {
		case apperr.KindNotFound:
			return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": appErr.Message})
		case apperr.KindForbidden:
			return ctx.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": appErr.Message})
		case apperr.KindValidation:
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"errors": appErr.Fields})
		}
	}

	ctx.Logger.Error("Request failed",
		slog.String("method", ctx.Method()),
		slog.String("path", ctx.Path()),
		slog.Any("error", err))
	return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
}
