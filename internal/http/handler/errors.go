package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/PowerLink/internal/app/service"
	"github.com/sifan077/PowerLink/internal/http/middleware"
	"go.uber.org/zap"
)

// writeServiceError maps a service error onto a status code and a JSON body.
// Internal detail is logged and never sent to the caller.
func writeServiceError(c *fiber.Ctx, logger *zap.Logger, err error) error {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		return errorJSON(c, fiber.StatusBadRequest, verr.Error())
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrUnsafeTarget):
		return errorJSON(c, fiber.StatusNotFound, service.ErrNotFound.Error())
	case errors.Is(err, service.ErrCodeExhausted), errors.Is(err, service.ErrCodeConflict):
		logger.Error("short code allocation failed",
			zap.Error(err),
			zap.String("request_id", middleware.GetRequestID(c)),
		)
		c.Set(fiber.HeaderRetryAfter, "1")
		return errorJSON(c, fiber.StatusServiceUnavailable, "short code unavailable, please retry")
	case errors.Is(err, service.ErrUnauthorized), errors.Is(err, service.ErrInvalidCredentials):
		return errorJSON(c, fiber.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrUserExists):
		return errorJSON(c, fiber.StatusConflict, err.Error())
	}

	fields := []zap.Field{
		zap.Error(err),
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.String("request_id", middleware.GetRequestID(c)),
	}
	var serr *service.StoreError
	if errors.As(err, &serr) {
		fields = append(fields, zap.String("op", serr.Op))
	}
	logger.Error("request failed", fields...)
	return errorJSON(c, fiber.StatusInternalServerError, "internal server error")
}

func errorJSON(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"error": msg})
}
