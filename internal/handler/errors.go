package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/abushana-oss/mithran-sub003/internal/domain/apperror"
)

// ErrorHandler writes {error, request_id} with a status derived from the
// error kind. Internal details are logged, not returned.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		message := "internal server error"

		var fe *fiber.Error
		var ae *apperror.Error
		switch {
		case errors.As(err, &fe):
			status = fe.Code
			message = fe.Message
		case errors.As(err, &ae):
			status = apperror.HTTPStatus(err)
			if ae.Kind != apperror.KindInternal {
				message = err.Error()
			}
		}

		if status >= fiber.StatusInternalServerError {
			logger.Error("unhandled error",
				zap.String("request_id", requestID(c)),
				zap.String("path", c.Path()),
				zap.Error(err),
			)
		}
		return c.Status(status).JSON(fiber.Map{
			"error":      message,
			"request_id": requestID(c),
		})
	}
}
