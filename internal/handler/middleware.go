package handler

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"

	"github.com/abushana-oss/mithran-sub003/config"
	"github.com/abushana-oss/mithran-sub003/internal/observability"
)

const (
	headerRequestID = "X-Request-ID"
	headerUserID    = "X-User-ID"

	localRequestID = "request_id"
	localCallerID  = "caller_id"
)

// RequestID propagates X-Request-ID or assigns a new one, and stores it on
// the user context for downstream logging.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(headerRequestID)
		if id == "" {
			id = observability.NewRequestID()
		}
		c.Locals(localRequestID, id)
		c.Set(headerRequestID, id)
		c.SetUserContext(observability.ContextWithRequestID(c.UserContext(), id))
		return c.Next()
	}
}

// RequestLogger logs one line per request after the handler chain returns.
func RequestLogger(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if err != nil {
			// Let the error handler write the response so the logged status is final.
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("latency", time.Since(start)),
		}
		log := observability.LoggerWithTrace(c.UserContext(), logger)
		if c.Response().StatusCode() >= fiber.StatusInternalServerError {
			log.Error("request failed", append(fields, zap.Error(err))...)
		} else {
			log.Info("request", fields...)
		}
		return nil
	}
}

// Auth resolves the caller id. With auth disabled X-User-ID is trusted;
// otherwise a Bearer HS256 JWT is required and its subject is the caller.
func Auth(cfg config.AuthConfig) fiber.Handler {
	secret := []byte(cfg.JWTSecret)
	return func(c *fiber.Ctx) error {
		if cfg.Disabled {
			caller := c.Get(headerUserID)
			if caller == "" {
				return fiber.NewError(fiber.StatusUnauthorized, "missing "+headerUserID+" header")
			}
			c.Locals(localCallerID, caller)
			return c.Next()
		}

		raw, ok := strings.CutPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
		if !ok || raw == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}
		subject, err := parseSubject(raw, secret)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}
		c.Locals(localCallerID, subject)
		return c.Next()
	}
}

func parseSubject(raw string, secret []byte) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	if !token.Valid || claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

func callerID(c *fiber.Ctx) string {
	id, _ := c.Locals(localCallerID).(string)
	return id
}

func requestID(c *fiber.Ctx) string {
	id, _ := c.Locals(localRequestID).(string)
	return id
}
