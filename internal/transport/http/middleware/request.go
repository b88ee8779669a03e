package middleware

import (
	"context"
	"net/url"
	"time"

	"github.com/cklxx/NanoBee/internal/infrastructure/logger"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type ctxKey string

const requestIDKey ctxKey = "request_id"

// RequestID takes the request id from header, or makes one, and stores it on
// the user context and the response.
func RequestID(header string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var reqID string
		if header != "" {
			reqID = c.Get(header)
		}
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Locals(string(requestIDKey), reqID)
		c.SetUserContext(context.WithValue(c.UserContext(), requestIDKey, reqID))
		if header != "" {
			c.Set(header, reqID)
		}
		return c.Next()
	}
}

// GetRequestID returns the id RequestID assigned, or "".
func GetRequestID(c *fiber.Ctx) string {
	id, _ := c.Locals(string(requestIDKey)).(string)
	return id
}

func AccessLog(log *logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		routePath := ""
		if c.Route() != nil {
			routePath = c.Route().Path
		}
		log.Infow("http_access",
			"method", c.Method(),
			"path", c.Path(),
			"route", routePath,
			"query", redactQuery(string(c.Request().URI().QueryString())),
			"status", c.Response().StatusCode(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.IP(),
			"user_agent", string(c.Request().Header.UserAgent()),
			"request_id", GetRequestID(c),
			"req_bytes", len(c.Request().Body()),
		)
		return err
	}
}

// redactQuery masks credentials AdminAuth accepts in the query string.
func redactQuery(raw string) string {
	if raw == "" {
		return ""
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return "[unparsed]"
	}
	if _, ok := values[tokenQueryParam]; !ok {
		return raw
	}
	values.Set(tokenQueryParam, "REDACTED")
	return values.Encode()
}
