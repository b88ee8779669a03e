package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/cklxx/NanoBee/internal/config"
	"github.com/cklxx/NanoBee/internal/transport/http/dto"
	"github.com/gofiber/fiber/v2"
)

const tokenQueryParam = "token"

// AdminAuth guards the console API with the configured admin key. An empty
// key leaves the API open.
func AdminAuth(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		apiKey := cfg.Auth.AdminAPIKey
		if apiKey == "" {
			return c.Next()
		}

		token := c.Get("X-Admin-Token")
		if token == "" {
			token = bearerToken(c.Get(fiber.HeaderAuthorization))
		}
		if token == "" {
			// Browsers cannot set headers on a websocket handshake.
			token = c.Query(tokenQueryParam)
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "unauthorized"})
		}
		return c.Next()
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return header[len(prefix):]
	}
	return ""
}
