package api

import (
	"errors"
	"strings"

	"github.com/example/task-tracker-api/modules/identity"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/fiber/v2"
)

const (
	// UserContextKey is the key used to store the caller id in the Fiber context.
	UserContextKey = "user"
)

// AuthMiddleware creates a middleware that resolves the bearer token to a caller id.
func AuthMiddleware(identityPort identity.IdentityPort, logger types.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := strings.CutPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(MessageResponse{Message: msgUnauthorized})
		}

		userID, err := identityPort.ValidateToken(c.UserContext(), token)
		if err != nil {
			if errors.Is(err, identity.ErrInvalidToken) || errors.Is(err, identity.ErrExpiredToken) {
				logger.Debug("Rejected bearer token", "path", c.Path(), "error", err)
				return c.Status(fiber.StatusUnauthorized).JSON(MessageResponse{Message: msgUnauthorized})
			}
			logger.Error("Token validation unavailable", "path", c.Path(), "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(MessageResponse{Message: msgInternalError})
		}

		c.Locals(UserContextKey, userID)
		return c.Next()
	}
}

// callerID returns the caller id stored by AuthMiddleware.
func callerID(c *fiber.Ctx) string {
	id, _ := c.Locals(UserContextKey).(string)
	return id
}

// allowAnyOrigin stamps the CORS origin header on every response, including
// requests without an Origin header that the cors middleware leaves alone.
func allowAnyOrigin(c *fiber.Ctx) error {
	c.Set(fiber.HeaderAccessControlAllowOrigin, "*")
	return c.Next()
}
