package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/evinterop/beckn-ocpi-bridge/internal/ports"
)

// AuthRequired validates the subscriber bearer token and stores the
// subscriber id in locals for the handlers downstream.
func AuthRequired(verifier ports.TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing authorization header"})
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid authorization header format"})
		}

		subscriber, err := verifier.Validate(c.Context(), parts[1])
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid or expired token"})
		}

		c.Locals("subscriber_id", subscriber)

		return c.Next()
	}
}
