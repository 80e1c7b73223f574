package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

// AuthMiddleware checks the bearer token against a bcrypt hash. An empty hash
// leaves the API open.
func AuthMiddleware(tokenHash string) fiber.Handler {
	tokenHash = strings.TrimSpace(tokenHash)
	return func(c *fiber.Ctx) error {
		if tokenHash == "" {
			return c.Next()
		}

		authz := strings.TrimSpace(c.Get("Authorization"))
		if authz == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "missing authorization",
			})
		}

		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "invalid authorization header",
			})
		}
		token := strings.TrimSpace(authz[len("Bearer "):])
		if err := bcrypt.CompareHashAndPassword([]byte(tokenHash), []byte(token)); err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "invalid access token",
			})
		}
		return c.Next()
	}
}
