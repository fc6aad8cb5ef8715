package middleware

import (
	"crypto/subtle"

	"github.com/Misty-clouds/eurobankv2/app/dto"
	"github.com/gofiber/fiber/v3"
)

// APIKeyHeader carries the shared secret for admin and cron endpoints
const APIKeyHeader = "X-API-Key"

// RequireAPIKey guards admin and cron routes with a shared key. Comparison
// is constant-time; an empty configured key locks the routes entirely.
func RequireAPIKey(key string) fiber.Handler {
	return func(c fiber.Ctx) error {
		provided := c.Get(APIKeyHeader)
		if key == "" || provided == "" ||
			subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
				Success: false,
				Message: "Unauthorized",
				Error:   dto.ErrorDetail{Code: "INVALID_API_KEY"},
			})
		}
		return c.Next()
	}
}
