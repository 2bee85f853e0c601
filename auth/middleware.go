package auth

import (
	"chat-hub/contract"
	"strings"

	"github.com/gofiber/fiber/v2"
)

type contextKey string

const UserIDKey contextKey = "user_id"

// Paths reachable without a bearer token.
var publicPaths = map[string]struct{}{
	"/api/auth/login":    {},
	"/api/auth/register": {},
}

// Middleware checks the Authorization header of REST calls and stores the
// authenticated user id in the request locals.
func Middleware(verifier contract.TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if isPublicPath(c.Path()) {
			return c.Next()
		}

		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "authorization token is missing")
		}

		// Expecting the standard "Bearer <token>" format
		tokenStr := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))

		userID, err := verifier.Verify(tokenStr)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired token")
		}

		c.Locals(UserIDKey, userID)
		return c.Next()
	}
}

// UserIDFrom returns the user injected by Middleware, empty if none.
func UserIDFrom(c *fiber.Ctx) string {
	userID, _ := c.Locals(UserIDKey).(string)
	return userID
}

func isPublicPath(path string) bool {
	_, ok := publicPaths[path]
	return ok
}
