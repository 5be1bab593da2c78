package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/basicauth"

	"github.com/tradorr/tradorr-api/app/models"
	"github.com/tradorr/tradorr-api/internal/pkg/env"
)

// RequireAdmin guards the admin API with basic auth. The password is checked
// against a bcrypt hash so the plain password never lives in the environment.
// Without ADMIN_PASSWORD_HASH every request is refused.
func RequireAdmin() fiber.Handler {
	return NewAdminAuth(env.GetEnv("ADMIN_USER", "admin"), env.GetEnv("ADMIN_PASSWORD_HASH", ""))
}

func NewAdminAuth(user, passwordHash string) fiber.Handler {
	user = strings.TrimSpace(user)
	passwordHash = strings.TrimSpace(passwordHash)
	if passwordHash == "" {
		log.Warn("[Admin] ADMIN_PASSWORD_HASH is not set, admin API is disabled")
	}

	return basicauth.New(basicauth.Config{
		Realm: "Admin",
		Authorizer: func(u, p string) bool {
			if passwordHash == "" {
				return false
			}
			return subtle.ConstantTimeCompare([]byte(u), []byte(user)) == 1 && models.CheckPasswordHash(p, passwordHash)
		},
		Unauthorized: func(c *fiber.Ctx) error {
			c.Set(fiber.HeaderWWWAuthenticate, `Basic realm="Admin"`)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
		},
	})
}

// RequireMetricsAuth protects the fiber monitor and the prometheus endpoint.
func RequireMetricsAuth() fiber.Handler {
	return basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "test"),
		},
	})
}
