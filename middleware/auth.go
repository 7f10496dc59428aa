// middleware/auth.go
package middleware

import (
	"errors"
	"log"
	"strings"

	"volunteer-portal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// UserContextMiddleware extracts the verified user identity set by the
// Gateway. Requests without an identity are rejected before any handler runs.
func UserContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Get("X-User-ID")
		rolesStr := c.Get("X-User-Roles")

		if userID == "" {
			log.Printf("❌ [USER_CTX] X-User-ID missing on secured route: %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID — request must come through gateway with auth context",
			})
		}

		var roles []string
		for _, r := range strings.Split(rolesStr, ",") {
			r = strings.TrimSpace(r)
			if r != "" {
				roles = append(roles, r)
			}
		}

		c.Locals("user_id", userID)
		c.Locals("user_roles", roles)

		return c.Next()
	}
}

// RequireAdmin re-validates the caller's role against the local
// volunteer_users table. The X-User-Roles header alone is never enough for
// admin operations.
func RequireAdmin(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, _ := c.Locals("user_id").(string)
		if userID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing user context",
			})
		}

		var user models.VolunteerUser
		if err := db.First(&user, "id = ?", userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
					"error": "admin privileges required",
					"code":  "forbidden",
				})
			}
			log.Printf("DB error validating admin role for %s: %v", userID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
		}

		if user.Role != models.RoleAdmin {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "admin privileges required",
				"code":  "forbidden",
			})
		}

		c.Locals("admin_id", user.ID)
		return c.Next()
	}
}
