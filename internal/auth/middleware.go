package auth

import (
	"errors"
	"strings"

	"osp-stores-backend/internal/apperr"
	"osp-stores-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const (
	CtxUserIDKey = "user_id"
	CtxActorKey  = "actor"
)

// JWTMiddleware verifies the bearer token, loads the user and stores the
// resulting models.Actor in Locals.
func JWTMiddleware(db *gorm.DB, secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing Authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return fiber.NewError(fiber.StatusUnauthorized, "Authorization must be 'Bearer <token>'")
		}

		claims, err := ParseToken(secret, parts[1])
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		}

		var user models.User
		if err := db.First(&user, "id = ?", claims.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fiber.NewError(fiber.StatusUnauthorized, "user no longer exists")
			}
			return err
		}
		if !user.IsActive {
			return fiber.NewError(fiber.StatusUnauthorized, "user is deactivated")
		}

		c.Locals(CtxUserIDKey, user.ID)
		c.Locals(CtxActorKey, user.Actor())

		return c.Next()
	}
}

// CurrentActor returns the actor set by JWTMiddleware.
func CurrentActor(c *fiber.Ctx) (models.Actor, error) {
	actor, ok := c.Locals(CtxActorKey).(models.Actor)
	if !ok || actor.ID == 0 {
		return models.Actor{}, fiber.NewError(fiber.StatusUnauthorized, "no authenticated user")
	}
	return actor, nil
}

func RequireRole(allowedRoles ...models.UserRole) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := CurrentActor(c)
		if err != nil {
			return err
		}

		for _, r := range allowedRoles {
			if r == actor.Role {
				return c.Next()
			}
		}
		return apperr.Authorization("role %s may not perform this operation", actor.Role)
	}
}
