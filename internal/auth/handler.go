package auth

import (
	"errors"
	"strings"
	"time"

	"osp-stores-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type RegisterSuperAdminRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type CreateUserRequest struct {
	Name     string          `json:"name"`
	Email    string          `json:"email"`
	Password string          `json:"password"`
	Role     models.UserRole `json:"role"`
	StoreID  *uint           `json:"store_id"`
}

type UserResponse struct {
	ID       uint            `json:"id"`
	Name     string          `json:"name"`
	Email    string          `json:"email"`
	Role     models.UserRole `json:"role"`
	StoreID  *uint           `json:"store_id"`
	IsActive bool            `json:"is_active"`
}

func toUserResponse(u models.User) UserResponse {
	return UserResponse{
		ID:       u.ID,
		Name:     u.Name,
		Email:    u.Email,
		Role:     u.Role,
		StoreID:  u.StoreID,
		IsActive: u.IsActive,
	}
}

// POST /api/auth/register-super-admin
// Only works while no super admin exists.
func RegisterSuperAdminHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body RegisterSuperAdminRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		body.Email = strings.TrimSpace(strings.ToLower(body.Email))
		if body.Email == "" || body.Password == "" || body.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "name, email and password are required")
		}

		var count int64
		if err := db.Model(&models.User{}).Where("role = ?", models.RoleSuperAdmin).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fiber.NewError(fiber.StatusForbidden, "a super admin already exists")
		}

		user, err := createUser(db, body.Name, body.Email, body.Password, models.RoleSuperAdmin, nil)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": toUserResponse(*user)})
	}
}

// POST /api/auth/login
func LoginHandler(db *gorm.DB, secret string, ttl time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body LoginRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		body.Email = strings.TrimSpace(strings.ToLower(body.Email))

		var user models.User
		if err := db.Where("email = ?", body.Email).First(&user).Error; err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "wrong email or password")
		}
		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(body.Password)); err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "wrong email or password")
		}
		if !user.IsActive {
			return fiber.NewError(fiber.StatusUnauthorized, "user is deactivated")
		}

		token, err := GenerateToken(secret, ttl, &user)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not issue token")
		}

		return c.JSON(fiber.Map{
			"success": true,
			"data": fiber.Map{
				"token": token,
				"user":  toUserResponse(user),
			},
		})
	}
}

// GET /api/auth/me
func MeHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := CurrentActor(c)
		if err != nil {
			return err
		}

		var user models.User
		if err := db.Preload("Store").First(&user, "id = ?", actor.ID).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "user not found")
		}

		resp := fiber.Map{"user": toUserResponse(user)}
		if user.Store != nil {
			resp["store"] = fiber.Map{
				"id":   user.Store.ID,
				"name": user.Store.Name,
				"type": user.Store.Type,
			}
		}
		return c.JSON(fiber.Map{"success": true, "data": resp})
	}
}

// POST /api/admin/users
func CreateUserHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateUserRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		body.Email = strings.ToLower(strings.TrimSpace(body.Email))
		body.Name = strings.TrimSpace(body.Name)
		if body.Name == "" || body.Email == "" || body.Password == "" {
			return fiber.NewError(fiber.StatusBadRequest, "name, email and password are required")
		}
		if !body.Role.Valid() || body.Role == models.RoleSuperAdmin {
			return fiber.NewError(fiber.StatusBadRequest, "unknown or forbidden role")
		}
		if body.StoreID != nil {
			var store models.Store
			if err := db.First(&store, "id = ?", *body.StoreID).Error; err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "store not found")
			}
		}

		user, err := createUser(db, body.Name, body.Email, body.Password, body.Role, body.StoreID)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": toUserResponse(*user)})
	}
}

// GET /api/admin/users?role=AREA_MANAGER
func ListUsersHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		q := db.Model(&models.User{})
		if role := c.Query("role"); role != "" {
			q = q.Where("role = ?", role)
		}

		var users []models.User
		if err := q.Order("name ASC").Find(&users).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not list users")
		}

		resp := make([]UserResponse, 0, len(users))
		for _, u := range users {
			resp = append(resp, toUserResponse(u))
		}
		return c.JSON(fiber.Map{"success": true, "data": resp})
	}
}

func createUser(db *gorm.DB, name, email, password string, role models.UserRole, storeID *uint) (*models.User, error) {
	var exist models.User
	err := db.Where("email = ?", email).First(&exist).Error
	if err == nil {
		return nil, fiber.NewError(fiber.StatusConflict, "email already registered")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusInternalServerError, "could not hash password")
	}

	user := models.User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		StoreID:      storeID,
		IsActive:     true,
	}
	if err := db.Create(&user).Error; err != nil {
		return nil, fiber.NewError(fiber.StatusInternalServerError, "could not create user")
	}
	return &user, nil
}
