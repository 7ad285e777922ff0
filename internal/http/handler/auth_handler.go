package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/PowerLink/internal/app/service"
	"github.com/sifan077/PowerLink/internal/http/middleware"
	"go.uber.org/zap"
)

// AuthDeps groups dependencies required by the auth handler.
type AuthDeps struct {
	Logger      *zap.Logger
	AuthService service.AuthService
}

// AuthHandler implements account registration and the token lifecycle.
type AuthHandler struct {
	logger      *zap.Logger
	authService service.AuthService
}

func NewAuthHandler(deps AuthDeps) *AuthHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{
		logger:      logger,
		authService: deps.AuthService,
	}
}

// Register wires auth routes onto router. Logout requires a valid token.
// The flat /register, /login and GET /logout paths are kept for older clients.
func (h *AuthHandler) Register(router fiber.Router, requireAuth fiber.Handler) {
	auth := router.Group("/auth")
	{
		auth.Post("/register", h.SignUp)
		auth.Post("/login", h.Login)
		auth.Post("/logout", requireAuth, h.Logout)
	}

	router.Post("/register", h.SignUp)
	router.Post("/login", h.Login)
	router.Get("/logout", requireAuth, h.Logout)
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SignUp handles POST /api/v1/auth/register
func (h *AuthHandler) SignUp(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid request body")
	}

	user, err := h.authService.Register(c.UserContext(), service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return writeServiceError(c, h.logger, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"user": user})
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid request body")
	}

	res, err := h.authService.Login(c.UserContext(), req.Username, req.Password)
	if err != nil {
		return writeServiceError(c, h.logger, err)
	}

	return c.JSON(fiber.Map{
		"token":      res.Token,
		"expires_at": res.ExpiresAt,
		"user":       res.User,
	})
}

// Logout handles POST /api/v1/auth/logout
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	if err := h.authService.Logout(c.UserContext(), middleware.BearerToken(c)); err != nil {
		return writeServiceError(c, h.logger, err)
	}
	return c.JSON(fiber.Map{"message": "logged out"})
}
