package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/sifan077/PowerLink/internal/app/service"
	"go.uber.org/zap"
)

const healthCheckTimeout = 2 * time.Second

// HealthCheck checks one dependency. A failing non-critical check degrades
// the report without failing it.
type HealthCheck struct {
	Name     string
	Critical bool
	Check    func(ctx context.Context) error
}

// RedirectDeps groups dependencies required by redirect handlers.
type RedirectDeps struct {
	Logger       *zap.Logger
	LinkService  service.LinkService
	HealthChecks []HealthCheck
}

// RedirectHandler serves short-code redirects and the health endpoint.
type RedirectHandler struct {
	logger      *zap.Logger
	linkService service.LinkService
	checks      []HealthCheck
}

// NewRedirectHandler creates a redirect handler with the provided dependencies.
func NewRedirectHandler(deps RedirectDeps) *RedirectHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedirectHandler{
		logger:      logger,
		linkService: deps.LinkService,
		checks:      deps.HealthChecks,
	}
}

// RegisterHealth wires the health endpoint. It must run before Register so
// that /health is not taken for a short code.
func (h *RedirectHandler) RegisterHealth(router fiber.Router) {
	router.Get("/health", h.Health)
}

// Register wires the catch-all redirect route.
func (h *RedirectHandler) Register(router fiber.Router) {
	router.Get("/:code", h.Resolve)
}

// Health reports liveness plus the state of each dependency.
func (h *RedirectHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), healthCheckTimeout)
	defer cancel()

	status := "ok"
	code := fiber.StatusOK
	checks := make(map[string]string, len(h.checks))
	for _, hc := range h.checks {
		if err := hc.Check(ctx); err != nil {
			h.logger.Warn("health check failed", zap.String("check", hc.Name), zap.Error(err))
			checks[hc.Name] = "unavailable"
			if hc.Critical {
				status = "unavailable"
				code = fiber.StatusServiceUnavailable
			} else if status == "ok" {
				status = "degraded"
			}
			continue
		}
		checks[hc.Name] = "ok"
	}

	return c.Status(code).JSON(fiber.Map{
		"service": "PowerLink",
		"status":  status,
		"checks":  checks,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// Resolve handles GET /:code with a 302 to the stored destination.
func (h *RedirectHandler) Resolve(c *fiber.Ctx) error {
	code := c.Params("code")
	// Click recording outlives the request, and Fiber reuses header buffers
	// once the handler returns.
	ctx := service.WithVisitor(c.UserContext(), service.Visitor{
		IP:        utils.CopyString(c.IP()),
		UserAgent: utils.CopyString(c.Get(fiber.HeaderUserAgent)),
	})

	link, err := h.linkService.Resolve(ctx, code)
	if err != nil {
		return writeServiceError(c, h.logger, err)
	}

	h.logger.Debug("redirecting short link", zap.String("code", code), zap.String("target", link.OriginalURL))
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Redirect(link.OriginalURL, fiber.StatusFound)
}
