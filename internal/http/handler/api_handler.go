package handler

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/PowerLink/internal/app/model"
	"github.com/sifan077/PowerLink/internal/app/service"
	"github.com/sifan077/PowerLink/internal/http/middleware"
	"go.uber.org/zap"
)

// APIDeps groups dependencies required by API handlers.
type APIDeps struct {
	Logger      *zap.Logger
	LinkService service.LinkService
}

// APIHandler implements the link management endpoints. Every route expects
// RequireAuth to have run.
type APIHandler struct {
	logger      *zap.Logger
	linkService service.LinkService
}

// NewAPIHandler creates an API handler with the provided dependencies.
func NewAPIHandler(deps APIDeps) *APIHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIHandler{
		logger:      logger,
		linkService: deps.LinkService,
	}
}

// Register wires link routes onto router behind the auth middleware.
func (h *APIHandler) Register(router fiber.Router, requireAuth fiber.Handler) {
	links := router.Group("/links", requireAuth)
	{
		links.Get("/", h.ListLinks)
		links.Post("/", h.CreateLink)
		links.Get("/:id", h.GetLink)
		links.Put("/:id", h.UpdateLink)
		links.Patch("/:id", h.UpdateLink)
		links.Delete("/:id", h.DeleteLink)
	}
}

// CreateLinkRequest represents the request body for creating a link.
type CreateLinkRequest struct {
	OriginalURL  string `json:"original_url"`
	CustomDomain string `json:"custom_domain,omitempty"`
}

// UpdateLinkRequest carries the fields to change. Absent fields are left as
// they are; an empty custom_domain clears it.
type UpdateLinkRequest struct {
	OriginalURL  *string `json:"original_url,omitempty"`
	CustomDomain *string `json:"custom_domain,omitempty"`
}

// LinkResponse is the public view of a link.
type LinkResponse struct {
	ID           uint64    `json:"id"`
	OriginalURL  string    `json:"original_url"`
	ShortCode    string    `json:"short_code"`
	ShortURL     string    `json:"short_url"`
	CustomDomain *string   `json:"custom_domain,omitempty"`
	Clicks       int64     `json:"clicks"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CreateLink handles POST /api/v1/links
func (h *APIHandler) CreateLink(c *fiber.Ctx) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return errorJSON(c, fiber.StatusUnauthorized, service.ErrUnauthorized.Error())
	}

	var req CreateLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid request body")
	}

	link, err := h.linkService.CreateLink(c.UserContext(), uid, service.CreateLinkInput{
		OriginalURL:  req.OriginalURL,
		CustomDomain: req.CustomDomain,
	})
	if err != nil {
		return writeServiceError(c, h.logger, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"link": toLinkResponse(c, link),
	})
}

// ListLinks handles GET /api/v1/links
func (h *APIHandler) ListLinks(c *fiber.Ctx) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return errorJSON(c, fiber.StatusUnauthorized, service.ErrUnauthorized.Error())
	}

	links, err := h.linkService.ListLinks(c.UserContext(), uid)
	if err != nil {
		return writeServiceError(c, h.logger, err)
	}

	response := make([]LinkResponse, len(links))
	for i := range links {
		response[i] = toLinkResponse(c, &links[i])
	}

	return c.JSON(fiber.Map{
		"links": response,
		"count": len(response),
	})
}

// GetLink handles GET /api/v1/links/:id
func (h *APIHandler) GetLink(c *fiber.Ctx) error {
	uid, id, ok := ownerAndID(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid link id",
		})
	}

	link, err := h.linkService.GetLink(c.UserContext(), uid, id)
	if err != nil {
		return writeServiceError(c, h.logger, err)
	}

	return c.JSON(fiber.Map{"link": toLinkResponse(c, link)})
}

// UpdateLink handles PUT and PATCH /api/v1/links/:id
func (h *APIHandler) UpdateLink(c *fiber.Ctx) error {
	uid, id, ok := ownerAndID(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid link id",
		})
	}

	var req UpdateLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.OriginalURL == nil && req.CustomDomain == nil {
		return errorJSON(c, fiber.StatusBadRequest, "no fields to update")
	}

	link, err := h.linkService.UpdateLink(c.UserContext(), uid, id, service.UpdateLinkInput{
		OriginalURL:  req.OriginalURL,
		CustomDomain: req.CustomDomain,
	})
	if err != nil {
		return writeServiceError(c, h.logger, err)
	}

	return c.JSON(fiber.Map{"link": toLinkResponse(c, link)})
}

// DeleteLink handles DELETE /api/v1/links/:id
func (h *APIHandler) DeleteLink(c *fiber.Ctx) error {
	uid, id, ok := ownerAndID(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid link id",
		})
	}

	if err := h.linkService.DeleteLink(c.UserContext(), uid, id); err != nil {
		return writeServiceError(c, h.logger, err)
	}

	return c.JSON(fiber.Map{"message": "link deleted"})
}

// ownerAndID reads the caller set by RequireAuth and the :id parameter.
func ownerAndID(c *fiber.Ctx) (uint64, uint64, bool) {
	uid, ok := middleware.UserID(c)
	if !ok {
		return 0, 0, false
	}
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, 0, false
	}
	return uid, id, true
}

func toLinkResponse(c *fiber.Ctx, link *model.Link) LinkResponse {
	return LinkResponse{
		ID:           link.ID,
		OriginalURL:  link.OriginalURL,
		ShortCode:    link.ShortCode,
		ShortURL:     shortURL(c, link),
		CustomDomain: link.CustomDomain,
		Clicks:       link.Clicks,
		CreatedAt:    link.CreatedAt,
		UpdatedAt:    link.UpdatedAt,
	}
}

// shortURL builds the public address of link as seen by the current request.
func shortURL(c *fiber.Ctx, link *model.Link) string {
	host := link.Domain()
	if host == "" {
		host = c.Hostname()
	}
	return c.Protocol() + "://" + host + "/" + link.ShortCode
}
