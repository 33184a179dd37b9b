package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/melih/lighthouse-deploy/internal/core/ports"
)

// NewApp returns a fiber app serving the deployment API under /api/v1.
func NewApp(service ports.DeploymentService) *fiber.App {
	app := fiber.New()
	NewDeploymentHandler(service).Register(app.Group("/api").Group("/v1"))
	return app
}

type DeploymentHandler struct {
	service ports.DeploymentService
}

func NewDeploymentHandler(service ports.DeploymentService) *DeploymentHandler {
	return &DeploymentHandler{service: service}
}

// Register mounts the deployment routes on router.
func (h *DeploymentHandler) Register(router fiber.Router) {
	deployments := router.Group("/deployments")
	deployments.Get("/", h.ListDeployments)
	deployments.Post("/:name/deploy", h.Deploy)
	deployments.Post("/:name/update", h.Update)
	deployments.Post("/:name/rollback", h.Rollback)
}

func (h *DeploymentHandler) ListDeployments(c *fiber.Ctx) error {
	return c.JSON(h.service.List())
}

type DeployRequest struct {
	Tag     string `json:"tag"`
	Force   bool   `json:"force"`
	Prepare *bool  `json:"prepare"`
	Backup  bool   `json:"backup"`
	Migrate *bool  `json:"migrate"`
}

func (h *DeploymentHandler) Deploy(c *fiber.Ctx) error {
	var req DeployRequest
	if err := parseBody(c, &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	name := c.Params("name")
	err := h.service.Deploy(c.Context(), name, ports.DeployRequest{
		Tag:     req.Tag,
		Force:   req.Force,
		Prepare: orTrue(req.Prepare),
		Backup:  req.Backup,
		Migrate: orTrue(req.Migrate),
	})
	if err != nil {
		return failed(c, err)
	}
	return c.JSON(fiber.Map{
		"name":   name,
		"status": "deployed",
	})
}

type UpdateRequest struct {
	Tag   string `json:"tag"`
	Force bool   `json:"force"`
}

func (h *DeploymentHandler) Update(c *fiber.Ctx) error {
	var req UpdateRequest
	if err := parseBody(c, &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	name := c.Params("name")
	if err := h.service.Update(c.Context(), name, req.Tag, req.Force); err != nil {
		return failed(c, err)
	}
	return c.JSON(fiber.Map{
		"name":   name,
		"status": "updated",
	})
}

type RollbackRequest struct {
	MigrateBack *bool `json:"migrate_back"`
}

func (h *DeploymentHandler) Rollback(c *fiber.Ctx) error {
	var req RollbackRequest
	if err := parseBody(c, &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	name := c.Params("name")
	if err := h.service.Rollback(c.Context(), name, orTrue(req.MigrateBack)); err != nil {
		return failed(c, err)
	}
	return c.JSON(fiber.Map{
		"name":   name,
		"status": "rolled back",
	})
}

// parseBody accepts an empty body as the zero request.
func parseBody(c *fiber.Ctx, out any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	return c.BodyParser(out)
}

func failed(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	if errors.Is(err, ports.ErrDeploymentNotFound) {
		status = fiber.StatusNotFound
	}
	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
	})
}

func orTrue(b *bool) bool {
	return b == nil || *b
}
