package handlers

import (
	"entryready/internal/app"
	requirementsController "entryready/internal/controllers/requirements"
	"entryready/internal/logger"

	"github.com/gofiber/fiber/v2"
)

type RequirementsHandler struct {
	Handler
	controller *requirementsController.RequirementsController
	rulesPath  string
}

func NewRequirementsHandler(app app.App, router fiber.Router) *RequirementsHandler {
	log := logger.New("handlers").File("requirements_handler")
	return &RequirementsHandler{
		controller: app.RequirementsController,
		rulesPath:  app.Config.RulesPath,
		Handler: Handler{
			log:        log,
			router:     router,
			middleware: app.Middleware,
		},
	}
}

func (h *RequirementsHandler) Register() {
	h.router.Get("/requirements/:nationality/:destination", h.getRequirements)
	h.router.Get("/checklist/:nationality/:destination", h.getChecklist)

	rules := h.router.Group("/rules")
	rules.Get("/", h.getRules)
	rules.Post("/reload", h.reloadRules)
}

func (h *RequirementsHandler) getRequirements(c *fiber.Ctx) error {
	requirements, err := h.controller.GetRequirements(c.Context(), c.Params("nationality"), c.Params("destination"))
	if err != nil {
		return h.fail(c, "getRequirements", err)
	}

	return c.JSON(fiber.Map{"message": "success", "requirements": requirements})
}

func (h *RequirementsHandler) getChecklist(c *fiber.Ctx) error {
	checklist, err := h.controller.GetChecklist(c.Context(), c.Params("nationality"), c.Params("destination"))
	if err != nil {
		return h.fail(c, "getChecklist", err)
	}

	return c.JSON(fiber.Map{"message": "success", "checklist": checklist})
}

func (h *RequirementsHandler) getRules(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"message":      "success",
		"version":      h.controller.RuleVersion(),
		"destinations": h.controller.Destinations(),
	})
}

func (h *RequirementsHandler) reloadRules(c *fiber.Ctx) error {
	version, err := h.controller.ReloadRules(c.Context(), h.rulesPath)
	if err != nil {
		return h.fail(c, "reloadRules", err)
	}

	return c.JSON(fiber.Map{"message": "success", "version": version})
}
