package handlers

import (
	"entryready/internal/app"
	"entryready/internal/apperrors"
	"entryready/internal/handlers/middleware"
	"entryready/internal/logger"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Handler struct {
	middleware middleware.Middleware
	log        logger.Logger
	router     fiber.Router
}

func Router(router fiber.Router, app *app.App) (err error) {
	router.Use(app.Middleware.RequestLogger())
	setupWebSocketRoute(router, app)
	router.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(app.Registry, promhttp.HandlerOpts{})))

	api := router.Group("/api")
	HealthHandler(api, app)
	NewRequirementsHandler(*app, api).Register()

	NewTravelerHandler(*app, api).Register()
	NewEntriesHandler(*app, api).Register()

	return nil
}

func setupWebSocketRoute(router fiber.Router, app *app.App) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get("/ws/entries", app.Middleware.RequireUser(), websocket.New(func(c *websocket.Conn) {
		app.Websocket.HandleWebSocket(c)
	}))
}

func HealthHandler(router fiber.Router, app *app.App) {
	router.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message":     "success",
			"status":      "ok",
			"environment": app.Config.Environment,
			"ruleVersion": app.RequirementsController.RuleVersion(),
			"cache":       app.RequirementsController.CacheStats(),
		})
	})
}

// statusFor maps domain errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, apperrors.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, apperrors.ErrInvalidTransition),
		errors.Is(err, apperrors.ErrSubmissionInFlight),
		errors.Is(err, apperrors.ErrInvariantViolation):
		return fiber.StatusConflict
	case errors.Is(err, apperrors.ErrSubmissionFailed):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, apperrors.ErrTransient):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, apperrors.ErrConfiguration):
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}

func (h *Handler) fail(c *fiber.Ctx, function string, err error) error {
	status := statusFor(err)
	if status == fiber.StatusInternalServerError {
		h.log.Function(function).Er("request failed", err, "path", c.Path())
		return c.Status(status).JSON(fiber.Map{"message": "error", "error": "internal server error"})
	}
	return c.Status(status).JSON(fiber.Map{"message": "error", "error": err.Error()})
}

func (h *Handler) badRequest(c *fiber.Ctx, function string, err error) error {
	h.log.Function(function).Debug("failed to parse request", "error", err)
	return c.Status(fiber.StatusBadRequest).
		JSON(fiber.Map{"message": "error", "error": "failed to parse request"})
}
