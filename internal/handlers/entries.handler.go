package handlers

import (
	"entryready/internal/app"
	"entryready/internal/apperrors"
	lifecycleController "entryready/internal/controllers/lifecycle"
	"entryready/internal/handlers/middleware"
	"entryready/internal/logger"
	. "entryready/internal/models"
	"entryready/internal/services"
	"errors"

	"github.com/gofiber/fiber/v2"
)

type EntriesHandler struct {
	Handler
	controller *lifecycleController.LifecycleController
	autosaver  *services.Autosaver
}

func NewEntriesHandler(app app.App, router fiber.Router) *EntriesHandler {
	log := logger.New("handlers").File("entries_handler")
	return &EntriesHandler{
		controller: app.LifecycleController,
		autosaver:  app.Autosaver,
		Handler: Handler{
			log:        log,
			router:     router,
			middleware: app.Middleware,
		},
	}
}

func (h *EntriesHandler) Register() {
	entries := h.router.Group("/entries", h.middleware.RequireUser())
	entries.Get("/", h.listEntries)
	entries.Post("/", h.startEntry)
	entries.Get("/:id", h.getEntry)
	entries.Put("/:id", h.updateEntry)
	entries.Put("/:id/completion", h.updateCompletion)
	entries.Post("/:id/edits", h.recordEdits)
	entries.Get("/:id/checklist", h.getChecklist)

	entries.Post("/:id/submissions", h.submit)
	entries.Get("/:id/submissions", h.submissionHistory)
	entries.Get("/:id/cards", h.currentCards)
	entries.Get("/:id/cards/:cardType", h.currentCard)

	entries.Put("/:id/funds", h.attachFunds)
	entries.Get("/:id/funds/coverage", h.fundsCoverage)

	entries.Post("/:id/complete", h.completeTrip)
	entries.Post("/:id/archive", h.archive)
}

type entryRequest struct {
	PassportID     string  `json:"passportId"`
	PersonalInfoID *string `json:"personalInfoId"`
	TravelInfoID   *string `json:"travelInfoId"`
	Destination    string  `json:"destination"`
}

func (r entryRequest) toEntry(c *fiber.Ctx) *EntryInfo {
	return &EntryInfo{
		BaseUUIDModel:  BaseUUIDModel{ID: c.Params("id")},
		UserID:         middleware.UserID(c),
		PassportID:     r.PassportID,
		PersonalInfoID: r.PersonalInfoID,
		TravelInfoID:   r.TravelInfoID,
		Destination:    r.Destination,
	}
}

func (h *EntriesHandler) listEntries(c *fiber.Ctx) error {
	entries, err := h.controller.ListEntries(c.Context(), middleware.UserID(c))
	if err != nil {
		return h.fail(c, "listEntries", err)
	}
	return c.JSON(fiber.Map{"message": "success", "entries": entries})
}

func (h *EntriesHandler) startEntry(c *fiber.Ctx) error {
	var request entryRequest
	if err := c.BodyParser(&request); err != nil {
		return h.badRequest(c, "startEntry", err)
	}

	entry := request.toEntry(c)
	if err := h.controller.StartEntry(c.Context(), entry); err != nil {
		return h.fail(c, "startEntry", err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "success", "entry": entry})
}

func (h *EntriesHandler) getEntry(c *fiber.Ctx) error {
	entry, err := h.controller.GetEntry(c.Context(), middleware.UserID(c), c.Params("id"))
	if err != nil {
		return h.fail(c, "getEntry", err)
	}
	return c.JSON(fiber.Map{"message": "success", "entry": entry})
}

func (h *EntriesHandler) updateEntry(c *fiber.Ctx) error {
	var request entryRequest
	if err := c.BodyParser(&request); err != nil {
		return h.badRequest(c, "updateEntry", err)
	}

	entry, err := h.controller.UpdateEntry(c.Context(), request.toEntry(c))
	if err != nil {
		return h.fail(c, "updateEntry", err)
	}
	return c.JSON(fiber.Map{"message": "success", "entry": entry})
}

func (h *EntriesHandler) updateCompletion(c *fiber.Ctx) error {
	var completion CompletionMetrics
	if err := c.BodyParser(&completion); err != nil {
		return h.badRequest(c, "updateCompletion", err)
	}

	entry, err := h.controller.UpdateCompletion(c.Context(), middleware.UserID(c), c.Params("id"), completion)
	if err != nil {
		return h.fail(c, "updateCompletion", err)
	}
	return c.JSON(fiber.Map{"message": "success", "entry": entry})
}

type editsRequest struct {
	Fields []string `json:"fields"`
	Flush  bool     `json:"flush"`
}

// recordEdits collects field edits from the form and judges them once the
// autosave window closes, or at once when flush is set.
func (h *EntriesHandler) recordEdits(c *fiber.Ctx) error {
	var request editsRequest
	if err := c.BodyParser(&request); err != nil {
		return h.badRequest(c, "recordEdits", err)
	}

	userID := middleware.UserID(c)
	entry, err := h.controller.GetEntry(c.Context(), userID, c.Params("id"))
	if err != nil {
		return h.fail(c, "recordEdits", err)
	}

	if err := h.autosaver.Queue(userID, entry.ID, request.Fields); err != nil {
		return h.fail(c, "recordEdits", err)
	}
	if !request.Flush {
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"message": "success"})
	}

	if err := h.autosaver.Flush(userID, entry.ID); err != nil {
		return h.fail(c, "recordEdits", err)
	}
	entry, err = h.controller.GetEntry(c.Context(), userID, entry.ID)
	if err != nil {
		return h.fail(c, "recordEdits", err)
	}
	return c.JSON(fiber.Map{"message": "success", "entry": entry})
}

func (h *EntriesHandler) getChecklist(c *fiber.Ctx) error {
	checklist, err := h.controller.Checklist(c.Context(), middleware.UserID(c), c.Params("id"))
	if err != nil {
		return h.fail(c, "getChecklist", err)
	}
	return c.JSON(fiber.Map{"message": "success", "checklist": checklist})
}

type submitRequest struct {
	CardType string `json:"cardType"`
}

// submit judges pending edits first so the card reflects the latest values.
func (h *EntriesHandler) submit(c *fiber.Ctx) error {
	var request submitRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&request); err != nil {
			return h.badRequest(c, "submit", err)
		}
	}

	userID := middleware.UserID(c)
	entryInfoID := c.Params("id")
	if err := h.autosaver.Flush(userID, entryInfoID); err != nil {
		return h.fail(c, "submit", err)
	}

	card, err := h.controller.Submit(c.Context(), userID, entryInfoID, request.CardType)
	var submissionErr *apperrors.SubmissionError
	if errors.As(err, &submissionErr) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"message": "error",
			"error":   err.Error(),
			"card":    card,
		})
	}
	if err != nil {
		return h.fail(c, "submit", err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "success", "card": card})
}

func (h *EntriesHandler) submissionHistory(c *fiber.Ctx) error {
	cards, err := h.controller.SubmissionHistory(c.Context(), middleware.UserID(c), c.Params("id"), c.Query("cardType"))
	if err != nil {
		return h.fail(c, "submissionHistory", err)
	}
	return c.JSON(fiber.Map{"message": "success", "cards": cards})
}

func (h *EntriesHandler) currentCards(c *fiber.Ctx) error {
	cards, err := h.controller.CurrentCards(c.Context(), middleware.UserID(c), c.Params("id"))
	if err != nil {
		return h.fail(c, "currentCards", err)
	}
	return c.JSON(fiber.Map{"message": "success", "cards": cards})
}

func (h *EntriesHandler) currentCard(c *fiber.Ctx) error {
	card, err := h.controller.CurrentCard(c.Context(), middleware.UserID(c), c.Params("id"), c.Params("cardType"))
	if err != nil {
		return h.fail(c, "currentCard", err)
	}
	return c.JSON(fiber.Map{"message": "success", "card": card})
}

type fundsRequest struct {
	FundItemIDs []string `json:"fundItemIds"`
}

func (h *EntriesHandler) attachFunds(c *fiber.Ctx) error {
	var request fundsRequest
	if err := c.BodyParser(&request); err != nil {
		return h.badRequest(c, "attachFunds", err)
	}

	entry, err := h.controller.AttachFunds(c.Context(), middleware.UserID(c), c.Params("id"), request.FundItemIDs)
	if err != nil {
		return h.fail(c, "attachFunds", err)
	}
	return c.JSON(fiber.Map{"message": "success", "entry": entry})
}

func (h *EntriesHandler) fundsCoverage(c *fiber.Ctx) error {
	coverage, err := h.controller.FundsCoverage(c.Context(), middleware.UserID(c), c.Params("id"))
	if err != nil {
		return h.fail(c, "fundsCoverage", err)
	}
	return c.JSON(fiber.Map{"message": "success", "coverage": coverage})
}

func (h *EntriesHandler) completeTrip(c *fiber.Ctx) error {
	entry, err := h.controller.CompleteTrip(c.Context(), middleware.UserID(c), c.Params("id"))
	if err != nil {
		return h.fail(c, "completeTrip", err)
	}
	return c.JSON(fiber.Map{"message": "success", "entry": entry})
}

func (h *EntriesHandler) archive(c *fiber.Ctx) error {
	entry, err := h.controller.Archive(c.Context(), middleware.UserID(c), c.Params("id"))
	if err != nil {
		return h.fail(c, "archive", err)
	}
	return c.JSON(fiber.Map{"message": "success", "entry": entry})
}
