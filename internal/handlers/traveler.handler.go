package handlers

import (
	"entryready/internal/app"
	"entryready/internal/apperrors"
	travelerController "entryready/internal/controllers/traveler"
	"entryready/internal/handlers/middleware"
	"entryready/internal/logger"
	. "entryready/internal/models"
	"entryready/internal/utils"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
)

type TravelerHandler struct {
	Handler
	controller *travelerController.TravelerController
	dates      *utils.DateValidator
}

func NewTravelerHandler(app app.App, router fiber.Router) *TravelerHandler {
	log := logger.New("handlers").File("traveler_handler")
	return &TravelerHandler{
		controller: app.TravelerController,
		dates:      utils.NewDateValidator(),
		Handler: Handler{
			log:        log,
			router:     router,
			middleware: app.Middleware,
		},
	}
}

func (h *TravelerHandler) Register() {
	passports := h.router.Group("/passports", h.middleware.RequireUser())
	passports.Get("/", h.listPassports)
	passports.Post("/", h.createPassport)
	passports.Get("/:id", h.getPassport)
	passports.Put("/:id", h.updatePassport)
	passports.Delete("/:id", h.deletePassport)
	passports.Post("/:id/primary", h.setPrimaryPassport)

	personal := h.router.Group("/personal-info", h.middleware.RequireUser())
	personal.Get("/", h.listPersonalInfo)
	personal.Post("/", h.createPersonalInfo)
	personal.Get("/:id", h.getPersonalInfo)
	personal.Put("/:id", h.updatePersonalInfo)
	personal.Delete("/:id", h.deletePersonalInfo)
	personal.Post("/:id/default", h.setDefaultPersonalInfo)

	travel := h.router.Group("/travel-info", h.middleware.RequireUser())
	travel.Post("/", h.createTravelInfo)
	travel.Get("/:id", h.getTravelInfo)
	travel.Put("/:id", h.updateTravelInfo)

	funds := h.router.Group("/fund-items", h.middleware.RequireUser())
	funds.Get("/", h.listFundItems)
	funds.Post("/", h.createFundItem)
	funds.Delete("/:id", h.deleteFundItem)
}

type passportRequest struct {
	Nationality    string `json:"nationality"`
	PassportNumber string `json:"passportNumber"`
	GivenNames     string `json:"givenNames"`
	Surname        string `json:"surname"`
	DateOfBirth    string `json:"dateOfBirth"`
	Gender         string `json:"gender"`
	ExpiryDate     string `json:"expiryDate"`
	IsPrimary      bool   `json:"isPrimary"`
}

func (h *TravelerHandler) toPassport(c *fiber.Ctx, request passportRequest) (*Passport, error) {
	birth, err := h.dates.ParseDate("dateOfBirth", request.DateOfBirth)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrValidation, err.Error())
	}
	expiry, err := h.dates.ParseDate("expiryDate", request.ExpiryDate)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrValidation, err.Error())
	}

	return &Passport{
		BaseUUIDModel:  BaseUUIDModel{ID: c.Params("id")},
		UserID:         middleware.UserID(c),
		IsPrimary:      request.IsPrimary,
		Nationality:    strings.ToUpper(strings.TrimSpace(request.Nationality)),
		PassportNumber: strings.ToUpper(strings.TrimSpace(request.PassportNumber)),
		GivenNames:     strings.TrimSpace(request.GivenNames),
		Surname:        strings.TrimSpace(request.Surname),
		DateOfBirth:    birth,
		Gender:         request.Gender,
		ExpiryDate:     expiry,
	}, nil
}

func (h *TravelerHandler) listPassports(c *fiber.Ctx) error {
	passports, err := h.controller.ListPassports(c.Context(), middleware.UserID(c))
	if err != nil {
		return h.fail(c, "listPassports", err)
	}
	return c.JSON(fiber.Map{"message": "success", "passports": passports})
}

func (h *TravelerHandler) createPassport(c *fiber.Ctx) error {
	var request passportRequest
	if err := c.BodyParser(&request); err != nil {
		return h.badRequest(c, "createPassport", err)
	}

	passport, err := h.toPassport(c, request)
	if err == nil {
		err = h.controller.CreatePassport(c.Context(), passport)
	}
	if err != nil {
		return h.fail(c, "createPassport", err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "success", "passport": passport})
}

func (h *TravelerHandler) getPassport(c *fiber.Ctx) error {
	passport, err := h.controller.GetPassport(c.Context(), middleware.UserID(c), c.Params("id"))
	if err != nil {
		return h.fail(c, "getPassport", err)
	}
	return c.JSON(fiber.Map{"message": "success", "passport": passport})
}

func (h *TravelerHandler) updatePassport(c *fiber.Ctx) error {
	var request passportRequest
	if err := c.BodyParser(&request); err != nil {
		return h.badRequest(c, "updatePassport", err)
	}

	passport, err := h.toPassport(c, request)
	if err == nil {
		passport, err = h.controller.UpdatePassport(c.Context(), passport)
	}
	if err != nil {
		return h.fail(c, "updatePassport", err)
	}

	return c.JSON(fiber.Map{"message": "success", "passport": passport})
}

func (h *TravelerHandler) deletePassport(c *fiber.Ctx) error {
	if err := h.controller.DeletePassport(c.Context(), middleware.UserID(c), c.Params("id")); err != nil {
		return h.fail(c, "deletePassport", err)
	}
	return c.JSON(fiber.Map{"message": "success"})
}

func (h *TravelerHandler) setPrimaryPassport(c *fiber.Ctx) error {
	if err := h.controller.SetPrimaryPassport(c.Context(), middleware.UserID(c), c.Params("id")); err != nil {
		return h.fail(c, "setPrimaryPassport", err)
	}
	return c.JSON(fiber.Map{"message": "success"})
}

func (h *TravelerHandler) listPersonalInfo(c *fiber.Ctx) error {
	infos, err := h.controller.ListPersonalInfo(c.Context(), middleware.UserID(c))
	if err != nil {
		return h.fail(c, "listPersonalInfo", err)
	}
	return c.JSON(fiber.Map{"message": "success", "personalInfo": infos})
}

func (h *TravelerHandler) parsePersonalInfo(c *fiber.Ctx) (*PersonalInfo, error) {
	var info PersonalInfo
	if err := c.BodyParser(&info); err != nil {
		return nil, err
	}
	info.ID = c.Params("id")
	info.UserID = middleware.UserID(c)
	info.HomeCountry = strings.ToUpper(strings.TrimSpace(info.HomeCountry))
	return &info, nil
}

func (h *TravelerHandler) createPersonalInfo(c *fiber.Ctx) error {
	info, err := h.parsePersonalInfo(c)
	if err != nil {
		return h.badRequest(c, "createPersonalInfo", err)
	}

	if err := h.controller.CreatePersonalInfo(c.Context(), info); err != nil {
		return h.fail(c, "createPersonalInfo", err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "success", "personalInfo": info})
}

func (h *TravelerHandler) getPersonalInfo(c *fiber.Ctx) error {
	info, err := h.controller.GetPersonalInfo(c.Context(), middleware.UserID(c), c.Params("id"))
	if err != nil {
		return h.fail(c, "getPersonalInfo", err)
	}
	return c.JSON(fiber.Map{"message": "success", "personalInfo": info})
}

func (h *TravelerHandler) updatePersonalInfo(c *fiber.Ctx) error {
	info, err := h.parsePersonalInfo(c)
	if err != nil {
		return h.badRequest(c, "updatePersonalInfo", err)
	}

	info, err = h.controller.UpdatePersonalInfo(c.Context(), info)
	if err != nil {
		return h.fail(c, "updatePersonalInfo", err)
	}
	return c.JSON(fiber.Map{"message": "success", "personalInfo": info})
}

func (h *TravelerHandler) deletePersonalInfo(c *fiber.Ctx) error {
	if err := h.controller.DeletePersonalInfo(c.Context(), middleware.UserID(c), c.Params("id")); err != nil {
		return h.fail(c, "deletePersonalInfo", err)
	}
	return c.JSON(fiber.Map{"message": "success"})
}

func (h *TravelerHandler) setDefaultPersonalInfo(c *fiber.Ctx) error {
	if err := h.controller.SetDefaultPersonalInfo(c.Context(), middleware.UserID(c), c.Params("id")); err != nil {
		return h.fail(c, "setDefaultPersonalInfo", err)
	}
	return c.JSON(fiber.Map{"message": "success"})
}

type travelInfoRequest struct {
	ArrivalDate          string `json:"arrivalDate"`
	DepartureDate        string `json:"departureDate"`
	FlightNumber         string `json:"flightNumber"`
	DepartureCountry     string `json:"departureCountry"`
	Purpose              string `json:"purpose"`
	AccommodationAddress string `json:"accommodationAddress"`
}

func (h *TravelerHandler) toTravelInfo(c *fiber.Ctx, request travelInfoRequest) (*TravelInfo, error) {
	arrival, err := h.dates.ParseDate("arrivalDate", request.ArrivalDate)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrValidation, err.Error())
	}
	departure, err := h.dates.ParseDate("departureDate", request.DepartureDate)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrValidation, err.Error())
	}

	return &TravelInfo{
		BaseUUIDModel:        BaseUUIDModel{ID: c.Params("id")},
		UserID:               middleware.UserID(c),
		ArrivalDate:          arrival,
		DepartureDate:        departure,
		FlightNumber:         strings.ToUpper(strings.ReplaceAll(request.FlightNumber, " ", "")),
		DepartureCountry:     strings.ToUpper(strings.TrimSpace(request.DepartureCountry)),
		Purpose:              strings.TrimSpace(request.Purpose),
		AccommodationAddress: strings.TrimSpace(request.AccommodationAddress),
	}, nil
}

func (h *TravelerHandler) createTravelInfo(c *fiber.Ctx) error {
	var request travelInfoRequest
	if err := c.BodyParser(&request); err != nil {
		return h.badRequest(c, "createTravelInfo", err)
	}

	info, err := h.toTravelInfo(c, request)
	if err == nil {
		err = h.controller.CreateTravelInfo(c.Context(), info)
	}
	if err != nil {
		return h.fail(c, "createTravelInfo", err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "success", "travelInfo": info})
}

func (h *TravelerHandler) getTravelInfo(c *fiber.Ctx) error {
	info, err := h.controller.GetTravelInfo(c.Context(), middleware.UserID(c), c.Params("id"))
	if err != nil {
		return h.fail(c, "getTravelInfo", err)
	}
	return c.JSON(fiber.Map{"message": "success", "travelInfo": info})
}

func (h *TravelerHandler) updateTravelInfo(c *fiber.Ctx) error {
	var request travelInfoRequest
	if err := c.BodyParser(&request); err != nil {
		return h.badRequest(c, "updateTravelInfo", err)
	}

	info, err := h.toTravelInfo(c, request)
	if err == nil {
		info, err = h.controller.UpdateTravelInfo(c.Context(), info)
	}
	if err != nil {
		return h.fail(c, "updateTravelInfo", err)
	}

	return c.JSON(fiber.Map{"message": "success", "travelInfo": info})
}

func (h *TravelerHandler) listFundItems(c *fiber.Ctx) error {
	items, err := h.controller.ListFundItems(c.Context(), middleware.UserID(c))
	if err != nil {
		return h.fail(c, "listFundItems", err)
	}
	return c.JSON(fiber.Map{"message": "success", "fundItems": items})
}

func (h *TravelerHandler) createFundItem(c *fiber.Ctx) error {
	var item FundItem
	if err := c.BodyParser(&item); err != nil {
		return h.badRequest(c, "createFundItem", err)
	}
	item.UserID = middleware.UserID(c)

	if err := h.controller.CreateFundItem(c.Context(), &item); err != nil {
		return h.fail(c, "createFundItem", err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "success", "fundItem": item})
}

func (h *TravelerHandler) deleteFundItem(c *fiber.Ctx) error {
	if err := h.controller.DeleteFundItem(c.Context(), middleware.UserID(c), c.Params("id")); err != nil {
		return h.fail(c, "deleteFundItem", err)
	}
	return c.JSON(fiber.Map{"message": "success"})
}
