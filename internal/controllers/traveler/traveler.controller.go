package travelerController

import (
	"context"
	"entryready/internal/apperrors"
	"entryready/internal/logger"
	. "entryready/internal/models"
	"entryready/internal/repositories"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// EditRecorder receives the field keys that changed on a record linked to an
// entry. The autosaver satisfies it.
type EditRecorder interface {
	Queue(userID, entryInfoID string, fields []string) error
}

type TravelerController struct {
	passports    repositories.PassportRepository
	personalInfo repositories.PersonalInfoRepository
	travelInfo   repositories.TravelInfoRepository
	funds        repositories.FundItemRepository
	entries      repositories.EntryInfoRepository
	edits        EditRecorder
	validate     *validator.Validate
	log          logger.Logger
}

func New(
	passports repositories.PassportRepository,
	personalInfo repositories.PersonalInfoRepository,
	travelInfo repositories.TravelInfoRepository,
	funds repositories.FundItemRepository,
	entries repositories.EntryInfoRepository,
	edits EditRecorder,
) *TravelerController {
	return &TravelerController{
		passports:    passports,
		personalInfo: personalInfo,
		travelInfo:   travelInfo,
		funds:        funds,
		entries:      entries,
		edits:        edits,
		validate:     validator.New(),
		log:          logger.New("TravelerController"),
	}
}

func (c *TravelerController) check(record any) error {
	err := c.validate.Struct(record)
	if err == nil {
		return nil
	}

	var invalid validator.ValidationErrors
	if !errors.As(err, &invalid) {
		return fmt.Errorf("%w: %s", apperrors.ErrValidation, err.Error())
	}

	problems := make([]string, 0, len(invalid))
	for _, fieldErr := range invalid {
		problems = append(problems, fmt.Sprintf("%s failed %s", fieldErr.Field(), fieldErr.Tag()))
	}
	return fmt.Errorf("%w: %s", apperrors.ErrValidation, strings.Join(problems, "; "))
}

// recordEdits queues changed fields for every entry of userID linked through
// links.
func (c *TravelerController) recordEdits(
	ctx context.Context,
	userID string,
	fields []string,
	links func(EntryInfo) bool,
) error {
	if len(fields) == 0 || c.edits == nil {
		return nil
	}

	entries, err := c.entries.ListByUser(ctx, userID)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if !links(entry) {
			continue
		}
		if err := c.edits.Queue(userID, entry.ID, fields); err != nil {
			return c.log.Function("recordEdits").Err("failed to queue edits", err, "entryInfoID", entry.ID)
		}
	}
	return nil
}

func linkedTo(ref *string, id string) bool {
	return ref != nil && *ref == id
}

func (c *TravelerController) CreatePassport(ctx context.Context, passport *Passport) error {
	passport.ID = ""
	if err := c.check(passport); err != nil {
		return err
	}
	return c.passports.Create(ctx, passport)
}

// UpdatePassport saves the editable passport fields and reports the changed
// keys to every entry using this passport.
func (c *TravelerController) UpdatePassport(ctx context.Context, passport *Passport) (*Passport, error) {
	if err := c.check(passport); err != nil {
		return nil, err
	}

	before, err := c.GetPassport(ctx, passport.UserID, passport.ID)
	if err != nil {
		return nil, err
	}
	if err := c.passports.Update(ctx, passport); err != nil {
		return nil, err
	}

	changed := ChangedFields(before.Fields(), passport.Fields())
	err = c.recordEdits(ctx, passport.UserID, changed, func(entry EntryInfo) bool {
		return entry.PassportID == passport.ID
	})
	return passport, err
}

func (c *TravelerController) GetPassport(ctx context.Context, userID, passportID string) (*Passport, error) {
	passport, err := c.passports.GetByID(ctx, passportID)
	if err != nil {
		return nil, err
	}
	if passport.UserID != userID {
		return nil, c.log.Function("GetPassport").Wrap(apperrors.ErrNotFound, "passport not found",
			"passportID", passportID)
	}
	return passport, nil
}

func (c *TravelerController) ListPassports(ctx context.Context, userID string) ([]Passport, error) {
	return c.passports.ListByUser(ctx, userID)
}

func (c *TravelerController) SetPrimaryPassport(ctx context.Context, userID, passportID string) error {
	return c.passports.SetPrimary(ctx, userID, passportID)
}

func (c *TravelerController) DeletePassport(ctx context.Context, userID, passportID string) error {
	return c.passports.Delete(ctx, userID, passportID)
}

func (c *TravelerController) CreatePersonalInfo(ctx context.Context, info *PersonalInfo) error {
	info.ID = ""
	if err := c.check(info); err != nil {
		return err
	}
	return c.personalInfo.Create(ctx, info)
}

func (c *TravelerController) UpdatePersonalInfo(ctx context.Context, info *PersonalInfo) (*PersonalInfo, error) {
	if err := c.check(info); err != nil {
		return nil, err
	}

	before, err := c.GetPersonalInfo(ctx, info.UserID, info.ID)
	if err != nil {
		return nil, err
	}
	if err := c.personalInfo.Update(ctx, info); err != nil {
		return nil, err
	}

	changed := ChangedFields(before.Fields(), info.Fields())
	err = c.recordEdits(ctx, info.UserID, changed, func(entry EntryInfo) bool {
		return linkedTo(entry.PersonalInfoID, info.ID)
	})
	return info, err
}

func (c *TravelerController) GetPersonalInfo(ctx context.Context, userID, personalInfoID string) (*PersonalInfo, error) {
	info, err := c.personalInfo.GetByID(ctx, personalInfoID)
	if err != nil {
		return nil, err
	}
	if info.UserID != userID {
		return nil, c.log.Function("GetPersonalInfo").Wrap(apperrors.ErrNotFound, "personal info not found",
			"personalInfoID", personalInfoID)
	}
	return info, nil
}

func (c *TravelerController) ListPersonalInfo(ctx context.Context, userID string) ([]PersonalInfo, error) {
	return c.personalInfo.ListByUser(ctx, userID)
}

func (c *TravelerController) SetDefaultPersonalInfo(ctx context.Context, userID, personalInfoID string) error {
	return c.personalInfo.SetDefault(ctx, userID, personalInfoID)
}

func (c *TravelerController) DeletePersonalInfo(ctx context.Context, userID, personalInfoID string) error {
	return c.personalInfo.Delete(ctx, userID, personalInfoID)
}

func (c *TravelerController) CreateTravelInfo(ctx context.Context, info *TravelInfo) error {
	info.ID = ""
	if err := c.checkTravel(info); err != nil {
		return err
	}
	return c.travelInfo.Create(ctx, info)
}

func (c *TravelerController) UpdateTravelInfo(ctx context.Context, info *TravelInfo) (*TravelInfo, error) {
	if err := c.checkTravel(info); err != nil {
		return nil, err
	}

	before, err := c.GetTravelInfo(ctx, info.UserID, info.ID)
	if err != nil {
		return nil, err
	}
	if err := c.travelInfo.Update(ctx, info); err != nil {
		return nil, err
	}

	changed := ChangedFields(before.Fields(), info.Fields())
	err = c.recordEdits(ctx, info.UserID, changed, func(entry EntryInfo) bool {
		return linkedTo(entry.TravelInfoID, info.ID)
	})
	return info, err
}

func (c *TravelerController) checkTravel(info *TravelInfo) error {
	if err := c.check(info); err != nil {
		return err
	}
	if info.ArrivalDate != nil && info.DepartureDate != nil && info.DepartureDate.Before(*info.ArrivalDate) {
		return fmt.Errorf("%w: departure date is before arrival date", apperrors.ErrValidation)
	}
	return nil
}

func (c *TravelerController) GetTravelInfo(ctx context.Context, userID, travelInfoID string) (*TravelInfo, error) {
	info, err := c.travelInfo.GetByID(ctx, travelInfoID)
	if err != nil {
		return nil, err
	}
	if info.UserID != userID {
		return nil, c.log.Function("GetTravelInfo").Wrap(apperrors.ErrNotFound, "travel info not found",
			"travelInfoID", travelInfoID)
	}
	return info, nil
}

func (c *TravelerController) CreateFundItem(ctx context.Context, item *FundItem) error {
	item.ID = ""
	item.Currency = strings.ToUpper(item.Currency)
	if err := c.check(item); err != nil {
		return err
	}
	if !item.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", apperrors.ErrValidation)
	}
	return c.funds.Create(ctx, item)
}

func (c *TravelerController) ListFundItems(ctx context.Context, userID string) ([]FundItem, error) {
	return c.funds.ListByUser(ctx, userID)
}

func (c *TravelerController) DeleteFundItem(ctx context.Context, userID, fundItemID string) error {
	return c.funds.Delete(ctx, userID, fundItemID)
}
