package seed

import (
	"context"
	"entryready/config"
	"entryready/internal/database"
	"entryready/internal/logger"
	. "entryready/internal/models"
	"entryready/internal/repositories"
	"time"

	"github.com/shopspring/decimal"
)

type traveler struct {
	userID      string
	nationality string
	surname     string
	givenNames  string
	email       string
	destination string
	funds       decimal.Decimal
}

func Seed(db database.DB, config config.Config, log logger.Logger) error {
	log = log.Function("seed")
	log.Info("Seeding development data")
	ctx := context.Background()

	passports := repositories.NewPassportRepository(db)
	personalInfo := repositories.NewPersonalInfoRepository(db)
	travelInfo := repositories.NewTravelInfoRepository(db)
	funds := repositories.NewFundItemRepository(db)
	entries := repositories.NewEntryInfoRepository(db)

	travelers := []traveler{
		{"dev-chn", "CHN", "LI", "WEI", "wei.li@example.com", "TH", decimal.NewFromInt(25000)},
		{"dev-ind", "IND", "SHARMA", "PRIYA", "priya.sharma@example.com", "TH", decimal.NewFromInt(12000)},
		{"dev-usa", "USA", "MILLER", "ADA", "ada.miller@example.com", "JP", decimal.NewFromInt(1500)},
	}

	arrival := time.Now().UTC().AddDate(0, 0, 14).Truncate(24 * time.Hour)
	departure := arrival.AddDate(0, 0, 10)
	expiry := arrival.AddDate(5, 0, 0)

	for _, t := range travelers {
		existing, err := passports.ListByUser(ctx, t.userID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			log.Info("Traveler already exists", "userID", t.userID)
			continue
		}

		log.Info("Seeding traveler", "userID", t.userID, "destination", t.destination)

		passport := &Passport{
			UserID:         t.userID,
			Nationality:    t.nationality,
			PassportNumber: "E" + t.nationality + "0001",
			Surname:        t.surname,
			GivenNames:     t.givenNames,
			ExpiryDate:     &expiry,
		}
		if err := passports.Create(ctx, passport); err != nil {
			log.Er("failed to create passport", err, "userID", t.userID)
			continue
		}

		personal := &PersonalInfo{UserID: t.userID, Email: t.email, Occupation: "engineer", HomeCountry: t.nationality}
		if err := personalInfo.Create(ctx, personal); err != nil {
			log.Er("failed to create personal info", err, "userID", t.userID)
			continue
		}

		travel := &TravelInfo{
			UserID:               t.userID,
			ArrivalDate:          &arrival,
			DepartureDate:        &departure,
			FlightNumber:         "TG615",
			Purpose:              "tourism",
			AccommodationAddress: "1 Example Road",
		}
		if err := travelInfo.Create(ctx, travel); err != nil {
			log.Er("failed to create travel info", err, "userID", t.userID)
			continue
		}

		fund := &FundItem{UserID: t.userID, Kind: "bank_statement", Amount: t.funds, Currency: "THB"}
		if t.destination == "JP" {
			fund.Currency = "USD"
		}
		if err := funds.Create(ctx, fund); err != nil {
			log.Er("failed to create fund item", err, "userID", t.userID)
			continue
		}

		entry := &EntryInfo{
			UserID:         t.userID,
			PassportID:     passport.ID,
			PersonalInfoID: &personal.ID,
			TravelInfoID:   &travel.ID,
			Destination:    t.destination,
		}
		if err := entries.CreateOrUpdate(ctx, entry); err != nil {
			log.Er("failed to create entry", err, "userID", t.userID)
			continue
		}
		if err := entries.AttachFundItems(ctx, entry, []string{fund.ID}); err != nil {
			log.Er("failed to attach funds", err, "entryInfoID", entry.ID)
		}
	}

	return nil
}
