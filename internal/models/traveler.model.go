package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

type Passport struct {
	BaseUUIDModel
	UserID         string     `gorm:"type:varchar(64);not null;index:idx_passports_user_primary,priority:1" json:"userId"`
	IsPrimary      bool       `gorm:"not null;default:false;index:idx_passports_user_primary,priority:2"      json:"isPrimary"`
	Nationality    string     `gorm:"type:varchar(3);not null"                                                json:"nationality"    validate:"required,iso3166_1_alpha3"`
	PassportNumber string     `gorm:"type:varchar(32)"                                                        json:"passportNumber" validate:"omitempty,alphanum,max=32"`
	GivenNames     string     `gorm:"type:varchar(255)"                                                       json:"givenNames"`
	Surname        string     `gorm:"type:varchar(255)"                                                       json:"surname"`
	DateOfBirth    *time.Time `                                                                               json:"dateOfBirth,omitempty"`
	Gender         string     `gorm:"type:varchar(16)"                                                        json:"gender,omitempty"`
	ExpiryDate     *time.Time `                                                                               json:"expiryDate,omitempty"`
}

// Fields flattens the values a DAC submission carries from this section.
func (p Passport) Fields() map[string]string {
	return map[string]string{
		"passport.nationality":    p.Nationality,
		"passport.passportNumber": p.PassportNumber,
		"passport.givenNames":     p.GivenNames,
		"passport.surname":        p.Surname,
		"passport.dateOfBirth":    formatDate(p.DateOfBirth),
		"passport.gender":         p.Gender,
		"passport.expiryDate":     formatDate(p.ExpiryDate),
	}
}

type PersonalInfo struct {
	BaseUUIDModel
	UserID      string `gorm:"type:varchar(64);not null;index:idx_personal_info_user_default,priority:1" json:"userId"`
	IsDefault   bool   `gorm:"not null;default:false;index:idx_personal_info_user_default,priority:2"   json:"isDefault"`
	Email       string `gorm:"type:varchar(255)"                                                         json:"email"       validate:"omitempty,email"`
	Phone       string `gorm:"type:varchar(32)"                                                          json:"phone"       validate:"omitempty,e164"`
	Occupation  string `gorm:"type:varchar(255)"                                                         json:"occupation"`
	HomeAddress string `gorm:"type:varchar(512)"                                                         json:"homeAddress"`
	HomeCountry string `gorm:"type:varchar(3)"                                                           json:"homeCountry" validate:"omitempty,iso3166_1_alpha3"`
}

func (p PersonalInfo) Fields() map[string]string {
	return map[string]string{
		"personalInfo.email":       p.Email,
		"personalInfo.phone":       p.Phone,
		"personalInfo.occupation":  p.Occupation,
		"personalInfo.homeAddress": p.HomeAddress,
		"personalInfo.homeCountry": p.HomeCountry,
	}
}

func (PersonalInfo) TableName() string {
	return "personal_info"
}

type TravelInfo struct {
	BaseUUIDModel
	UserID               string     `gorm:"type:varchar(64);not null;index" json:"userId"`
	ArrivalDate          *time.Time `                                       json:"arrivalDate,omitempty"`
	DepartureDate        *time.Time `                                       json:"departureDate,omitempty"`
	FlightNumber         string     `gorm:"type:varchar(16)"                json:"flightNumber"`
	DepartureCountry     string     `gorm:"type:varchar(3)"                 json:"departureCountry"     validate:"omitempty,iso3166_1_alpha3"`
	Purpose              string     `gorm:"type:varchar(64)"                json:"purpose"`
	AccommodationAddress string     `gorm:"type:varchar(512)"               json:"accommodationAddress"`
}

func (t TravelInfo) Fields() map[string]string {
	return map[string]string{
		"travelInfo.arrivalDate":          formatDate(t.ArrivalDate),
		"travelInfo.departureDate":        formatDate(t.DepartureDate),
		"travelInfo.flightNumber":         t.FlightNumber,
		"travelInfo.departureCountry":     t.DepartureCountry,
		"travelInfo.purpose":              t.Purpose,
		"travelInfo.accommodationAddress": t.AccommodationAddress,
	}
}

func (TravelInfo) TableName() string {
	return "travel_info"
}

type FundItem struct {
	BaseUUIDModel
	UserID   string          `gorm:"type:varchar(64);not null;index" json:"userId"`
	Kind     string          `gorm:"type:varchar(32);not null"       json:"kind"     validate:"required,oneof=cash bank_statement credit_card other"`
	Amount   decimal.Decimal `gorm:"type:decimal(14,2);not null"     json:"amount"`
	Currency string          `gorm:"type:varchar(3);not null"        json:"currency" validate:"required,iso4217"`
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(dateLayout)
}
