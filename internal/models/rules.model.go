package models

import (
	"slices"

	"github.com/shopspring/decimal"
)

type EntryMethod string

const (
	EntryMethodDigital EntryMethod = "digital"
	EntryMethodPaper   EntryMethod = "paper"
	EntryMethodBoth    EntryMethod = "both"
	EntryMethodNone    EntryMethod = "none"
)

type RequirementType string

const (
	RequirementPassportValidity   RequirementType = "passport_validity"
	RequirementReturnTicket       RequirementType = "return_ticket"
	RequirementAccommodationProof RequirementType = "accommodation_proof"
	RequirementFundsProof         RequirementType = "funds_proof"
	RequirementVisaCopy           RequirementType = "visa_copy"
	RequirementTravelInsurance    RequirementType = "travel_insurance"
	RequirementVaccination        RequirementType = "vaccination"
	RequirementOther              RequirementType = "other"
)

type Requirement struct {
	Type         RequirementType  `json:"type"                   validate:"required,oneof=passport_validity return_ticket accommodation_proof funds_proof visa_copy travel_insurance vaccination other"`
	Description  string           `json:"description,omitempty"`
	Months       int              `json:"months,omitempty"       validate:"gte=0,lte=24"`
	Amount       *decimal.Decimal `json:"amount,omitempty"`
	Currency     string           `json:"currency,omitempty"     validate:"omitempty,iso4217"`
	AutoFillable bool             `json:"autoFillable,omitempty"`
}

type EntryForm struct {
	ID           string `json:"id"                     validate:"required"`
	Name         string `json:"name,omitempty"`
	Required     bool   `json:"required"`
	AutoFillable bool   `json:"autoFillable"`
	URL          string `json:"url,omitempty"          validate:"omitempty,url"`
}

// BaseDestinationRule is destination-wide reference data keyed by ISO 3166-1
// alpha-2 code. Forms is the catalogue overrides may reference by id.
type BaseDestinationRule struct {
	Name                       string      `json:"name"`
	PassportValidityMonths     int         `json:"passportValidityMonths"     validate:"gte=0,lte=24"`
	ReturnTicketRequired       bool        `json:"returnTicketRequired"`
	AccommodationProofRequired bool        `json:"accommodationProofRequired"`
	EntryMethod                EntryMethod `json:"entryMethod"                validate:"required,oneof=digital paper both none"`
	DigitalSystem              string      `json:"digitalSystem,omitempty"`
	DigitalURL                 string      `json:"digitalUrl,omitempty"       validate:"omitempty,url"`
	Forms                      []EntryForm `json:"forms,omitempty"            validate:"dive"`
	RequiredSections           []string    `json:"requiredSections,omitempty"`
}

// DefaultRequirements derives the base document list in its fixed order.
func (b BaseDestinationRule) DefaultRequirements() []Requirement {
	requirements := []Requirement{}
	if b.PassportValidityMonths > 0 {
		requirements = append(requirements, Requirement{
			Type:   RequirementPassportValidity,
			Months: b.PassportValidityMonths,
		})
	}
	if b.ReturnTicketRequired {
		requirements = append(requirements, Requirement{Type: RequirementReturnTicket})
	}
	if b.AccommodationProofRequired {
		requirements = append(requirements, Requirement{Type: RequirementAccommodationProof})
	}
	return requirements
}

func (b BaseDestinationRule) Form(id string) (EntryForm, bool) {
	for _, form := range b.Forms {
		if form.ID == id {
			return form, true
		}
	}
	return EntryForm{}, false
}

// NationalityOverride is keyed by destination then ISO 3166-1 alpha-3 nationality.
type NationalityOverride struct {
	VisaRequired     bool          `json:"visaRequired"`
	VisaType         string        `json:"visaType,omitempty"`
	StayDurationDays int           `json:"stayDurationDays,omitempty" validate:"gte=0,lte=3650"`
	Forms            []EntryForm   `json:"forms,omitempty"            validate:"dive"`
	AdditionalDocs   []Requirement `json:"additionalDocs,omitempty"   validate:"dive"`
	SpecialNotes     string        `json:"specialNotes,omitempty"`
	KioskEligible    bool          `json:"kioskEligible"`
}

type RuleSet struct {
	Version              string                                    `json:"version"`
	BaseDestinationRules map[string]BaseDestinationRule            `json:"baseDestinationRules"`
	NationalityOverrides map[string]map[string]NationalityOverride `json:"nationalityOverrides"`
}

type ComputedRequirements struct {
	Supported        bool          `json:"supported"`
	Message          string        `json:"message,omitempty"`
	Nationality      string        `json:"nationality"`
	Destination      string        `json:"destination"`
	RuleVersion      string        `json:"ruleVersion,omitempty"`
	VisaRequired     bool          `json:"visaRequired"`
	VisaType         string        `json:"visaType,omitempty"`
	StayDurationDays int           `json:"stayDurationDays,omitempty"`
	Requirements     []Requirement `json:"requirements"`
	Forms            []EntryForm   `json:"forms"`
	SpecialNotes     string        `json:"specialNotes,omitempty"`
	KioskEligible    bool          `json:"kioskEligible"`
	EntryMethod      EntryMethod   `json:"entryMethod,omitempty"`
	DigitalSystem    string        `json:"digitalSystem,omitempty"`
	DigitalURL       string        `json:"digitalUrl,omitempty"`
}

// Clone returns a deep copy so cached values are never mutated through a
// returned result.
func (c ComputedRequirements) Clone() ComputedRequirements {
	clone := c
	clone.Requirements = make([]Requirement, len(c.Requirements))
	for i, requirement := range c.Requirements {
		if requirement.Amount != nil {
			amount := *requirement.Amount
			requirement.Amount = &amount
		}
		clone.Requirements[i] = requirement
	}
	clone.Forms = slices.Clone(c.Forms)
	if clone.Forms == nil {
		clone.Forms = []EntryForm{}
	}
	return clone
}

// FundsRequirement returns the first funds-proof requirement, if any.
func (c ComputedRequirements) FundsRequirement() (Requirement, bool) {
	for _, requirement := range c.Requirements {
		if requirement.Type == RequirementFundsProof {
			return requirement, true
		}
	}
	return Requirement{}, false
}
