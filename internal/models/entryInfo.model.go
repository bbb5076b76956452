package models

import (
	"slices"
	"time"
)

type EntryStatus string

const (
	EntryStatusIncomplete EntryStatus = "incomplete"
	EntryStatusReady      EntryStatus = "ready"
	EntryStatusSubmitted  EntryStatus = "submitted"
	EntryStatusSuperseded EntryStatus = "superseded"
	EntryStatusCompleted  EntryStatus = "completed"
	EntryStatusExpired    EntryStatus = "expired"
	EntryStatusArchived   EntryStatus = "archived"
)

var entryTransitions = map[EntryStatus][]EntryStatus{
	EntryStatusIncomplete: {EntryStatusReady, EntryStatusExpired, EntryStatusArchived},
	EntryStatusReady: {
		EntryStatusIncomplete, EntryStatusSubmitted, EntryStatusExpired, EntryStatusArchived,
	},
	EntryStatusSubmitted: {
		EntryStatusSuperseded, EntryStatusCompleted, EntryStatusReady, EntryStatusExpired, EntryStatusArchived,
	},
	EntryStatusSuperseded: {
		EntryStatusSubmitted, EntryStatusReady, EntryStatusIncomplete, EntryStatusExpired, EntryStatusArchived,
	},
	EntryStatusCompleted: {EntryStatusArchived},
	EntryStatusExpired:   {EntryStatusArchived},
}

func (s EntryStatus) CanTransitionTo(next EntryStatus) bool {
	return slices.Contains(entryTransitions[s], next)
}

func (s EntryStatus) Valid() bool {
	_, ok := entryTransitions[s]
	return ok || s == EntryStatusArchived
}

// Submittable reports whether a DAC attempt may start from this status.
func (s EntryStatus) Submittable() bool {
	return s == EntryStatusReady || s == EntryStatusSuperseded
}

// ActiveEntryStatuses lists the statuses of entries whose linked records are
// still read to build checklists and submissions.
func ActiveEntryStatuses() []EntryStatus {
	return []EntryStatus{EntryStatusIncomplete, EntryStatusReady, EntryStatusSubmitted, EntryStatusSuperseded}
}

// Expirable reports whether the status still cares about the arrival date.
func (s EntryStatus) Expirable() bool {
	return s.CanTransitionTo(EntryStatusExpired)
}

type CompletionMetrics struct {
	Percent         float64  `json:"percent"`
	SectionsPresent []string `json:"sectionsPresent"`
}

func (m CompletionMetrics) HasSections(required []string) bool {
	for _, section := range required {
		if !slices.Contains(m.SectionsPresent, section) {
			return false
		}
	}
	return true
}

type DocumentRefs struct {
	ArrCardNo string `json:"arrCardNo"`
	QRURI     string `json:"qrUri"`
	PDFURL    string `json:"pdfUrl"`
	DACID     string `json:"dacId"`
}

// Documents is keyed by card type.
type Documents map[string]DocumentRefs

type EntryInfo struct {
	BaseUUIDModel
	UserID            string            `gorm:"type:varchar(64);not null;index"  json:"userId"`
	PassportID        string            `gorm:"type:varchar(64);not null"        json:"passportId"`
	PersonalInfoID    *string           `gorm:"type:varchar(64)"                 json:"personalInfoId,omitempty"`
	TravelInfoID      *string           `gorm:"type:varchar(64)"                 json:"travelInfoId,omitempty"`
	Destination       string            `gorm:"type:varchar(2);not null"         json:"destination"`
	Status            EntryStatus       `gorm:"type:varchar(16);not null;index"  json:"status"`
	StatusChangedAt   time.Time         `                                        json:"statusChangedAt"`
	CompletionMetrics CompletionMetrics `gorm:"type:text;serializer:json"        json:"completionMetrics"`
	Documents         Documents         `gorm:"type:text;serializer:json"        json:"documents"`
	FundItems         []FundItem        `gorm:"many2many:entry_info_fund_items;" json:"fundItems,omitempty"`
}

func (EntryInfo) TableName() string {
	return "entry_info"
}

type FundsCoverage struct {
	Required  bool   `json:"required"`
	Currency  string `json:"currency,omitempty"`
	Needed    string `json:"needed,omitempty"`
	Available string `json:"available"`
	Covered   bool   `json:"covered"`
}

// StatusChange is published whenever an entry moves between states.
type StatusChange struct {
	EntryInfoID string      `json:"entryInfoId"`
	UserID      string      `json:"userId"`
	From        EntryStatus `json:"from"`
	To          EntryStatus `json:"to"`
	Reason      string      `json:"reason"`
	At          time.Time   `json:"at"`
}
