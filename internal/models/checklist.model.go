package models

type ChecklistItemKind string

const (
	ChecklistVisa               ChecklistItemKind = "visa"
	ChecklistPassportValidity   ChecklistItemKind = "passport_validity"
	ChecklistReturnTicket       ChecklistItemKind = "return_ticket"
	ChecklistAccommodationProof ChecklistItemKind = "accommodation_proof"
	ChecklistFundsProof         ChecklistItemKind = "funds_proof"
	ChecklistDocument           ChecklistItemKind = "document"
	ChecklistForm               ChecklistItemKind = "form"
)

type ChecklistStatus string

const (
	ChecklistPending   ChecklistStatus = "pending"
	ChecklistCompleted ChecklistStatus = "completed"
)

type ChecklistItem struct {
	ID          string            `json:"id"`
	Kind        ChecklistItemKind `json:"kind"`
	Required    bool              `json:"required"`
	CanHelp     bool              `json:"canHelp"`
	Status      ChecklistStatus   `json:"status"`
	Requirement *Requirement      `json:"requirement,omitempty"`
	Form        *EntryForm        `json:"form,omitempty"`
}

type Checklist struct {
	Supported    bool            `json:"supported"`
	Message      string          `json:"message,omitempty"`
	VisaRequired bool            `json:"visaRequired"`
	Checklist    []ChecklistItem `json:"checklist"`
}
