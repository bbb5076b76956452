package requirementsController

import (
	. "entryready/internal/models"
	"strings"
)

// RequirementsPostProcessor adjusts a merged result for one destination.
// Implementations must be deterministic.
type RequirementsPostProcessor interface {
	Process(requirements *ComputedRequirements)
}

type PostProcessorFunc func(requirements *ComputedRequirements)

func (f PostProcessorFunc) Process(requirements *ComputedRequirements) {
	f(requirements)
}

// DefaultPostProcessors lists every destination with custom handling.
func DefaultPostProcessors() map[string]RequirementsPostProcessor {
	return map[string]RequirementsPostProcessor{
		"TH": thailandTDAC{},
	}
}

const (
	tdacFormID = "TDAC"
	tdacNote   = "Submit the TDAC no earlier than 72 hours before arrival."
)

type thailandTDAC struct{}

func (thailandTDAC) Process(requirements *ComputedRequirements) {
	found := false
	for i := range requirements.Forms {
		if requirements.Forms[i].ID == tdacFormID {
			requirements.Forms[i].AutoFillable = true
			found = true
		}
	}
	if !found || strings.Contains(requirements.SpecialNotes, tdacNote) {
		return
	}

	if requirements.SpecialNotes == "" {
		requirements.SpecialNotes = tdacNote
		return
	}
	requirements.SpecialNotes += " " + tdacNote
}
