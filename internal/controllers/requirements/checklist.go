package requirementsController

import (
	. "entryready/internal/models"
	"fmt"

	"github.com/shopspring/decimal"
)

var checklistOrder = []struct {
	requirement RequirementType
	kind        ChecklistItemKind
}{
	{RequirementPassportValidity, ChecklistPassportValidity},
	{RequirementReturnTicket, ChecklistReturnTicket},
	{RequirementAccommodationProof, ChecklistAccommodationProof},
	{RequirementFundsProof, ChecklistFundsProof},
}

// BuildChecklist turns computed requirements into ordered checklist items:
// visa, passport validity, return ticket, accommodation proof, funds proof,
// any other documents, then one item per form in rule order.
func BuildChecklist(requirements ComputedRequirements) []ChecklistItem {
	items := []ChecklistItem{visaItem(requirements)}
	ids := map[string]int{"visa": 1}

	placed := make([]bool, len(requirements.Requirements))
	for _, step := range checklistOrder {
		for i, requirement := range requirements.Requirements {
			if requirement.Type != step.requirement {
				continue
			}
			placed[i] = true
			items = append(items, requirementItem(requirement, step.kind, ids))
		}
	}

	for i, requirement := range requirements.Requirements {
		if placed[i] {
			continue
		}
		items = append(items, requirementItem(requirement, ChecklistDocument, ids))
	}

	for _, form := range requirements.Forms {
		items = append(items, ChecklistItem{
			ID:       uniqueID("form:"+form.ID, ids),
			Kind:     ChecklistForm,
			Required: form.Required,
			CanHelp:  form.AutoFillable,
			Status:   ChecklistPending,
			Form:     &form,
		})
	}

	return items
}

func visaItem(requirements ComputedRequirements) ChecklistItem {
	status := ChecklistPending
	if !requirements.VisaRequired {
		status = ChecklistCompleted
	}

	return ChecklistItem{
		ID:       "visa",
		Kind:     ChecklistVisa,
		Required: requirements.VisaRequired,
		Status:   status,
	}
}

func requirementItem(requirement Requirement, kind ChecklistItemKind, ids map[string]int) ChecklistItem {
	if requirement.Amount != nil {
		amount := *requirement.Amount
		requirement.Amount = &amount
	}

	return ChecklistItem{
		ID:          uniqueID(string(requirement.Type), ids),
		Kind:        kind,
		Required:    true,
		CanHelp:     requirement.AutoFillable,
		Status:      ChecklistPending,
		Requirement: &requirement,
	}
}

func uniqueID(base string, ids map[string]int) string {
	ids[base]++
	if n := ids[base]; n > 1 {
		return fmt.Sprintf("%s-%d", base, n)
	}
	return base
}

// CalculateFundsCoverage compares fund items in the required currency against
// the funds-proof amount. Items in other currencies are not converted.
func CalculateFundsCoverage(requirements ComputedRequirements, items []FundItem) FundsCoverage {
	requirement, ok := requirements.FundsRequirement()
	if !ok || requirement.Amount == nil {
		available := decimal.Zero
		for _, item := range items {
			available = available.Add(item.Amount)
		}
		return FundsCoverage{Available: available.StringFixed(2), Covered: true}
	}

	available := decimal.Zero
	for _, item := range items {
		if item.Currency == requirement.Currency {
			available = available.Add(item.Amount)
		}
	}

	return FundsCoverage{
		Required:  true,
		Currency:  requirement.Currency,
		Needed:    requirement.Amount.StringFixed(2),
		Available: available.StringFixed(2),
		Covered:   available.GreaterThanOrEqual(*requirement.Amount),
	}
}
