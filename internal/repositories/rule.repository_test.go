package repositories

import (
	"context"
	"entryready/internal/apperrors"
	. "entryready/internal/models"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRuleFile = `{
  "version": "test-1",
  "baseDestinationRules": {
    "th": {
      "name": "Thailand",
      "passportValidityMonths": 6,
      "returnTicketRequired": true,
      "entryMethod": "digital",
      "digitalSystem": "TDAC",
      "forms": [{"id": "TDAC", "name": "Thailand Digital Arrival Card", "required": true, "url": "https://tdac.example.com"}]
    }
  },
  "nationalityOverrides": {
    "TH": {
      "chn": {"visaRequired": false, "stayDurationDays": 30, "forms": [{"id": "TDAC", "required": true, "autoFillable": true}]},
      "IND": {
        "visaRequired": true,
        "additionalDocs": [{"type": "funds_proof", "amount": "20000", "currency": "THB"}]
      }
    }
  }
}`

func TestParseRuleSet_NormalizesAndResolvesForms(t *testing.T) {
	ruleSet, err := ParseRuleSet([]byte(testRuleFile))
	require.NoError(t, err)

	assert.Equal(t, "test-1", ruleSet.Version)
	require.Contains(t, ruleSet.BaseDestinationRules, "TH")
	require.Contains(t, ruleSet.NationalityOverrides["TH"], "CHN")

	forms := ruleSet.NationalityOverrides["TH"]["CHN"].Forms
	require.Len(t, forms, 1)
	assert.Equal(t, "Thailand Digital Arrival Card", forms[0].Name)
	assert.Equal(t, "https://tdac.example.com", forms[0].URL)
	assert.True(t, forms[0].AutoFillable)
	assert.True(t, forms[0].Required)

	funds := ruleSet.NationalityOverrides["TH"]["IND"].AdditionalDocs[0]
	require.NotNil(t, funds.Amount)
	assert.True(t, funds.Amount.Equal(decimal.NewFromInt(20000)))
}

func TestValidateRuleSet_ReportsEveryProblem(t *testing.T) {
	tests := []struct {
		name     string
		ruleSet  RuleSet
		problems []string
	}{
		{
			name: "missing version",
			ruleSet: RuleSet{
				BaseDestinationRules: map[string]BaseDestinationRule{
					"TH": {EntryMethod: EntryMethodPaper},
				},
			},
			problems: []string{"rule set version is required"},
		},
		{
			name: "bad destination code",
			ruleSet: RuleSet{
				Version: "v",
				BaseDestinationRules: map[string]BaseDestinationRule{
					"THA": {EntryMethod: EntryMethodPaper},
				},
			},
			problems: []string{`destination "THA" is not an ISO 3166-1 alpha-2 code`},
		},
		{
			name: "digital entry without system",
			ruleSet: RuleSet{
				Version: "v",
				BaseDestinationRules: map[string]BaseDestinationRule{
					"TH": {EntryMethod: EntryMethodDigital},
				},
			},
			problems: []string{"destination TH: entryMethod digital requires digitalSystem"},
		},
		{
			name: "override without base rule",
			ruleSet: RuleSet{
				Version: "v",
				NationalityOverrides: map[string]map[string]NationalityOverride{
					"JP": {"CHN": {VisaRequired: true}},
				},
			},
			problems: []string{"overrides for JP reference a destination without a base rule"},
		},
		{
			name: "override form outside catalogue and funds without amount",
			ruleSet: RuleSet{
				Version: "v",
				BaseDestinationRules: map[string]BaseDestinationRule{
					"TH": {EntryMethod: EntryMethodPaper},
				},
				NationalityOverrides: map[string]map[string]NationalityOverride{
					"TH": {"IND": {
						Forms:          []EntryForm{{ID: "TDAC"}},
						AdditionalDocs: []Requirement{{Type: RequirementFundsProof}},
					}},
				},
			},
			problems: []string{
				`TH/IND: form "TDAC" is not in the destination catalogue`,
				"TH/IND: funds_proof needs amount and currency",
			},
		},
		{
			name: "bad nationality code",
			ruleSet: RuleSet{
				Version: "v",
				BaseDestinationRules: map[string]BaseDestinationRule{
					"TH": {EntryMethod: EntryMethodPaper},
				},
				NationalityOverrides: map[string]map[string]NationalityOverride{
					"TH": {"CN": {}},
				},
			},
			problems: []string{`TH: nationality "CN" is not an ISO 3166-1 alpha-3 code`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateRuleSet(tt.ruleSet)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrConfiguration)

			var configErr *apperrors.ConfigurationError
			require.ErrorAs(t, err, &configErr)
			assert.ElementsMatch(t, tt.problems, configErr.Problems)
		})
	}
}

func TestParseRuleSet_RejectsUnknownFields(t *testing.T) {
	_, err := ParseRuleSet([]byte(`{"version": "v", "destinations": {}}`))
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
}

func TestLoadRuleSet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.json")
	require.NoError(t, os.WriteFile(path, []byte(testRuleFile), 0o600))

	ruleSet, err := LoadRuleSet(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "test-1", ruleSet.Version)

	_, err = LoadRuleSet(context.Background(), filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
}

func TestLoadRuleSet_ShippedRulesAreValid(t *testing.T) {
	ruleSet, err := LoadRuleSet(context.Background(), filepath.Join("..", "..", "rules.json"))
	require.NoError(t, err)
	assert.Contains(t, ruleSet.BaseDestinationRules, "TH")
	assert.Contains(t, ruleSet.NationalityOverrides["TH"], "CHN")
	assert.Contains(t, ruleSet.NationalityOverrides["TH"], "IND")
}

func TestRuleRepository_ReplaceAndLookup(t *testing.T) {
	repo := NewRuleRepository()
	assert.Empty(t, repo.Destinations())

	_, ok := repo.GetBaseRule("TH")
	assert.False(t, ok)

	ruleSet, err := ParseRuleSet([]byte(testRuleFile))
	require.NoError(t, err)
	require.NoError(t, repo.Replace(ruleSet))

	assert.Equal(t, "test-1", repo.Version())
	assert.Equal(t, []string{"TH"}, repo.Destinations())

	base, ok := repo.GetBaseRule("th")
	require.True(t, ok)
	assert.Equal(t, 6, base.PassportValidityMonths)

	override, ok := repo.GetOverride("TH", "chn")
	require.True(t, ok)
	assert.Equal(t, 30, override.StayDurationDays)

	_, ok = repo.GetOverride("TH", "USA")
	assert.False(t, ok)
}

func TestRuleRepository_ReplaceRejectsInvalidAndKeepsCurrent(t *testing.T) {
	repo := NewRuleRepository()
	ruleSet, err := ParseRuleSet([]byte(testRuleFile))
	require.NoError(t, err)
	require.NoError(t, repo.Replace(ruleSet))

	err = repo.Replace(RuleSet{Version: ""})
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
	assert.Equal(t, "test-1", repo.Version())
}
