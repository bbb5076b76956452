package requirementsController

import (
	"context"
	"encoding/json"
	"entryready/internal/apperrors"
	"entryready/internal/cache"
	"entryready/internal/events"
	"entryready/internal/metrics"
	. "entryready/internal/models"
	"entryready/internal/repositories"
	"entryready/internal/services"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rulesPath = "../../../rules.json"

type fixture struct {
	controller *RequirementsController
	rules      repositories.RuleRepository
	cache      *cache.MemoryCache
	bus        *events.EventBus
	metrics    *metrics.Metrics
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	ruleSet, err := repositories.LoadRuleSet(context.Background(), rulesPath)
	require.NoError(t, err)

	rules := repositories.NewRuleRepository()
	require.NoError(t, rules.Replace(ruleSet))

	m := metrics.New(prometheus.NewRegistry())
	memory := cache.NewMemoryCache(64, time.Minute, m)
	bus := events.New()
	invalidation := services.NewCacheInvalidationService(bus, memory)
	t.Cleanup(invalidation.Close)

	return fixture{
		controller: New(rules, memory, bus, m, nil),
		rules:      rules,
		cache:      memory,
		bus:        bus,
		metrics:    m,
	}
}

func TestGetChecklist_VisaFreeTraveler(t *testing.T) {
	f := newFixture(t)

	checklist, err := f.controller.GetChecklist(context.Background(), "CHN", "TH")
	require.NoError(t, err)

	require.True(t, checklist.Supported)
	require.NotEmpty(t, checklist.Checklist)
	assert.Equal(t, ChecklistVisa, checklist.Checklist[0].Kind)
	assert.Equal(t, ChecklistCompleted, checklist.Checklist[0].Status)
	assert.False(t, checklist.Checklist[0].Required)

	var forms []ChecklistItem
	for _, item := range checklist.Checklist {
		if item.Kind == ChecklistForm {
			forms = append(forms, item)
		}
	}
	require.Len(t, forms, 1)
	assert.Equal(t, "TDAC", forms[0].Form.ID)
	assert.True(t, forms[0].Required)
	assert.True(t, forms[0].CanHelp, "TDAC is auto-fillable after post-processing")
}

func TestGetChecklist_VisaRequiredTraveler(t *testing.T) {
	f := newFixture(t)

	checklist, err := f.controller.GetChecklist(context.Background(), "IND", "TH")
	require.NoError(t, err)

	require.True(t, checklist.Supported)
	first := checklist.Checklist[0]
	assert.Equal(t, ChecklistVisa, first.Kind)
	assert.Equal(t, ChecklistPending, first.Status)
	assert.True(t, first.Required)

	var kinds []ChecklistItemKind
	for _, item := range checklist.Checklist {
		kinds = append(kinds, item.Kind)
	}
	assert.Equal(t, []ChecklistItemKind{
		ChecklistVisa,
		ChecklistPassportValidity,
		ChecklistReturnTicket,
		ChecklistAccommodationProof,
		ChecklistFundsProof,
		ChecklistDocument,
		ChecklistForm,
	}, kinds)
}

func TestGetRequirements_NoOverrideFallsBackConservatively(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	requirements, err := f.controller.GetRequirements(ctx, "AFG", "TH")
	require.NoError(t, err)

	base, ok := f.rules.GetBaseRule("TH")
	require.True(t, ok)

	assert.False(t, requirements.Supported)
	assert.True(t, requirements.VisaRequired)
	assert.NotEmpty(t, requirements.Message)
	assert.Equal(t, base.DefaultRequirements(), requirements.Requirements)
	assert.Zero(t, requirements.StayDurationDays)

	checklist, err := f.controller.GetChecklist(ctx, "AFG", "TH")
	require.NoError(t, err)
	assert.False(t, checklist.Supported)
	assert.True(t, checklist.VisaRequired)
	assert.Empty(t, checklist.Checklist)
	assert.NotNil(t, checklist.Checklist)
	assert.Equal(t, requirements.Message, checklist.Message)
}

func TestGetRequirements_UnknownDestination(t *testing.T) {
	f := newFixture(t)

	for _, nationality := range []string{"CHN", "IND", "AFG", "USA"} {
		requirements, err := f.controller.GetRequirements(context.Background(), nationality, "FR")
		require.NoError(t, err)
		assert.False(t, requirements.Supported, nationality)
		assert.Empty(t, requirements.Requirements, nationality)
		assert.NotNil(t, requirements.Requirements, nationality)
		assert.NotEmpty(t, requirements.Message, nationality)
	}
}

func TestGetRequirements_MergeKeepsBaseFirst(t *testing.T) {
	f := newFixture(t)

	for _, destination := range f.rules.Destinations() {
		base, _ := f.rules.GetBaseRule(destination)
		defaults := base.DefaultRequirements()

		for _, nationality := range []string{"CHN", "IND", "USA"} {
			override, ok := f.rules.GetOverride(destination, nationality)
			if !ok {
				continue
			}

			requirements, err := f.controller.GetRequirements(context.Background(), nationality, destination)
			require.NoError(t, err)

			require.Len(t, requirements.Requirements, len(defaults)+len(override.AdditionalDocs))
			assert.Equal(t, defaults, requirements.Requirements[:len(defaults)], destination+"/"+nationality)
			assert.Equal(t, override.VisaRequired, requirements.VisaRequired)
			assert.Equal(t, base.DigitalSystem, requirements.DigitalSystem)
			assert.Equal(t, base.EntryMethod, requirements.EntryMethod)
		}
	}
}

func TestGetRequirements_DeterministicAcrossCacheExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.controller.GetRequirements(ctx, "IND", "TH")
	require.NoError(t, err)
	require.NoError(t, f.cache.Clear(ctx))
	second, err := f.controller.GetRequirements(ctx, "IND", "TH")
	require.NoError(t, err)

	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(firstJSON), string(secondJSON))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.RequirementsComputed.WithLabelValues("supported")))
}

func TestGetRequirements_ServesFromCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.controller.GetRequirements(ctx, "chn", "th")
	require.NoError(t, err)
	cached, err := f.controller.GetRequirements(ctx, "CHN", "TH")
	require.NoError(t, err)

	assert.Equal(t, "CHN", cached.Nationality)
	assert.Equal(t, uint64(1), f.controller.CacheStats().Hits)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RequirementsComputed.WithLabelValues("supported")))
}

func TestGetRequirements_UnsupportedIsNotCached(t *testing.T) {
	f := newFixture(t)

	_, err := f.controller.GetRequirements(context.Background(), "AFG", "TH")
	require.NoError(t, err)

	assert.Equal(t, 0, f.controller.CacheStats().Size)
}

func TestGetRequirements_ConcurrentCallersAgree(t *testing.T) {
	f := newFixture(t)

	results := make([]ComputedRequirements, 16)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := f.controller.GetRequirements(context.Background(), "IND", "TH")
			assert.NoError(t, err)
			results[i] = got
		}()
	}
	wg.Wait()

	for _, result := range results[1:] {
		assert.Equal(t, results[0], result)
	}
}

func TestGetRequirements_RejectsMalformedCodes(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name        string
		nationality string
		destination string
	}{
		{"empty nationality", "", "TH"},
		{"alpha2 nationality", "CN", "TH"},
		{"unknown nationality", "ZZZ", "TH"},
		{"alpha3 destination", "CHN", "THA"},
		{"empty destination", "CHN", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.controller.GetRequirements(context.Background(), tt.nationality, tt.destination)
			assert.ErrorIs(t, err, apperrors.ErrValidation)
		})
	}
}

func TestReloadRules_InvalidatesCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.controller.GetRequirements(ctx, "CHN", "TH")
	require.NoError(t, err)
	require.Equal(t, 1, f.controller.CacheStats().Size)

	raw, err := os.ReadFile(rulesPath)
	require.NoError(t, err)
	var ruleSet RuleSet
	require.NoError(t, json.Unmarshal(raw, &ruleSet))
	ruleSet.Version = "2026.10.2"
	override := ruleSet.NationalityOverrides["TH"]["CHN"]
	override.StayDurationDays = 45
	ruleSet.NationalityOverrides["TH"]["CHN"] = override

	updated, err := json.Marshal(ruleSet)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, os.WriteFile(path, updated, 0o600))

	version, err := f.controller.ReloadRules(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "2026.10.2", version)
	assert.Equal(t, 0, f.controller.CacheStats().Size)

	requirements, err := f.controller.GetRequirements(ctx, "CHN", "TH")
	require.NoError(t, err)
	assert.Equal(t, 45, requirements.StayDurationDays)
	assert.Equal(t, "2026.10.2", requirements.RuleVersion)
}

func TestReloadRules_InvalidFileKeepsCurrentRules(t *testing.T) {
	f := newFixture(t)
	before := f.controller.RuleVersion()

	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":"","baseDestinationRules":{}}`), 0o600))

	_, err := f.controller.ReloadRules(context.Background(), path)
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
	assert.Equal(t, before, f.controller.RuleVersion())
}

func TestPostProcessorRegistry(t *testing.T) {
	ruleSet, err := repositories.LoadRuleSet(context.Background(), rulesPath)
	require.NoError(t, err)
	rules := repositories.NewRuleRepository()
	require.NoError(t, rules.Replace(ruleSet))

	calls := map[string]int{}
	processors := map[string]RequirementsPostProcessor{
		"JP": PostProcessorFunc(func(r *ComputedRequirements) {
			calls[r.Destination]++
			r.SpecialNotes = "processed"
		}),
	}
	controller := New(rules, cache.NewNoopCache(nil), nil, nil, processors)

	japan, err := controller.GetRequirements(context.Background(), "USA", "JP")
	require.NoError(t, err)
	assert.Equal(t, "processed", japan.SpecialNotes)

	thailand, err := controller.GetRequirements(context.Background(), "CHN", "TH")
	require.NoError(t, err)
	assert.NotContains(t, thailand.SpecialNotes, tdacNote)

	assert.Equal(t, map[string]int{"JP": 1}, calls)
}

func TestGetRequirements_FailingPostProcessorReturnsError(t *testing.T) {
	ruleSet, err := repositories.LoadRuleSet(context.Background(), rulesPath)
	require.NoError(t, err)
	rules := repositories.NewRuleRepository()
	require.NoError(t, rules.Replace(ruleSet))

	memory := cache.NewMemoryCache(8, time.Minute, nil)
	processors := map[string]RequirementsPostProcessor{
		"JP": PostProcessorFunc(func(*ComputedRequirements) { panic("bad rule data") }),
	}
	controller := New(rules, memory, nil, nil, processors)

	var results [4]error
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, results[i] = controller.GetRequirements(context.Background(), "USA", "JP")
		}()
	}
	wg.Wait()

	for _, err := range results {
		require.Error(t, err)
		assert.Contains(t, err.Error(), "post-processor for JP panicked")
	}
	assert.Equal(t, 0, memory.Stats().Size)

	thailand, err := controller.GetRequirements(context.Background(), "CHN", "TH")
	require.NoError(t, err)
	assert.True(t, thailand.Supported)
}
