package requirementsController

import (
	"context"
	"entryready/internal/apperrors"
	"entryready/internal/cache"
	"entryready/internal/events"
	"entryready/internal/logger"
	"entryready/internal/metrics"
	. "entryready/internal/models"
	"entryready/internal/repositories"
	"fmt"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"
)

var codeValidator = validator.New()

type RequirementsController struct {
	rules      repositories.RuleRepository
	cache      cache.RequirementsCache
	processors map[string]RequirementsPostProcessor
	eventBus   *events.EventBus
	metrics    *metrics.Metrics
	group      singleflight.Group
	log        logger.Logger
}

// New wires the requirements engine. A nil processors map installs
// DefaultPostProcessors.
func New(
	rules repositories.RuleRepository,
	requirementsCache cache.RequirementsCache,
	eventBus *events.EventBus,
	m *metrics.Metrics,
	processors map[string]RequirementsPostProcessor,
) *RequirementsController {
	if processors == nil {
		processors = DefaultPostProcessors()
	}
	if m == nil {
		m = metrics.Nop()
	}

	return &RequirementsController{
		rules:      rules,
		cache:      requirementsCache,
		processors: processors,
		eventBus:   eventBus,
		metrics:    m,
		log:        logger.New("RequirementsController"),
	}
}

// GetRequirements resolves the requirements for travelers holding a
// nationality passport entering destination. Missing rule data yields
// Supported=false, never an error; only malformed codes are rejected.
func (c *RequirementsController) GetRequirements(
	ctx context.Context,
	nationality, destination string,
) (ComputedRequirements, error) {
	log := c.log.Function("GetRequirements")

	key := cache.NewKey(nationality, destination)
	if err := validateKey(key); err != nil {
		return ComputedRequirements{}, log.Wrap(apperrors.ErrValidation, err.Error(),
			"nationality", nationality,
			"destination", destination,
		)
	}

	if cached, ok := c.cache.Get(ctx, key); ok {
		return cached, nil
	}

	value, err, _ := c.group.Do(key.String(), func() (any, error) {
		version := c.rules.Version()
		computed, err := c.compute(key)
		if err != nil {
			return nil, err
		}
		c.metrics.Computed(computed.Supported)

		// A reload during compute would otherwise cache results from the old set.
		if computed.Supported && version == c.rules.Version() {
			c.cache.Set(ctx, key, computed)
		}

		log.Debug("Computed requirements",
			"key", key.String(),
			"supported", computed.Supported,
			"version", computed.RuleVersion,
		)
		return computed, nil
	})

	if err != nil {
		return ComputedRequirements{}, log.Err("failed to compute requirements", err, "key", key.String())
	}
	computed, ok := value.(ComputedRequirements)
	if !ok {
		return ComputedRequirements{}, log.Error("unexpected computed requirements value", "key", key.String())
	}

	return computed.Clone(), nil
}

func (c *RequirementsController) compute(key cache.Key) (ComputedRequirements, error) {
	result := ComputedRequirements{
		Nationality:  key.Nationality,
		Destination:  key.Destination,
		RuleVersion:  c.rules.Version(),
		Requirements: []Requirement{},
		Forms:        []EntryForm{},
	}

	base, ok := c.rules.GetBaseRule(key.Destination)
	if !ok {
		result.VisaRequired = true
		result.Message = fmt.Sprintf("Entry requirements for %s are not available yet.", key.Destination)
		return result, nil
	}

	result.EntryMethod = base.EntryMethod
	result.DigitalSystem = base.DigitalSystem
	result.DigitalURL = base.DigitalURL

	override, ok := c.rules.GetOverride(key.Destination, key.Nationality)
	if !ok {
		result.VisaRequired = true
		result.Requirements = base.DefaultRequirements()
		result.Message = fmt.Sprintf(
			"No entry rules are configured for %s passport holders travelling to %s. Assume a visa is required and verify with the embassy before travelling.",
			key.Nationality,
			key.Destination,
		)
		return result, nil
	}

	result.Supported = true
	result.VisaRequired = override.VisaRequired
	result.VisaType = override.VisaType
	result.StayDurationDays = override.StayDurationDays
	result.SpecialNotes = override.SpecialNotes
	result.KioskEligible = override.KioskEligible
	result.Requirements = append(base.DefaultRequirements(), override.AdditionalDocs...)
	result.Forms = append(result.Forms, override.Forms...)
	result = result.Clone()

	if processor, ok := c.processors[key.Destination]; ok {
		if err := postProcess(processor, &result); err != nil {
			return ComputedRequirements{}, err
		}
	}

	return result, nil
}

// postProcess turns a panicking destination processor into an error so one
// bad processor fails its own lookups instead of the whole server.
func postProcess(processor RequirementsPostProcessor, result *ComputedRequirements) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("post-processor for %s panicked: %v", result.Destination, r)
		}
	}()

	processor.Process(result)
	return nil
}

// GetChecklist returns the ordered checklist. Unsupported combinations come
// back with an empty checklist and the explanatory message.
func (c *RequirementsController) GetChecklist(
	ctx context.Context,
	nationality, destination string,
) (Checklist, error) {
	requirements, err := c.GetRequirements(ctx, nationality, destination)
	if err != nil {
		return Checklist{}, err
	}

	if !requirements.Supported {
		return Checklist{
			Supported:    false,
			Message:      requirements.Message,
			VisaRequired: requirements.VisaRequired,
			Checklist:    []ChecklistItem{},
		}, nil
	}

	return Checklist{
		Supported:    true,
		Message:      requirements.Message,
		VisaRequired: requirements.VisaRequired,
		Checklist:    BuildChecklist(requirements),
	}, nil
}

// ReloadRules loads and validates the rule file at path, installs it, and
// announces the new version so cached results are dropped. An invalid file
// leaves the current rules in place.
func (c *RequirementsController) ReloadRules(ctx context.Context, path string) (string, error) {
	log := c.log.Function("ReloadRules")

	ruleSet, err := repositories.LoadRuleSet(ctx, path)
	if err != nil {
		return "", log.Err("failed to load rules", err, "path", path)
	}

	if err := c.rules.Replace(ruleSet); err != nil {
		return "", log.Err("failed to install rules", err, "path", path)
	}

	if c.eventBus != nil {
		err := c.eventBus.Publish(events.ChannelRules, events.Event{
			Type: events.TypeRulesReloaded,
			Data: map[string]any{"version": ruleSet.Version},
		})
		if err != nil {
			log.Er("failed to publish rules reload", err, "version", ruleSet.Version)
		}
	}

	log.Info("Rules reloaded", "version", ruleSet.Version, "destinations", len(ruleSet.BaseDestinationRules))
	return ruleSet.Version, nil
}

func (c *RequirementsController) Destinations() []string {
	return c.rules.Destinations()
}

func (c *RequirementsController) RuleVersion() string {
	return c.rules.Version()
}

func (c *RequirementsController) CacheStats() cache.Stats {
	return c.cache.Stats()
}

func validateKey(key cache.Key) error {
	if err := codeValidator.Var(key.Nationality, "required,iso3166_1_alpha3"); err != nil {
		return fmt.Errorf("invalid nationality %q", key.Nationality)
	}
	if err := codeValidator.Var(key.Destination, "required,iso3166_1_alpha2"); err != nil {
		return fmt.Errorf("invalid destination %q", key.Destination)
	}
	return nil
}
