package repositories

import (
	"bytes"
	"context"
	"encoding/json"
	"entryready/internal/apperrors"
	"entryready/internal/logger"
	. "entryready/internal/models"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"
)

// RuleRepository is the read-mostly store of destination rules and
// nationality overrides. Replace swaps the whole set atomically.
type RuleRepository interface {
	GetBaseRule(destination string) (BaseDestinationRule, bool)
	GetOverride(destination, nationality string) (NationalityOverride, bool)
	Destinations() []string
	Version() string
	Replace(ruleSet RuleSet) error
}

type ruleRepository struct {
	current atomic.Pointer[RuleSet]
	log     logger.Logger
}

func NewRuleRepository() RuleRepository {
	r := &ruleRepository{log: logger.New("ruleRepository")}
	r.current.Store(&RuleSet{
		BaseDestinationRules: map[string]BaseDestinationRule{},
		NationalityOverrides: map[string]map[string]NationalityOverride{},
	})
	return r
}

func (r *ruleRepository) GetBaseRule(destination string) (BaseDestinationRule, bool) {
	rule, ok := r.current.Load().BaseDestinationRules[normalizeCode(destination)]
	return rule, ok
}

func (r *ruleRepository) GetOverride(destination, nationality string) (NationalityOverride, bool) {
	overrides, ok := r.current.Load().NationalityOverrides[normalizeCode(destination)]
	if !ok {
		return NationalityOverride{}, false
	}
	override, ok := overrides[normalizeCode(nationality)]
	return override, ok
}

func (r *ruleRepository) Destinations() []string {
	rules := r.current.Load().BaseDestinationRules
	destinations := make([]string, 0, len(rules))
	for destination := range rules {
		destinations = append(destinations, destination)
	}
	sort.Strings(destinations)
	return destinations
}

func (r *ruleRepository) Version() string {
	return r.current.Load().Version
}

func (r *ruleRepository) Replace(ruleSet RuleSet) error {
	log := r.log.Function("Replace")

	normalized, err := ValidateRuleSet(ruleSet)
	if err != nil {
		return log.Err("rejected rule set", err, "version", ruleSet.Version)
	}

	r.current.Store(&normalized)
	log.Info("Rule set installed",
		"version", normalized.Version,
		"destinations", len(normalized.BaseDestinationRules),
	)
	return nil
}

// LoadRuleSet reads and validates a rule file. Read errors other than a
// missing file are retried with bounded exponential backoff.
func LoadRuleSet(ctx context.Context, path string) (RuleSet, error) {
	log := logger.New("ruleRepository").Function("LoadRuleSet")

	var raw []byte
	read := func() error {
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			return backoff.Permanent(err)
		}
		if err != nil {
			log.Warn("rule file read failed, retrying", "path", path, "error", err)
			return err
		}
		raw = data
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxElapsedTime = 5 * time.Second
	if err := backoff.Retry(read, backoff.WithContext(backoff.WithMaxRetries(policy, 4), ctx)); err != nil {
		return RuleSet{}, log.Err("failed to read rule file", &apperrors.ConfigurationError{
			Problems: []string{fmt.Sprintf("read %s: %v", path, err)},
		}, "path", path)
	}

	return ParseRuleSet(raw)
}

func ParseRuleSet(raw []byte) (RuleSet, error) {
	var ruleSet RuleSet
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&ruleSet); err != nil {
		return RuleSet{}, &apperrors.ConfigurationError{
			Problems: []string{fmt.Sprintf("decode rule file: %v", err)},
		}
	}
	return ValidateRuleSet(ruleSet)
}

var ruleValidator = validator.New(validator.WithRequiredStructEnabled())

// ValidateRuleSet checks a rule set and returns a normalized copy with
// upper-cased codes and override forms resolved against the destination's
// catalogue. Every problem is reported, not just the first.
func ValidateRuleSet(ruleSet RuleSet) (RuleSet, error) {
	var problems []string
	addProblem := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	normalized := RuleSet{
		Version:              strings.TrimSpace(ruleSet.Version),
		BaseDestinationRules: make(map[string]BaseDestinationRule, len(ruleSet.BaseDestinationRules)),
		NationalityOverrides: make(map[string]map[string]NationalityOverride, len(ruleSet.NationalityOverrides)),
	}

	if normalized.Version == "" {
		addProblem("rule set version is required")
	}

	for code, rule := range ruleSet.BaseDestinationRules {
		destination := normalizeCode(code)
		if err := ruleValidator.Var(destination, "required,iso3166_1_alpha2"); err != nil {
			addProblem("destination %q is not an ISO 3166-1 alpha-2 code", code)
			continue
		}
		if err := ruleValidator.Struct(rule); err != nil {
			addProblem("destination %s: %s", destination, describeValidation(err))
		}
		if (rule.EntryMethod == EntryMethodDigital || rule.EntryMethod == EntryMethodBoth) &&
			rule.DigitalSystem == "" {
			addProblem("destination %s: entryMethod %s requires digitalSystem", destination, rule.EntryMethod)
		}
		seen := map[string]bool{}
		for _, form := range rule.Forms {
			if seen[form.ID] {
				addProblem("destination %s: duplicate form %q in catalogue", destination, form.ID)
			}
			seen[form.ID] = true
		}
		if _, dup := normalized.BaseDestinationRules[destination]; dup {
			addProblem("destination %s declared more than once", destination)
		}
		normalized.BaseDestinationRules[destination] = rule
	}

	for code, overrides := range ruleSet.NationalityOverrides {
		destination := normalizeCode(code)
		base, ok := normalized.BaseDestinationRules[destination]
		if !ok {
			addProblem("overrides for %s reference a destination without a base rule", code)
			continue
		}

		resolved := make(map[string]NationalityOverride, len(overrides))
		for natCode, override := range overrides {
			nationality := normalizeCode(natCode)
			if err := ruleValidator.Var(nationality, "required,iso3166_1_alpha3"); err != nil {
				addProblem("%s: nationality %q is not an ISO 3166-1 alpha-3 code", destination, natCode)
				continue
			}
			if err := ruleValidator.Struct(override); err != nil {
				addProblem("%s/%s: %s", destination, nationality, describeValidation(err))
			}
			for _, requirement := range override.AdditionalDocs {
				if requirement.Type != RequirementFundsProof {
					continue
				}
				if requirement.Amount == nil || requirement.Currency == "" {
					addProblem("%s/%s: funds_proof needs amount and currency", destination, nationality)
				} else if requirement.Amount.IsNegative() {
					addProblem("%s/%s: funds_proof amount must not be negative", destination, nationality)
				}
			}

			forms := make([]EntryForm, 0, len(override.Forms))
			for _, form := range override.Forms {
				catalogued, ok := base.Form(form.ID)
				if !ok {
					addProblem("%s/%s: form %q is not in the destination catalogue", destination, nationality, form.ID)
					continue
				}
				forms = append(forms, resolveForm(catalogued, form))
			}
			override.Forms = forms
			resolved[nationality] = override
		}
		normalized.NationalityOverrides[destination] = resolved
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return RuleSet{}, &apperrors.ConfigurationError{Problems: problems}
	}

	return normalized, nil
}

func resolveForm(catalogued, requested EntryForm) EntryForm {
	resolved := catalogued
	resolved.Required = requested.Required
	resolved.AutoFillable = catalogued.AutoFillable || requested.AutoFillable
	if requested.Name != "" {
		resolved.Name = requested.Name
	}
	if requested.URL != "" {
		resolved.URL = requested.URL
	}
	return resolved
}

func describeValidation(err error) string {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return err.Error()
	}

	parts := make([]string, 0, len(fieldErrors))
	for _, fieldError := range fieldErrors {
		parts = append(parts, fmt.Sprintf("%s failed %s", fieldError.Namespace(), fieldError.Tag()))
	}
	return strings.Join(parts, ", ")
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
