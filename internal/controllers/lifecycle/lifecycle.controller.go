package lifecycleController

import (
	"context"
	"entryready/internal/apperrors"
	requirementsController "entryready/internal/controllers/requirements"
	"entryready/internal/events"
	"entryready/internal/logger"
	"entryready/internal/metrics"
	. "entryready/internal/models"
	"entryready/internal/repositories"
	"entryready/internal/services"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"
)

type Dependencies struct {
	Entries      repositories.EntryInfoRepository
	Passports    repositories.PassportRepository
	PersonalInfo repositories.PersonalInfoRepository
	TravelInfo   repositories.TravelInfoRepository
	DACs         repositories.DACRepository
	Rules        repositories.RuleRepository
	Requirements *requirementsController.RequirementsController
	Submitter    services.DACSubmitter
	Transactions *services.TransactionService
	EventBus     *events.EventBus
	Metrics      *metrics.Metrics
}

type Settings struct {
	CompletionThreshold float64
	RequiredSections    []string
}

// flight tracks one running submission and the edits that arrived meanwhile.
type flight struct {
	fields    []string
	editedAll bool
	edited    bool
}

// LifecycleController drives an EntryInfo through its status machine and
// owns every DAC submission attempt.
type LifecycleController struct {
	entries      repositories.EntryInfoRepository
	passports    repositories.PassportRepository
	personalInfo repositories.PersonalInfoRepository
	travelInfo   repositories.TravelInfoRepository
	dacs         repositories.DACRepository
	rules        repositories.RuleRepository
	requirements *requirementsController.RequirementsController
	submitter    services.DACSubmitter
	transactions *services.TransactionService
	eventBus     *events.EventBus
	metrics      *metrics.Metrics
	settings     Settings
	now          func() time.Time

	mu       sync.Mutex
	inFlight map[string]*flight

	log logger.Logger
}

func New(deps Dependencies, settings Settings) *LifecycleController {
	if settings.CompletionThreshold <= 0 {
		settings.CompletionThreshold = 70
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop()
	}

	return &LifecycleController{
		entries:      deps.Entries,
		passports:    deps.Passports,
		personalInfo: deps.PersonalInfo,
		travelInfo:   deps.TravelInfo,
		dacs:         deps.DACs,
		rules:        deps.Rules,
		requirements: deps.Requirements,
		submitter:    deps.Submitter,
		transactions: deps.Transactions,
		eventBus:     deps.EventBus,
		metrics:      deps.Metrics,
		settings:     settings,
		now:          func() time.Time { return time.Now().UTC() },
		inFlight:     make(map[string]*flight),
		log:          logger.New("LifecycleController"),
	}
}

func (c *LifecycleController) StartEntry(ctx context.Context, entry *EntryInfo) error {
	log := c.log.Function("StartEntry")

	if entry.ID != "" {
		return log.Wrap(apperrors.ErrValidation, "new entry must not carry an id", "entryInfoID", entry.ID)
	}
	entry.Status = EntryStatusIncomplete

	if err := c.entries.CreateOrUpdate(ctx, entry); err != nil {
		return log.Err("failed to start entry", err, "userID", entry.UserID)
	}

	log.Info("Entry started", "entryInfoID", entry.ID, "userID", entry.UserID, "destination", entry.Destination)
	return nil
}

// UpdateEntry changes the linked records or destination. Relinking a
// submitted entry is judged like an edit of every submitted field. The
// destination is fixed once an arrival card was issued for it.
func (c *LifecycleController) UpdateEntry(ctx context.Context, entry *EntryInfo) (*EntryInfo, error) {
	log := c.log.Function("UpdateEntry")

	if entry.ID == "" {
		return nil, log.Wrap(apperrors.ErrValidation, "entry id is required")
	}

	current, err := c.loadOwned(ctx, entry.UserID, entry.ID)
	if err != nil {
		return nil, err
	}

	if strings.ToUpper(strings.TrimSpace(entry.Destination)) == current.Destination {
		err = c.entries.CreateOrUpdate(ctx, entry)
	} else {
		err = c.changeDestination(ctx, current, entry)
	}
	if err != nil {
		return nil, log.Err("failed to update entry", err, "entryInfoID", entry.ID)
	}

	return c.RecordFieldEdits(ctx, entry.UserID, entry.ID, nil)
}

// changeDestination holds the submission slot while it checks for issued
// cards so no submission can start for the old destination meanwhile.
func (c *LifecycleController) changeDestination(ctx context.Context, current, entry *EntryInfo) error {
	log := c.log.Function("changeDestination")

	if !c.beginFlight(entry.ID) {
		return log.Wrap(apperrors.ErrSubmissionInFlight, "cannot change destination while a submission is running",
			"entryInfoID", entry.ID)
	}
	defer c.endFlight(context.WithoutCancel(ctx), entry.UserID, entry.ID)

	cards, err := c.dacs.ListCurrent(ctx, entry.ID)
	if err != nil {
		return err
	}
	if len(cards) > 0 {
		return log.Wrap(apperrors.ErrInvalidTransition, "destination cannot change after an arrival card was issued; start a new entry",
			"entryInfoID", entry.ID,
			"destination", current.Destination,
			"requested", entry.Destination,
			"cardType", cards[0].CardType,
		)
	}

	return c.entries.CreateOrUpdate(ctx, entry)
}

// GetEntry loads an entry owned by userID, expiring it first when its travel
// dates have passed.
func (c *LifecycleController) GetEntry(ctx context.Context, userID, entryInfoID string) (*EntryInfo, error) {
	entry, err := c.loadOwned(ctx, userID, entryInfoID)
	if err != nil {
		return nil, err
	}

	if err := c.expireIfDue(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (c *LifecycleController) ListEntries(ctx context.Context, userID string) ([]EntryInfo, error) {
	entries, err := c.entries.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	for i := range entries {
		if err := c.expireIfDue(ctx, &entries[i]); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func (c *LifecycleController) loadOwned(ctx context.Context, userID, entryInfoID string) (*EntryInfo, error) {
	entry, err := c.entries.Get(ctx, entryInfoID)
	if err != nil {
		return nil, err
	}
	if entry.UserID != userID {
		return nil, c.log.Function("loadOwned").Wrap(apperrors.ErrNotFound, "entry info not found",
			"entryInfoID", entryInfoID, "userID", userID)
	}
	return entry, nil
}

// expireIfDue applies the travel-date cutoff. Entries never submitted expire
// once the arrival day has passed. Submitted and superseded entries hold a
// card for the trip and stay open until the departure day has passed.
func (c *LifecycleController) expireIfDue(ctx context.Context, entry *EntryInfo) error {
	if !entry.Status.Expirable() || entry.TravelInfoID == nil {
		return nil
	}

	travel, err := c.travelInfo.GetByID(ctx, *entry.TravelInfoID)
	if err != nil {
		return err
	}

	cutoff := travel.ArrivalDate
	if entry.Status == EntryStatusSubmitted || entry.Status == EntryStatusSuperseded {
		cutoff = travel.DepartureDate
	}
	if cutoff == nil {
		return nil
	}

	lastDay := truncateDay(*cutoff)
	if !truncateDay(c.now()).After(lastDay) {
		return nil
	}

	return c.move(ctx, entry, EntryStatusExpired, "travel date passed")
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// UpdateCompletion stores the client's completion report and moves the entry
// between incomplete and ready accordingly.
func (c *LifecycleController) UpdateCompletion(
	ctx context.Context,
	userID, entryInfoID string,
	completion CompletionMetrics,
) (*EntryInfo, error) {
	log := c.log.Function("UpdateCompletion")

	if completion.Percent < 0 || completion.Percent > 100 {
		return nil, log.Wrap(apperrors.ErrValidation, "completion percent must be within [0, 100]",
			"percent", completion.Percent)
	}

	entry, err := c.GetEntry(ctx, userID, entryInfoID)
	if err != nil {
		return nil, err
	}

	if err := c.entries.UpdateCompletion(ctx, entry, completion); err != nil {
		return nil, err
	}

	ready := c.isReady(entry)
	switch {
	case entry.Status == EntryStatusIncomplete && ready:
		err = c.move(ctx, entry, EntryStatusReady, "completion reached threshold")
	case (entry.Status == EntryStatusReady || entry.Status == EntryStatusSuperseded) && !ready:
		err = c.move(ctx, entry, EntryStatusIncomplete, "completion dropped below threshold")
	}
	if err != nil {
		return nil, err
	}

	return entry, nil
}

func (c *LifecycleController) isReady(entry *EntryInfo) bool {
	return entry.CompletionMetrics.Percent >= c.settings.CompletionThreshold &&
		entry.CompletionMetrics.HasSections(c.requiredSections(entry.Destination))
}

func (c *LifecycleController) requiredSections(destination string) []string {
	if base, ok := c.rules.GetBaseRule(destination); ok && len(base.RequiredSections) > 0 {
		return base.RequiredSections
	}
	return c.settings.RequiredSections
}

// RecordFieldEdits tells the lifecycle that the named fields of an entry's
// linked records changed; nil means any field may have changed. Edits landing
// while a submission is running are judged once its result is known.
func (c *LifecycleController) RecordFieldEdits(
	ctx context.Context,
	userID, entryInfoID string,
	fields []string,
) (*EntryInfo, error) {
	entry, err := c.GetEntry(ctx, userID, entryInfoID)
	if err != nil {
		return nil, err
	}

	if c.deferEdits(entry.ID, fields) {
		c.log.Function("RecordFieldEdits").Debug("Deferred edits until submission settles",
			"entryInfoID", entry.ID, "fields", fields)
		return entry, nil
	}

	if err := c.evaluateEdits(ctx, entry, fields); err != nil {
		return nil, err
	}
	return entry, nil
}

// FlushEdits adapts RecordFieldEdits to the autosaver.
func (c *LifecycleController) FlushEdits(ctx context.Context, key services.AutosaveKey, fields []string) error {
	_, err := c.RecordFieldEdits(ctx, key.UserID, key.EntryInfoID, fields)
	return err
}

func (c *LifecycleController) evaluateEdits(ctx context.Context, entry *EntryInfo, fields []string) error {
	if entry.Status != EntryStatusSubmitted {
		return nil
	}

	cards, err := c.dacs.ListCurrent(ctx, entry.ID)
	if err != nil {
		return err
	}
	if len(cards) == 0 {
		return c.move(ctx, entry, EntryStatusReady, "no current arrival card")
	}

	current, _, err := c.fieldValues(ctx, entry)
	if err != nil {
		return err
	}

	for _, card := range cards {
		if changed := card.SnapshotDigests.Differs(current, fields); len(changed) > 0 {
			reason := fmt.Sprintf("%s fields changed after submission: %s", card.CardType, strings.Join(changed, ", "))
			return c.move(ctx, entry, EntryStatusSuperseded, reason)
		}
	}
	return nil
}

// Submit sends the entry's current field values to the DAC service and
// records the attempt. A failed answer is recorded and returned as a
// *apperrors.SubmissionError without changing the entry status; transport
// failures are returned as they are and never retried here.
func (c *LifecycleController) Submit(
	ctx context.Context,
	userID, entryInfoID, cardType string,
) (*DigitalArrivalCard, error) {
	log := c.log.Function("Submit")

	entry, err := c.GetEntry(ctx, userID, entryInfoID)
	if err != nil {
		return nil, err
	}

	if !entry.Status.Submittable() {
		return nil, log.Wrap(apperrors.ErrInvalidTransition, "entry is not ready for submission",
			"entryInfoID", entry.ID, "status", entry.Status)
	}

	if cardType == "" {
		if base, ok := c.rules.GetBaseRule(entry.Destination); ok {
			cardType = base.DigitalSystem
		}
	}
	if cardType == "" {
		return nil, log.Wrap(apperrors.ErrValidation, "destination has no digital arrival card",
			"entryInfoID", entry.ID, "destination", entry.Destination)
	}

	if !c.beginFlight(entry.ID) {
		return nil, log.Wrap(apperrors.ErrSubmissionInFlight, "submission already running",
			"entryInfoID", entry.ID, "cardType", cardType)
	}
	// Settling must finish even when the caller goes away.
	settleCtx := context.WithoutCancel(ctx)
	defer c.endFlight(settleCtx, userID, entry.ID)

	fields, nationality, err := c.fieldValues(ctx, entry)
	if err != nil {
		return nil, err
	}

	attempt, err := c.dacs.BeginAttempt(ctx, entry.ID, cardType)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := c.submitter.Submit(ctx, SubmissionRequest{
		EntryInfoID: entry.ID,
		CardType:    cardType,
		Destination: entry.Destination,
		Nationality: nationality,
		Fields:      fields,
	})
	if err != nil {
		c.metrics.ObserveSubmission(cardType, "error", start)
		failed := SubmissionResult{Status: DACStatusFailed, ErrorDetails: err.Error()}
		if _, settleErr := c.dacs.CompleteAttempt(settleCtx, attempt.ID, failed, nil); settleErr != nil {
			log.Er("failed to settle interrupted attempt", settleErr, "dacID", attempt.ID)
		}
		return nil, log.Err("submission did not complete", err, "entryInfoID", entry.ID, "cardType", cardType)
	}

	result = normalizeResult(result)
	c.metrics.ObserveSubmission(cardType, string(result.Status), start)

	if result.Status == DACStatusFailed {
		dac, err := c.dacs.CompleteAttempt(settleCtx, attempt.ID, result, nil)
		if err != nil {
			return nil, err
		}
		c.publishSubmission(entry, dac)
		log.Warn("Submission rejected", "entryInfoID", entry.ID, "cardType", cardType, "details", result.ErrorDetails)
		return dac, &apperrors.SubmissionError{CardType: cardType, Details: result.ErrorDetails}
	}

	var dac *DigitalArrivalCard
	var change *StatusChange
	err = c.transactions.Execute(settleCtx, func(txCtx context.Context) error {
		var err error
		if dac, err = c.dacs.CompleteAttempt(txCtx, attempt.ID, result, DigestFields(fields)); err != nil {
			return err
		}

		fresh, err := c.entries.Get(txCtx, entry.ID)
		if err != nil {
			return err
		}
		*entry = *fresh

		refs := DocumentRefs{ArrCardNo: result.ArrCardNo, QRURI: result.QRURI, PDFURL: result.PDFURL, DACID: dac.ID}
		if err := c.entries.SetDocuments(txCtx, entry, cardType, refs); err != nil {
			return err
		}

		if entry.Status.Submittable() {
			change, err = c.transition(txCtx, entry, EntryStatusSubmitted, cardType+" accepted")
			return err
		}
		log.Warn("Card accepted but entry status moved meanwhile",
			"entryInfoID", entry.ID, "status", entry.Status, "dacID", dac.ID)
		return nil
	})
	if err != nil {
		return nil, log.Err("failed to record accepted submission", err, "entryInfoID", entry.ID, "dacID", attempt.ID)
	}

	c.publish(change)
	c.publishSubmission(entry, dac)
	log.Info("Submission accepted", "entryInfoID", entry.ID, "cardType", cardType, "dacID", dac.ID, "version", dac.Version)
	return dac, nil
}

// normalizeResult turns anything other than a well-formed success or failure
// into a failure so it is never mistaken for an accepted card.
func normalizeResult(result SubmissionResult) SubmissionResult {
	switch {
	case result.Status == DACStatusSuccess && result.ArrCardNo != "":
		return result
	case result.Status == DACStatusFailed:
		if result.ErrorDetails == "" {
			result.ErrorDetails = "rejected without details"
		}
		return result
	default:
		return SubmissionResult{Status: DACStatusFailed, ErrorDetails: "malformed response from DAC service"}
	}
}

func (c *LifecycleController) beginFlight(entryInfoID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, busy := c.inFlight[entryInfoID]; busy {
		return false
	}
	c.inFlight[entryInfoID] = &flight{}
	return true
}

func (c *LifecycleController) deferEdits(entryInfoID string, fields []string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, busy := c.inFlight[entryInfoID]
	if !busy {
		return false
	}
	f.edited = true
	if len(fields) == 0 {
		f.editedAll = true
	}
	f.fields = append(f.fields, fields...)
	return true
}

func (c *LifecycleController) endFlight(ctx context.Context, userID, entryInfoID string) {
	c.mu.Lock()
	f := c.inFlight[entryInfoID]
	delete(c.inFlight, entryInfoID)
	c.mu.Unlock()

	if f == nil || !f.edited {
		return
	}

	fields := f.fields
	if f.editedAll {
		fields = nil
	}
	if _, err := c.RecordFieldEdits(ctx, userID, entryInfoID, fields); err != nil {
		c.log.Function("endFlight").Er("failed to evaluate deferred edits", err, "entryInfoID", entryInfoID)
	}
}

// fieldValues flattens the linked records into the submitted field set and
// returns the passport nationality.
func (c *LifecycleController) fieldValues(ctx context.Context, entry *EntryInfo) (map[string]string, string, error) {
	passport, err := c.passports.GetByID(ctx, entry.PassportID)
	if err != nil {
		return nil, "", err
	}

	fields := passport.Fields()
	if entry.PersonalInfoID != nil {
		info, err := c.personalInfo.GetByID(ctx, *entry.PersonalInfoID)
		if err != nil {
			return nil, "", err
		}
		maps.Copy(fields, info.Fields())
	}
	if entry.TravelInfoID != nil {
		travel, err := c.travelInfo.GetByID(ctx, *entry.TravelInfoID)
		if err != nil {
			return nil, "", err
		}
		maps.Copy(fields, travel.Fields())
	}

	return fields, passport.Nationality, nil
}

func (c *LifecycleController) CompleteTrip(ctx context.Context, userID, entryInfoID string) (*EntryInfo, error) {
	entry, err := c.loadOwned(ctx, userID, entryInfoID)
	if err != nil {
		return nil, err
	}
	if err := c.move(ctx, entry, EntryStatusCompleted, "trip completed"); err != nil {
		return nil, err
	}
	return entry, nil
}

func (c *LifecycleController) Archive(ctx context.Context, userID, entryInfoID string) (*EntryInfo, error) {
	entry, err := c.loadOwned(ctx, userID, entryInfoID)
	if err != nil {
		return nil, err
	}
	if err := c.move(ctx, entry, EntryStatusArchived, "archived by traveler"); err != nil {
		return nil, err
	}
	return entry, nil
}

func (c *LifecycleController) CurrentCard(ctx context.Context, userID, entryInfoID, cardType string) (*DigitalArrivalCard, error) {
	entry, err := c.loadOwned(ctx, userID, entryInfoID)
	if err != nil {
		return nil, err
	}
	return c.dacs.GetCurrent(ctx, entry.ID, cardType)
}

func (c *LifecycleController) CurrentCards(ctx context.Context, userID, entryInfoID string) ([]DigitalArrivalCard, error) {
	entry, err := c.loadOwned(ctx, userID, entryInfoID)
	if err != nil {
		return nil, err
	}
	return c.dacs.ListCurrent(ctx, entry.ID)
}

func (c *LifecycleController) SubmissionHistory(ctx context.Context, userID, entryInfoID, cardType string) ([]DigitalArrivalCard, error) {
	entry, err := c.loadOwned(ctx, userID, entryInfoID)
	if err != nil {
		return nil, err
	}
	return c.dacs.History(ctx, entry.ID, cardType)
}

func (c *LifecycleController) AttachFunds(ctx context.Context, userID, entryInfoID string, fundItemIDs []string) (*EntryInfo, error) {
	entry, err := c.loadOwned(ctx, userID, entryInfoID)
	if err != nil {
		return nil, err
	}
	if err := c.entries.AttachFundItems(ctx, entry, fundItemIDs); err != nil {
		return nil, err
	}
	return entry, nil
}

// FundsCoverage checks the entry's attached funds against the funds-proof
// requirement for its passport and destination.
func (c *LifecycleController) FundsCoverage(ctx context.Context, userID, entryInfoID string) (FundsCoverage, error) {
	entry, err := c.loadOwned(ctx, userID, entryInfoID)
	if err != nil {
		return FundsCoverage{}, err
	}

	passport, err := c.passports.GetByID(ctx, entry.PassportID)
	if err != nil {
		return FundsCoverage{}, err
	}

	requirements, err := c.requirements.GetRequirements(ctx, passport.Nationality, entry.Destination)
	if err != nil {
		return FundsCoverage{}, err
	}

	return requirementsController.CalculateFundsCoverage(requirements, entry.FundItems), nil
}

// Checklist builds the checklist for the entry's passport nationality and destination.
func (c *LifecycleController) Checklist(ctx context.Context, userID, entryInfoID string) (Checklist, error) {
	entry, err := c.loadOwned(ctx, userID, entryInfoID)
	if err != nil {
		return Checklist{}, err
	}

	passport, err := c.passports.GetByID(ctx, entry.PassportID)
	if err != nil {
		return Checklist{}, err
	}

	return c.requirements.GetChecklist(ctx, passport.Nationality, entry.Destination)
}

// RecoverInterrupted fails attempts left pending by a previous process.
func (c *LifecycleController) RecoverInterrupted(ctx context.Context, olderThan time.Duration) (int, error) {
	recovered, err := c.dacs.FailStalePending(ctx, olderThan)
	if err != nil {
		return 0, err
	}
	if recovered > 0 {
		c.log.Function("RecoverInterrupted").Warn("Failed interrupted submissions", "count", recovered)
	}
	return recovered, nil
}

func (c *LifecycleController) move(ctx context.Context, entry *EntryInfo, to EntryStatus, reason string) error {
	change, err := c.transition(ctx, entry, to, reason)
	if err != nil {
		return err
	}
	c.publish(change)
	return nil
}

func (c *LifecycleController) transition(ctx context.Context, entry *EntryInfo, to EntryStatus, reason string) (*StatusChange, error) {
	from := entry.Status
	if err := c.entries.TransitionStatus(ctx, entry, to); err != nil {
		return nil, err
	}

	c.metrics.Transition(string(from), string(to))
	c.log.Function("transition").Info("Entry status changed",
		"entryInfoID", entry.ID,
		"from", from,
		"to", to,
		"reason", reason,
	)

	return &StatusChange{
		EntryInfoID: entry.ID,
		UserID:      entry.UserID,
		From:        from,
		To:          to,
		Reason:      reason,
		At:          entry.StatusChangedAt,
	}, nil
}

func (c *LifecycleController) publish(change *StatusChange) {
	if change == nil || c.eventBus == nil {
		return
	}

	err := c.eventBus.Publish(events.ChannelEntries, events.Event{
		Type:      events.TypeStatusChanged,
		UserID:    change.UserID,
		Timestamp: change.At,
		Data: map[string]any{
			"entryInfoId": change.EntryInfoID,
			"from":        string(change.From),
			"to":          string(change.To),
			"reason":      change.Reason,
		},
	})
	if err != nil {
		c.log.Function("publish").Er("failed to publish status change", err, "entryInfoID", change.EntryInfoID)
	}
}

func (c *LifecycleController) publishSubmission(entry *EntryInfo, dac *DigitalArrivalCard) {
	if c.eventBus == nil || dac == nil {
		return
	}

	err := c.eventBus.Publish(events.ChannelEntries, events.Event{
		Type:   events.TypeSubmissionRecorded,
		UserID: entry.UserID,
		Data: map[string]any{
			"entryInfoId": entry.ID,
			"dacId":       dac.ID,
			"cardType":    dac.CardType,
			"status":      string(dac.Status),
			"version":     dac.Version,
		},
	})
	if err != nil {
		c.log.Function("publishSubmission").Er("failed to publish submission", err, "entryInfoID", entry.ID)
	}
}
