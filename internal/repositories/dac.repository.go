package repositories

import (
	"context"
	"database/sql"
	"entryready/internal/apperrors"
	"entryready/internal/database"
	"entryready/internal/logger"
	. "entryready/internal/models"
	"entryready/internal/services"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

const interruptedDetails = "interrupted"

// DACRepository is the ledger of arrival-card submission attempts. For a given
// (entryInfoID, cardType) at most one row is successful and not superseded.
type DACRepository interface {
	RecordSubmission(ctx context.Context, entryInfoID, cardType string, result SubmissionResult, digests FieldDigests) (*DigitalArrivalCard, error)
	BeginAttempt(ctx context.Context, entryInfoID, cardType string) (*DigitalArrivalCard, error)
	CompleteAttempt(ctx context.Context, dacID string, result SubmissionResult, digests FieldDigests) (*DigitalArrivalCard, error)
	GetCurrent(ctx context.Context, entryInfoID, cardType string) (*DigitalArrivalCard, error)
	ListCurrent(ctx context.Context, entryInfoID string) ([]DigitalArrivalCard, error)
	History(ctx context.Context, entryInfoID, cardType string) ([]DigitalArrivalCard, error)
	FailStalePending(ctx context.Context, olderThan time.Duration) (int, error)
}

type dacRepository struct {
	db  database.DB
	log logger.Logger
	now func() time.Time
}

func NewDACRepository(db database.DB) DACRepository {
	return &dacRepository{
		db:  db,
		log: logger.New("dacRepository"),
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (r *dacRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := services.GetTransaction(ctx); ok {
		return tx
	}
	return r.db.SQLWithContext(ctx)
}

// RecordSubmission inserts a finished attempt. A successful one supersedes
// every other live row of the same entry and card type in the same transaction.
func (r *dacRepository) RecordSubmission(
	ctx context.Context,
	entryInfoID, cardType string,
	result SubmissionResult,
	digests FieldDigests,
) (*DigitalArrivalCard, error) {
	log := r.log.Function("RecordSubmission")

	if err := validateResult(result); err != nil {
		return nil, log.Err("invalid submission result", err, "entryInfoID", entryInfoID, "cardType", cardType)
	}

	dac := &DigitalArrivalCard{
		BaseUUIDModel: BaseUUIDModel{ID: NewID()},
		EntryInfoID:   entryInfoID,
		CardType:      cardType,
		SubmittedAt:   r.now(),
	}
	applyResult(dac, result, digests)

	err := r.getDB(ctx).Transaction(func(tx *gorm.DB) error {
		version, err := nextVersion(tx, entryInfoID, cardType)
		if err != nil {
			return err
		}
		dac.Version = version

		if dac.Status == DACStatusSuccess {
			if err := r.supersedeOthers(tx, dac); err != nil {
				return err
			}
		}
		if err := tx.Create(dac).Error; err != nil {
			return err
		}
		return verifySingleCurrent(tx, entryInfoID, cardType)
	})
	if err != nil {
		return nil, log.Err("failed to record submission", err, "entryInfoID", entryInfoID, "cardType", cardType)
	}

	log.Info("Recorded submission",
		"entryInfoID", entryInfoID,
		"cardType", cardType,
		"dacID", dac.ID,
		"status", dac.Status,
		"version", dac.Version,
	)
	return dac, nil
}

// BeginAttempt writes a pending row before the remote call so a crash leaves
// a trace that FailStalePending can settle.
func (r *dacRepository) BeginAttempt(ctx context.Context, entryInfoID, cardType string) (*DigitalArrivalCard, error) {
	log := r.log.Function("BeginAttempt")

	dac := &DigitalArrivalCard{
		BaseUUIDModel: BaseUUIDModel{ID: NewID()},
		EntryInfoID:   entryInfoID,
		CardType:      cardType,
		Status:        DACStatusPending,
		SubmittedAt:   r.now(),
	}

	err := r.getDB(ctx).Transaction(func(tx *gorm.DB) error {
		var pending int64
		if err := tx.Model(&DigitalArrivalCard{}).
			Where("entry_info_id = ? AND card_type = ? AND status = ?", entryInfoID, cardType, DACStatusPending).
			Count(&pending).Error; err != nil {
			return err
		}
		if pending > 0 {
			return apperrors.ErrSubmissionInFlight
		}

		version, err := nextVersion(tx, entryInfoID, cardType)
		if err != nil {
			return err
		}
		dac.Version = version
		return tx.Create(dac).Error
	})
	if err != nil {
		return nil, log.Err("failed to begin attempt", err, "entryInfoID", entryInfoID, "cardType", cardType)
	}

	return dac, nil
}

func (r *dacRepository) CompleteAttempt(
	ctx context.Context,
	dacID string,
	result SubmissionResult,
	digests FieldDigests,
) (*DigitalArrivalCard, error) {
	log := r.log.Function("CompleteAttempt")

	if err := validateResult(result); err != nil {
		return nil, log.Err("invalid submission result", err, "dacID", dacID)
	}

	var dac DigitalArrivalCard
	err := r.getDB(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&dac, "id = ?", dacID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrNotFound
			}
			return err
		}
		if dac.Status != DACStatusPending {
			return fmt.Errorf("%w: attempt %s is already %s", apperrors.ErrInvalidTransition, dac.ID, dac.Status)
		}

		applyResult(&dac, result, digests)
		dac.SubmittedAt = r.now()

		if dac.Status == DACStatusSuccess {
			if err := r.supersedeOthers(tx, &dac); err != nil {
				return err
			}
		}

		if err := tx.Model(&dac).
			Select("status", "arr_card_no", "qr_uri", "pdf_url", "error_details", "submitted_at", "snapshot_digests").
			Updates(&dac).Error; err != nil {
			return err
		}
		return verifySingleCurrent(tx, dac.EntryInfoID, dac.CardType)
	})
	if err != nil {
		return nil, log.Err("failed to complete attempt", err, "dacID", dacID)
	}

	log.Info("Completed attempt", "dacID", dac.ID, "status", dac.Status, "version", dac.Version)
	return &dac, nil
}

// GetCurrent returns the current successful card, or nil when there is none.
func (r *dacRepository) GetCurrent(ctx context.Context, entryInfoID, cardType string) (*DigitalArrivalCard, error) {
	var dac DigitalArrivalCard
	err := r.getDB(ctx).
		Where("entry_info_id = ? AND card_type = ? AND is_superseded = ? AND status = ?",
			entryInfoID, cardType, false, DACStatusSuccess).
		Take(&dac).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, r.log.Function("GetCurrent").Err("failed to get current card", err,
			"entryInfoID", entryInfoID, "cardType", cardType)
	}
	return &dac, nil
}

func (r *dacRepository) ListCurrent(ctx context.Context, entryInfoID string) ([]DigitalArrivalCard, error) {
	var cards []DigitalArrivalCard
	if err := r.getDB(ctx).
		Where("entry_info_id = ? AND is_superseded = ? AND status = ?", entryInfoID, false, DACStatusSuccess).
		Order("card_type").
		Find(&cards).Error; err != nil {
		return nil, r.log.Function("ListCurrent").Err("failed to list current cards", err, "entryInfoID", entryInfoID)
	}
	return cards, nil
}

func (r *dacRepository) History(ctx context.Context, entryInfoID, cardType string) ([]DigitalArrivalCard, error) {
	query := r.getDB(ctx).Where("entry_info_id = ?", entryInfoID)
	if cardType != "" {
		query = query.Where("card_type = ?", cardType)
	}

	var cards []DigitalArrivalCard
	if err := query.Order("card_type, version").Find(&cards).Error; err != nil {
		return nil, r.log.Function("History").Err("failed to list card history", err,
			"entryInfoID", entryInfoID, "cardType", cardType)
	}
	return cards, nil
}

// FailStalePending settles attempts left pending longer than olderThan.
func (r *dacRepository) FailStalePending(ctx context.Context, olderThan time.Duration) (int, error) {
	log := r.log.Function("FailStalePending")

	var pending []DigitalArrivalCard
	if err := r.getDB(ctx).Where("status = ?", DACStatusPending).Find(&pending).Error; err != nil {
		return 0, log.Err("failed to list pending attempts", err)
	}

	cutoff := r.now().Add(-olderThan)
	details := interruptedDetails
	failed := 0
	for _, dac := range pending {
		if dac.SubmittedAt.After(cutoff) {
			continue
		}
		result := r.getDB(ctx).
			Model(&DigitalArrivalCard{}).
			Where("id = ? AND status = ?", dac.ID, DACStatusPending).
			Updates(map[string]any{"status": DACStatusFailed, "error_details": details})
		if result.Error != nil {
			return failed, log.Err("failed to settle pending attempt", result.Error, "dacID", dac.ID)
		}
		failed += int(result.RowsAffected)
	}

	if failed > 0 {
		log.Warn("Marked interrupted attempts as failed", "count", failed)
	}
	return failed, nil
}

func (r *dacRepository) supersedeOthers(tx *gorm.DB, replacement *DigitalArrivalCard) error {
	now := r.now()
	result := tx.Model(&DigitalArrivalCard{}).
		Where("entry_info_id = ? AND card_type = ? AND is_superseded = ? AND id <> ?",
			replacement.EntryInfoID, replacement.CardType, false, replacement.ID).
		Updates(map[string]any{
			"is_superseded":     true,
			"superseded_at":     now,
			"superseded_by":     replacement.ID,
			"superseded_reason": SupersededReasonReplaced,
		})
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected > 0 {
		r.log.Function("supersedeOthers").Info("Superseded previous attempts",
			"entryInfoID", replacement.EntryInfoID,
			"cardType", replacement.CardType,
			"supersededBy", replacement.ID,
			"count", result.RowsAffected,
		)
	}
	return nil
}

func nextVersion(tx *gorm.DB, entryInfoID, cardType string) (int, error) {
	var latest sql.NullInt64
	err := tx.Model(&DigitalArrivalCard{}).
		Where("entry_info_id = ? AND card_type = ?", entryInfoID, cardType).
		Select("MAX(version)").
		Scan(&latest).Error
	if err != nil {
		return 0, err
	}
	return int(latest.Int64) + 1, nil
}

func verifySingleCurrent(tx *gorm.DB, entryInfoID, cardType string) error {
	var current int64
	if err := tx.Model(&DigitalArrivalCard{}).
		Where("entry_info_id = ? AND card_type = ? AND is_superseded = ? AND status = ?",
			entryInfoID, cardType, false, DACStatusSuccess).
		Count(&current).Error; err != nil {
		return err
	}
	if current > 1 {
		return fmt.Errorf("%w: %d current %s cards for entry %s",
			apperrors.ErrInvariantViolation, current, cardType, entryInfoID)
	}
	return nil
}

func validateResult(result SubmissionResult) error {
	switch result.Status {
	case DACStatusSuccess:
		if result.ArrCardNo == "" {
			return fmt.Errorf("%w: successful submission without arrival card number", apperrors.ErrValidation)
		}
	case DACStatusFailed:
	default:
		return fmt.Errorf("%w: unexpected submission status %q", apperrors.ErrValidation, result.Status)
	}
	return nil
}

func applyResult(dac *DigitalArrivalCard, result SubmissionResult, digests FieldDigests) {
	dac.Status = result.Status
	dac.ArrCardNo = optional(result.ArrCardNo)
	dac.QRURI = optional(result.QRURI)
	dac.PDFURL = optional(result.PDFURL)
	dac.ErrorDetails = optional(result.ErrorDetails)
	if result.Status == DACStatusSuccess {
		dac.SnapshotDigests = digests
	}
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
