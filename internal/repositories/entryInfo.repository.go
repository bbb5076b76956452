package repositories

import (
	"context"
	"entryready/internal/apperrors"
	"entryready/internal/database"
	"entryready/internal/logger"
	. "entryready/internal/models"
	"entryready/internal/services"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EntryInfoRepository persists EntryInfo aggregates. Status only moves
// through TransitionStatus so concurrent writers cannot skip a state.
type EntryInfoRepository interface {
	CreateOrUpdate(ctx context.Context, entry *EntryInfo) error
	Get(ctx context.Context, id string) (*EntryInfo, error)
	ListByUser(ctx context.Context, userID string) ([]EntryInfo, error)
	TransitionStatus(ctx context.Context, entry *EntryInfo, to EntryStatus) error
	UpdateCompletion(ctx context.Context, entry *EntryInfo, metrics CompletionMetrics) error
	SetDocuments(ctx context.Context, entry *EntryInfo, cardType string, refs DocumentRefs) error
	AttachFundItems(ctx context.Context, entry *EntryInfo, fundItemIDs []string) error
}

type entryInfoRepository struct {
	db  database.DB
	log logger.Logger
	now func() time.Time
}

func NewEntryInfoRepository(db database.DB) EntryInfoRepository {
	return &entryInfoRepository{
		db:  db,
		log: logger.New("entryInfoRepository"),
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (r *entryInfoRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := services.GetTransaction(ctx); ok {
		return tx
	}
	return r.db.SQLWithContext(ctx)
}

func (r *entryInfoRepository) CreateOrUpdate(ctx context.Context, entry *EntryInfo) error {
	log := r.log.Function("CreateOrUpdate")

	entry.Destination = normalizeCode(entry.Destination)
	if err := ruleValidator.Var(entry.Destination, "required,iso3166_1_alpha2"); err != nil {
		return log.Err("invalid destination", apperrors.ErrValidation, "destination", entry.Destination)
	}

	err := r.getDB(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.checkReferences(tx, entry); err != nil {
			return err
		}

		if entry.ID == "" {
			if entry.Status == "" {
				entry.Status = EntryStatusIncomplete
			}
			if !entry.Status.Valid() {
				return fmt.Errorf("%w: unknown status %q", apperrors.ErrValidation, entry.Status)
			}
			entry.StatusChangedAt = r.now()
			if entry.Documents == nil {
				entry.Documents = Documents{}
			}
			return tx.Omit(clause.Associations).Create(entry).Error
		}

		result := tx.Model(entry).
			Where("user_id = ?", entry.UserID).
			Select("passport_id", "personal_info_id", "travel_info_id", "destination").
			Updates(entry)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return apperrors.ErrNotFound
		}
		return tx.Omit(clause.Associations).First(entry, "id = ?", entry.ID).Error
	})
	if err != nil {
		return log.Err("failed to save entry info", err, "entryInfoID", entry.ID, "userID", entry.UserID)
	}

	return nil
}

func (r *entryInfoRepository) checkReferences(tx *gorm.DB, entry *EntryInfo) error {
	type reference struct {
		model any
		id    *string
		name  string
	}

	references := []reference{
		{&Passport{}, &entry.PassportID, "passport"},
		{&PersonalInfo{}, entry.PersonalInfoID, "personal info"},
		{&TravelInfo{}, entry.TravelInfoID, "travel info"},
	}

	for _, ref := range references {
		if ref.id == nil {
			continue
		}
		var owned int64
		if err := tx.Model(ref.model).Where("id = ? AND user_id = ?", *ref.id, entry.UserID).Count(&owned).Error; err != nil {
			return err
		}
		if owned == 0 {
			return fmt.Errorf("%w: %s %q does not belong to user", apperrors.ErrValidation, ref.name, *ref.id)
		}
	}

	return nil
}

// refuseIfLinked fails with ErrValidation while an active entry of userID
// references id through column. It runs inside the deleting transaction.
func refuseIfLinked(tx *gorm.DB, userID, column, id, name string) error {
	var linked int64
	if err := tx.Model(&EntryInfo{}).
		Where("user_id = ? AND "+column+" = ? AND status IN ?", userID, id, ActiveEntryStatuses()).
		Count(&linked).Error; err != nil {
		return err
	}
	if linked > 0 {
		return fmt.Errorf("%w: %s is linked to %d active entries", apperrors.ErrValidation, name, linked)
	}
	return nil
}

func (r *entryInfoRepository) Get(ctx context.Context, id string) (*EntryInfo, error) {
	log := r.log.Function("Get")

	var entry EntryInfo
	if err := r.getDB(ctx).Preload("FundItems").First(&entry, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, log.Err("entry info not found", apperrors.ErrNotFound, "entryInfoID", id)
		}
		return nil, log.Err("failed to get entry info", err, "entryInfoID", id)
	}

	if entry.Documents == nil {
		entry.Documents = Documents{}
	}
	return &entry, nil
}

func (r *entryInfoRepository) ListByUser(ctx context.Context, userID string) ([]EntryInfo, error) {
	var entries []EntryInfo
	if err := r.getDB(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&entries).Error; err != nil {
		return nil, r.log.Function("ListByUser").Err("failed to list entry info", err, "userID", userID)
	}
	return entries, nil
}

// TransitionStatus moves entry to the next status when the transition is
// allowed and nobody changed the status since entry was read.
func (r *entryInfoRepository) TransitionStatus(ctx context.Context, entry *EntryInfo, to EntryStatus) error {
	log := r.log.Function("TransitionStatus")

	from := entry.Status
	if !from.CanTransitionTo(to) {
		return log.Err("transition not allowed", apperrors.ErrInvalidTransition,
			"entryInfoID", entry.ID, "from", from, "to", to)
	}

	changedAt := r.now()
	result := r.getDB(ctx).
		Model(&EntryInfo{}).
		Where("id = ? AND status = ?", entry.ID, from).
		Updates(map[string]any{"status": to, "status_changed_at": changedAt})
	if result.Error != nil {
		return log.Err("failed to update status", result.Error, "entryInfoID", entry.ID)
	}
	if result.RowsAffected == 0 {
		return log.Err("status changed concurrently", apperrors.ErrInvalidTransition,
			"entryInfoID", entry.ID, "from", from, "to", to)
	}

	entry.Status = to
	entry.StatusChangedAt = changedAt
	return nil
}

func (r *entryInfoRepository) UpdateCompletion(ctx context.Context, entry *EntryInfo, metrics CompletionMetrics) error {
	entry.CompletionMetrics = metrics
	if err := r.getDB(ctx).Model(entry).Select("completion_metrics").Updates(entry).Error; err != nil {
		return r.log.Function("UpdateCompletion").Err("failed to update completion", err, "entryInfoID", entry.ID)
	}
	return nil
}

func (r *entryInfoRepository) SetDocuments(ctx context.Context, entry *EntryInfo, cardType string, refs DocumentRefs) error {
	if entry.Documents == nil {
		entry.Documents = Documents{}
	}
	entry.Documents[cardType] = refs

	if err := r.getDB(ctx).Model(entry).Select("documents").Updates(entry).Error; err != nil {
		return r.log.Function("SetDocuments").Err("failed to update documents", err,
			"entryInfoID", entry.ID, "cardType", cardType)
	}
	return nil
}

// AttachFundItems replaces the entry's fund items with the given user-owned items.
func (r *entryInfoRepository) AttachFundItems(ctx context.Context, entry *EntryInfo, fundItemIDs []string) error {
	log := r.log.Function("AttachFundItems")

	err := r.getDB(ctx).Transaction(func(tx *gorm.DB) error {
		var items []FundItem
		if len(fundItemIDs) > 0 {
			if err := tx.Where("id IN ? AND user_id = ?", fundItemIDs, entry.UserID).Find(&items).Error; err != nil {
				return err
			}
		}
		if len(items) != len(fundItemIDs) {
			return fmt.Errorf("%w: fund items must exist and belong to the user", apperrors.ErrValidation)
		}
		association := tx.Model(entry).Association("FundItems")
		if len(items) == 0 {
			if err := association.Clear(); err != nil {
				return err
			}
		} else if err := association.Replace(items); err != nil {
			return err
		}
		entry.FundItems = items
		return nil
	})
	if err != nil {
		return log.Err("failed to attach fund items", err, "entryInfoID", entry.ID)
	}

	return nil
}
