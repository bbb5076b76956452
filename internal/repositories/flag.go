package repositories

import (
	"entryready/internal/apperrors"
	"fmt"

	"gorm.io/gorm"
)

// exclusiveFlag is a boolean column of which at most one live row per user
// may be true: passports.is_primary and personal_info.is_default.
type exclusiveFlag struct {
	model  func() any
	column string
}

// set makes id the only flagged row of userID. It must run inside a transaction.
func (f exclusiveFlag) set(tx *gorm.DB, userID, id string) error {
	var owned int64
	if err := tx.Model(f.model()).Where("id = ? AND user_id = ?", id, userID).Count(&owned).Error; err != nil {
		return err
	}
	if owned == 0 {
		return apperrors.ErrNotFound
	}

	if err := tx.Model(f.model()).
		Where("user_id = ? AND id <> ? AND "+f.column+" = ?", userID, id, true).
		Update(f.column, false).Error; err != nil {
		return err
	}

	if err := tx.Model(f.model()).Where("id = ?", id).Update(f.column, true).Error; err != nil {
		return err
	}

	return f.verify(tx, userID)
}

// promoteLatest flags the most recently created row when none is flagged.
func (f exclusiveFlag) promoteLatest(tx *gorm.DB, userID string) error {
	flagged, err := f.count(tx, userID)
	if err != nil || flagged > 0 {
		return err
	}

	var ids []string
	if err := tx.Model(f.model()).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(1).
		Pluck("id", &ids).Error; err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	if err := tx.Model(f.model()).Where("id = ?", ids[0]).Update(f.column, true).Error; err != nil {
		return err
	}
	return f.verify(tx, userID)
}

func (f exclusiveFlag) count(tx *gorm.DB, userID string) (int64, error) {
	var flagged int64
	err := tx.Model(f.model()).Where("user_id = ? AND "+f.column+" = ?", userID, true).Count(&flagged).Error
	return flagged, err
}

func (f exclusiveFlag) verify(tx *gorm.DB, userID string) error {
	flagged, err := f.count(tx, userID)
	if err != nil {
		return err
	}
	if flagged > 1 {
		return fmt.Errorf("%w: user %s has %d rows with %s", apperrors.ErrInvariantViolation, userID, flagged, f.column)
	}
	return nil
}
