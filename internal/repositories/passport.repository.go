package repositories

import (
	"context"
	"entryready/internal/apperrors"
	"entryready/internal/database"
	"entryready/internal/logger"
	. "entryready/internal/models"
	"entryready/internal/services"
	"errors"

	"gorm.io/gorm"
)

type PassportRepository interface {
	Create(ctx context.Context, passport *Passport) error
	Update(ctx context.Context, passport *Passport) error
	GetByID(ctx context.Context, id string) (*Passport, error)
	GetPrimary(ctx context.Context, userID string) (*Passport, error)
	ListByUser(ctx context.Context, userID string) ([]Passport, error)
	SetPrimary(ctx context.Context, userID, passportID string) error
	Delete(ctx context.Context, userID, passportID string) error
}

type passportRepository struct {
	db   database.DB
	log  logger.Logger
	flag exclusiveFlag
}

func NewPassportRepository(db database.DB) PassportRepository {
	return &passportRepository{
		db:  db,
		log: logger.New("passportRepository"),
		flag: exclusiveFlag{
			model:  func() any { return &Passport{} },
			column: "is_primary",
		},
	}
}

func (r *passportRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := services.GetTransaction(ctx); ok {
		return tx
	}
	return r.db.SQLWithContext(ctx)
}

// Create inserts the passport. The first passport of a user, or one created
// with IsPrimary, becomes the only primary passport.
func (r *passportRepository) Create(ctx context.Context, passport *Passport) error {
	log := r.log.Function("Create")

	makePrimary := passport.IsPrimary
	err := r.getDB(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&Passport{}).Where("user_id = ?", passport.UserID).Count(&existing).Error; err != nil {
			return err
		}
		makePrimary = makePrimary || existing == 0

		passport.IsPrimary = false
		if err := tx.Create(passport).Error; err != nil {
			return err
		}

		if makePrimary {
			return r.flag.set(tx, passport.UserID, passport.ID)
		}
		return nil
	})
	if err != nil {
		return log.Err("failed to create passport", err, "userID", passport.UserID)
	}

	passport.IsPrimary = makePrimary
	return nil
}

// Update writes the editable fields. Primary status only changes through SetPrimary.
func (r *passportRepository) Update(ctx context.Context, passport *Passport) error {
	log := r.log.Function("Update")

	result := r.getDB(ctx).
		Model(passport).
		Where("user_id = ?", passport.UserID).
		Select("nationality", "passport_number", "given_names", "surname", "date_of_birth", "gender", "expiry_date").
		Updates(passport)
	if result.Error != nil {
		return log.Err("failed to update passport", result.Error, "passportID", passport.ID)
	}
	if result.RowsAffected == 0 {
		return log.Err("passport not found", apperrors.ErrNotFound, "passportID", passport.ID)
	}

	return r.getDB(ctx).First(passport, "id = ?", passport.ID).Error
}

func (r *passportRepository) GetByID(ctx context.Context, id string) (*Passport, error) {
	log := r.log.Function("GetByID")

	var passport Passport
	if err := r.getDB(ctx).First(&passport, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, log.Err("passport not found", apperrors.ErrNotFound, "passportID", id)
		}
		return nil, log.Err("failed to get passport", err, "passportID", id)
	}

	return &passport, nil
}

func (r *passportRepository) GetPrimary(ctx context.Context, userID string) (*Passport, error) {
	log := r.log.Function("GetPrimary")

	var passport Passport
	err := r.getDB(ctx).Where("user_id = ? AND is_primary = ?", userID, true).First(&passport).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, log.Err("primary passport not found", apperrors.ErrNotFound, "userID", userID)
	}
	if err != nil {
		return nil, log.Err("failed to get primary passport", err, "userID", userID)
	}

	return &passport, nil
}

func (r *passportRepository) ListByUser(ctx context.Context, userID string) ([]Passport, error) {
	log := r.log.Function("ListByUser")

	var passports []Passport
	if err := r.getDB(ctx).
		Where("user_id = ?", userID).
		Order("is_primary DESC, created_at DESC").
		Find(&passports).Error; err != nil {
		return nil, log.Err("failed to list passports", err, "userID", userID)
	}

	return passports, nil
}

func (r *passportRepository) SetPrimary(ctx context.Context, userID, passportID string) error {
	log := r.log.Function("SetPrimary")

	err := r.getDB(ctx).Transaction(func(tx *gorm.DB) error {
		return r.flag.set(tx, userID, passportID)
	})
	if err != nil {
		return log.Err("failed to set primary passport", err, "userID", userID, "passportID", passportID)
	}

	return nil
}

// Delete soft-deletes the passport and promotes the newest remaining one when
// the primary was removed. A passport an active entry still uses cannot be
// deleted.
func (r *passportRepository) Delete(ctx context.Context, userID, passportID string) error {
	log := r.log.Function("Delete")

	err := r.getDB(ctx).Transaction(func(tx *gorm.DB) error {
		if err := refuseIfLinked(tx, userID, "passport_id", passportID, "passport"); err != nil {
			return err
		}

		result := tx.Where("user_id = ?", userID).Delete(&Passport{}, "id = ?", passportID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return apperrors.ErrNotFound
		}
		if err := tx.Model(&Passport{}).Where("id = ?", passportID).Unscoped().Update("is_primary", false).Error; err != nil {
			return err
		}
		return r.flag.promoteLatest(tx, userID)
	})
	if err != nil {
		return log.Err("failed to delete passport", err, "userID", userID, "passportID", passportID)
	}

	return nil
}
