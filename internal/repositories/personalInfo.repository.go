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

type PersonalInfoRepository interface {
	Create(ctx context.Context, info *PersonalInfo) error
	Update(ctx context.Context, info *PersonalInfo) error
	GetByID(ctx context.Context, id string) (*PersonalInfo, error)
	GetDefault(ctx context.Context, userID string) (*PersonalInfo, error)
	ListByUser(ctx context.Context, userID string) ([]PersonalInfo, error)
	SetDefault(ctx context.Context, userID, personalInfoID string) error
	Delete(ctx context.Context, userID, personalInfoID string) error
}

type personalInfoRepository struct {
	db   database.DB
	log  logger.Logger
	flag exclusiveFlag
}

func NewPersonalInfoRepository(db database.DB) PersonalInfoRepository {
	return &personalInfoRepository{
		db:  db,
		log: logger.New("personalInfoRepository"),
		flag: exclusiveFlag{
			model:  func() any { return &PersonalInfo{} },
			column: "is_default",
		},
	}
}

func (r *personalInfoRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := services.GetTransaction(ctx); ok {
		return tx
	}
	return r.db.SQLWithContext(ctx)
}

func (r *personalInfoRepository) Create(ctx context.Context, info *PersonalInfo) error {
	log := r.log.Function("Create")

	makeDefault := info.IsDefault
	err := r.getDB(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&PersonalInfo{}).Where("user_id = ?", info.UserID).Count(&existing).Error; err != nil {
			return err
		}
		makeDefault = makeDefault || existing == 0

		info.IsDefault = false
		if err := tx.Create(info).Error; err != nil {
			return err
		}

		if makeDefault {
			return r.flag.set(tx, info.UserID, info.ID)
		}
		return nil
	})
	if err != nil {
		return log.Err("failed to create personal info", err, "userID", info.UserID)
	}

	info.IsDefault = makeDefault
	return nil
}

func (r *personalInfoRepository) Update(ctx context.Context, info *PersonalInfo) error {
	log := r.log.Function("Update")

	result := r.getDB(ctx).
		Model(info).
		Where("user_id = ?", info.UserID).
		Select("email", "phone", "occupation", "home_address", "home_country").
		Updates(info)
	if result.Error != nil {
		return log.Err("failed to update personal info", result.Error, "personalInfoID", info.ID)
	}
	if result.RowsAffected == 0 {
		return log.Err("personal info not found", apperrors.ErrNotFound, "personalInfoID", info.ID)
	}

	return r.getDB(ctx).First(info, "id = ?", info.ID).Error
}

func (r *personalInfoRepository) GetByID(ctx context.Context, id string) (*PersonalInfo, error) {
	log := r.log.Function("GetByID")

	var info PersonalInfo
	if err := r.getDB(ctx).First(&info, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, log.Err("personal info not found", apperrors.ErrNotFound, "personalInfoID", id)
		}
		return nil, log.Err("failed to get personal info", err, "personalInfoID", id)
	}

	return &info, nil
}

func (r *personalInfoRepository) GetDefault(ctx context.Context, userID string) (*PersonalInfo, error) {
	log := r.log.Function("GetDefault")

	var info PersonalInfo
	err := r.getDB(ctx).Where("user_id = ? AND is_default = ?", userID, true).First(&info).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, log.Err("default personal info not found", apperrors.ErrNotFound, "userID", userID)
	}
	if err != nil {
		return nil, log.Err("failed to get default personal info", err, "userID", userID)
	}

	return &info, nil
}

func (r *personalInfoRepository) ListByUser(ctx context.Context, userID string) ([]PersonalInfo, error) {
	log := r.log.Function("ListByUser")

	var infos []PersonalInfo
	if err := r.getDB(ctx).
		Where("user_id = ?", userID).
		Order("is_default DESC, created_at DESC").
		Find(&infos).Error; err != nil {
		return nil, log.Err("failed to list personal info", err, "userID", userID)
	}

	return infos, nil
}

func (r *personalInfoRepository) SetDefault(ctx context.Context, userID, personalInfoID string) error {
	log := r.log.Function("SetDefault")

	err := r.getDB(ctx).Transaction(func(tx *gorm.DB) error {
		return r.flag.set(tx, userID, personalInfoID)
	})
	if err != nil {
		return log.Err("failed to set default personal info", err, "userID", userID, "personalInfoID", personalInfoID)
	}

	return nil
}

func (r *personalInfoRepository) Delete(ctx context.Context, userID, personalInfoID string) error {
	log := r.log.Function("Delete")

	err := r.getDB(ctx).Transaction(func(tx *gorm.DB) error {
		if err := refuseIfLinked(tx, userID, "personal_info_id", personalInfoID, "personal info"); err != nil {
			return err
		}

		result := tx.Where("user_id = ?", userID).Delete(&PersonalInfo{}, "id = ?", personalInfoID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return apperrors.ErrNotFound
		}
		if err := tx.Model(&PersonalInfo{}).Where("id = ?", personalInfoID).Unscoped().Update("is_default", false).Error; err != nil {
			return err
		}
		return r.flag.promoteLatest(tx, userID)
	})
	if err != nil {
		return log.Err("failed to delete personal info", err, "userID", userID, "personalInfoID", personalInfoID)
	}

	return nil
}
