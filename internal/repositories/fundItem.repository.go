package repositories

import (
	"context"
	"entryready/internal/apperrors"
	"entryready/internal/database"
	"entryready/internal/logger"
	. "entryready/internal/models"
	"entryready/internal/services"

	"gorm.io/gorm"
)

type FundItemRepository interface {
	Create(ctx context.Context, item *FundItem) error
	ListByUser(ctx context.Context, userID string) ([]FundItem, error)
	Delete(ctx context.Context, userID, fundItemID string) error
}

type fundItemRepository struct {
	db  database.DB
	log logger.Logger
}

func NewFundItemRepository(db database.DB) FundItemRepository {
	return &fundItemRepository{
		db:  db,
		log: logger.New("fundItemRepository"),
	}
}

func (r *fundItemRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := services.GetTransaction(ctx); ok {
		return tx
	}
	return r.db.SQLWithContext(ctx)
}

func (r *fundItemRepository) Create(ctx context.Context, item *FundItem) error {
	if err := r.getDB(ctx).Create(item).Error; err != nil {
		return r.log.Function("Create").Err("failed to create fund item", err, "userID", item.UserID)
	}
	return nil
}

func (r *fundItemRepository) ListByUser(ctx context.Context, userID string) ([]FundItem, error) {
	var items []FundItem
	if err := r.getDB(ctx).Where("user_id = ?", userID).Order("created_at").Find(&items).Error; err != nil {
		return nil, r.log.Function("ListByUser").Err("failed to list fund items", err, "userID", userID)
	}
	return items, nil
}

func (r *fundItemRepository) Delete(ctx context.Context, userID, fundItemID string) error {
	log := r.log.Function("Delete")

	err := r.getDB(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("user_id = ?", userID).Delete(&FundItem{}, "id = ?", fundItemID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return apperrors.ErrNotFound
		}
		return tx.Exec("DELETE FROM entry_info_fund_items WHERE fund_item_id = ?", fundItemID).Error
	})
	if err != nil {
		return log.Err("failed to delete fund item", err, "fundItemID", fundItemID)
	}

	return nil
}
