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

type TravelInfoRepository interface {
	Create(ctx context.Context, info *TravelInfo) error
	Update(ctx context.Context, info *TravelInfo) error
	GetByID(ctx context.Context, id string) (*TravelInfo, error)
}

type travelInfoRepository struct {
	db  database.DB
	log logger.Logger
}

func NewTravelInfoRepository(db database.DB) TravelInfoRepository {
	return &travelInfoRepository{
		db:  db,
		log: logger.New("travelInfoRepository"),
	}
}

func (r *travelInfoRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := services.GetTransaction(ctx); ok {
		return tx
	}
	return r.db.SQLWithContext(ctx)
}

func (r *travelInfoRepository) Create(ctx context.Context, info *TravelInfo) error {
	if err := r.getDB(ctx).Create(info).Error; err != nil {
		return r.log.Function("Create").Err("failed to create travel info", err, "userID", info.UserID)
	}
	return nil
}

func (r *travelInfoRepository) Update(ctx context.Context, info *TravelInfo) error {
	log := r.log.Function("Update")

	result := r.getDB(ctx).
		Model(info).
		Where("user_id = ?", info.UserID).
		Select("arrival_date", "departure_date", "flight_number", "departure_country", "purpose", "accommodation_address").
		Updates(info)
	if result.Error != nil {
		return log.Err("failed to update travel info", result.Error, "travelInfoID", info.ID)
	}
	if result.RowsAffected == 0 {
		return log.Err("travel info not found", apperrors.ErrNotFound, "travelInfoID", info.ID)
	}

	return r.getDB(ctx).First(info, "id = ?", info.ID).Error
}

func (r *travelInfoRepository) GetByID(ctx context.Context, id string) (*TravelInfo, error) {
	log := r.log.Function("GetByID")

	var info TravelInfo
	if err := r.getDB(ctx).First(&info, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, log.Err("travel info not found", apperrors.ErrNotFound, "travelInfoID", id)
		}
		return nil, log.Err("failed to get travel info", err, "travelInfoID", id)
	}

	return &info, nil
}
