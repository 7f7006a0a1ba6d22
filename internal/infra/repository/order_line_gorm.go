package repository

import (
	"context"

	"checkout-engine/internal/domain/model"

	"gorm.io/gorm"
)

type OrderLineGormRepository struct {
	db *gorm.DB
}

func NewOrderLineGormRepository(db *gorm.DB) *OrderLineGormRepository {
	return &OrderLineGormRepository{db: db}
}

func (r *OrderLineGormRepository) CreateBulk(ctx context.Context, orderID int64, lines []model.OrderLine) error {
	if len(lines) == 0 {
		return nil
	}
	for i := range lines {
		lines[i].OrderID = orderID
	}
	if err := r.db.WithContext(ctx).Create(&lines).Error; err != nil {
		return wrapErr("create order lines", err)
	}
	return nil
}

func (r *OrderLineGormRepository) ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderLine, error) {
	var lines []model.OrderLine
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("id asc").Find(&lines).Error
	if err != nil {
		return []model.OrderLine{}, wrapErr("list order lines", err)
	}
	return lines, nil
}
