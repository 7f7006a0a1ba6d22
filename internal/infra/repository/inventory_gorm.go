package repository

import (
	"context"
	"errors"
	"strings"

	"checkout-engine/internal/domain/model"
	repo "checkout-engine/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type InventoryGormRepository struct {
	db *gorm.DB
}

// dbはTxのハンドルを渡すこと（TxManagerGorm経由）
func NewInventoryGormRepository(db *gorm.DB) *InventoryGormRepository {
	return &InventoryGormRepository{db: db}
}

// 在庫を確保する。
// SELECT ... FOR UPDATE で行ロックを取ってから読み直すので、
// 同じ商品を同時に買いにきた別Txはここで待たされる
func (r *InventoryGormRepository) TryReserve(ctx context.Context, productID int64, qty int64) (repo.Reservation, error) {
	if qty <= 0 {
		return repo.Reservation{}, &model.ValidationError{Field: "quantity", Reason: "must be positive"}
	}

	var p model.Product
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id", "stock").
		Where("id = ?", productID).
		Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		//商品が消えている＝在庫0扱い
		return repo.Reservation{}, &model.InsufficientStockError{ProductID: productID, Requested: qty, Available: 0}
	}
	if err != nil {
		return repo.Reservation{}, wrapErr("lock stock", err)
	}

	if p.Stock < qty {
		return repo.Reservation{}, &model.InsufficientStockError{ProductID: productID, Requested: qty, Available: p.Stock}
	}

	//ロック済みなので条件付きUPDATEは念のため
	res := r.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("id = ? AND stock >= ?", productID, qty).
		Update("stock", gorm.Expr("stock - ?", qty))
	if res.Error != nil {
		if isCheckViolation(res.Error) {
			return repo.Reservation{}, &model.InsufficientStockError{ProductID: productID, Requested: qty, Available: p.Stock}
		}
		return repo.Reservation{}, wrapErr("decrement stock", res.Error)
	}
	if res.RowsAffected == 0 {
		return repo.Reservation{}, &model.InsufficientStockError{ProductID: productID, Requested: qty, Available: p.Stock}
	}

	return repo.Reservation{ProductID: productID, Quantity: qty, Remaining: p.Stock - qty}, nil
}

// 在庫を「現在値」に更新し、調整履歴も残す
func (r *InventoryGormRepository) SetStock(ctx context.Context, adminUserID int64, productID int64, newStock int64, reason string) (model.InventoryAdjustment, error) {
	if newStock < 0 {
		return model.InventoryAdjustment{}, &model.ValidationError{Field: "stock", Reason: "must be >= 0"}
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return model.InventoryAdjustment{}, &model.ValidationError{Field: "reason", Reason: "required"}
	}

	//現在の在庫をロックして取得
	var p model.Product
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id", "stock").
		Where("id = ?", productID).
		Take(&p).Error
	if err != nil {
		return model.InventoryAdjustment{}, wrapErr("lock stock", err)
	}

	res := r.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("id = ?", productID).
		Update("stock", newStock)
	if res.Error != nil {
		return model.InventoryAdjustment{}, wrapErr("set stock", res.Error)
	}
	if res.RowsAffected == 0 {
		return model.InventoryAdjustment{}, repo.ErrNotFound
	}

	adj := model.InventoryAdjustment{
		ProductID:   productID,
		AdminUserID: adminUserID,
		Delta:       newStock - p.Stock,
		Reason:      reason,
	}
	if err := r.db.WithContext(ctx).Create(&adj).Error; err != nil {
		return model.InventoryAdjustment{}, wrapErr("create adjustment", err)
	}
	return adj, nil
}
