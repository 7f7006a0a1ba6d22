package usecase

import (
	"context"
	"errors"
	"net/http"

	"checkout-engine/internal/domain/model"
	repo "checkout-engine/internal/repository"
)

// 管理者の在庫調整
type InventoryUsecase struct {
	tx repo.TransactionManager
}

func NewInventoryUsecase(tx repo.TransactionManager) *InventoryUsecase {
	return &InventoryUsecase{tx: tx}
}

type SetStockInput struct {
	Stock  int64
	Reason string
}

func (u *InventoryUsecase) SetStock(ctx context.Context, adminID int64, productID int64, in SetStockInput) (model.InventoryAdjustment, error) {
	if adminID <= 0 {
		return model.InventoryAdjustment{}, errUnauthorized
	}
	if productID <= 0 {
		return model.InventoryAdjustment{}, &model.ValidationError{Field: "product_id", Reason: "must be positive"}
	}

	var adj model.InventoryAdjustment
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		var err error
		adj, err = r.Inventory().SetStock(ctx, adminID, productID, in.Stock, in.Reason)
		return err
	})
	if errors.Is(err, repo.ErrNotFound) {
		return model.InventoryAdjustment{}, NewHTTPError(http.StatusNotFound, "product not found")
	}
	if err != nil {
		return model.InventoryAdjustment{}, err
	}
	return adj, nil
}
