package repository

import (
	"context"

	"checkout-engine/internal/domain/model"
)

// TryReserveの成功結果
type Reservation struct {
	ProductID int64
	Quantity  int64
	Remaining int64
}

// 在庫台帳。必ずTxの中で使う
type InventoryLedger interface {
	// 行ロックを取ってから在庫を読み直し、足りるときだけ減算。
	// 足りないときは *model.InsufficientStockError
	TryReserve(ctx context.Context, productID int64, qty int64) (Reservation, error)

	// 管理者による在庫の現在値設定。調整履歴も同じTxで残す
	SetStock(ctx context.Context, adminUserID int64, productID int64, newStock int64, reason string) (model.InventoryAdjustment, error)
}
