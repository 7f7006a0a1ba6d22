package repository

import (
	"context"

	"checkout-engine/internal/domain/model"

	"github.com/shopspring/decimal"
)

// 明細＋現在の商品名
type CartLineView struct {
	model.CartLine
	ProductName string
}

type CartRepository interface {
	// 追加順（id asc）。商品が消えている明細は含めない
	ListWithProduct(ctx context.Context, userID int64) ([]CartLineView, error)
	// 同一商品は数量加算。新規のときだけunitPriceを保存
	Upsert(ctx context.Context, userID int64, productID int64, addQty int64, unitPrice decimal.Decimal) (model.CartLine, error)
	DeleteLine(ctx context.Context, userID int64, productID int64) error
	// 指定商品の明細だけ消す（注文確定時）
	DeleteProducts(ctx context.Context, userID int64, productIDs []int64) (int64, error)
	Clear(ctx context.Context, userID int64) error
}
