package repository

import (
	"context"
	"errors"

	"checkout-engine/internal/domain/model"
)

var ErrNotFound = errors.New("not found")

// 同じ一意キーで既に行がある（冪等キーの競合など）
var ErrConflict = errors.New("conflict")

// カタログの読み取りだけを約束。CRUDはこのモジュールの外
type ProductRepository interface {
	FindByID(ctx context.Context, id int64) (model.Product, error)
}
