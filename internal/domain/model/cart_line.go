package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// カートの明細。(user_id, product_id) で一意
// 追加時点の価格をUnitPriceに保存する。
type CartLine struct {
	ID        int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64           `gorm:"not null;uniqueIndex:ux_cart_lines_user_product" json:"user_id"`
	ProductID int64           `gorm:"not null;uniqueIndex:ux_cart_lines_user_product" json:"product_id"`
	Quantity  int64           `gorm:"not null" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"unit_price"`
	CreatedAt time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
