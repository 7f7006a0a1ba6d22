package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 注文明細。UnitPriceAtPurchaseは注文確定時の価格で、後から商品価格が変わっても変えない
type OrderLine struct {
	ID                  int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID             int64           `gorm:"not null;index" json:"order_id"`
	ProductID           int64           `gorm:"not null;index" json:"product_id"`
	ProductName         string          `gorm:"type:varchar(255);not null" json:"product_name"`
	Quantity            int64           `gorm:"not null" json:"quantity"`
	UnitPriceAtPurchase decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"unit_price_at_purchase"`
	CreatedAt           time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
}

// 小計
func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPriceAtPurchase.Mul(decimal.NewFromInt(l.Quantity))
}
