package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 配送先（3つとも必須）
type ShippingAddress struct {
	City        string `gorm:"column:shipping_city;type:varchar(255);not null" json:"city"`
	Street      string `gorm:"column:shipping_street;type:varchar(255);not null" json:"street"`
	HouseNumber string `gorm:"column:shipping_house_number;type:varchar(50);not null" json:"house_number"`
}

// 注文ヘッダ。作成後は更新しない
type Order struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      int64           `gorm:"not null;index" json:"user_id"`
	TotalAmount decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total_amount"`
	Shipping    ShippingAddress `gorm:"embedded" json:"shipping"`
	//nilなら冪等キーなし
	IdempotencyKey *string   `gorm:"type:varchar(255)" json:"-"`
	CreatedAt      time.Time `gorm:"not null" json:"created_at"`
}
