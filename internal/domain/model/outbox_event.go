package model

import "time"

const (
	TopicOrders          = "orders"
	EventTypeOrderPlaced = "order.placed"
)

// コミットと同じTxで書くイベント。relayがKafkaへ送る
type OutboxEvent struct {
	ID        int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	EventID   string     `gorm:"type:uuid;not null;uniqueIndex" json:"event_id"`
	Type      string     `gorm:"type:varchar(100);not null" json:"type"`
	Topic     string     `gorm:"type:varchar(255);not null" json:"topic"`
	Key       string     `gorm:"type:varchar(255);not null" json:"key"`
	Payload   string     `gorm:"type:jsonb;not null" json:"payload"` // JSON文字列
	CreatedAt time.Time  `gorm:"not null" json:"created_at"`
	SentAt    *time.Time `gorm:"index" json:"sent_at"`
}

// order.placedの中身
type OrderPlacedPayload struct {
	OrderID     int64             `json:"order_id"`
	UserID      int64             `json:"user_id"`
	TotalAmount string            `json:"total_amount"`
	Lines       []OrderPlacedLine `json:"lines"`
	CreatedAt   time.Time         `json:"created_at"`
}

type OrderPlacedLine struct {
	ProductID int64  `json:"product_id"`
	Quantity  int64  `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}
