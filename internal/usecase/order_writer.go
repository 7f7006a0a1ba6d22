package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"checkout-engine/internal/domain/model"
	repo "checkout-engine/internal/repository"

	"github.com/google/uuid"
)

type WriteInput struct {
	UserID         int64
	Snapshot       CartSnapshot
	Address        model.ShippingAddress
	IdempotencyKey string
}

// OrderWriter はスナップショットを1つのTxで注文に変える。
// どこかで失敗したらWithinTxがrollbackするので、部分的な書き込みは残らない
type OrderWriter struct {
	topic      string
	now        func() time.Time
	newEventID func() string
}

// topicが空ならorders
func NewOrderWriter(topic string) *OrderWriter {
	if topic == "" {
		topic = model.TopicOrders
	}
	return &OrderWriter{topic: topic, now: time.Now, newEventID: uuid.NewString}
}

// rは必ずWithinTxから渡されたもの
func (w *OrderWriter) Write(ctx context.Context, r repo.TxRepos, in WriteInput) (model.Order, []model.OrderLine, error) {
	snap := in.Snapshot
	if snap.IsEmpty() {
		return model.Order{}, nil, &model.ValidationError{Field: "cart", Reason: "empty"}
	}

	//1. 合計はサーバー側で計算
	total := snap.Total()
	now := w.now()

	//2. 注文ヘッダ
	order := model.Order{
		UserID:      in.UserID,
		TotalAmount: total,
		Shipping:    in.Address,
		CreatedAt:   now,
	}
	if in.IdempotencyKey != "" {
		key := in.IdempotencyKey
		order.IdempotencyKey = &key
	}
	orderID, err := r.Orders().Create(ctx, order)
	if err != nil {
		return model.Order{}, nil, err
	}
	order.ID = orderID

	//3. 在庫確保。ロック順をそろえるため商品ID昇順
	lines := snap.Lines()
	byProduct := make([]SnapshotLine, len(lines))
	copy(byProduct, lines)
	sort.Slice(byProduct, func(i, j int) bool { return byProduct[i].ProductID < byProduct[j].ProductID })

	for _, l := range byProduct {
		if _, err := r.Inventory().TryReserve(ctx, l.ProductID, l.Quantity); err != nil {
			return model.Order{}, nil, err
		}
	}

	//4. 明細。価格はスナップショットのまま
	orderLines := make([]model.OrderLine, 0, len(lines))
	for _, l := range lines {
		orderLines = append(orderLines, model.OrderLine{
			ProductID:           l.ProductID,
			ProductName:         l.ProductName,
			Quantity:            l.Quantity,
			UnitPriceAtPurchase: l.UnitPrice,
			CreatedAt:           now,
		})
	}
	if err := r.OrderLines().CreateBulk(ctx, orderID, orderLines); err != nil {
		return model.Order{}, nil, err
	}

	//5. 注文した商品だけカートから消す
	if _, err := r.Carts().DeleteProducts(ctx, in.UserID, snap.ProductIDs()); err != nil {
		return model.Order{}, nil, err
	}

	//6. 同じTxでイベントを積む
	ev, err := w.orderPlacedEvent(order, orderLines)
	if err != nil {
		return model.Order{}, nil, err
	}
	if err := r.Outbox().Insert(ctx, ev); err != nil {
		return model.Order{}, nil, err
	}

	return order, orderLines, nil
}

func (w *OrderWriter) orderPlacedEvent(o model.Order, lines []model.OrderLine) (model.OutboxEvent, error) {
	payload := model.OrderPlacedPayload{
		OrderID:     o.ID,
		UserID:      o.UserID,
		TotalAmount: o.TotalAmount.StringFixed(2),
		Lines:       make([]model.OrderPlacedLine, 0, len(lines)),
		CreatedAt:   o.CreatedAt,
	}
	for _, l := range lines {
		payload.Lines = append(payload.Lines, model.OrderPlacedLine{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPriceAtPurchase.StringFixed(2),
		})
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return model.OutboxEvent{}, fmt.Errorf("marshal order.placed: %w", err)
	}

	return model.OutboxEvent{
		EventID:   w.newEventID(),
		Type:      model.EventTypeOrderPlaced,
		Topic:     w.topic,
		Key:       strconv.FormatInt(o.ID, 10),
		Payload:   string(data),
		CreatedAt: o.CreatedAt,
	}, nil
}
