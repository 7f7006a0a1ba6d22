package usecase

import (
	"context"
	"time"

	repo "checkout-engine/internal/repository"

	"github.com/shopspring/decimal"
)

// スナップショットの1行。UnitPriceはカート追加時点の価格
type SnapshotLine struct {
	ProductID   int64
	ProductName string
	Quantity    int64
	UnitPrice   decimal.Decimal
}

func (l SnapshotLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(l.Quantity))
}

// CartSnapshot はある時点のカートの読み取り専用コピー。
// 注文に入るのはライブのカートではなくこちら
type CartSnapshot struct {
	userID  int64
	lines   []SnapshotLine
	takenAt time.Time
}

func NewCartSnapshot(userID int64, lines []SnapshotLine, takenAt time.Time) CartSnapshot {
	cp := make([]SnapshotLine, len(lines))
	copy(cp, lines)
	return CartSnapshot{userID: userID, lines: cp, takenAt: takenAt}
}

// カートを追加順に読んでスナップショットにする
func TakeSnapshot(ctx context.Context, carts repo.CartRepository, userID int64, now time.Time) (CartSnapshot, error) {
	rows, err := carts.ListWithProduct(ctx, userID)
	if err != nil {
		return CartSnapshot{}, err
	}

	lines := make([]SnapshotLine, 0, len(rows))
	for _, r := range rows {
		lines = append(lines, SnapshotLine{
			ProductID:   r.ProductID,
			ProductName: r.ProductName,
			Quantity:    r.Quantity,
			UnitPrice:   r.UnitPrice,
		})
	}
	return CartSnapshot{userID: userID, lines: lines, takenAt: now}, nil
}

func (s CartSnapshot) UserID() int64      { return s.userID }
func (s CartSnapshot) TakenAt() time.Time { return s.takenAt }
func (s CartSnapshot) IsEmpty() bool      { return len(s.lines) == 0 }
func (s CartSnapshot) Len() int           { return len(s.lines) }

// 呼び出し側が書き換えても影響しないようにコピーを返す
func (s CartSnapshot) Lines() []SnapshotLine {
	out := make([]SnapshotLine, len(s.lines))
	copy(out, s.lines)
	return out
}

// Σ quantity × unit price
func (s CartSnapshot) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range s.lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

func (s CartSnapshot) ProductIDs() []int64 {
	ids := make([]int64, 0, len(s.lines))
	for _, l := range s.lines {
		ids = append(ids, l.ProductID)
	}
	return ids
}
