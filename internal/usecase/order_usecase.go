package usecase

import (
	"context"
	"errors"
	"time"

	"checkout-engine/internal/domain/model"
	repo "checkout-engine/internal/repository"

	"github.com/shopspring/decimal"
)

type OrderUsecase struct {
	tx repo.TransactionManager
}

func NewOrderUsecase(tx repo.TransactionManager) *OrderUsecase {
	return &OrderUsecase{tx: tx}
}

type OrderLineOutput struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int64           `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type OrderOutput struct {
	ID          int64                 `json:"id"`
	UserID      int64                 `json:"user_id"`
	TotalAmount decimal.Decimal       `json:"total_amount"`
	Shipping    model.ShippingAddress `json:"shipping"`
	CreatedAt   time.Time             `json:"created_at"`
	Lines       []OrderLineOutput     `json:"lines"`
}

type OrderListOutput struct {
	Items []OrderOutput `json:"items"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

// 自分の注文一覧（新しい順、明細つき）
func (u *OrderUsecase) ListMyOrders(ctx context.Context, userID int64, page int, limit int) (OrderListOutput, error) {
	if userID <= 0 {
		return OrderListOutput{}, errUnauthorized
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 50
	}

	out := OrderListOutput{Items: []OrderOutput{}, Page: page, Limit: limit}

	//ヘッダと明細を同じスナップショットで読む
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, total, err := r.Orders().ListByUserID(ctx, userID, page, limit)
		if err != nil {
			return err
		}
		out.Total = total

		for _, o := range orders {
			lines, err := r.OrderLines().ListByOrderID(ctx, o.ID)
			if err != nil {
				return err
			}
			out.Items = append(out.Items, ToOrderOutput(o, lines))
		}
		return nil
	})
	if err != nil {
		return OrderListOutput{}, err
	}
	return out, nil
}

func (u *OrderUsecase) GetMyOrder(ctx context.Context, userID int64, orderID int64) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, errUnauthorized
	}
	if orderID <= 0 {
		return OrderOutput{}, &model.ValidationError{Field: "id", Reason: "must be positive"}
	}

	var out OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return errNotFound
		}
		if err != nil {
			return err
		}
		if o.UserID != userID {
			//他人の注文は「存在しない扱い」にする
			return errNotFound
		}

		lines, err := r.OrderLines().ListByOrderID(ctx, orderID)
		if err != nil {
			return err
		}

		out = ToOrderOutput(o, lines)
		return nil
	})
	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

func ToOrderOutput(o model.Order, lines []model.OrderLine) OrderOutput {
	outLines := make([]OrderLineOutput, 0, len(lines))
	for _, l := range lines {
		outLines = append(outLines, OrderLineOutput{
			ProductID: l.ProductID,
			Name:      l.ProductName,
			UnitPrice: l.UnitPriceAtPurchase,
			Quantity:  l.Quantity,
			Subtotal:  l.Subtotal(),
		})
	}

	return OrderOutput{
		ID:          o.ID,
		UserID:      o.UserID,
		TotalAmount: o.TotalAmount,
		Shipping:    o.Shipping,
		CreatedAt:   o.CreatedAt,
		Lines:       outLines,
	}
}
