package usecase

import (
	"context"
	"errors"
	"net/http"

	repo "checkout-engine/internal/repository"
	"checkout-engine/internal/validator"

	"github.com/shopspring/decimal"
)

// CartUsecase は /cart の業務ロジックです。
// 在庫はここでは見ない（確保は注文確定時）
type CartUsecase struct {
	carts    repo.CartRepository
	products repo.ProductRepository
}

func NewCartUsecase(carts repo.CartRepository, products repo.ProductRepository) *CartUsecase {
	return &CartUsecase{carts: carts, products: products}
}

// price は追加時点の価格
type CartItemOutput struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type CartOutput struct {
	Items []CartItemOutput `json:"items"`
	Total decimal.Decimal  `json:"total"`
}

type AddCartInput struct {
	ProductID int64
	Quantity  int64
}

func (u *CartUsecase) GetCart(ctx context.Context, userID int64) (CartOutput, error) {
	if userID <= 0 {
		return CartOutput{}, errUnauthorized
	}

	rows, err := u.carts.ListWithProduct(ctx, userID)
	if err != nil {
		return CartOutput{}, err
	}

	out := CartOutput{Items: make([]CartItemOutput, 0, len(rows)), Total: decimal.Zero}
	for _, r := range rows {
		sub := r.UnitPrice.Mul(decimal.NewFromInt(r.Quantity))
		out.Items = append(out.Items, CartItemOutput{
			ProductID: r.ProductID,
			Name:      r.ProductName,
			Price:     r.UnitPrice,
			Quantity:  r.Quantity,
			Subtotal:  sub,
		})
		out.Total = out.Total.Add(sub)
	}
	return out, nil
}

// 同一商品は数量加算。価格はカタログの現在値を保存
func (u *CartUsecase) AddToCart(ctx context.Context, userID int64, in AddCartInput) (CartOutput, error) {
	if userID <= 0 {
		return CartOutput{}, errUnauthorized
	}
	if err := validator.PositiveID("product_id", in.ProductID); err != nil {
		return CartOutput{}, err
	}
	if err := validator.Quantity(in.Quantity); err != nil {
		return CartOutput{}, err
	}

	p, err := u.products.FindByID(ctx, in.ProductID)
	if errors.Is(err, repo.ErrNotFound) {
		return CartOutput{}, NewHTTPError(http.StatusNotFound, "product not found")
	}
	if err != nil {
		return CartOutput{}, err
	}

	if _, err := u.carts.Upsert(ctx, userID, in.ProductID, in.Quantity, p.Price); err != nil {
		return CartOutput{}, err
	}
	return u.GetCart(ctx, userID)
}

func (u *CartUsecase) RemoveCartLine(ctx context.Context, userID int64, productID int64) (CartOutput, error) {
	if userID <= 0 {
		return CartOutput{}, errUnauthorized
	}
	if err := validator.PositiveID("product_id", productID); err != nil {
		return CartOutput{}, err
	}

	if err := u.carts.DeleteLine(ctx, userID, productID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return CartOutput{}, errNotFound
		}
		return CartOutput{}, err
	}
	return u.GetCart(ctx, userID)
}

func (u *CartUsecase) ClearCart(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return errUnauthorized
	}
	return u.carts.Clear(ctx, userID)
}
