package repository

import (
	"context"
	"time"

	"checkout-engine/internal/domain/model"
	repo "checkout-engine/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CartGormRepository struct {
	db *gorm.DB
}

// DI
func NewCartGormRepository(db *gorm.DB) *CartGormRepository {
	return &CartGormRepository{db: db}
}

type cartLineRow struct {
	ID          int64
	UserID      int64
	ProductID   int64
	Quantity    int64
	UnitPrice   decimal.Decimal
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ProductName string
}

// カート明細を商品名つきで追加順に取得
func (r *CartGormRepository) ListWithProduct(ctx context.Context, userID int64) ([]repo.CartLineView, error) {
	var rows []cartLineRow

	err := r.db.WithContext(ctx).
		Table("cart_lines").
		Select("cart_lines.id, cart_lines.user_id, cart_lines.product_id, cart_lines.quantity, cart_lines.unit_price, " +
			"cart_lines.created_at, cart_lines.updated_at, products.name AS product_name").
		Joins("JOIN products ON products.id = cart_lines.product_id").
		Where("cart_lines.user_id = ?", userID).
		Order("cart_lines.id asc").
		Scan(&rows).Error
	if err != nil {
		return []repo.CartLineView{}, wrapErr("list cart lines", err)
	}

	out := make([]repo.CartLineView, 0, len(rows))
	for _, row := range rows {
		out = append(out, repo.CartLineView{
			CartLine: model.CartLine{
				ID:        row.ID,
				UserID:    row.UserID,
				ProductID: row.ProductID,
				Quantity:  row.Quantity,
				UnitPrice: row.UnitPrice,
				CreatedAt: row.CreatedAt,
				UpdatedAt: row.UpdatedAt,
			},
			ProductName: row.ProductName,
		})
	}
	return out, nil
}

// 同一商品は数量加算（INSERT ... ON CONFLICT DO UPDATE）
// 価格は最初に入れたときのまま
func (r *CartGormRepository) Upsert(ctx context.Context, userID int64, productID int64, addQty int64, unitPrice decimal.Decimal) (model.CartLine, error) {
	if addQty <= 0 {
		return model.CartLine{}, &model.ValidationError{Field: "quantity", Reason: "must be positive"}
	}

	now := time.Now()
	line := model.CartLine{
		UserID:    userID,
		ProductID: productID,
		Quantity:  addQty,
		UnitPrice: unitPrice,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "product_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"quantity":   gorm.Expr("cart_lines.quantity + EXCLUDED.quantity"),
				"updated_at": now,
			}),
		}).
		Create(&line).Error
	if err != nil {
		return model.CartLine{}, wrapErr("upsert cart line", err)
	}

	//加算後の値を読み直す
	var current model.CartLine
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Take(&current).Error; err != nil {
		return model.CartLine{}, wrapErr("reload cart line", err)
	}
	return current, nil
}

// 明細を削除
func (r *CartGormRepository) DeleteLine(ctx context.Context, userID int64, productID int64) error {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Delete(&model.CartLine{})

	if res.Error != nil {
		return wrapErr("delete cart line", res.Error)
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// 注文した商品の明細だけ消す
func (r *CartGormRepository) DeleteProducts(ctx context.Context, userID int64, productIDs []int64) (int64, error) {
	if len(productIDs) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND product_id IN ?", userID, productIDs).
		Delete(&model.CartLine{})
	if res.Error != nil {
		return 0, wrapErr("delete cart lines", res.Error)
	}
	return res.RowsAffected, nil
}

// ユーザーの明細を全削除
func (r *CartGormRepository) Clear(ctx context.Context, userID int64) error {
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&model.CartLine{}).Error; err != nil {
		return wrapErr("clear cart", err)
	}
	return nil
}
