package repository

import (
	"context"

	repo "checkout-engine/internal/repository"

	"gorm.io/gorm"
)

type txReposGorm struct {
	orders     repo.OrderRepository
	orderLines repo.OrderLineRepository
	carts      repo.CartRepository
	inventory  repo.InventoryLedger
	products   repo.ProductRepository
	outbox     repo.OutboxRepository
}

func (r *txReposGorm) Orders() repo.OrderRepository         { return r.orders }
func (r *txReposGorm) OrderLines() repo.OrderLineRepository { return r.orderLines }
func (r *txReposGorm) Carts() repo.CartRepository           { return r.carts }
func (r *txReposGorm) Inventory() repo.InventoryLedger      { return r.inventory }
func (r *txReposGorm) Products() repo.ProductRepository     { return r.products }
func (r *txReposGorm) Outbox() repo.OutboxRepository        { return r.outbox }

func newRepos(db *gorm.DB) *txReposGorm {
	return &txReposGorm{
		orders:     NewOrderGormRepository(db),
		orderLines: NewOrderLineGormRepository(db),
		carts:      NewCartGormRepository(db),
		inventory:  NewInventoryGormRepository(db),
		products:   NewProductGormRepository(db),
		outbox:     NewOutboxGormRepository(db),
	}
}

// Tx外で使うrepo一式（読み取りやrelay用）。
// Inventory()はロックが意味を持たないのでWithinTxの中でだけ使うこと
func NewRepos(db *gorm.DB) repo.TxRepos {
	return newRepos(db)
}

type TxManagerGorm struct {
	db *gorm.DB
}

func NewTxManagerGorm(db *gorm.DB) *TxManagerGorm {
	return &TxManagerGorm{db: db}
}

// Postgresの既定（READ COMMITTED）で開始。在庫の直列化は行ロックで行う
func (tm *TxManagerGorm) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	err := tm.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		//repoはtxを持ったDBで作り直す
		return fn(newRepos(tx))
	})
	// begin/commitの失敗もStorageErrorにそろえる
	return passOrWrap("transaction", err)
}
