package usecase_test

import (
	"context"
	"time"

	"checkout-engine/internal/domain/model"
	repo "checkout-engine/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// =====================
// TxManager / TxRepos mocks
// =====================

// TxManagerMock は WithinTx の中で渡す repos を固定して unit テストを回す
type TxManagerMock struct {
	mock.Mock
	Repos repo.TxRepos
}

func (m *TxManagerMock) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	m.Called(ctx)
	return fn(m.Repos)
}

type TxReposMock struct {
	orders     *OrderRepoMock
	orderLines *OrderLineRepoMock
	carts      *CartRepoMock
	inventory  *InventoryMock
	outbox     *OutboxRepoMock
}

func newTxReposMock() *TxReposMock {
	return &TxReposMock{
		orders:     &OrderRepoMock{},
		orderLines: &OrderLineRepoMock{},
		carts:      &CartRepoMock{},
		inventory:  &InventoryMock{},
		outbox:     &OutboxRepoMock{},
	}
}

func (r *TxReposMock) Orders() repo.OrderRepository         { return r.orders }
func (r *TxReposMock) OrderLines() repo.OrderLineRepository { return r.orderLines }
func (r *TxReposMock) Carts() repo.CartRepository           { return r.carts }
func (r *TxReposMock) Inventory() repo.InventoryLedger      { return r.inventory }
func (r *TxReposMock) Outbox() repo.OutboxRepository        { return r.outbox }

// OrderWriterでは使わない
func (r *TxReposMock) Products() repo.ProductRepository { return nil }

// =====================
// Repository mocks
// =====================

type OrderRepoMock struct{ mock.Mock }

func (m *OrderRepoMock) FindByID(ctx context.Context, orderID int64) (model.Order, error) {
	args := m.Called(ctx, orderID)
	o, _ := args.Get(0).(model.Order)
	return o, args.Error(1)
}

func (m *OrderRepoMock) ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error) {
	args := m.Called(ctx, userID, page, limit)
	orders, _ := args.Get(0).([]model.Order)
	return orders, args.Get(1).(int64), args.Error(2)
}

func (m *OrderRepoMock) Create(ctx context.Context, order model.Order) (int64, error) {
	args := m.Called(ctx, order)
	return args.Get(0).(int64), args.Error(1)
}

func (m *OrderRepoMock) FindByIdempotencyKey(ctx context.Context, userID int64, key string) (model.Order, bool, error) {
	args := m.Called(ctx, userID, key)
	o, _ := args.Get(0).(model.Order)
	return o, args.Bool(1), args.Error(2)
}

type OrderLineRepoMock struct{ mock.Mock }

func (m *OrderLineRepoMock) CreateBulk(ctx context.Context, orderID int64, lines []model.OrderLine) error {
	args := m.Called(ctx, orderID, lines)
	return args.Error(0)
}

func (m *OrderLineRepoMock) ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderLine, error) {
	args := m.Called(ctx, orderID)
	lines, _ := args.Get(0).([]model.OrderLine)
	return lines, args.Error(1)
}

type CartRepoMock struct{ mock.Mock }

func (m *CartRepoMock) ListWithProduct(ctx context.Context, userID int64) ([]repo.CartLineView, error) {
	args := m.Called(ctx, userID)
	rows, _ := args.Get(0).([]repo.CartLineView)
	return rows, args.Error(1)
}

func (m *CartRepoMock) Upsert(ctx context.Context, userID int64, productID int64, addQty int64, unitPrice decimal.Decimal) (model.CartLine, error) {
	args := m.Called(ctx, userID, productID, addQty, unitPrice)
	l, _ := args.Get(0).(model.CartLine)
	return l, args.Error(1)
}

func (m *CartRepoMock) DeleteLine(ctx context.Context, userID int64, productID int64) error {
	return m.Called(ctx, userID, productID).Error(0)
}

func (m *CartRepoMock) DeleteProducts(ctx context.Context, userID int64, productIDs []int64) (int64, error) {
	args := m.Called(ctx, userID, productIDs)
	return args.Get(0).(int64), args.Error(1)
}

func (m *CartRepoMock) Clear(ctx context.Context, userID int64) error {
	return m.Called(ctx, userID).Error(0)
}

type InventoryMock struct{ mock.Mock }

func (m *InventoryMock) TryReserve(ctx context.Context, productID int64, qty int64) (repo.Reservation, error) {
	args := m.Called(ctx, productID, qty)
	r, _ := args.Get(0).(repo.Reservation)
	return r, args.Error(1)
}

func (m *InventoryMock) SetStock(ctx context.Context, adminUserID int64, productID int64, newStock int64, reason string) (model.InventoryAdjustment, error) {
	panic("not used in OrderWriter tests")
}

type OutboxRepoMock struct{ mock.Mock }

func (m *OutboxRepoMock) Insert(ctx context.Context, ev model.OutboxEvent) error {
	return m.Called(ctx, ev).Error(0)
}

func (m *OutboxRepoMock) FetchPending(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	panic("not used in OrderWriter tests")
}

func (m *OutboxRepoMock) MarkSent(ctx context.Context, id int64, sentAt time.Time) error {
	panic("not used in OrderWriter tests")
}
