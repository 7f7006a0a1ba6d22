package usecase_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"checkout-engine/internal/domain/model"
	"checkout-engine/internal/metrics"
	repo "checkout-engine/internal/repository"
	"checkout-engine/internal/repository/repotest"
	"checkout-engine/internal/usecase"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var moscow = model.ShippingAddress{City: "Moscow", Street: "Lenina", HouseNumber: "5"}

type fixture struct {
	store     *repotest.Store
	carts     *usecase.CartUsecase
	orders    *usecase.OrderUsecase
	inventory *usecase.InventoryUsecase
	checkout  *usecase.CheckoutCoordinator

	mu          sync.Mutex
	transitions []usecase.CheckoutState
}

func newFixture(t *testing.T, opts ...usecase.CoordinatorOption) *fixture {
	t.Helper()
	return newFixtureWithTx(t, nil, opts...)
}

// txがnilならstoreをそのまま使う
func newFixtureWithTx(t *testing.T, tx repo.TransactionManager, opts ...usecase.CoordinatorOption) *fixture {
	t.Helper()

	f := &fixture{store: repotest.NewStore()}
	if tx == nil {
		tx = f.store
	}
	repos := f.store.Repos()

	base := []usecase.CoordinatorOption{
		usecase.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		usecase.WithMetrics(metrics.NewCheckoutMetrics(nil)),
		usecase.WithTransitionHook(func(_ int64, _, to usecase.CheckoutState) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.transitions = append(f.transitions, to)
		}),
	}

	f.carts = usecase.NewCartUsecase(repos.Carts(), repos.Products())
	f.orders = usecase.NewOrderUsecase(tx)
	f.inventory = usecase.NewInventoryUsecase(tx)
	f.checkout = usecase.NewCheckoutCoordinator(tx, repos, usecase.NewOrderWriter(""), append(base, opts...)...)
	return f
}

func (f *fixture) product(t *testing.T, id int64, name string, price int64, stock int64) {
	t.Helper()
	f.store.PutProduct(model.Product{ID: id, Name: name, Price: decimal.NewFromInt(price), Stock: stock})
}

func (f *fixture) add(t *testing.T, userID, productID, qty int64) {
	t.Helper()
	_, err := f.carts.AddToCart(context.Background(), userID, usecase.AddCartInput{ProductID: productID, Quantity: qty})
	require.NoError(t, err)
}

func (f *fixture) stock(t *testing.T, productID int64) int64 {
	t.Helper()
	p, ok := f.store.Product(productID)
	require.True(t, ok)
	return p.Stock
}

func (f *fixture) states() []usecase.CheckoutState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]usecase.CheckoutState(nil), f.transitions...)
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func assertDec(t *testing.T, want int64, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, got.Equal(dec(want)), "want %d, got %s", want, got.String())
}

func mustDec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}
