package usecase_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"checkout-engine/internal/domain/model"
	"checkout-engine/internal/metrics"
	repo "checkout-engine/internal/repository"
	"checkout-engine/internal/repository/repotest"
	"checkout-engine/internal/usecase"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlaceOrder_Success_LastUnits(t *testing.T) {
	f := newFixture(t)
	f.product(t, 7, "Samovar", 500, 2)
	f.add(t, 1, 7, 2)

	r, err := f.checkout.PlaceOrder(context.Background(), 1, moscow, usecase.PlaceOrderOptions{})
	require.NoError(t, err)

	assert.NotZero(t, r.Order.ID)
	assertDec(t, 1000, r.Order.TotalAmount)
	assert.Equal(t, moscow, r.Order.Shipping)
	assert.Equal(t, []int64{7}, r.ClearedProductIDs)
	assert.False(t, r.Replayed)

	require.Len(t, r.Lines, 1)
	assert.Equal(t, int64(7), r.Lines[0].ProductID)
	assert.Equal(t, int64(2), r.Lines[0].Quantity)
	assert.Equal(t, "Samovar", r.Lines[0].ProductName)
	assertDec(t, 500, r.Lines[0].UnitPriceAtPurchase)

	assert.Equal(t, int64(0), f.stock(t, 7))
	assert.Empty(t, f.store.CartLines(1))
	assert.Len(t, f.store.OrderLines(r.Order.ID), 1)

	evs := f.store.OutboxEvents()
	require.Len(t, evs, 1)
	assert.Equal(t, model.EventTypeOrderPlaced, evs[0].Type)
	assert.Equal(t, model.TopicOrders, evs[0].Topic)
	assert.Contains(t, evs[0].Payload, `"total_amount":"1000.00"`)

	assert.Equal(t, []usecase.CheckoutState{
		usecase.StateValidating, usecase.StatePlacing, usecase.StateSucceeded,
	}, f.states())
}

func TestPlaceOrder_InsufficientStock_ChangesNothing(t *testing.T) {
	f := newFixture(t)
	f.product(t, 7, "Samovar", 500, 1)
	f.add(t, 1, 7, 2)

	_, err := f.checkout.PlaceOrder(context.Background(), 1, moscow, usecase.PlaceOrderOptions{})
	require.Error(t, err)

	var ie *model.InsufficientStockError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, model.InsufficientStockError{ProductID: 7, Requested: 2, Available: 1}, *ie)

	assert.Equal(t, int64(1), f.stock(t, 7))
	assert.Empty(t, f.store.Orders())
	assert.Empty(t, f.store.AllOrderLines())
	assert.Empty(t, f.store.OutboxEvents())

	cart := f.store.CartLines(1)
	require.Len(t, cart, 1)
	assert.Equal(t, int64(2), cart[0].Quantity)

	assert.Equal(t, usecase.StateFailed, f.states()[len(f.states())-1])
}

// 2つ目の商品で失敗しても1つ目の減算は残らない
func TestPlaceOrder_PartialReservationRolledBack(t *testing.T) {
	f := newFixture(t)
	f.product(t, 3, "Tea", 100, 10)
	f.product(t, 7, "Samovar", 500, 0)
	f.add(t, 1, 3, 4)
	f.add(t, 1, 7, 1)

	_, err := f.checkout.PlaceOrder(context.Background(), 1, moscow, usecase.PlaceOrderOptions{})
	require.True(t, model.IsInsufficientStock(err))

	assert.Equal(t, int64(10), f.stock(t, 3))
	assert.Equal(t, int64(0), f.stock(t, 7))
	assert.Len(t, f.store.CartLines(1), 2)
	assert.Empty(t, f.store.Orders())
}

// スナップショットの後、Txの前に商品が消えたケース
func TestPlaceOrder_ProductRemovedBeforeReserve(t *testing.T) {
	store := repotest.NewStore()
	store.PutProduct(model.Product{ID: 3, Name: "Tea", Price: dec(100), Stock: 5})
	store.PutProduct(model.Product{ID: 7, Name: "Samovar", Price: dec(500), Stock: 5})
	racing := &racingTx{Store: store, before: func() { store.DeleteProduct(7) }}

	carts := usecase.NewCartUsecase(store.Repos().Carts(), store.Repos().Products())
	for _, id := range []int64{3, 7} {
		_, err := carts.AddToCart(context.Background(), 1, usecase.AddCartInput{ProductID: id, Quantity: 1})
		require.NoError(t, err)
	}

	checkout := usecase.NewCheckoutCoordinator(racing, store.Repos(), usecase.NewOrderWriter(""))
	_, err := checkout.PlaceOrder(context.Background(), 1, moscow, usecase.PlaceOrderOptions{})

	var ie *model.InsufficientStockError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, model.InsufficientStockError{ProductID: 7, Requested: 1, Available: 0}, *ie)

	p, _ := store.Product(3)
	assert.Equal(t, int64(5), p.Stock)
	assert.Empty(t, store.Orders())
}

func TestPlaceOrder_Validation(t *testing.T) {
	cases := []struct {
		name   string
		userID int64
		addr   model.ShippingAddress
		key    string
		field  string
	}{
		{"blank city", 1, model.ShippingAddress{City: "  ", Street: "Lenina", HouseNumber: "5"}, "", "city"},
		{"blank street", 1, model.ShippingAddress{City: "Moscow", Street: "", HouseNumber: "5"}, "", "street"},
		{"blank house", 1, model.ShippingAddress{City: "Moscow", Street: "Lenina", HouseNumber: "\t"}, "", "house_number"},
		{"long house", 1, model.ShippingAddress{City: "Moscow", Street: "Lenina", HouseNumber: strings.Repeat("5", 51)}, "", "house_number"},
		{"no user", 0, moscow, "", "user_id"},
		{"long key", 1, moscow, strings.Repeat("k", 256), "idempotency_key"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.product(t, 7, "Samovar", 500, 2)
			f.add(t, 1, 7, 2)
			//ストレージに触れたらこのエラーが出る
			f.store.FailNext("carts.ListWithProduct", errors.New("storage touched"))

			_, err := f.checkout.PlaceOrder(context.Background(), tc.userID, tc.addr, usecase.PlaceOrderOptions{IdempotencyKey: tc.key})

			var ve *model.ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tc.field, ve.Field)
			assert.Equal(t, int64(2), f.stock(t, 7))
			assert.Empty(t, f.store.Orders())
			assert.Equal(t, []usecase.CheckoutState{usecase.StateValidating, usecase.StateFailed}, f.states())
		})
	}
}

func TestPlaceOrder_TrimsAddress(t *testing.T) {
	f := newFixture(t)
	f.product(t, 7, "Samovar", 500, 2)
	f.add(t, 1, 7, 1)

	r, err := f.checkout.PlaceOrder(context.Background(), 1,
		model.ShippingAddress{City: " Moscow ", Street: "Lenina\n", HouseNumber: " 5"}, usecase.PlaceOrderOptions{})
	require.NoError(t, err)
	assert.Equal(t, moscow, r.Order.Shipping)
}

func TestPlaceOrder_EmptyCart(t *testing.T) {
	f := newFixture(t)
	//Txを開いたらcommitで失敗させる
	f.store.FailNext("commit", errors.New("tx opened"))

	_, err := f.checkout.PlaceOrder(context.Background(), 1, moscow, usecase.PlaceOrderOptions{})

	var ve *model.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "cart", ve.Field)
	assert.Equal(t, []usecase.CheckoutState{
		usecase.StateValidating, usecase.StatePlacing, usecase.StateFailed,
	}, f.states())
}

func TestPlaceOrder_StorageFailure_ChangesNothing(t *testing.T) {
	cases := []struct {
		name      string
		op        string
		err       error
		transient bool
	}{
		{"transient on lines", "orderLines.CreateBulk", &model.StorageError{Op: "create order lines", Transient: true, Err: errors.New("deadlock detected")}, true},
		{"fatal on outbox", "outbox.Insert", &model.StorageError{Op: "insert outbox event", Err: errors.New("disk full")}, false},
		{"unclassified on commit", "commit", errors.New("connection reset"), false},
		{"deadline on cart delete", "carts.DeleteProducts", context.DeadlineExceeded, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.product(t, 7, "Samovar", 500, 2)
			f.add(t, 1, 7, 2)
			f.store.FailNext(tc.op, tc.err)

			_, err := f.checkout.PlaceOrder(context.Background(), 1, moscow, usecase.PlaceOrderOptions{})

			var se *model.StorageError
			require.True(t, errors.As(err, &se), "got %v", err)
			assert.Equal(t, tc.transient, model.IsTransient(err))

			assert.Equal(t, int64(2), f.stock(t, 7))
			assert.Empty(t, f.store.Orders())
			assert.Empty(t, f.store.AllOrderLines())
			assert.Empty(t, f.store.OutboxEvents())
			assert.Len(t, f.store.CartLines(1), 1)
		})
	}
}

func TestPlaceOrder_ConcurrentBuyersOfLastUnit(t *testing.T) {
	f := newFixture(t)
	f.product(t, 7, "Samovar", 500, 1)
	f.add(t, 1, 7, 1)
	f.add(t, 2, 7, 1)

	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, 2)
	)
	for i, userID := range []int64{1, 2} {
		wg.Add(1)
		go func(i int, userID int64) {
			defer wg.Done()
			<-start
			_, errs[i] = f.checkout.PlaceOrder(context.Background(), userID, moscow, usecase.PlaceOrderOptions{})
		}(i, userID)
	}
	close(start)
	wg.Wait()

	succeeded, outOfStock := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case model.IsInsufficientStock(err):
			outOfStock++
			var ie *model.InsufficientStockError
			require.True(t, errors.As(err, &ie))
			assert.Equal(t, model.InsufficientStockError{ProductID: 7, Requested: 1, Available: 0}, *ie)
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, outOfStock)
	assert.Equal(t, int64(0), f.stock(t, 7))
	assert.Len(t, f.store.Orders(), 1)

	//負けた方のカートはそのまま
	loser := int64(1)
	if errs[1] != nil {
		loser = 2
	}
	assert.Len(t, f.store.CartLines(loser), 1)
}

func TestPlaceOrder_RetryAfterInsufficientStock(t *testing.T) {
	f := newFixture(t)
	f.product(t, 7, "Samovar", 500, 1)
	f.add(t, 1, 7, 2)
	ctx := context.Background()

	_, err := f.checkout.PlaceOrder(ctx, 1, moscow, usecase.PlaceOrderOptions{})
	require.True(t, model.IsInsufficientStock(err))

	t.Run("after reducing quantity", func(t *testing.T) {
		_, err := f.carts.RemoveCartLine(ctx, 1, 7)
		require.NoError(t, err)
		f.add(t, 1, 7, 1)

		r, err := f.checkout.PlaceOrder(ctx, 1, moscow, usecase.PlaceOrderOptions{})
		require.NoError(t, err)
		assertDec(t, 500, r.Order.TotalAmount)
		assert.Equal(t, int64(0), f.stock(t, 7))
	})

	t.Run("after restock", func(t *testing.T) {
		f.add(t, 1, 7, 2)
		_, err := f.checkout.PlaceOrder(ctx, 1, moscow, usecase.PlaceOrderOptions{})
		require.True(t, model.IsInsufficientStock(err))

		_, err = f.inventory.SetStock(ctx, 99, 7, usecase.SetStockInput{Stock: 5, Reason: "delivery"})
		require.NoError(t, err)

		r, err := f.checkout.PlaceOrder(ctx, 1, moscow, usecase.PlaceOrderOptions{})
		require.NoError(t, err)
		assertDec(t, 1000, r.Order.TotalAmount)
		assert.Equal(t, int64(3), f.stock(t, 7))
	})
}

func TestPlaceOrder_HistoricalPricing(t *testing.T) {
	f := newFixture(t)
	f.product(t, 7, "Samovar", 500, 5)
	f.add(t, 1, 7, 2)
	ctx := context.Background()

	//カートに入れた後の値上げは反映しない
	f.store.SetPrice(7, dec(800))

	r, err := f.checkout.PlaceOrder(ctx, 1, moscow, usecase.PlaceOrderOptions{})
	require.NoError(t, err)
	assertDec(t, 1000, r.Order.TotalAmount)

	//注文後の値上げも過去の注文には影響しない
	f.store.SetPrice(7, dec(900))

	got, err := f.orders.GetMyOrder(ctx, 1, r.Order.ID)
	require.NoError(t, err)
	assertDec(t, 1000, got.TotalAmount)
	require.Len(t, got.Lines, 1)
	assertDec(t, 500, got.Lines[0].UnitPrice)

	//新しいカートは新しい価格
	f.add(t, 1, 7, 1)
	r2, err := f.checkout.PlaceOrder(ctx, 1, moscow, usecase.PlaceOrderOptions{})
	require.NoError(t, err)
	assertDec(t, 900, r2.Order.TotalAmount)
}

func TestPlaceOrder_OnlyOrderedProductsLeaveCart(t *testing.T) {
	f := newFixture(t)
	f.product(t, 3, "Tea", 100, 10)
	f.product(t, 7, "Samovar", 500, 10)
	f.add(t, 1, 3, 1)
	f.add(t, 2, 7, 1)

	_, err := f.checkout.PlaceOrder(context.Background(), 1, moscow, usecase.PlaceOrderOptions{})
	require.NoError(t, err)

	assert.Empty(t, f.store.CartLines(1))
	assert.Len(t, f.store.CartLines(2), 1)
}

func TestPlaceOrder_IdempotentReplay(t *testing.T) {
	f := newFixture(t)
	f.product(t, 7, "Samovar", 500, 5)
	f.add(t, 1, 7, 2)
	ctx := context.Background()
	opts := usecase.PlaceOrderOptions{IdempotencyKey: "k-1"}

	first, err := f.checkout.PlaceOrder(ctx, 1, moscow, opts)
	require.NoError(t, err)

	f.add(t, 1, 7, 1)
	second, err := f.checkout.PlaceOrder(ctx, 1, moscow, opts)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Len(t, second.Lines, 1)
	assert.Equal(t, int64(3), f.stock(t, 7))
	assert.Len(t, f.store.CartLines(1), 1)
	assert.Len(t, f.store.Orders(), 1)

	//キーは利用者ごと
	f.add(t, 2, 7, 1)
	other, err := f.checkout.PlaceOrder(ctx, 2, moscow, opts)
	require.NoError(t, err)
	assert.False(t, other.Replayed)
	assert.NotEqual(t, first.Order.ID, other.Order.ID)
}

// 冪等キー検索とTxの間に同じキーの注文が入ったケース
func TestPlaceOrder_IdempotencyConflictResolvedByReread(t *testing.T) {
	store := repotest.NewStore()
	var once sync.Once
	racing := &racingTx{Store: store}
	racing.before = func() {
		once.Do(func() {
			key := "k-1"
			_, err := store.Repos().Orders().Create(context.Background(), model.Order{
				UserID: 1, TotalAmount: dec(500), Shipping: moscow, IdempotencyKey: &key,
			})
			require.NoError(t, err)
		})
	}

	store.PutProduct(model.Product{ID: 7, Name: "Samovar", Price: dec(500), Stock: 5})
	carts := usecase.NewCartUsecase(store.Repos().Carts(), store.Repos().Products())
	_, err := carts.AddToCart(context.Background(), 1, usecase.AddCartInput{ProductID: 7, Quantity: 1})
	require.NoError(t, err)

	checkout := usecase.NewCheckoutCoordinator(racing, store.Repos(), usecase.NewOrderWriter(""))
	r, err := checkout.PlaceOrder(context.Background(), 1, moscow, usecase.PlaceOrderOptions{IdempotencyKey: "k-1"})
	require.NoError(t, err)

	assert.True(t, r.Replayed)
	assert.Len(t, store.Orders(), 1)
	p, _ := store.Product(7)
	assert.Equal(t, int64(5), p.Stock)
	assert.Len(t, store.CartLines(1), 1)
}

func TestPlaceOrder_Metrics(t *testing.T) {
	m := metrics.NewCheckoutMetrics(nil)
	f := newFixture(t, usecase.WithMetrics(m))
	f.product(t, 7, "Samovar", 500, 1)
	f.add(t, 1, 7, 2)
	ctx := context.Background()

	_, _ = f.checkout.PlaceOrder(ctx, 1, model.ShippingAddress{}, usecase.PlaceOrderOptions{})
	_, _ = f.checkout.PlaceOrder(ctx, 1, moscow, usecase.PlaceOrderOptions{})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Attempts.WithLabelValues("validation")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Attempts.WithLabelValues("insufficient_stock")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Attempts.WithLabelValues("succeeded")))
}

// WithinTxの直前にbeforeを差し込む
type racingTx struct {
	*repotest.Store
	before func()
}

func (r *racingTx) WithinTx(ctx context.Context, fn func(repo.TxRepos) error) error {
	if r.before != nil {
		r.before()
	}
	return r.Store.WithinTx(ctx, fn)
}
