// Package repotest はテスト用のインメモリ実装。
// WithinTxは状態を複製して作業し、fnが成功したときだけ差し替える（失敗時は何も残らない）
package repotest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"checkout-engine/internal/domain/model"
	repo "checkout-engine/internal/repository"

	"github.com/shopspring/decimal"
)

type state struct {
	products    map[int64]model.Product
	cart        []model.CartLine
	orders      []model.Order
	orderLines  []model.OrderLine
	adjustments []model.InventoryAdjustment
	outbox      []model.OutboxEvent
	seq         int64
}

func (s *state) nextID() int64 {
	s.seq++
	return s.seq
}

func (s *state) clone() *state {
	cp := &state{
		products:    make(map[int64]model.Product, len(s.products)),
		cart:        append([]model.CartLine(nil), s.cart...),
		orders:      append([]model.Order(nil), s.orders...),
		orderLines:  append([]model.OrderLine(nil), s.orderLines...),
		adjustments: append([]model.InventoryAdjustment(nil), s.adjustments...),
		outbox:      append([]model.OutboxEvent(nil), s.outbox...),
		seq:         s.seq,
	}
	for k, v := range s.products {
		cp.products[k] = v
	}
	return cp
}

// Store は repo.TransactionManager を満たす。
// Txは1本ずつ直列に流れる（行ロックの代わり）
type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex
	st   *state

	fmu      sync.Mutex
	failures map[string]error

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		st:       &state{products: map[int64]model.Product{}},
		failures: map[string]error{},
		now:      time.Now,
	}
}

func (s *Store) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	return s.within(ctx, fn, true)
}

// explicitがfalseのとき（autocommit）は"commit"の失敗を当てない
func (s *Store) within(ctx context.Context, fn func(r repo.TxRepos) error, explicit bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	work := s.st.clone()
	s.mu.Unlock()

	if err := fn(&repos{s: s, run: func(f func(*state) error) error { return f(work) }}); err != nil {
		return err
	}

	if explicit {
		if err := s.fail("commit"); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.st = work
	s.mu.Unlock()
	return nil
}

// Tx外のrepo。呼び出しごとに1つのTxとして反映する
func (s *Store) Repos() repo.TxRepos {
	return &repos{s: s, run: s.autocommit}
}

func (s *Store) autocommit(f func(*state) error) error {
	return s.within(context.Background(), func(r repo.TxRepos) error {
		return r.(*repos).run(f)
	}, false)
}

// 次にopが呼ばれたとき一度だけerrを返す（"orders.Create"、"commit"など）
func (s *Store) FailNext(op string, err error) {
	s.fmu.Lock()
	defer s.fmu.Unlock()
	s.failures[op] = err
}

func (s *Store) fail(op string) error {
	s.fmu.Lock()
	defer s.fmu.Unlock()
	err, ok := s.failures[op]
	if !ok {
		return nil
	}
	delete(s.failures, op)
	return err
}

func (s *Store) read(f func(st *state)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f(s.st)
}

// テスト用の参照・操作

func (s *Store) PutProduct(p model.Product) model.Product {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == 0 {
		p.ID = s.st.nextID()
	} else if p.ID > s.st.seq {
		s.st.seq = p.ID
	}
	now := s.now()
	p.CreatedAt, p.UpdatedAt = now, now
	s.st.products[p.ID] = p
	return p
}

func (s *Store) DeleteProduct(productID int64) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.st.products, productID)
}

func (s *Store) SetPrice(productID int64, price decimal.Decimal) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.st.products[productID]
	p.Price = price
	s.st.products[productID] = p
}

func (s *Store) Product(id int64) (model.Product, bool) {
	var p model.Product
	var ok bool
	s.read(func(st *state) { p, ok = st.products[id] })
	return p, ok
}

func (s *Store) CartLines(userID int64) []model.CartLine {
	var out []model.CartLine
	s.read(func(st *state) {
		for _, l := range st.cart {
			if l.UserID == userID {
				out = append(out, l)
			}
		}
	})
	return out
}

func (s *Store) Orders() []model.Order {
	var out []model.Order
	s.read(func(st *state) { out = append(out, st.orders...) })
	return out
}

func (s *Store) OrderLines(orderID int64) []model.OrderLine {
	var out []model.OrderLine
	s.read(func(st *state) {
		for _, l := range st.orderLines {
			if l.OrderID == orderID {
				out = append(out, l)
			}
		}
	})
	return out
}

func (s *Store) AllOrderLines() []model.OrderLine {
	var out []model.OrderLine
	s.read(func(st *state) { out = append(out, st.orderLines...) })
	return out
}

func (s *Store) OutboxEvents() []model.OutboxEvent {
	var out []model.OutboxEvent
	s.read(func(st *state) { out = append(out, st.outbox...) })
	return out
}

func (s *Store) Adjustments() []model.InventoryAdjustment {
	var out []model.InventoryAdjustment
	s.read(func(st *state) { out = append(out, st.adjustments...) })
	return out
}

type repos struct {
	s   *Store
	run func(func(*state) error) error
}

func (r *repos) Orders() repo.OrderRepository         { return orderRepo{r} }
func (r *repos) OrderLines() repo.OrderLineRepository { return orderLineRepo{r} }
func (r *repos) Carts() repo.CartRepository           { return cartRepo{r} }
func (r *repos) Inventory() repo.InventoryLedger      { return inventoryRepo{r} }
func (r *repos) Products() repo.ProductRepository     { return productRepo{r} }
func (r *repos) Outbox() repo.OutboxRepository        { return outboxRepo{r} }

// op名の失敗を先に確認してからfを実行
func (r *repos) do(op string, f func(st *state) error) error {
	if err := r.s.fail(op); err != nil {
		return err
	}
	return r.run(f)
}

type productRepo struct{ r *repos }

func (p productRepo) FindByID(ctx context.Context, id int64) (model.Product, error) {
	var out model.Product
	err := p.r.do("products.FindByID", func(st *state) error {
		v, ok := st.products[id]
		if !ok {
			return repo.ErrNotFound
		}
		out = v
		return nil
	})
	return out, err
}

type inventoryRepo struct{ r *repos }

func (i inventoryRepo) TryReserve(ctx context.Context, productID int64, qty int64) (repo.Reservation, error) {
	if qty <= 0 {
		return repo.Reservation{}, &model.ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	var out repo.Reservation
	err := i.r.do("inventory.TryReserve", func(st *state) error {
		p, ok := st.products[productID]
		if !ok {
			return &model.InsufficientStockError{ProductID: productID, Requested: qty, Available: 0}
		}
		if p.Stock < qty {
			return &model.InsufficientStockError{ProductID: productID, Requested: qty, Available: p.Stock}
		}
		p.Stock -= qty
		st.products[productID] = p
		out = repo.Reservation{ProductID: productID, Quantity: qty, Remaining: p.Stock}
		return nil
	})
	return out, err
}

func (i inventoryRepo) SetStock(ctx context.Context, adminUserID int64, productID int64, newStock int64, reason string) (model.InventoryAdjustment, error) {
	if newStock < 0 {
		return model.InventoryAdjustment{}, &model.ValidationError{Field: "stock", Reason: "must be >= 0"}
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return model.InventoryAdjustment{}, &model.ValidationError{Field: "reason", Reason: "required"}
	}
	var out model.InventoryAdjustment
	err := i.r.do("inventory.SetStock", func(st *state) error {
		p, ok := st.products[productID]
		if !ok {
			return repo.ErrNotFound
		}
		out = model.InventoryAdjustment{
			ID:          st.nextID(),
			ProductID:   productID,
			AdminUserID: adminUserID,
			Delta:       newStock - p.Stock,
			Reason:      reason,
			CreatedAt:   i.r.s.now(),
		}
		p.Stock = newStock
		st.products[productID] = p
		st.adjustments = append(st.adjustments, out)
		return nil
	})
	return out, err
}

type cartRepo struct{ r *repos }

func (c cartRepo) ListWithProduct(ctx context.Context, userID int64) ([]repo.CartLineView, error) {
	out := []repo.CartLineView{}
	err := c.r.do("carts.ListWithProduct", func(st *state) error {
		for _, l := range st.cart {
			if l.UserID != userID {
				continue
			}
			p, ok := st.products[l.ProductID]
			if !ok {
				continue
			}
			out = append(out, repo.CartLineView{CartLine: l, ProductName: p.Name})
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (c cartRepo) Upsert(ctx context.Context, userID int64, productID int64, addQty int64, unitPrice decimal.Decimal) (model.CartLine, error) {
	if addQty <= 0 {
		return model.CartLine{}, &model.ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	var out model.CartLine
	err := c.r.do("carts.Upsert", func(st *state) error {
		now := c.r.s.now()
		for i, l := range st.cart {
			if l.UserID == userID && l.ProductID == productID {
				st.cart[i].Quantity += addQty
				st.cart[i].UpdatedAt = now
				out = st.cart[i]
				return nil
			}
		}
		out = model.CartLine{
			ID:        st.nextID(),
			UserID:    userID,
			ProductID: productID,
			Quantity:  addQty,
			UnitPrice: unitPrice,
			CreatedAt: now,
			UpdatedAt: now,
		}
		st.cart = append(st.cart, out)
		return nil
	})
	return out, err
}

func (c cartRepo) DeleteLine(ctx context.Context, userID int64, productID int64) error {
	return c.r.do("carts.DeleteLine", func(st *state) error {
		for i, l := range st.cart {
			if l.UserID == userID && l.ProductID == productID {
				st.cart = append(st.cart[:i:i], st.cart[i+1:]...)
				return nil
			}
		}
		return repo.ErrNotFound
	})
}

func (c cartRepo) DeleteProducts(ctx context.Context, userID int64, productIDs []int64) (int64, error) {
	want := make(map[int64]bool, len(productIDs))
	for _, id := range productIDs {
		want[id] = true
	}
	var n int64
	err := c.r.do("carts.DeleteProducts", func(st *state) error {
		kept := make([]model.CartLine, 0, len(st.cart))
		for _, l := range st.cart {
			if l.UserID == userID && want[l.ProductID] {
				n++
				continue
			}
			kept = append(kept, l)
		}
		st.cart = kept
		return nil
	})
	return n, err
}

func (c cartRepo) Clear(ctx context.Context, userID int64) error {
	return c.r.do("carts.Clear", func(st *state) error {
		kept := make([]model.CartLine, 0, len(st.cart))
		for _, l := range st.cart {
			if l.UserID != userID {
				kept = append(kept, l)
			}
		}
		st.cart = kept
		return nil
	})
}

type orderRepo struct{ r *repos }

func (o orderRepo) FindByID(ctx context.Context, orderID int64) (model.Order, error) {
	var out model.Order
	err := o.r.do("orders.FindByID", func(st *state) error {
		for _, v := range st.orders {
			if v.ID == orderID {
				out = v
				return nil
			}
		}
		return repo.ErrNotFound
	})
	return out, err
}

func (o orderRepo) ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var mine []model.Order
	err := o.r.do("orders.ListByUserID", func(st *state) error {
		for _, v := range st.orders {
			if v.UserID == userID {
				mine = append(mine, v)
			}
		}
		return nil
	})
	if err != nil {
		return []model.Order{}, 0, err
	}

	sort.Slice(mine, func(i, j int) bool {
		if !mine[i].CreatedAt.Equal(mine[j].CreatedAt) {
			return mine[i].CreatedAt.After(mine[j].CreatedAt)
		}
		return mine[i].ID > mine[j].ID
	})
	total := int64(len(mine))
	from := (page - 1) * limit
	if from >= len(mine) {
		return []model.Order{}, total, nil
	}
	to := from + limit
	if to > len(mine) {
		to = len(mine)
	}
	return mine[from:to], total, nil
}

func (o orderRepo) Create(ctx context.Context, order model.Order) (int64, error) {
	var id int64
	err := o.r.do("orders.Create", func(st *state) error {
		if order.IdempotencyKey != nil {
			for _, v := range st.orders {
				if v.UserID == order.UserID && v.IdempotencyKey != nil && *v.IdempotencyKey == *order.IdempotencyKey {
					return repo.ErrConflict
				}
			}
		}
		order.ID = st.nextID()
		if order.CreatedAt.IsZero() {
			order.CreatedAt = o.r.s.now()
		}
		st.orders = append(st.orders, order)
		id = order.ID
		return nil
	})
	return id, err
}

func (o orderRepo) FindByIdempotencyKey(ctx context.Context, userID int64, key string) (model.Order, bool, error) {
	var out model.Order
	var found bool
	err := o.r.do("orders.FindByIdempotencyKey", func(st *state) error {
		for _, v := range st.orders {
			if v.UserID == userID && v.IdempotencyKey != nil && *v.IdempotencyKey == key {
				out, found = v, true
				return nil
			}
		}
		return nil
	})
	return out, found, err
}

type orderLineRepo struct{ r *repos }

// gorm実装と同じく、渡したスライスにIDとOrderIDを書き戻す
func (o orderLineRepo) CreateBulk(ctx context.Context, orderID int64, lines []model.OrderLine) error {
	return o.r.do("orderLines.CreateBulk", func(st *state) error {
		for i := range lines {
			lines[i].ID = st.nextID()
			lines[i].OrderID = orderID
			st.orderLines = append(st.orderLines, lines[i])
		}
		return nil
	})
}

func (o orderLineRepo) ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderLine, error) {
	out := []model.OrderLine{}
	err := o.r.do("orderLines.ListByOrderID", func(st *state) error {
		for _, l := range st.orderLines {
			if l.OrderID == orderID {
				out = append(out, l)
			}
		}
		return nil
	})
	return out, err
}

type outboxRepo struct{ r *repos }

func (o outboxRepo) Insert(ctx context.Context, ev model.OutboxEvent) error {
	return o.r.do("outbox.Insert", func(st *state) error {
		ev.ID = st.nextID()
		if ev.CreatedAt.IsZero() {
			ev.CreatedAt = o.r.s.now()
		}
		st.outbox = append(st.outbox, ev)
		return nil
	})
}

func (o outboxRepo) FetchPending(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []model.OutboxEvent
	err := o.r.do("outbox.FetchPending", func(st *state) error {
		for _, ev := range st.outbox {
			if ev.SentAt == nil {
				out = append(out, ev)
			}
			if len(out) == limit {
				break
			}
		}
		return nil
	})
	return out, err
}

func (o outboxRepo) MarkSent(ctx context.Context, id int64, sentAt time.Time) error {
	return o.r.do("outbox.MarkSent", func(st *state) error {
		for i, ev := range st.outbox {
			if ev.ID == id && ev.SentAt == nil {
				t := sentAt
				st.outbox[i].SentAt = &t
				return nil
			}
		}
		return repo.ErrNotFound
	})
}
