package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"checkout-engine/internal/domain/model"
	"checkout-engine/internal/metrics"
	repo "checkout-engine/internal/repository"
	"checkout-engine/internal/validator"
)

// 注文確定の状態。Succeeded/Failedで終わり
type CheckoutState string

const (
	StateIdle       CheckoutState = "idle"
	StateValidating CheckoutState = "validating"
	StatePlacing    CheckoutState = "placing"
	StateSucceeded  CheckoutState = "succeeded"
	StateFailed     CheckoutState = "failed"
)

type PlaceOrderOptions struct {
	//空なら冪等キーなし
	IdempotencyKey string
}

// 成功時の結果。ClearedProductIDsはカートから消した商品
type Receipt struct {
	Order             model.Order
	Lines             []model.OrderLine
	ClearedProductIDs []int64
	//同じ冪等キーの既存注文を返したとき
	Replayed bool
}

type TransitionHook func(userID int64, from, to CheckoutState)

type CoordinatorOption func(*CheckoutCoordinator)

func WithLogger(l *slog.Logger) CoordinatorOption {
	return func(c *CheckoutCoordinator) { c.logger = l }
}

func WithMetrics(m *metrics.CheckoutMetrics) CoordinatorOption {
	return func(c *CheckoutCoordinator) { c.metrics = m }
}

func WithTransitionHook(h TransitionHook) CoordinatorOption {
	return func(c *CheckoutCoordinator) { c.hook = h }
}

// CheckoutCoordinator は入力検証 → スナップショット → 書き込みの順に進める。
// リトライはしない（Transientかどうかはエラーで返す）
type CheckoutCoordinator struct {
	tx      repo.TransactionManager
	repos   repo.TxRepos
	writer  *OrderWriter
	logger  *slog.Logger
	metrics *metrics.CheckoutMetrics
	hook    TransitionHook
	now     func() time.Time
}

// reposはTx外の読み取り（スナップショット、冪等キー検索）に使う
func NewCheckoutCoordinator(tx repo.TransactionManager, repos repo.TxRepos, writer *OrderWriter, opts ...CoordinatorOption) *CheckoutCoordinator {
	c := &CheckoutCoordinator{
		tx:     tx,
		repos:  repos,
		writer: writer,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type attempt struct {
	c      *CheckoutCoordinator
	ctx    context.Context
	userID int64
	state  CheckoutState
}

func (a *attempt) to(next CheckoutState, attrs ...any) {
	prev := a.state
	a.state = next

	attrs = append([]any{
		slog.Int64("user_id", a.userID),
		slog.String("from", string(prev)),
		slog.String("state", string(next)),
	}, attrs...)
	level := slog.LevelInfo
	if next == StateFailed {
		level = slog.LevelWarn
	}
	a.c.logger.Log(a.ctx, level, "checkout transition", attrs...)

	if a.c.hook != nil {
		a.c.hook(a.userID, prev, next)
	}
}

func (a *attempt) fail(err error) error {
	a.to(StateFailed, slog.String("reason", err.Error()))
	return err
}

func (a *attempt) succeed(r Receipt) Receipt {
	a.to(StateSucceeded, slog.Int64("order_id", r.Order.ID), slog.Bool("replayed", r.Replayed))
	return r
}

// PlaceOrder はカートを注文に変える。
// エラーは *model.ValidationError / *model.InsufficientStockError / *model.StorageError のどれか
func (c *CheckoutCoordinator) PlaceOrder(ctx context.Context, userID int64, addr model.ShippingAddress, opts PlaceOrderOptions) (Receipt, error) {
	start := c.now()
	a := &attempt{c: c, ctx: ctx, userID: userID, state: StateIdle}

	r, err := c.run(ctx, a, addr, opts)

	c.metrics.Observe(outcomeOf(r, err), float64(c.now().Sub(start).Milliseconds()))
	return r, err
}

func (c *CheckoutCoordinator) run(ctx context.Context, a *attempt, addr model.ShippingAddress, opts PlaceOrderOptions) (Receipt, error) {
	a.to(StateValidating)

	addr, key, err := validatePlaceOrder(a.userID, addr, opts)
	if err != nil {
		return Receipt{}, a.fail(err)
	}

	a.to(StatePlacing)

	if key != "" {
		r, found, err := c.replay(ctx, a.userID, key)
		if err != nil {
			return Receipt{}, a.fail(asCheckoutError("find order by idempotency key", err))
		}
		if found {
			return a.succeed(r), nil
		}
	}

	snap, err := TakeSnapshot(ctx, c.repos.Carts(), a.userID, c.now())
	if err != nil {
		return Receipt{}, a.fail(asCheckoutError("take snapshot", err))
	}
	if snap.IsEmpty() {
		//同じキーの先行リクエストがカートを空にした直後かもしれない
		if key != "" {
			if r, found, err := c.replay(ctx, a.userID, key); err == nil && found {
				return a.succeed(r), nil
			}
		}
		return Receipt{}, a.fail(&model.ValidationError{Field: "cart", Reason: "empty"})
	}

	var (
		order model.Order
		lines []model.OrderLine
	)
	err = c.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		var werr error
		order, lines, werr = c.writer.Write(ctx, r, WriteInput{
			UserID:         a.userID,
			Snapshot:       snap,
			Address:        addr,
			IdempotencyKey: key,
		})
		return werr
	})
	if err != nil {
		//同じキーの同時リクエストに負けた。rollback済みなので勝った方を読み直す
		if key != "" && errors.Is(err, repo.ErrConflict) {
			r, found, rerr := c.replay(ctx, a.userID, key)
			if rerr == nil && found {
				return a.succeed(r), nil
			}
		}
		return Receipt{}, a.fail(asCheckoutError("place order", err))
	}

	return a.succeed(Receipt{
		Order:             order,
		Lines:             lines,
		ClearedProductIDs: snap.ProductIDs(),
	}), nil
}

func (c *CheckoutCoordinator) replay(ctx context.Context, userID int64, key string) (Receipt, bool, error) {
	existing, found, err := c.repos.Orders().FindByIdempotencyKey(ctx, userID, key)
	if err != nil || !found {
		return Receipt{}, false, err
	}
	lines, err := c.repos.OrderLines().ListByOrderID(ctx, existing.ID)
	if err != nil {
		return Receipt{}, false, err
	}
	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	return Receipt{Order: existing, Lines: lines, ClearedProductIDs: ids, Replayed: true}, true, nil
}

func validatePlaceOrder(userID int64, addr model.ShippingAddress, opts PlaceOrderOptions) (model.ShippingAddress, string, error) {
	if err := validator.PositiveID("user_id", userID); err != nil {
		return addr, "", err
	}
	addr, err := validator.ShippingAddress(addr)
	if err != nil {
		return addr, "", err
	}
	key, err := validator.IdempotencyKey(opts.IdempotencyKey)
	if err != nil {
		return addr, "", err
	}
	return addr, key, nil
}

// 分類外のエラー（ErrConflict、contextの中断など）はStorageErrorに寄せる
func asCheckoutError(op string, err error) error {
	var ve *model.ValidationError
	var ie *model.InsufficientStockError
	var se *model.StorageError
	if errors.As(err, &ve) || errors.As(err, &ie) || errors.As(err, &se) {
		return err
	}
	return &model.StorageError{Op: op, Transient: errors.Is(err, context.DeadlineExceeded), Err: err}
}

func outcomeOf(r Receipt, err error) string {
	var se *model.StorageError
	switch {
	case err == nil && r.Replayed:
		return "replayed"
	case err == nil:
		return "succeeded"
	case model.IsValidation(err):
		return "validation"
	case model.IsInsufficientStock(err):
		return "insufficient_stock"
	case errors.As(err, &se) && se.Transient:
		return "storage_transient"
	default:
		return "storage_fatal"
	}
}
