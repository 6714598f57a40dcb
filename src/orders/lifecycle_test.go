package orders

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"equitybot/src/broker"
	"equitybot/src/database"
	"equitybot/src/executor"
	"equitybot/src/notify"
	"equitybot/src/session"
	"equitybot/src/timeframes"
	"equitybot/src/tracking"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errTest = errors.New("test error")
	t0      = time.Date(2024, 3, 6, 15, 0, 0, 0, time.UTC)
)

// scriptedExecutor 按脚本依次返回订单状态
type scriptedExecutor struct {
	statuses    []*broker.OrderReport
	submits     []*executor.Order
	cancels     int
	StatusError bool
	CancelFails bool
	EmptyAck    bool
	// StatusFailsAfterCancel 撤单后的下一次查询返回错误
	StatusFailsAfterCancel bool
	failNextStatus         bool
}

func (s *scriptedExecutor) GetName() string { return "scripted" }

func (s *scriptedExecutor) Submit(ctx context.Context, order *executor.Order) (string, error) {
	s.submits = append(s.submits, order)
	if s.EmptyAck {
		return "", nil
	}
	return strconv.Itoa(len(s.submits)), nil
}

func (s *scriptedExecutor) Status(ctx context.Context, symbol, orderID string) (*broker.OrderReport, error) {
	if s.StatusError || s.failNextStatus {
		s.failNextStatus = false
		return nil, errTest
	}
	if len(s.statuses) == 0 {
		return &broker.OrderReport{OrderID: orderID, Symbol: symbol, Status: broker.StatusWorking}, nil
	}
	r := *s.statuses[0]
	s.statuses = s.statuses[1:]
	r.OrderID = orderID
	r.Symbol = symbol
	return &r, nil
}

func (s *scriptedExecutor) Cancel(ctx context.Context, symbol, orderID string) (bool, error) {
	s.cancels++
	s.failNextStatus = s.StatusFailsAfterCancel
	if s.CancelFails {
		return false, errTest
	}
	return true, nil
}

func (s *scriptedExecutor) Positions(ctx context.Context) ([]*broker.Holding, error) {
	return nil, nil
}

func (s *scriptedExecutor) Account(ctx context.Context) (*broker.Account, error) {
	return &broker.Account{Cash: decimal.NewFromInt(10000)}, nil
}

func (s *scriptedExecutor) Quote(ctx context.Context, symbol string) (*broker.Quote, error) {
	return nil, errTest
}

func (s *scriptedExecutor) Candidates(ctx context.Context, class timeframes.HourClass, ranking executor.Ranking) ([]*broker.Candidate, error) {
	return nil, nil
}

func (s *scriptedExecutor) Close() error { return nil }

func (s *scriptedExecutor) lastSubmit() *executor.Order {
	return s.submits[len(s.submits)-1]
}

func report(status broker.OrderStatus, filled, price int64) *broker.OrderReport {
	return &broker.OrderReport{
		Status:    status,
		FilledQty: decimal.NewFromInt(filled),
		AvgPrice:  decimal.NewFromInt(price),
	}
}

type fixture struct {
	exec     *scriptedExecutor
	store    *database.MemoryStore
	recorder *notify.Recorder
	clock    *session.VirtualClock
	tracker  *tracking.Tracker
	l        *Lifecycle
}

func newFixture() *fixture {
	f := &fixture{
		exec:     &scriptedExecutor{},
		store:    database.NewMemoryStore(),
		recorder: &notify.Recorder{},
		clock:    session.NewVirtualClock(t0),
		tracker:  tracking.NewTracker(),
	}
	config := Config{
		BuyTimeoutSec:        60,
		SellTimeoutSec:       30,
		Retry:                tracking.RetryPolicy{Enabled: true, Limit: 2},
		LoseStreakLimit:      2,
		BlacklistCooldownMin: 60,
	}
	f.l = NewLifecycle(f.exec, f.store, f.tracker, session.New(f.clock), f.recorder, config)
	return f
}

// tick 推进时钟并轮询一次
func (f *fixture) tick(t *testing.T) {
	f.clock.Advance(5 * time.Second)
	require.NoError(t, f.l.Reconcile(context.Background()))
}

// holding 建立 100 股 @10 的持仓
func (f *fixture) holding(t *testing.T, symbol string) *tracking.Ticker {
	tk := f.l.NewTicker(symbol, "momentum")
	f.tracker.Add(tk)
	f.exec.statuses = append(f.exec.statuses, report(broker.StatusFilled, 100, 10))
	require.NoError(t, f.l.SubmitBuy(context.Background(), tk, decimal.NewFromInt(100), decimal.NewFromInt(10), "entry"))
	f.tick(t)
	require.True(t, tk.Positions.Equal(decimal.NewFromInt(100)))
	return tk
}

func TestLifecycle_BuyFill(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tk := f.l.NewTicker("AAPL", "momentum")
	f.tracker.Add(tk)

	f.exec.statuses = []*broker.OrderReport{
		report(broker.StatusWorking, 0, 0),
		report(broker.StatusWorking, 0, 0),
		report(broker.StatusFilled, 100, 10),
	}
	require.NoError(t, f.l.SubmitBuy(ctx, tk, decimal.NewFromInt(100), decimal.NewFromInt(10), "breakout"))
	assert.True(t, tk.PendingBuy())
	assert.Equal(t, "pending_buy", tk.State())

	for i := 0; i < 3; i++ {
		assert.False(t, tk.PendingBuy() && tk.PendingSell())
		f.tick(t)
	}

	require.NotNil(t, tk.Position)
	assert.True(t, tk.Position.Quantity.Equal(decimal.NewFromInt(100)))
	assert.False(t, tk.PendingBuy())
	assert.Equal(t, 1, tk.Units)
	assert.Equal(t, 0, tk.Retry.Attempts)
	assert.True(t, tk.InitialCost.Equal(decimal.NewFromInt(10)))
	assert.True(t, f.l.Positions().Cash().Equal(decimal.NewFromInt(-1000)))

	// 买入不影响连胜连败
	stat := f.tracker.Stat("AAPL")
	assert.Equal(t, 0, stat.WinStreak)
	assert.Equal(t, 0, stat.LoseStreak)

	order, ok := f.store.Order("1")
	require.True(t, ok)
	assert.Equal(t, broker.StatusFilled, order.Status)

	positions, _ := f.store.LoadPositions(ctx)
	require.Len(t, positions, 1)
	assert.Equal(t, 1, positions[0].Units)
}

func TestLifecycle_OnePendingOrder(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tk := f.holding(t, "AAPL")

	require.NoError(t, f.l.SubmitSell(ctx, tk, decimal.NewFromInt(50), decimal.NewFromInt(11), "target"))
	err := f.l.SubmitBuy(ctx, tk, decimal.NewFromInt(10), decimal.NewFromInt(10), "scale in")
	assert.ErrorIs(t, err, tracking.ErrPendingOrder)
	assert.True(t, tk.PendingSell())
	assert.Len(t, f.exec.submits, 2)

	// 卖出数量不超过持仓
	tk.ClearPending()
	require.NoError(t, f.l.SubmitSell(ctx, tk, decimal.NewFromInt(500), decimal.NewFromInt(11), "exit"))
	assert.True(t, f.exec.lastSubmit().Quantity.Equal(decimal.NewFromInt(100)))
}

func TestLifecycle_PartialSellResubmits(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tk := f.holding(t, "AAPL")

	f.exec.statuses = []*broker.OrderReport{
		report(broker.StatusPartiallyFilled, 60, 11),
		report(broker.StatusCancelled, 60, 11),
	}
	require.NoError(t, f.l.SubmitSell(ctx, tk, decimal.NewFromInt(100), decimal.NewFromInt(11), "target"))
	f.tick(t)

	assert.True(t, tk.Positions.Equal(decimal.NewFromInt(40)))
	require.NotNil(t, tk.Position)
	assert.True(t, tk.Position.Quantity.Equal(decimal.NewFromInt(40)))
	assert.Equal(t, 1, f.exec.cancels)

	resubmit := f.exec.lastSubmit()
	assert.Equal(t, broker.OrderSideSell, resubmit.Side)
	assert.True(t, resubmit.Quantity.Equal(decimal.NewFromInt(40)))
	assert.True(t, resubmit.Price.Equal(decimal.NewFromInt(11)))
	assert.True(t, tk.PendingSell())
	assert.Equal(t, 1, tk.Retry.Attempts)
	assert.Empty(t, f.store.Trades())

	f.exec.statuses = []*broker.OrderReport{report(broker.StatusFilled, 40, 11)}
	f.tick(t)

	assert.Nil(t, tk.Position)
	assert.True(t, tk.IsFlat())
	assert.Equal(t, 0, tk.Retry.Attempts)
	trades := f.store.Trades()
	require.Len(t, trades, 1)
	assert.True(t, trades[0].PnL.Equal(decimal.NewFromInt(100)), trades[0].PnL.String())
	assert.True(t, trades[0].SellPrice.Equal(decimal.NewFromInt(11)))
	assert.Equal(t, 1, f.tracker.Stat("AAPL").WinStreak)

	positions, _ := f.store.LoadPositions(ctx)
	assert.Empty(t, positions)
}

func TestLifecycle_FillsAfterCancel(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tk := f.holding(t, "AAPL")

	// 撤单前又成交了 10 股
	f.exec.statuses = []*broker.OrderReport{
		report(broker.StatusPartiallyFilled, 60, 11),
		report(broker.StatusCancelled, 70, 11),
	}
	require.NoError(t, f.l.SubmitSell(ctx, tk, decimal.NewFromInt(100), decimal.NewFromInt(11), "target"))
	f.tick(t)

	assert.True(t, tk.Positions.Equal(decimal.NewFromInt(30)), tk.Positions.String())
	assert.True(t, tk.Position.Quantity.Equal(decimal.NewFromInt(30)))
	assert.Equal(t, 1, f.exec.cancels)
	assert.Len(t, f.exec.submits, 3)
	assert.True(t, f.exec.lastSubmit().Quantity.Equal(decimal.NewFromInt(30)))
	assert.True(t, f.l.Positions().Cash().Equal(decimal.NewFromInt(-1000+770)))

	order, ok := f.store.Order("2")
	require.True(t, ok)
	assert.Equal(t, broker.StatusCancelled, order.Status)
}

func TestLifecycle_FillsAfterCancelDeferred(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tk := f.holding(t, "AAPL")
	f.exec.StatusFailsAfterCancel = true

	f.exec.statuses = []*broker.OrderReport{
		report(broker.StatusPartiallyFilled, 60, 11),
		report(broker.StatusCancelled, 80, 11),
	}
	require.NoError(t, f.l.SubmitSell(ctx, tk, decimal.NewFromInt(100), decimal.NewFromInt(11), "target"))

	// 撤单后查不到最终成交量：保留原单等撤单回报，不重提
	f.tick(t)
	assert.True(t, tk.Positions.Equal(decimal.NewFromInt(40)))
	assert.True(t, tk.PendingSell())
	assert.True(t, tk.Pending.CancelRequested)
	assert.Len(t, f.exec.submits, 2)

	f.tick(t)
	assert.Equal(t, 1, f.exec.cancels)
	assert.True(t, tk.Positions.Equal(decimal.NewFromInt(20)), tk.Positions.String())
	assert.Len(t, f.exec.submits, 3)
	assert.True(t, f.exec.lastSubmit().Quantity.Equal(decimal.NewFromInt(20)))
}

func TestLifecycle_IncrementalFillCost(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tk := f.l.NewTicker("AAPL", "momentum")
	f.tracker.Add(tk)

	f.exec.statuses = []*broker.OrderReport{
		report(broker.StatusPartiallyFilled, 60, 10),
		{Status: broker.StatusFilled, FilledQty: decimal.NewFromInt(100), AvgPrice: decimal.RequireFromString("10.20")},
	}
	require.NoError(t, f.l.SubmitBuy(ctx, tk, decimal.NewFromInt(100), decimal.NewFromInt(10), "entry"))
	f.tick(t)
	f.tick(t)

	require.NotNil(t, tk.Position)
	assert.True(t, tk.Position.Quantity.Equal(decimal.NewFromInt(100)))
	assert.True(t, tk.Position.TotalCost.Equal(decimal.NewFromInt(1020)), tk.Position.TotalCost.String())
	assert.True(t, tk.Position.AvgCost().Equal(decimal.RequireFromString("10.2")))
	assert.True(t, f.l.Positions().Cash().Equal(decimal.NewFromInt(-1020)), f.l.Positions().Cash().String())
}

func TestLifecycle_FailedToSell(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tk := f.holding(t, "AAPL")

	limit := f.l.Config().Retry.Limit
	for i := 0; i < limit+2; i++ {
		f.exec.statuses = append(f.exec.statuses, report(broker.StatusCancelled, 0, 0))
	}
	require.NoError(t, f.l.SubmitSell(ctx, tk, decimal.NewFromInt(100), decimal.NewFromInt(9), "stop"))
	for i := 0; i < limit+2; i++ {
		f.tick(t)
	}

	assert.Equal(t, tracking.SetupFailedToSell, tk.Setup)
	assert.True(t, tk.FailedToSell())
	assert.Equal(t, 1, f.recorder.Count())
	assert.Contains(t, f.recorder.Messages()[0], "failed to sell")

	_, tracked := f.tracker.Get("AAPL")
	assert.True(t, tracked)
	assert.True(t, tk.Positions.Equal(decimal.NewFromInt(100)))

	// 1 买 + 1 卖 + limit 次重提
	assert.Len(t, f.exec.submits, 2+limit)

	positions, _ := f.store.LoadPositions(ctx)
	require.Len(t, positions, 1)
	assert.Equal(t, tracking.SetupFailedToSell, positions[0].Setup)

	// 人工再次卖出仍失败，不重复通知
	f.exec.statuses = []*broker.OrderReport{report(broker.StatusCancelled, 0, 0)}
	require.NoError(t, f.l.SubmitSell(ctx, tk, decimal.NewFromInt(100), decimal.NewFromInt(9), "manual"))
	f.tick(t)
	assert.Equal(t, 1, f.recorder.Count())
}

func TestLifecycle_RetryFailedSell(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tk := f.holding(t, "AAPL")
	f.l.config.FailedSellRetryMin = 5

	limit := f.l.Config().Retry.Limit
	for i := 0; i <= limit; i++ {
		f.exec.statuses = append(f.exec.statuses, report(broker.StatusCancelled, 0, 0))
	}
	require.NoError(t, f.l.SubmitSell(ctx, tk, decimal.NewFromInt(100), decimal.NewFromInt(9), "stop"))
	for i := 0; i <= limit; i++ {
		f.tick(t)
	}
	require.True(t, tk.FailedToSell())
	assert.False(t, f.l.FailedSellDue(tk))

	f.clock.Advance(5 * time.Minute)
	require.True(t, f.l.FailedSellDue(tk))

	f.exec.statuses = []*broker.OrderReport{report(broker.StatusFilled, 100, 9)}
	require.NoError(t, f.l.RetryFailedSell(ctx, tk, decimal.NewFromInt(9), "failed sell retry"))
	assert.Equal(t, 0, tk.Retry.Attempts)
	assert.True(t, tk.PendingSell())
	assert.False(t, f.l.FailedSellDue(tk))

	f.tick(t)
	assert.True(t, tk.IsFlat())
	assert.False(t, tk.FailedToSell())
	require.Len(t, f.store.Trades(), 1)
	assert.Equal(t, "failed sell retry", f.store.Trades()[0].Reason)
	assert.Equal(t, 1, f.recorder.Count())

	// 不是转人工的标的不处理
	require.NoError(t, f.l.RetryFailedSell(ctx, tk, decimal.NewFromInt(9), "failed sell retry"))
	assert.False(t, tk.HasPending())
}

func TestLifecycle_UnknownStatus(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tk := f.l.NewTicker("AAPL", "momentum")
	f.tracker.Add(tk)

	f.exec.statuses = []*broker.OrderReport{{Status: broker.OrderStatus("HALTED")}}
	require.NoError(t, f.l.SubmitBuy(ctx, tk, decimal.NewFromInt(10), decimal.NewFromInt(10), "entry"))

	err := f.l.Reconcile(ctx)
	var statusErr *OrderStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, "AAPL", statusErr.Symbol)
	assert.Equal(t, broker.OrderStatus("HALTED"), statusErr.Status)
	assert.True(t, IsFatal(err))
}

func TestLifecycle_TimeoutCancelThenDrop(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tk := f.l.NewTicker("AAPL", "breakout_20")
	f.tracker.Add(tk)

	require.NoError(t, f.l.SubmitBuy(ctx, tk, decimal.NewFromInt(10), decimal.NewFromInt(10), "entry"))

	// 未超时不撤单
	f.tick(t)
	assert.Equal(t, 0, f.exec.cancels)

	f.clock.Advance(time.Minute)
	require.NoError(t, f.l.Reconcile(ctx))
	assert.Equal(t, 1, f.exec.cancels)
	assert.True(t, tk.Pending.CancelRequested)

	// 已申请撤单不重复撤
	f.tick(t)
	assert.Equal(t, 1, f.exec.cancels)

	f.exec.statuses = []*broker.OrderReport{
		report(broker.StatusCancelled, 0, 0),
		report(broker.StatusFailed, 0, 0),
		report(broker.StatusFailed, 0, 0),
	}
	f.tick(t)
	assert.True(t, tk.PendingBuy())
	assert.Equal(t, 1, tk.Retry.Attempts)
	f.tick(t)
	f.tick(t)

	assert.False(t, tk.HasPending())
	assert.True(t, tk.Dropped)
	assert.Equal(t, 0, tk.Retry.Attempts)
	assert.Len(t, f.exec.submits, 3)
	assert.Equal(t, 0, f.recorder.Count())
}

func TestLifecycle_PartialBuyKeptOnCancel(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tk := f.l.NewTicker("AAPL", "momentum")
	f.tracker.Add(tk)

	f.exec.statuses = []*broker.OrderReport{
		report(broker.StatusPartiallyFilled, 30, 10),
		report(broker.StatusCancelled, 30, 10),
	}
	require.NoError(t, f.l.SubmitBuy(ctx, tk, decimal.NewFromInt(100), decimal.NewFromInt(10), "entry"))
	f.tick(t)
	assert.True(t, tk.Positions.Equal(decimal.NewFromInt(30)))
	assert.True(t, tk.PendingBuy())

	f.tick(t)
	assert.False(t, tk.HasPending())
	assert.True(t, tk.Positions.Equal(decimal.NewFromInt(30)))
	assert.Equal(t, 1, tk.Units)
	assert.Len(t, f.exec.submits, 1)
}

func TestLifecycle_CancelFailureConsumesBudget(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tk := f.holding(t, "AAPL")
	f.exec.CancelFails = true

	require.NoError(t, f.l.SubmitSell(ctx, tk, decimal.NewFromInt(100), decimal.NewFromInt(11), "target"))
	f.clock.Advance(time.Minute)

	limit := f.l.Config().Retry.Limit
	for i := 0; i <= limit; i++ {
		require.NoError(t, f.l.Reconcile(ctx))
	}

	assert.Equal(t, limit+1, f.exec.cancels)
	assert.True(t, tk.FailedToSell())
	assert.True(t, tk.PendingSell())
	assert.Equal(t, 1, f.recorder.Count())
}

func TestLifecycle_MalformedAck(t *testing.T) {
	f := newFixture()
	tk := f.l.NewTicker("AAPL", "momentum")
	f.tracker.Add(tk)
	f.exec.EmptyAck = true

	err := f.l.SubmitBuy(context.Background(), tk, decimal.NewFromInt(10), decimal.NewFromInt(10), "entry")
	assert.ErrorIs(t, err, ErrMalformedAck)
	assert.False(t, tk.HasPending())
}

func TestLifecycle_InvalidQuantity(t *testing.T) {
	f := newFixture()
	tk := f.l.NewTicker("AAPL", "momentum")

	err := f.l.SubmitBuy(context.Background(), tk, decimal.Zero, decimal.NewFromInt(10), "entry")
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	// 空仓卖出数量被截为 0
	err = f.l.SubmitSell(context.Background(), tk, decimal.NewFromInt(10), decimal.NewFromInt(10), "exit")
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	assert.Empty(t, f.exec.submits)
}

func TestLifecycle_StatusErrorDeferred(t *testing.T) {
	f := newFixture()
	tk := f.l.NewTicker("AAPL", "momentum")
	f.tracker.Add(tk)
	require.NoError(t, f.l.SubmitBuy(context.Background(), tk, decimal.NewFromInt(10), decimal.NewFromInt(10), "entry"))

	f.exec.StatusError = true
	f.tick(t)
	assert.True(t, tk.PendingBuy())
}

func TestLifecycle_LoseStreakBlacklists(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		tk := f.holding(t, "AAPL")
		f.exec.statuses = []*broker.OrderReport{report(broker.StatusFilled, 100, 9)}
		require.NoError(t, f.l.SubmitSell(ctx, tk, decimal.NewFromInt(100), decimal.NewFromInt(9), "stop"))
		f.tick(t)
		f.tracker.Remove("AAPL")
	}

	stat := f.tracker.Stat("AAPL")
	assert.Equal(t, 2, stat.LoseStreak)
	assert.True(t, stat.Blacklisted(f.clock.Now()))
	assert.False(t, stat.Blacklisted(f.clock.Now().Add(2*time.Hour)))
	assert.Len(t, f.l.Positions().Trades(), 2)
}

func TestPositionTracker_RefreshAndRestore(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.holding(t, "AAPL")

	require.NoError(t, f.l.Positions().Refresh(ctx))
	assert.True(t, f.l.Positions().Cash().Equal(decimal.NewFromInt(10000)))

	restored := tracking.NewTracker()
	pt := NewPositionTracker(f.exec, f.store, restored, f.l.Config())
	n, err := pt.Restore(ctx, t0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	tk, ok := restored.Get("AAPL")
	require.True(t, ok)
	assert.True(t, tk.Positions.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, 1, tk.Units)
	assert.Equal(t, "momentum", tk.Style)
}
