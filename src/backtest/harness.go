package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"equitybot/src/database"
	"equitybot/src/engine"
	"equitybot/src/executor"
	"equitybot/src/indicators"
	"equitybot/src/notify"
	"equitybot/src/orders"
	"equitybot/src/session"
	"equitybot/src/timeframes"
	"equitybot/src/tracking"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xpwu/go-log/log"
)

// Config 回测参数
type Config struct {
	Styles         []string        `json:"styles"`
	Universe       []string        `json:"universe"`
	InitialCapital decimal.Decimal `json:"initial_capital"`
	Commission     decimal.Decimal `json:"commission"`
	FillMarkup     decimal.Decimal `json:"fill_markup"`
	StepSec        int             `json:"step_sec"`   // 虚拟时钟步长
	SampleMin      int             `json:"sample_min"` // 盘中权益采样间隔，0 表示只取收盘点

	Engine  engine.Config     `json:"-"`
	Orders  orders.Config     `json:"-"`
	Signals indicators.Params `json:"-"`
}

// DefaultConfig 引擎、订单、信号参数取各自包的配置实例
func DefaultConfig() Config {
	bt := executor.DefaultBacktestConfig()
	return Config{
		Styles:         append([]string(nil), engine.EngineConfigValue.Styles...),
		InitialCapital: bt.InitialCapital,
		Commission:     bt.Commission,
		FillMarkup:     bt.FillMarkup,
		StepSec:        60,
		SampleMin:      30,
		Engine:         engine.EngineConfigValue,
		Orders:         orders.OrdersConfigValue,
		Signals:        indicators.DefaultParams(),
	}
}

// Validate 校验
func (c Config) Validate() error {
	if len(c.Styles) == 0 {
		return errors.New("backtest: no styles")
	}
	if len(c.Universe) == 0 {
		return errors.New("backtest: empty universe")
	}
	if !c.InitialCapital.IsPositive() {
		return errors.New("backtest: initial capital must be positive")
	}
	if c.StepSec < 1 {
		return fmt.Errorf("backtest: step %ds below one second", c.StepSec)
	}
	return nil
}

// Result 一次回测的结果
type Result struct {
	RunID     string            `json:"run_id"`
	Start     time.Time         `json:"start"`
	End       time.Time         `json:"end"`
	Trades    []*tracking.Trade `json:"trades"`
	Stats     *Statistics       `json:"stats"`
	Alerts    []string          `json:"alerts"`
	Survivors int               `json:"survivors"` // 收盘后仍未平掉的交易日数
	Sessions  []string          `json:"sessions"`
	Orders    int               `json:"orders"`
	Symbols   []*tracking.Stat  `json:"symbols"`
	FinalCash decimal.Decimal   `json:"final_cash"`
}

// Harness 在虚拟时钟上逐交易日驱动 TradingEngine
//
// 行情只读 bars；订单、持仓、交易记录、会话日志写 store。两次相同输入的回测
// 产生相同的成交序列。
type Harness struct {
	bars   executor.BarReader
	store  database.Store
	cal    *timeframes.Calendar
	config Config
}

// NewHarness 创建回测驱动
func NewHarness(bars executor.BarReader, store database.Store, cal *timeframes.Calendar, config Config) *Harness {
	return &Harness{
		bars:   bars,
		store:  store,
		cal:    cal,
		config: config,
	}
}

// run 一次回测用到的全部组件
type run struct {
	clock    *session.VirtualClock
	sess     *session.Session
	exec     *executor.BacktestExecutor
	engine   *engine.TradingEngine
	recorder *notify.Recorder
	curve    []EquityPoint
	result   *Result
}

func (h *Harness) build(from time.Time) (*run, error) {
	r := &run{
		clock:    session.NewVirtualClock(from),
		recorder: &notify.Recorder{},
	}
	r.sess = session.New(r.clock)

	r.exec = executor.NewBacktestExecutor(r.clock, h.bars, executor.BacktestConfig{
		InitialCapital:    h.config.InitialCapital,
		Commission:        h.config.Commission,
		FillMarkup:        h.config.FillMarkup,
		Universe:          h.config.Universe,
		CandidateLookback: executor.DefaultBacktestConfig().CandidateLookback,
		CandidateLimit:    executor.DefaultBacktestConfig().CandidateLimit,
	})

	notifier := notify.Multi{notify.LogNotifier{}, r.recorder}
	tracker := tracking.NewTracker()
	lifecycle := orders.NewLifecycle(r.exec, h.store, tracker, r.sess, notifier, h.config.Orders)
	feed := engine.NewBarFeed(h.bars, r.clock)

	runners, err := engine.NewRunners(h.config.Styles, h.config.Signals, lifecycle, tracker, feed, r.sess, h.cal)
	if err != nil {
		return nil, err
	}

	ec := h.config.Engine
	ec.Styles = h.config.Styles
	r.engine = engine.NewTradingEngine(lifecycle, tracker, runners, r.sess, h.store, notifier, h.cal, ec)
	// 强平轮次之间推进虚拟时钟
	r.engine.SetWait(func(ctx context.Context, d time.Duration) error {
		r.clock.Advance(d)
		return ctx.Err()
	})

	r.result = &Result{RunID: uuid.NewString()}
	return r, nil
}

// Run 回测 [from, to] 内的每个交易日
func (h *Harness) Run(ctx context.Context, from, to time.Time) (*Result, error) {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("Backtest")

	if err := h.config.Validate(); err != nil {
		return nil, err
	}
	if err := h.config.Engine.Validate(); err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, fmt.Errorf("backtest: end %s before start %s", to.Format("2006-01-02"), from.Format("2006-01-02"))
	}

	r, err := h.build(from)
	if err != nil {
		return nil, err
	}
	r.result.Start, r.result.End = from, to
	logger.Info(fmt.Sprintf("回测开始 run=%s styles=%v universe=%d %s ~ %s",
		r.result.RunID, h.config.Styles, len(h.config.Universe), from.Format("2006-01-02"), to.Format("2006-01-02")))

	r.curve = append(r.curve, EquityPoint{
		Timestamp: from,
		Portfolio: h.config.InitialCapital,
		Cash:      h.config.InitialCapital,
	})

	days := 0
	first := from.In(h.cal.Location())
	day := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, h.cal.Location())
	for ; !day.After(to); day = day.AddDate(0, 0, 1) {
		if !h.cal.IsTradingDay(day) {
			continue
		}
		if err := h.runDay(ctx, r, day); err != nil {
			return nil, fmt.Errorf("backtest %s: %w", day.Format("2006-01-02"), err)
		}
		days++
	}

	r.result.Trades = r.engine.Lifecycle().Positions().Trades()
	r.result.Alerts = r.recorder.Messages()
	r.result.Orders = r.exec.OrderCount()
	r.result.Symbols = r.engine.Tracker().Stats()
	r.result.FinalCash = r.exec.Cash()
	r.result.Stats = Calculate(r.result.Trades, r.curve, h.config.InitialCapital, r.exec.TotalCommission(), days)

	logger.Info(fmt.Sprintf("回测结束 run=%s days=%d trades=%d final=%s",
		r.result.RunID, days, len(r.result.Trades), r.result.Stats.FinalEquity.StringFixed(2)))
	return r.result, nil
}

// runDay Begin → 逐步 Update → End → Final
func (h *Harness) runDay(ctx context.Context, r *run, day time.Time) error {
	ctx, logger := log.WithCtx(ctx)

	open, closeAt := h.cal.SessionBounds(day)
	endAt := closeAt.Add(-h.config.Engine.EndLead())
	step := time.Duration(h.config.StepSec) * time.Second
	sample := time.Duration(h.config.SampleMin) * time.Minute

	r.exec.ResetDay()
	r.clock.Set(open)
	r.result.Sessions = append(r.result.Sessions, r.sess.ID())
	if err := r.engine.Begin(ctx); err != nil {
		return err
	}

	lastSample := open
	for now := open; now.Before(endAt); now = now.Add(step) {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.clock.Set(now)
		if err := r.engine.Update(ctx); err != nil {
			return err
		}
		if sample > 0 && now.Sub(lastSample) >= sample {
			h.sample(ctx, r, false)
			lastSample = now
		}
	}

	r.clock.Set(endAt)
	if err := r.engine.End(ctx); err != nil {
		if !errors.Is(err, engine.ErrOpenPositions) {
			return err
		}
		r.result.Survivors++
		logger.Error("收盘后仍有持仓", "day", day.Format("2006-01-02"), "error", err)
	}

	if r.clock.Now().Before(closeAt) {
		r.clock.Set(closeAt)
	}
	h.sample(ctx, r, true)
	return r.engine.Final(ctx)
}

func (h *Harness) sample(ctx context.Context, r *run, dayClose bool) {
	_, logger := log.WithCtx(ctx)

	equity, err := r.exec.Equity(ctx)
	if err != nil {
		logger.Error("权益估值失败", "error", err)
		return
	}
	holdings, _ := r.exec.Positions(ctx)
	r.curve = append(r.curve, EquityPoint{
		Timestamp: r.clock.Now(),
		Portfolio: equity,
		Cash:      r.exec.Cash(),
		Holdings:  len(holdings),
		DayClose:  dayClose,
	})
}
