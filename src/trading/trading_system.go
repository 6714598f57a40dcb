package trading

import (
	"context"
	"errors"
	"fmt"
	"time"

	"equitybot/src/backtest"
	"equitybot/src/broker"
	"equitybot/src/config"
	"equitybot/src/database"
	"equitybot/src/engine"
	"equitybot/src/executor"
	"equitybot/src/indicators"
	"equitybot/src/notify"
	"equitybot/src/orders"
	"equitybot/src/session"
	"equitybot/src/timeframes"
	"equitybot/src/tracking"

	"github.com/xpwu/go-log/log"
)

// TradingSystem 交易系统：按配置组装存储、券商、通知和交易引擎
type TradingSystem struct {
	config   *config.Config
	cal      *timeframes.Calendar
	store    database.Store
	client   broker.Broker
	bars     *database.BarManager
	notifier notify.Notifier
	profiles *config.ProfileManager
	clock    session.Clock

	tradingEngine *engine.TradingEngine
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewTradingSystem 创建新的交易系统
func NewTradingSystem(cfg *config.Config) (*TradingSystem, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cal, err := timeframes.NewCalendar(timeframes.SessionConfigValue)
	if err != nil {
		return nil, &config.ConfigError{Field: "session", Reason: err.Error()}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &TradingSystem{
		config:   cfg,
		cal:      cal,
		profiles: config.NewProfileManager(),
		clock:    session.RealClock{},
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// SetStore 使用外部存储，Initialize 不再按配置打开
func (ts *TradingSystem) SetStore(store database.Store) {
	ts.store = store
}

// SetBroker 使用外部券商客户端
func (ts *TradingSystem) SetBroker(client broker.Broker) {
	ts.client = client
}

// SetNotifier 使用外部通知渠道
func (ts *TradingSystem) SetNotifier(n notify.Notifier) {
	ts.notifier = n
}

// SetClock 替换时钟
func (ts *TradingSystem) SetClock(clock session.Clock) {
	ts.clock = clock
}

// Initialize 初始化系统
func (ts *TradingSystem) Initialize(ctx context.Context) error {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("TradingSystem")

	if ts.store == nil {
		store, err := database.Open(ctx, database.GlobalDatabaseConfig)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		ts.store = store
	}

	if !ts.config.IsBacktestMode() && ts.client == nil {
		client, err := broker.CreateBroker(ts.config.Broker)
		if err != nil {
			return fmt.Errorf("create broker: %w", err)
		}
		ts.client = client
	}
	if ts.client != nil {
		if err := ts.client.Ping(ctx); err != nil {
			return fmt.Errorf("failed to connect to %s: %w", ts.client.GetName(), err)
		}
		logger.Info(fmt.Sprintf("✓ Connected to %s", ts.client.GetName()))
	}

	var source database.BarSource
	if ts.client != nil {
		source = ts.client
	}
	ts.bars = database.NewBarManager(ts.store, source)

	if ts.notifier == nil {
		ts.notifier = notify.New(ctx, notify.TelegramConfigValue)
	}

	if ts.config.Profiles != "" {
		if err := ts.profiles.LoadFromFile(ts.config.Profiles); err != nil {
			return err
		}
		if err := ts.applyProfiles(ctx); err != nil {
			return err
		}
		logger.Info(fmt.Sprintf("载入标的档案 %d 个", ts.profiles.Len()))
	}
	return nil
}

// applyProfiles 把档案合并进持久化的标的统计，Begin 时随统计一起载入
func (ts *TradingSystem) applyProfiles(ctx context.Context) error {
	stats, err := ts.store.LoadStats(ctx)
	if err != nil {
		return fmt.Errorf("load stats: %w", err)
	}
	tracker := tracking.NewTracker()
	for _, s := range stats {
		tracker.SetStat(s)
	}
	ts.profiles.Apply(tracker)
	return ts.store.SaveStats(ctx, tracker.Stats())
}

// Universe 回测候选池：配置优先，其次档案中可交易的标的，最后取本地库全部标的
func (ts *TradingSystem) Universe(ctx context.Context) ([]string, error) {
	if len(ts.config.Universe) > 0 {
		return ts.config.Universe, nil
	}
	if symbols := ts.profiles.ActiveSymbols(); len(symbols) > 0 {
		return symbols, nil
	}
	return ts.store.ListSymbols(ctx)
}

// BuildEngine 组装实盘或模拟盘引擎
func (ts *TradingSystem) BuildEngine(ctx context.Context) (*engine.TradingEngine, error) {
	if ts.bars == nil {
		return nil, errors.New("trading system not initialized")
	}
	if ts.client == nil {
		return nil, errors.New("no broker client for live trading")
	}

	var exec executor.Executor
	switch {
	case ts.config.IsLiveMode():
		exec = executor.NewLiveExecutor(ts.client)
	case ts.config.IsDryRun():
		bt := executor.DefaultBacktestConfig()
		bt.InitialCapital = ts.config.GetInitialCapital()
		bt.Commission = ts.config.GetCommission()
		bt.FillMarkup = ts.config.GetFillMarkup()
		dry := executor.NewBacktestExecutor(ts.clock, ts.bars, bt)
		dry.SetMarket(ts.client)
		exec = dry
	default:
		return nil, fmt.Errorf("mode %s has no live engine", ts.config.Mode)
	}

	sess := session.New(ts.clock)
	tracker := tracking.NewTracker()
	lifecycle := orders.NewLifecycle(exec, ts.store, tracker, sess, ts.notifier, orders.OrdersConfigValue)
	feed := engine.NewBarFeed(ts.bars, ts.clock)

	ec := engine.EngineConfigValue
	runners, err := engine.NewRunners(ec.Styles, indicators.DefaultParams(), lifecycle, tracker, feed, sess, ts.cal)
	if err != nil {
		return nil, &config.ConfigError{Field: "styles", Reason: err.Error()}
	}

	ts.tradingEngine = engine.NewTradingEngine(lifecycle, tracker, runners, sess, ts.store, ts.notifier, ts.cal, ec)
	return ts.tradingEngine, nil
}

// RunLiveTrading 运行实盘或模拟盘，直到 ctx 取消或不可恢复的错误
func (ts *TradingSystem) RunLiveTrading(ctx context.Context) error {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("TradingSystem")

	if ts.config.IsBacktestMode() {
		return fmt.Errorf("cannot run live trading in backtest mode")
	}

	eng, err := ts.BuildEngine(ctx)
	if err != nil {
		return err
	}

	if src, ok := ts.client.(broker.TokenSource); ok {
		keeper := session.NewTokenKeeper(src, ts.config.Token.RefreshSpec)
		if err := keeper.Start(ctx); err != nil {
			return err
		}
		defer keeper.Stop()
	}

	scheduler := engine.NewScheduler(timeframes.SessionConfigValue, ts.cal, engine.EngineConfigValue.EndLeadMin)
	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	defer scheduler.Stop()

	logger.Info(fmt.Sprintf("🔴 Starting %s trading with %s", ts.config.Mode, eng.Lifecycle().Executor().GetName()))
	err = eng.RunLive(ctx, scheduler.Events())
	if err != nil && !errors.Is(err, context.Canceled) {
		notify.Alertf(ctx, ts.notifier, "🛑 %s trading stopped: %v", ts.config.Mode, err)
		return err
	}
	return nil
}

// RunBacktest 按配置区间回测
func (ts *TradingSystem) RunBacktest(ctx context.Context) (*backtest.Result, error) {
	if ts.bars == nil {
		return nil, errors.New("trading system not initialized")
	}

	universe, err := ts.Universe(ctx)
	if err != nil {
		return nil, err
	}
	start, _ := ts.config.GetStartTime()
	end, _ := ts.config.GetEndTime()

	hc := backtest.DefaultConfig()
	hc.Universe = universe
	hc.InitialCapital = ts.config.GetInitialCapital()
	hc.Commission = ts.config.GetCommission()
	hc.FillMarkup = ts.config.GetFillMarkup()
	hc.StepSec = ts.config.Backtest.StepSec

	var store database.Store = database.NewMemoryStore()
	if TradingConfigValue.PersistBacktest {
		store = ts.store
	}
	return backtest.NewHarness(ts.bars, store, ts.cal, hc).Run(ctx, start, end)
}

// SyncBars 从券商回补 [start, end) 的1分钟K线
func (ts *TradingSystem) SyncBars(ctx context.Context, symbols []string, start, end time.Time) (int, error) {
	if ts.bars == nil {
		return 0, errors.New("trading system not initialized")
	}

	total := 0
	for _, symbol := range symbols {
		n, err := ts.bars.Sync(ctx, symbol, start, end)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Context Stop 时取消
func (ts *TradingSystem) Context() context.Context {
	return ts.ctx
}

// Bars K线管理器
func (ts *TradingSystem) Bars() *database.BarManager {
	return ts.bars
}

// Engine 最近一次组装的引擎
func (ts *TradingSystem) Engine() *engine.TradingEngine {
	return ts.tradingEngine
}

// Stop 停止交易系统
func (ts *TradingSystem) Stop() {
	if ts.tradingEngine != nil {
		ts.tradingEngine.Stop()
	}
	if ts.store != nil {
		ts.store.Close()
	}
	ts.cancel()
}

// GetConfig 获取配置
func (ts *TradingSystem) GetConfig() *config.Config {
	return ts.config
}
