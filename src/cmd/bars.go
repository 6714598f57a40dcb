package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"equitybot/src/broker"
	"equitybot/src/config"
	"equitybot/src/market"
	"equitybot/src/timeframes"
	"equitybot/src/trading"

	"github.com/shopspring/decimal"
	"github.com/xpwu/go-cmd/arg"
	"github.com/xpwu/go-cmd/cmd"
)

// RegisterBarsCmd 注册K线回补/查看命令
func RegisterBarsCmd() {
	var symbols string
	var days int
	var local bool
	var verbose bool
	var interval string

	cmd.RegisterCmd("bars", "sync 1-minute bars from the broker into the local store and show an overview", func(args *arg.Arg) {
		args.String(&symbols, "s", "comma separated symbols (default: backtest universe)")
		args.Int(&days, "days", "days to look back (default: trading.sync_lookback_days)")
		args.Bool(&local, "local", "only inspect the local store, do not fetch")
		args.Bool(&verbose, "v", "print the most recent bars")
		args.String(&interval, "tf", "timeframe of the bars printed by -v: 1m,2m,3m,5m,10m,15m,30m,1h (default 1m)")
		args.Parse()

		if days <= 0 {
			days = trading.TradingConfigValue.SyncLookbackDays
		}
		if interval == "" {
			interval = timeframes.NativeInterval
		}
		tf, err := timeframes.ParseTimeframe(interval)
		if err != nil {
			fmt.Printf("❌ %v\n", err)
			return
		}
		if err := runBars(parseList(symbols, true), days, local, verbose, tf); err != nil {
			fmt.Printf("❌ Bars failed: %v\n", err)
		}
	})
}

func runBars(symbols []string, days int, local, verbose bool, tf timeframes.Timeframe) error {
	cfg := appConfig(config.ModeBacktest)

	ts, err := trading.NewTradingSystem(&cfg)
	if err != nil {
		return err
	}
	defer ts.Stop()

	if !local {
		client, err := broker.CreateBroker(cfg.Broker)
		if err != nil {
			return err
		}
		ts.SetBroker(client)
	}
	ctx := ts.Context()
	if err := ts.Initialize(ctx); err != nil {
		return err
	}
	if len(symbols) == 0 {
		if symbols, err = ts.Universe(ctx); err != nil {
			return err
		}
	}
	if len(symbols) == 0 {
		fmt.Println("⚠️ No symbols, use -s")
		return nil
	}

	end := time.Now().UTC().Truncate(time.Minute)
	start := end.AddDate(0, 0, -days)

	fmt.Printf("📊 1分钟K线\n")
	fmt.Printf("================================\n")
	fmt.Printf("🔸 标的: %s\n", strings.Join(symbols, ", "))
	fmt.Printf("🔸 区间: %s ~ %s\n", formatTime(start), formatTime(end))
	fmt.Println()

	if !local {
		fmt.Print("🔄 正在回补K线...")
		begin := time.Now()
		n, err := ts.SyncBars(ctx, symbols, start, end)
		if err != nil {
			fmt.Printf("\n❌ 回补失败: %v\n", err)
			return err
		}
		fmt.Printf(" 完成! 新增 %d 条 (耗时: %v)\n\n", n, time.Since(begin))
	}

	for _, symbol := range symbols {
		if err := printBarOverview(ctx, ts, symbol, start, end, verbose, tf); err != nil {
			return err
		}
	}
	return nil
}

func printBarOverview(ctx context.Context, ts *trading.TradingSystem, symbol string, start, end time.Time, verbose bool, tf timeframes.Timeframe) error {
	bars, err := ts.Bars().Store().GetBarsInRange(ctx, symbol, start, end)
	if err != nil {
		return err
	}
	if len(bars) == 0 {
		fmt.Printf("⚠️ %s: 本地无数据\n\n", symbol)
		return nil
	}

	last := bars.Last()
	fmt.Printf("📈 %s (%d 条):\n", symbol, len(bars))
	fmt.Printf("├─ 最早时间: %s\n", formatTime(bars[0].Time))
	fmt.Printf("├─ 最新时间: %s\n", formatTime(last.Time))
	fmt.Printf("├─ 最新价格: %s\n", formatPrice(last.Close))
	fmt.Printf("└─ 最新成交量: %s\n", formatVolume(last.Volume))

	if verbose {
		recent, err := recentBars(bars, tf, 5)
		if err != nil {
			return err
		}
		fmt.Printf("最近 %d 根 %s K线:\n", len(recent), tf)
		printRecentBars(recent)
	}
	fmt.Println()
	return nil
}

// recentBars 把1分钟K线聚合到 tf 后取最近 n 根
func recentBars(w market.Window, tf timeframes.Timeframe, n int) (market.Window, error) {
	scale, err := tf.Scale()
	if err != nil {
		return nil, err
	}
	resampled, err := market.Resample(w, scale)
	if err != nil {
		return nil, err
	}
	return resampled.Tail(n), nil
}

func printRecentBars(bars market.Window) {
	fmt.Println("时间              | 开盘价   | 最高价   | 最低价   | 收盘价   | 成交量")
	fmt.Println("------------------|----------|----------|----------|----------|----------")
	for _, bar := range bars {
		fmt.Printf("%s | %8s | %8s | %8s | %8s | %8s\n",
			formatTime(bar.Time),
			formatPrice(bar.Open),
			formatPrice(bar.High),
			formatPrice(bar.Low),
			formatPrice(bar.Close),
			formatVolume(bar.Volume),
		)
	}

	if len(bars) >= 2 {
		latest := bars.Last()
		previous := bars.Prev()
		change := latest.Close.Sub(previous.Close)
		if previous.Close.IsZero() {
			return
		}
		fmt.Printf("📊 最近一根: %s (%s%%)\n", change.StringFixed(2),
			change.Div(previous.Close).Mul(decimal.NewFromInt(100)).StringFixed(2))
	}
}

// formatTime 格式化时间
func formatTime(t time.Time) string {
	return t.Format("2006-01-02 15:04")
}

// formatPrice 格式化价格
func formatPrice(price decimal.Decimal) string {
	return price.StringFixed(2)
}

// formatVolume 格式化成交量
func formatVolume(volume decimal.Decimal) string {
	if volume.GreaterThan(decimal.NewFromFloat(1000)) {
		return volume.Div(decimal.NewFromFloat(1000)).StringFixed(1) + "K"
	}
	return volume.StringFixed(0)
}
