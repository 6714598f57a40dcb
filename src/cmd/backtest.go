package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"equitybot/src/backtest"
	"equitybot/src/broker"
	"equitybot/src/config"
	"equitybot/src/engine"
	"equitybot/src/trading"

	"github.com/xpwu/go-cmd/arg"
	"github.com/xpwu/go-cmd/cmd"
)

// RegisterBacktestCmd 注册回测命令
func RegisterBacktestCmd() {
	var startDate, endDate string
	var capital float64
	var styles, universe string
	var step int
	var sync bool
	var output string
	var showTrades int

	cmd.RegisterCmd("backtest", "replay stored 1-minute bars through the trading engine", func(args *arg.Arg) {
		args.String(&startDate, "start", "start date YYYY-MM-DD (default: from config)")
		args.String(&endDate, "end", "end date YYYY-MM-DD (default: from config)")
		args.Float64(&capital, "capital", "initial capital (default: from config)")
		args.String(&styles, "styles", "comma separated styles, e.g. breakout_20,turtle")
		args.String(&universe, "universe", "comma separated symbols (default: config, profiles, then every stored symbol)")
		args.Int(&step, "step", "virtual clock step in seconds")
		args.Bool(&sync, "sync", "fetch missing bars from the broker before replay")
		args.String(&output, "o", "write the full result as JSON to this file")
		args.Int(&showTrades, "trades", "number of recent trades to print (default: 10)")
		args.Parse()

		cfg := appConfig(config.ModeBacktest)
		if startDate != "" {
			cfg.Backtest.StartDate = startDate
		}
		if endDate != "" {
			cfg.Backtest.EndDate = endDate
		}
		if capital > 0 {
			cfg.Backtest.InitialCapital = capital
		}
		if step > 0 {
			cfg.Backtest.StepSec = step
		}
		if list := parseList(universe, true); len(list) > 0 {
			cfg.Universe = list
		}
		if list := parseList(styles, false); len(list) > 0 {
			engine.EngineConfigValue.Styles = list
		}
		if showTrades <= 0 {
			showTrades = 10
		}

		if err := runBacktest(&cfg, sync, output, showTrades); err != nil {
			fmt.Printf("❌ Backtest failed: %v\n", err)
		}
	})
}

func runBacktest(cfg *config.Config, sync bool, output string, showTrades int) error {
	fmt.Println("🤖 Equity Backtest")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("📅 Period: %s ~ %s\n", cfg.Backtest.StartDate, cfg.Backtest.EndDate)
	fmt.Printf("🎯 Styles: %s\n", strings.Join(engine.EngineConfigValue.Styles, ", "))
	fmt.Printf("💰 Initial Capital: $%.2f\n", cfg.Backtest.InitialCapital)

	ts, err := trading.NewTradingSystem(cfg)
	if err != nil {
		return fmt.Errorf("failed to create trading system: %w", err)
	}
	defer ts.Stop()

	if sync {
		client, err := broker.CreateBroker(cfg.Broker)
		if err != nil {
			return err
		}
		ts.SetBroker(client)
	}
	if err := ts.Initialize(ts.Context()); err != nil {
		return err
	}
	stopOnSignal(ts)

	if sync {
		symbols, err := ts.Universe(ts.Context())
		if err != nil {
			return err
		}
		start, _ := cfg.GetStartTime()
		end, _ := cfg.GetEndTime()
		fmt.Printf("🔄 Syncing bars for %d symbols...\n", len(symbols))
		n, err := ts.SyncBars(ts.Context(), symbols, start, end.AddDate(0, 0, 1))
		if err != nil {
			return fmt.Errorf("sync bars: %w", err)
		}
		fmt.Printf("✅ Stored %d new bars\n", n)
	}

	result, err := ts.RunBacktest(ts.Context())
	if err != nil {
		return err
	}

	printResult(result, showTrades)

	if output != "" {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(output, data, 0644); err != nil {
			return err
		}
		fmt.Printf("💾 Result written to %s\n", output)
	}
	return nil
}

func printResult(result *backtest.Result, showTrades int) {
	fmt.Printf("\n🆔 Run: %s\n", result.RunID)
	fmt.Printf("📆 Sessions: %d, Orders: %d\n", len(result.Sessions), result.Orders)
	if result.Survivors > 0 {
		fmt.Printf("⚠️ Days ending with open positions: %d\n", result.Survivors)
	}
	for _, a := range result.Alerts {
		fmt.Printf("🚨 %s\n", a)
	}

	result.Stats.Print(os.Stdout)

	if len(result.Trades) == 0 {
		return
	}
	from := len(result.Trades) - showTrades
	if from < 0 {
		from = 0
	}
	fmt.Printf("\n📋 Recent Trades (%d/%d):\n", len(result.Trades)-from, len(result.Trades))
	fmt.Println("标的    | 风格          | 买入时间          | 买入     | 卖出     | 盈亏      | 原因")
	fmt.Println("--------|---------------|------------------|----------|----------|-----------|--------")
	for _, tr := range result.Trades[from:] {
		fmt.Printf("%-7s | %-13s | %s | %8s | %8s | %9s | %s\n",
			tr.Symbol,
			tr.Style,
			tr.BuyTime.Format("2006-01-02 15:04"),
			formatPrice(tr.BuyPrice),
			formatPrice(tr.SellPrice),
			formatPrice(tr.PnL),
			tr.Reason,
		)
	}
}
