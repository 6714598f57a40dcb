package cmd

import (
	"fmt"
	"strings"

	"equitybot/src/config"
	"equitybot/src/engine"
	"equitybot/src/trading"

	"github.com/xpwu/go-cmd/arg"
	"github.com/xpwu/go-cmd/cmd"
)

// RegisterTradeCmd 注册实盘/模拟盘命令
func RegisterTradeCmd() {
	var dry bool
	var brokerName string
	var styles string
	var poll int

	cmd.RegisterCmd("trade", "run live trading against the configured broker", func(args *arg.Arg) {
		args.Bool(&dry, "dry", "dry run: live quotes, simulated fills")
		args.String(&brokerName, "broker", "broker name (default: from config)")
		args.String(&styles, "styles", "comma separated styles, e.g. breakout_20,scalping")
		args.Int(&poll, "poll", "poll interval in seconds (minimum 1)")
		args.Parse()

		cfg := appConfig(config.ModeLive)
		if dry {
			cfg.Mode = config.ModeDry
		}
		if brokerName != "" {
			cfg.Broker = brokerName
		}
		if list := parseList(styles, false); len(list) > 0 {
			engine.EngineConfigValue.Styles = list
		}
		if poll > 0 {
			engine.EngineConfigValue.PollIntervalSec = poll
		}

		if err := runTrade(&cfg); err != nil {
			fmt.Printf("❌ Trading failed: %v\n", err)
		}
	})
}

func runTrade(cfg *config.Config) error {
	fmt.Println("🤖 Equity Trading System")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("🏢 Broker: %s\n", cfg.Broker)
	fmt.Printf("🎯 Styles: %s\n", strings.Join(engine.EngineConfigValue.Styles, ", "))
	fmt.Printf("⏱️ Poll: %ds\n", engine.EngineConfigValue.PollIntervalSec)

	if err := engine.EngineConfigValue.Validate(); err != nil {
		return err
	}

	fmt.Printf("🔧 Initializing trading system...\n")
	ts, err := trading.NewTradingSystem(cfg)
	if err != nil {
		return fmt.Errorf("failed to create trading system: %w", err)
	}
	defer ts.Stop()

	if err := ts.Initialize(ts.Context()); err != nil {
		return err
	}
	stopOnSignal(ts)

	if cfg.IsDryRun() {
		fmt.Println("🧪 Dry Run mode")
		fmt.Println("💡 Using real-time quotes with simulated orders")
	} else {
		fmt.Println("🔴 Live trading mode")
		fmt.Println("⚠️  WARNING: This will use real money!")
	}
	fmt.Println("Press Ctrl+C to stop...")

	return ts.RunLiveTrading(ts.Context())
}
