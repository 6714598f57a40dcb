package cmd

import (
	"fmt"
	"sort"
	"strings"

	"equitybot/src/engine"
	"equitybot/src/strategy"

	"github.com/xpwu/go-cmd/arg"
	"github.com/xpwu/go-cmd/cmd"
)

// RegisterStylesCmd 注册风格列表命令
func RegisterStylesCmd() {
	var name string

	cmd.RegisterCmd("styles", "list configured trading styles, policies and take-profit presets", func(args *arg.Arg) {
		args.String(&name, "n", "show a single style")
		args.Parse()

		if name != "" {
			p, err := strategy.StylesConfigValue.Lookup(name)
			if err != nil {
				fmt.Printf("❌ %v\n", err)
				return
			}
			printStyle(p)
			return
		}
		listStyles()
	})
}

func listStyles() {
	enabled := make(map[string]bool)
	for _, s := range engine.EngineConfigValue.Styles {
		enabled[s] = true
	}

	fmt.Printf("📋 Trading Styles\n")
	fmt.Printf("==================================================\n")
	for _, name := range strategy.StylesConfigValue.Names() {
		p, _ := strategy.StylesConfigValue.Lookup(name)
		mark := "  "
		if enabled[name] {
			mark = "✅"
		}
		fmt.Printf("%s %-14s %-4s 入场周期 %-3d %s/%s/%s\n",
			mark, name, p.Timeframe(), p.EntryPeriod, p.EntryCheck, p.StopLossRule, p.ExitCheck)
	}
	fmt.Println()

	fmt.Printf("🧩 Policies\n")
	policies := strategy.PolicyNames()
	kinds := make([]string, 0, len(policies))
	for k := range policies {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Printf("   %-15s %s\n", k, strings.Join(policies[k], ", "))
	}
	fmt.Println()

	listTakeProfitPresets()
}

func printStyle(p strategy.Params) {
	fmt.Printf("🎯 %s\n", p.Style)
	fmt.Printf("   K线: %s x %d (回看 %v)\n", p.Timeframe(), p.WindowSize, p.Lookback())
	fmt.Printf("   周期: 入场 %d, 离场 %d\n", p.EntryPeriod, p.ExitPeriod)
	fmt.Printf("   候选: %s, 每轮 %d, 同时跟踪 %d\n", p.Ranking, p.MaxCandidates, p.MaxTickers)
	fmt.Printf("   仓位: %.0f x %d\n", p.UnitAmount, p.TargetUnits)
	fmt.Printf("   入场检查: %s\n", p.EntryCheck)
	fmt.Printf("   止损规则: %s (比例 %.1f%%, ATR %d x %.1f)\n", p.StopLossRule, p.StopRatio*100, p.ATRPeriod, p.ATRMultiple)
	fmt.Printf("   离场检查: %s\n", p.ExitCheck)
	fmt.Printf("   涨幅规则: %s (最小 %.1f%%)\n", p.ROCRule, p.MinROC*100)
	if p.TakeProfit != "" {
		fmt.Printf("   止盈: %s %s\n", p.TakeProfit, p.TakeProfitParams)
	}
}

// listTakeProfitPresets 预设止盈
func listTakeProfitPresets() {
	fmt.Printf("💡 Take-Profit Presets\n")

	presets := strategy.GetDefaultTakeProfitConfigs()
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		c := presets[name]
		switch c.Type {
		case strategy.TakeProfitFixed:
			fmt.Printf("   %-13s fixed %.1f%%\n", name, c.FixedTakeProfit*100)
		case strategy.TakeProfitTrailing:
			fmt.Printf("   %-13s trailing %.1f%% after %.1f%%\n", name, c.TrailingPercent*100, c.MinProfitForTrailing*100)
		case strategy.TakeProfitCombo:
			fmt.Printf("   %-13s fixed %.1f%%, trailing %.1f%% after %.1f%%, max %d min\n",
				name, c.FixedTakeProfit*100, c.TrailingPercent*100, c.MinProfitForTrailing*100, c.MaxHoldingMin)
		}
	}
	fmt.Println()
}
