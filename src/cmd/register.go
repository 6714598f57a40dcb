package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"equitybot/src/config"
	"equitybot/src/trading"

	"github.com/xpwu/go-cmd/exe"
)

// RegisterAllTradingCommands 注册所有交易相关命令
func RegisterAllTradingCommands() {
	RegisterTradeCmd()
	RegisterBacktestCmd()
	RegisterBarsCmd()
	RegisterPingCmd()
	RegisterStylesCmd()
}

// appConfig 全局配置的拷贝，档案相对路径按可执行文件目录解析
func appConfig(mode string) config.Config {
	cfg := *config.AppConfig
	cfg.Mode = mode
	if cfg.Profiles != "" && !filepath.IsAbs(cfg.Profiles) {
		cfg.Profiles = filepath.Join(exe.Exe.AbsDir, cfg.Profiles)
	}
	return cfg
}

// parseList 逗号分隔的列表，去空白，可选转大写
func parseList(s string, upper bool) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if upper {
			item = strings.ToUpper(item)
		}
		out = append(out, item)
	}
	return out
}

// stopOnSignal 收到 SIGINT/SIGTERM 时停止交易系统
func stopOnSignal(ts *trading.TradingSystem) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-signalChan
		fmt.Println("\n🔄 Shutting down...")
		ts.Stop()
	}()
}
