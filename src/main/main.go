package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	tradingcmd "equitybot/src/cmd"
	"equitybot/src/config"

	_ "equitybot/src/broker/binance"

	"github.com/xpwu/go-cmd/cmd"
	"github.com/xpwu/go-config/configs"
	"github.com/xpwu/go-log/log"
)

func main() {
	// 设置 JSON 配置格式
	configs.SetConfigurator(&configs.JsonConfig{})

	setupConfigPath()

	// 读取配置文件
	err := configs.ReadWithErr()
	if err != nil {
		// 如果读取失败，生成默认配置文件
		printErr := configs.Print()
		if printErr != nil {
			panic("生成默认配置文件失败: " + printErr.Error())
		}
		panic("请修改 config.json 配置文件后重新运行")
	}

	if err := config.AppConfig.Validate(); err != nil {
		fmt.Printf("❌ 配置验证失败: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("EquityBot")
	logger.Info(fmt.Sprintf("交易机器人启动, broker=%s mode=%s", config.AppConfig.Broker, config.AppConfig.Mode))

	tradingcmd.RegisterAllTradingCommands()

	cmd.Run()
}

// setupConfigPath 智能设置配置文件路径
// 优先级: 1. 可执行文件目录下的 config.json 2. 当前目录 config.json 3. 生成默认配置
func setupConfigPath() {
	execPath, err := os.Executable()
	if err != nil {
		return
	}

	execDir := filepath.Dir(execPath)
	binConfigPath := filepath.Join(execDir, "config.json")

	if _, err := os.Stat(binConfigPath); err == nil {
		os.Chdir(execDir)
		return
	}
}
