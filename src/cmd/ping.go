package cmd

import (
	"context"
	"fmt"
	"math"
	"time"

	"equitybot/src/broker"
	"equitybot/src/config"

	"github.com/xpwu/go-cmd/arg"
	"github.com/xpwu/go-cmd/cmd"
)

// serverClock 能返回服务器时间的券商
type serverClock interface {
	GetServerTime(ctx context.Context) (time.Time, error)
}

// RegisterPingCmd 注册ping测试命令
func RegisterPingCmd() {
	var verbose bool
	var timeout int
	var brokerName string

	cmd.RegisterCmd("ping", "test connectivity to the broker API", func(args *arg.Arg) {
		args.Bool(&verbose, "v", "verbose output with detailed information")
		args.Int(&timeout, "t", "timeout in seconds (default: 10)")
		args.String(&brokerName, "broker", "broker name (default: from config)")
		args.Parse()

		// 设置默认超时
		if timeout <= 0 {
			timeout = 10
		}
		if brokerName == "" {
			brokerName = config.AppConfig.Broker
		}

		err := runPingTest(brokerName, verbose, timeout)
		if err != nil {
			fmt.Printf("❌ Ping test failed: %v\n", err)
			return
		}
		fmt.Println("✅ Ping test successful!")
	})
}

// runPingTest 执行ping测试
func runPingTest(brokerName string, verbose bool, timeoutSeconds int) error {
	client, err := broker.CreateBroker(brokerName)
	if err != nil {
		return err
	}

	if verbose {
		fmt.Println("🌐 券商API连通性测试")
		fmt.Println("================================")
		fmt.Printf("📡 券商: %s\n", client.GetName())
		fmt.Printf("⏰ 超时时间: %d秒\n", timeoutSeconds)
		fmt.Println()
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSeconds)*time.Second)
	defer cancel()

	if verbose {
		fmt.Print("🔄 正在测试连接...")
	}

	startTime := time.Now()
	err = client.Ping(ctx)
	latency := time.Since(startTime)

	if err != nil {
		if verbose {
			fmt.Printf("\n❌ 连接失败: %v\n", err)
			fmt.Printf("⏱️ 测试耗时: %v\n", latency)
		}
		return err
	}

	if !verbose {
		return nil
	}

	fmt.Printf(" 完成!\n")
	fmt.Printf("✅ 服务器响应正常\n")
	fmt.Printf("⏱️ 响应延迟: %v\n", latency)
	fmt.Println()

	if sc, ok := client.(serverClock); ok {
		fmt.Print("🕐 获取服务器时间...")
		serverTime, timeErr := sc.GetServerTime(ctx)
		if timeErr == nil {
			fmt.Printf(" %v\n", serverTime.Format("2006-01-02 15:04:05 MST"))

			timeDiff := int64(math.Abs(float64(serverTime.Unix() - time.Now().Unix())))
			fmt.Printf("⏰ 本地时间差: %ds", timeDiff)
			if timeDiff > 60 {
				fmt.Printf(" ⚠️ 时间差较大，行情时间可能错位")
			}
			fmt.Println()
		} else {
			fmt.Printf(" 失败: %v\n", timeErr)
		}
		fmt.Println()
	}

	fmt.Println("📊 连接状态: 正常")
	fmt.Printf("🌍 网络质量: %s\n", latencyQuality(latency))
	return nil
}

// latencyQuality 延迟分级
func latencyQuality(latency time.Duration) string {
	switch {
	case latency < 100*time.Millisecond:
		return "优秀"
	case latency < 300*time.Millisecond:
		return "良好"
	case latency < 1000*time.Millisecond:
		return "一般"
	default:
		return "较差"
	}
}
