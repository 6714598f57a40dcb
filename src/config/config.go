package config

import (
	"fmt"
	"time"

	"equitybot/src/broker"

	"github.com/shopspring/decimal"
	"github.com/xpwu/go-config/configs"
)

// 运行模式
const (
	ModeLive     = "live"
	ModeDry      = "dry"
	ModeBacktest = "backtest"
)

const dateLayout = "2006-01-02"

// ConfigError 配置错误，引擎不会启动
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Config 主配置结构
type Config struct {
	Broker   string         `conf:"broker,券商 - 目前支持binance"`
	Mode     string         `conf:"mode,运行模式 - live=实盘,dry=模拟盘,backtest=回测"`
	Universe []string       `conf:"universe,回测候选池 - 为空时取本地库中全部有K线的标的"`
	Profiles string         `conf:"profiles,标的档案文件 - JSON，板块、流通股、成交额"`
	Token    TokenConfig    `conf:"token,会话令牌续期"`
	Backtest BacktestConfig `conf:"backtest,回测配置"`
}

// TokenConfig 令牌续期配置
type TokenConfig struct {
	RefreshSpec string `conf:"refresh_spec,续期 cron 表达式(含秒)"`
}

// BacktestConfig 回测配置
type BacktestConfig struct {
	StartDate      string  `conf:"start_date,回测开始日期"`
	EndDate        string  `conf:"end_date,回测结束日期"`
	InitialCapital float64 `conf:"initial_capital,初始资金"`
	Commission     float64 `conf:"commission,手续费率"`
	FillMarkup     float64 `conf:"fill_markup,成交价偏移 - 买入高于突破位、卖出低于低点的比例"`
	StepSec        int     `conf:"step_sec,虚拟时钟步长(秒)"`
}

// AppConfig 全局配置实例
var AppConfig = &Config{
	Broker:   "binance",
	Mode:     ModeBacktest,
	Universe: []string{},
	Profiles: "",
	Token: TokenConfig{
		RefreshSpec: "0 */30 * * * *",
	},
	Backtest: BacktestConfig{
		StartDate:      "2024-03-04",
		EndDate:        "2024-03-08",
		InitialCapital: 100000,
		Commission:     0,
		FillMarkup:     0.01,
		StepSec:        60,
	},
}

// 在包的 init() 函数中注册配置
func init() {
	configs.Unmarshal(AppConfig)
}

// Validate 验证配置，错误为 *ConfigError
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeLive, ModeDry, ModeBacktest:
	default:
		return invalid("mode", "invalid trading mode: %s", c.Mode)
	}

	if c.Mode != ModeBacktest && !c.isSupportedBroker() {
		return invalid("broker", "broker %s is not supported, supported: %v", c.Broker, broker.GetSupportedBrokers())
	}

	if c.Mode == ModeBacktest {
		start, err := c.GetStartTime()
		if err != nil {
			return invalid("backtest.start_date", "invalid start date format: %s", c.Backtest.StartDate)
		}
		end, err := c.GetEndTime()
		if err != nil {
			return invalid("backtest.end_date", "invalid end date format: %s", c.Backtest.EndDate)
		}
		if end.Before(start) {
			return invalid("backtest.end_date", "end date %s before start date %s", c.Backtest.EndDate, c.Backtest.StartDate)
		}
	}

	if c.Backtest.InitialCapital <= 0 {
		return invalid("backtest.initial_capital", "initial capital must be positive")
	}
	if c.Backtest.Commission < 0 || c.Backtest.FillMarkup < 0 {
		return invalid("backtest", "commission and fill markup must not be negative")
	}
	if c.Backtest.StepSec < 1 {
		return invalid("backtest.step_sec", "step must be at least 1 second, got %d", c.Backtest.StepSec)
	}
	return nil
}

func (c *Config) isSupportedBroker() bool {
	for _, name := range broker.GetSupportedBrokers() {
		if name == c.Broker {
			return true
		}
	}
	return false
}

// GetStartTime 获取回测开始日期
func (c *Config) GetStartTime() (time.Time, error) {
	return time.Parse(dateLayout, c.Backtest.StartDate)
}

// GetEndTime 获取回测结束日期
func (c *Config) GetEndTime() (time.Time, error) {
	return time.Parse(dateLayout, c.Backtest.EndDate)
}

// GetInitialCapital 获取初始资金
func (c *Config) GetInitialCapital() decimal.Decimal {
	return decimal.NewFromFloat(c.Backtest.InitialCapital)
}

// GetCommission 获取手续费率
func (c *Config) GetCommission() decimal.Decimal {
	return decimal.NewFromFloat(c.Backtest.Commission)
}

// GetFillMarkup 获取成交价偏移
func (c *Config) GetFillMarkup() decimal.Decimal {
	return decimal.NewFromFloat(c.Backtest.FillMarkup)
}

// IsLiveMode 是否为实盘模式
func (c *Config) IsLiveMode() bool {
	return c.Mode == ModeLive
}

// IsDryRun 是否为模拟盘
func (c *Config) IsDryRun() bool {
	return c.Mode == ModeDry
}

// IsBacktestMode 是否为回测模式
func (c *Config) IsBacktestMode() bool {
	return c.Mode == ModeBacktest
}
