package engine

import (
	"fmt"
	"time"

	"github.com/xpwu/go-config/configs"
)

// Config 交易引擎配置
type Config struct {
	PollIntervalSec int      `json:"poll_interval_sec"` // 轮询间隔，不小于1秒
	EndIterations   int      `json:"end_iterations"`    // 收盘强平的最大轮数
	FlattenAtEnd    bool     `json:"flatten_at_end"`    // 收盘前清仓
	EndLeadMin      int      `json:"end_lead_min"`      // 盘后结束前多少分钟触发 End
	Styles          []string `json:"styles"`            // 启用的交易风格
}

// EngineConfigValue 引擎配置实例
var EngineConfigValue = Config{
	PollIntervalSec: 5,
	EndIterations:   10,
	FlattenAtEnd:    true,
	EndLeadMin:      10,
	Styles:          []string{"breakout_20"},
}

func init() {
	configs.Unmarshal(&EngineConfigValue)
}

// Validate 验证配置
func (c Config) Validate() error {
	if c.PollIntervalSec < 1 {
		return fmt.Errorf("poll_interval_sec must be at least 1, got %d", c.PollIntervalSec)
	}
	if c.EndIterations < 1 {
		return fmt.Errorf("end_iterations must be positive, got %d", c.EndIterations)
	}
	if c.EndLeadMin < 0 {
		return fmt.Errorf("end_lead_min must not be negative, got %d", c.EndLeadMin)
	}
	if len(c.Styles) == 0 {
		return fmt.Errorf("at least one style is required")
	}
	return nil
}

// PollInterval 轮询间隔
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSec) * time.Second
}

// EndLead 盘后结束前触发 End 的提前量
func (c Config) EndLead() time.Duration {
	return time.Duration(c.EndLeadMin) * time.Minute
}
