package orders

import (
	"time"

	"equitybot/src/tracking"

	"github.com/xpwu/go-config/configs"
)

// Config 订单生命周期配置
type Config struct {
	BuyTimeoutSec        int                  `json:"buy_timeout_sec"`        // 买单未成交撤单时间
	SellTimeoutSec       int                  `json:"sell_timeout_sec"`       // 卖单未成交撤单时间
	Retry                tracking.RetryPolicy `json:"retry"`                  // 撤单后重提预算
	LoseStreakLimit      int                  `json:"lose_streak_limit"`      // 连败多少次拉黑
	BlacklistCooldownMin int                  `json:"blacklist_cooldown_min"` // 拉黑时长(分钟)
	FailedSellRetryMin   int                  `json:"failed_sell_retry_min"`  // 卖出转人工后多久再试一次，0 不重试
}

// OrdersConfigValue 订单配置实例
var OrdersConfigValue = Config{
	BuyTimeoutSec:        60,
	SellTimeoutSec:       30,
	Retry:                tracking.RetryPolicy{Enabled: true, Limit: 3},
	LoseStreakLimit:      3,
	BlacklistCooldownMin: 24 * 60,
	FailedSellRetryMin:   5,
}

func init() {
	configs.Unmarshal(&OrdersConfigValue)
}

// Timeout 按方向取超时
func (c Config) Timeout(sell bool) time.Duration {
	if sell {
		return time.Duration(c.SellTimeoutSec) * time.Second
	}
	return time.Duration(c.BuyTimeoutSec) * time.Second
}

// Cooldown 拉黑时长
func (c Config) Cooldown() time.Duration {
	return time.Duration(c.BlacklistCooldownMin) * time.Minute
}

// FailedSellRetry 转人工标的的重试间隔
func (c Config) FailedSellRetry() time.Duration {
	return time.Duration(c.FailedSellRetryMin) * time.Minute
}
