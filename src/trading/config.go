package trading

import (
	"github.com/xpwu/go-config/configs"
)

// TradingConfig 交易系统配置
type TradingConfig struct {
	SyncLookbackDays int  `json:"sync_lookback_days"` // bars 命令默认回补天数
	PersistBacktest  bool `json:"persist_backtest"`   // 回测的订单、交易、会话日志写入主库
}

// TradingConfigValue 交易系统配置实例
var TradingConfigValue = TradingConfig{
	SyncLookbackDays: 5,
	PersistBacktest:  false,
}

func init() {
	configs.Unmarshal(&TradingConfigValue)
}
