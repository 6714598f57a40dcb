package binance

import (
	"github.com/xpwu/go-config/configs"
)

// Config 币安券商配置
type Config struct {
	APIKey         string  `json:"api_key"`          // API密钥
	SecretKey      string  `json:"secret_key"`       // API私钥
	BaseURL        string  `json:"base_url"`         // API地址
	Timeout        int     `json:"timeout"`          // 请求超时时间(秒)
	EnableTrading  bool    `json:"enable_trading"`   // 启用交易权限
	QuoteAsset     string  `json:"quote_asset"`      // 计价资产，持仓和榜单按此过滤
	TopN           int     `json:"top_n"`            // 涨跌幅榜条数
	MinQuoteVolume float64 `json:"min_quote_volume"` // 榜单最低24h成交额
	KlineLimit     int     `json:"kline_limit"`      // 单次拉取K线上限
}

// ConfigValue 币安配置实例
var ConfigValue = Config{
	APIKey:         "",
	SecretKey:      "",
	BaseURL:        "https://api.binance.com",
	Timeout:        10,
	EnableTrading:  false,
	QuoteAsset:     "USDT",
	TopN:           20,
	MinQuoteVolume: 1000000,
	KlineLimit:     1000,
}

func init() {
	configs.Unmarshal(&ConfigValue)
}
