package binance

import (
	"equitybot/src/broker"
)

// Factory 币安工厂
type Factory struct{}

// CreateClient 按 ConfigValue 创建客户端
func (f *Factory) CreateClient() (broker.Broker, error) {
	return NewClient(ConfigValue), nil
}

func init() {
	broker.RegisterFactory("binance", &Factory{})
}
