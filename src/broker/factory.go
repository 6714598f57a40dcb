package broker

import (
	"fmt"
	"sort"
	"sync"
)

// Factory 券商客户端工厂
type Factory interface {
	CreateClient() (Broker, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// RegisterFactory 注册券商工厂，同名覆盖
func RegisterFactory(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// CreateBroker 按名称创建券商客户端
func CreateBroker(name string) (Broker, error) {
	registryMu.RLock()
	factory, exists := registry[name]
	registryMu.RUnlock()

	if !exists || factory == nil {
		return nil, fmt.Errorf("unsupported broker: %s", name)
	}
	return factory.CreateClient()
}

// GetSupportedBrokers 已注册的券商，按名称排序
func GetSupportedBrokers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
