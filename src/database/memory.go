package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"equitybot/src/market"
	"equitybot/src/session"
	"equitybot/src/tracking"
)

// MemoryStore 内存存储，回测隔离订单数据和测试使用
type MemoryStore struct {
	mu        sync.RWMutex
	bars      map[string]market.Window
	orders    map[string]*tracking.Order
	positions map[string]*tracking.Position
	trades    map[string]*tracking.Trade
	tradeSeq  []string
	logs      map[string][]session.Entry
	stats     map[string]*tracking.Stat
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bars:      make(map[string]market.Window),
		orders:    make(map[string]*tracking.Order),
		positions: make(map[string]*tracking.Position),
		trades:    make(map[string]*tracking.Trade),
		logs:      make(map[string][]session.Entry),
		stats:     make(map[string]*tracking.Stat),
	}
}

// SaveBar 保存单根K线
func (m *MemoryStore) SaveBar(ctx context.Context, symbol string, bar *market.Bar) error {
	return m.SaveBars(ctx, symbol, []*market.Bar{bar})
}

// SaveBars 按开盘时间去重，保持升序
func (m *MemoryStore) SaveBars(ctx context.Context, symbol string, bars []*market.Bar) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w := m.bars[symbol]
	for _, bar := range bars {
		i := sort.Search(len(w), func(i int) bool { return !w[i].Time.Before(bar.Time) })
		if i < len(w) && w[i].Time.Equal(bar.Time) {
			w[i] = bar
			continue
		}
		w = append(w, nil)
		copy(w[i+1:], w[i:])
		w[i] = bar
	}
	m.bars[symbol] = w
	return nil
}

// GetBars 截至 asOf 的最近 count 根
func (m *MemoryStore) GetBars(ctx context.Context, symbol string, asOf time.Time, count int) (market.Window, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w := m.bars[symbol]
	end := sort.Search(len(w), func(i int) bool { return w[i].Time.After(asOf) })
	start := end - count
	if start < 0 {
		start = 0
	}
	return append(market.Window(nil), w[start:end]...), nil
}

// GetBarsInRange [start, end) 内的K线
func (m *MemoryStore) GetBarsInRange(ctx context.Context, symbol string, start, end time.Time) (market.Window, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w := m.bars[symbol]
	lo := sort.Search(len(w), func(i int) bool { return !w[i].Time.Before(start) })
	hi := sort.Search(len(w), func(i int) bool { return !w[i].Time.Before(end) })
	if hi < lo {
		hi = lo
	}
	return append(market.Window(nil), w[lo:hi]...), nil
}

// LatestBarTime 最新K线时间
func (m *MemoryStore) LatestBarTime(ctx context.Context, symbol string) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if last := m.bars[symbol].Last(); last != nil {
		return last.Time, nil
	}
	return time.Time{}, nil
}

// ListSymbols 有K线的标的
func (m *MemoryStore) ListSymbols(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	symbols := make([]string, 0, len(m.bars))
	for s, w := range m.bars {
		if len(w) > 0 {
			symbols = append(symbols, s)
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// SaveOrder 保存订单副本
func (m *MemoryStore) SaveOrder(ctx context.Context, order *tracking.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := *order
	m.orders[order.ID] = &o
	return nil
}

// Order 按订单号取
func (m *MemoryStore) Order(id string) (*tracking.Order, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	return o, ok
}

// SavePosition 保存持仓副本
func (m *MemoryStore) SavePosition(ctx context.Context, position *tracking.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := *position
	p.OrderIDs = append([]string(nil), position.OrderIDs...)
	m.positions[position.Symbol] = &p
	return nil
}

// DeletePosition 删除持仓
func (m *MemoryStore) DeletePosition(ctx context.Context, symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.positions, symbol)
	return nil
}

// LoadPositions 按标的排序
func (m *MemoryStore) LoadPositions(ctx context.Context) ([]*tracking.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*tracking.Position, 0, len(m.positions))
	for _, p := range m.positions {
		c := *p
		c.OrderIDs = append([]string(nil), p.OrderIDs...)
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// SaveTrade 同一交易只记一次
func (m *MemoryStore) SaveTrade(ctx context.Context, trade *tracking.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trades[trade.ID]; ok {
		return nil
	}
	t := *trade
	m.trades[trade.ID] = &t
	m.tradeSeq = append(m.tradeSeq, trade.ID)
	return nil
}

// Trades 按写入顺序
func (m *MemoryStore) Trades() []*tracking.Trade {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*tracking.Trade, 0, len(m.tradeSeq))
	for _, id := range m.tradeSeq {
		out = append(out, m.trades[id])
	}
	return out
}

// SaveSessionLog 追加会话日志
func (m *MemoryStore) SaveSessionLog(ctx context.Context, sessionID string, entries []session.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs[sessionID] = append(m.logs[sessionID], entries...)
	return nil
}

// SessionLog 取会话日志
func (m *MemoryStore) SessionLog(sessionID string) []session.Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]session.Entry(nil), m.logs[sessionID]...)
}

// SaveStats 保存统计副本
func (m *MemoryStore) SaveStats(ctx context.Context, stats []*tracking.Stat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, st := range stats {
		c := *st
		m.stats[st.Symbol] = &c
	}
	return nil
}

// LoadStats 按标的排序
func (m *MemoryStore) LoadStats(ctx context.Context) ([]*tracking.Stat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*tracking.Stat, 0, len(m.stats))
	for _, st := range m.stats {
		c := *st
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// Close 无资源
func (m *MemoryStore) Close() error {
	return nil
}
