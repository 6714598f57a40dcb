package tracking

import (
	"sort"
)

// Tracker 会话内的跟踪集合，单线程访问
type Tracker struct {
	tickers map[string]*Ticker
	stats   map[string]*Stat
}

// NewTracker 创建跟踪集合
func NewTracker() *Tracker {
	return &Tracker{
		tickers: make(map[string]*Ticker),
		stats:   make(map[string]*Stat),
	}
}

// Get 按标的取
func (tr *Tracker) Get(symbol string) (*Ticker, bool) {
	t, ok := tr.tickers[symbol]
	return t, ok
}

// Add 加入跟踪，同名覆盖
func (tr *Tracker) Add(t *Ticker) {
	tr.tickers[t.Symbol] = t
}

// Remove 停止跟踪，Stat 保留
func (tr *Tracker) Remove(symbol string) {
	delete(tr.tickers, symbol)
}

// Len 跟踪数量
func (tr *Tracker) Len() int {
	return len(tr.tickers)
}

// Tickers 按标的排序，保证回测可复现
func (tr *Tracker) Tickers() []*Ticker {
	out := make([]*Ticker, 0, len(tr.tickers))
	for _, t := range tr.tickers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Open 持仓或有在途订单的标的
func (tr *Tracker) Open() []*Ticker {
	var out []*Ticker
	for _, t := range tr.Tickers() {
		if !t.IsFlat() {
			out = append(out, t)
		}
	}
	return out
}

// Stat 取统计，没有则创建
func (tr *Tracker) Stat(symbol string) *Stat {
	s, ok := tr.stats[symbol]
	if !ok {
		s = &Stat{Symbol: symbol}
		tr.stats[symbol] = s
	}
	return s
}

// SetStat 载入已有统计，同名覆盖
func (tr *Tracker) SetStat(s *Stat) {
	tr.stats[s.Symbol] = s
}

// Stats 全部统计，按标的排序
func (tr *Tracker) Stats() []*Stat {
	out := make([]*Stat, 0, len(tr.stats))
	for _, s := range tr.stats {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Clear 会话结束时清空标的，统计保留
func (tr *Tracker) Clear() {
	tr.tickers = make(map[string]*Ticker)
}
