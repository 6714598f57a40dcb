package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"equitybot/src/tracking"

	"github.com/shopspring/decimal"
)

// ProfileStatusActive 可交易
const ProfileStatusActive = "TRADING"

// SymbolProfile 标的档案
type SymbolProfile struct {
	Symbol    string          `json:"symbol"`
	Status    string          `json:"status"`
	Sector    string          `json:"sector"`
	FreeFloat decimal.Decimal `json:"free_float"` // 流通股数
	Turnover  decimal.Decimal `json:"turnover"`   // 日均成交额
}

// ProfileManager 标的档案管理器
type ProfileManager struct {
	profiles map[string]*SymbolProfile
	mu       sync.RWMutex
}

// NewProfileManager 创建标的档案管理器
func NewProfileManager() *ProfileManager {
	return &ProfileManager{
		profiles: make(map[string]*SymbolProfile),
	}
}

// LoadFromFile 从文件加载档案
func (m *ProfileManager) LoadFromFile(filePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read profile file: %w", err)
	}

	var profiles []*SymbolProfile
	if err := json.Unmarshal(data, &profiles); err != nil {
		return &ConfigError{Field: "profiles", Reason: err.Error()}
	}

	// 重新构建索引
	m.profiles = make(map[string]*SymbolProfile)
	for _, p := range profiles {
		if p.Symbol == "" {
			return &ConfigError{Field: "profiles", Reason: "profile without symbol"}
		}
		m.profiles[p.Symbol] = p
	}
	return nil
}

// SaveToFile 保存档案到文件，按标的排序
func (m *ProfileManager) SaveToFile(filePath string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	profiles := make([]*SymbolProfile, 0, len(m.profiles))
	for _, p := range m.profiles {
		profiles = append(profiles, p)
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Symbol < profiles[j].Symbol })

	data, err := json.MarshalIndent(profiles, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal profiles: %w", err)
	}
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write profile file: %w", err)
	}
	return nil
}

// IsActive 档案存在且可交易
func (m *ProfileManager) IsActive(symbol string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, exists := m.profiles[symbol]
	return exists && p.Status == ProfileStatusActive
}

// Get 获取档案
func (m *ProfileManager) Get(symbol string) (*SymbolProfile, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, exists := m.profiles[symbol]
	return p, exists
}

// ActiveSymbols 可交易的标的，按标的排序
func (m *ProfileManager) ActiveSymbols() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var symbols []string
	for symbol, p := range m.profiles {
		if p.Status == ProfileStatusActive {
			symbols = append(symbols, symbol)
		}
	}
	sort.Strings(symbols)
	return symbols
}

// Add 添加或覆盖档案
func (m *ProfileManager) Add(p *SymbolProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.profiles[p.Symbol] = p
}

// Remove 移除档案
func (m *ProfileManager) Remove(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.profiles, symbol)
}

// Len 档案数
func (m *ProfileManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.profiles)
}

// Apply 把档案写入标的统计，已有的连胜连败保持不变
func (m *ProfileManager) Apply(tracker *tracking.Tracker) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for symbol, p := range m.profiles {
		st := tracker.Stat(symbol)
		st.Sector = p.Sector
		st.FreeFloat = p.FreeFloat
		st.Turnover = p.Turnover
	}
	return len(m.profiles)
}
