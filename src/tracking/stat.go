package tracking

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stat 标的跨会话统计，比 Ticker 生命周期长
type Stat struct {
	Symbol         string          `json:"symbol"`
	WinStreak      int             `json:"win_streak"`
	LoseStreak     int             `json:"lose_streak"`
	Wins           int             `json:"wins"`
	Losses         int             `json:"losses"`
	BlacklistUntil time.Time       `json:"blacklist_until"`
	Sector         string          `json:"sector"`
	FreeFloat      decimal.Decimal `json:"free_float"`
	Turnover       decimal.Decimal `json:"turnover"`
}

// RecordTrade 平仓后更新连胜连败，连败达到 loseLimit 时拉黑 cooldown
func (s *Stat) RecordTrade(trade *Trade, loseLimit int, cooldown time.Duration) {
	if trade.IsWin() {
		s.Wins++
		s.WinStreak++
		s.LoseStreak = 0
		return
	}

	s.Losses++
	s.LoseStreak++
	s.WinStreak = 0
	if loseLimit > 0 && s.LoseStreak >= loseLimit {
		s.BlacklistUntil = trade.SellTime.Add(cooldown)
	}
}

// Blacklisted 冷却期内
func (s *Stat) Blacklisted(now time.Time) bool {
	return now.Before(s.BlacklistUntil)
}
