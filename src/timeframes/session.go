package timeframes

import (
	"fmt"
	"time"

	"github.com/xpwu/go-config/configs"
)

// HourClass 交易时段类别
type HourClass string

const (
	HourClassClosed     HourClass = "closed"
	HourClassPreMarket  HourClass = "pre_market"
	HourClassRegular    HourClass = "regular"
	HourClassAfterHours HourClass = "after_hours"
)

// IsExtended 盘前盘后
func (c HourClass) IsExtended() bool {
	return c == HourClassPreMarket || c == HourClassAfterHours
}

// SessionHours 交易时段配置，时间为交易所当地时间 HH:MM
type SessionHours struct {
	Location     string `json:"location"`      // 交易所时区
	PreOpen      string `json:"pre_open"`      // 盘前开始
	RegularOpen  string `json:"regular_open"`  // 常规开盘
	RegularClose string `json:"regular_close"` // 常规收盘
	AfterClose   string `json:"after_close"`   // 盘后结束
}

// SessionConfigValue 交易时段配置实例
var SessionConfigValue = SessionHours{
	Location:     "America/New_York",
	PreOpen:      "04:00",
	RegularOpen:  "09:30",
	RegularClose: "16:00",
	AfterClose:   "20:00",
}

func init() {
	configs.Unmarshal(&SessionConfigValue)
}

// Calendar 时段计算器
type Calendar struct {
	loc          *time.Location
	preOpen      int
	regularOpen  int
	regularClose int
	afterClose   int
}

// NewCalendar 由配置创建时段计算器
func NewCalendar(h SessionHours) (*Calendar, error) {
	loc, err := time.LoadLocation(h.Location)
	if err != nil {
		return nil, fmt.Errorf("invalid session location %q: %w", h.Location, err)
	}

	c := &Calendar{loc: loc}
	fields := []struct {
		raw string
		dst *int
	}{
		{h.PreOpen, &c.preOpen},
		{h.RegularOpen, &c.regularOpen},
		{h.RegularClose, &c.regularClose},
		{h.AfterClose, &c.afterClose},
	}
	for _, f := range fields {
		m, err := parseClock(f.raw)
		if err != nil {
			return nil, err
		}
		*f.dst = m
	}

	if !(c.preOpen <= c.regularOpen && c.regularOpen < c.regularClose && c.regularClose <= c.afterClose) {
		return nil, fmt.Errorf("session hours out of order: %s %s %s %s",
			h.PreOpen, h.RegularOpen, h.RegularClose, h.AfterClose)
	}
	return c, nil
}

// MustDefaultCalendar 使用UTC的默认时段，测试和回测数据未带时区时使用
func MustDefaultCalendar() *Calendar {
	h := SessionConfigValue
	h.Location = "UTC"
	c, err := NewCalendar(h)
	if err != nil {
		panic(err)
	}
	return c
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Location 交易所时区
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// ClassOf 返回时刻所属时段
func (c *Calendar) ClassOf(t time.Time) HourClass {
	local := t.In(c.loc)
	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return HourClassClosed
	}

	m := local.Hour()*60 + local.Minute()
	switch {
	case m >= c.preOpen && m < c.regularOpen:
		return HourClassPreMarket
	case m >= c.regularOpen && m < c.regularClose:
		return HourClassRegular
	case m >= c.regularClose && m < c.afterClose:
		return HourClassAfterHours
	default:
		return HourClassClosed
	}
}

// SessionBounds 返回交易日从盘前开始到盘后结束的区间
func (c *Calendar) SessionBounds(day time.Time) (time.Time, time.Time) {
	local := day.In(c.loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc)
	return midnight.Add(time.Duration(c.preOpen) * time.Minute),
		midnight.Add(time.Duration(c.afterClose) * time.Minute)
}

// IsTradingDay 周一到周五
func (c *Calendar) IsTradingDay(day time.Time) bool {
	wd := day.In(c.loc).Weekday()
	return wd != time.Saturday && wd != time.Sunday
}
