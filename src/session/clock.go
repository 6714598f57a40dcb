package session

import (
	"sync"
	"time"
)

// Clock 时间来源，实盘用系统时间，回测用虚拟时间
type Clock interface {
	Now() time.Time
}

// RealClock 系统时间
type RealClock struct{}

// Now 当前时间
func (RealClock) Now() time.Time {
	return time.Now()
}

// VirtualClock 回测虚拟时钟，由驱动方推进
type VirtualClock struct {
	mu  sync.RWMutex
	now time.Time
}

// NewVirtualClock 创建虚拟时钟
func NewVirtualClock(start time.Time) *VirtualClock {
	return &VirtualClock{now: start}
}

// Now 虚拟当前时间
func (c *VirtualClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Set 跳到指定时间
func (c *VirtualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance 向前推进
func (c *VirtualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}
