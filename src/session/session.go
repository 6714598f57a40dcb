package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xpwu/go-log/log"
)

// Entry 会话日志条目
type Entry struct {
	Time   time.Time `json:"time"`
	Symbol string    `json:"symbol"`
	Event  string    `json:"event"`
	Detail string    `json:"detail"`
}

// Sink 会话日志落地
type Sink interface {
	SaveSessionLog(ctx context.Context, sessionID string, entries []Entry) error
}

// Session 一个交易会话的上下文：日志缓冲和策略标签缓存
type Session struct {
	mu      sync.Mutex
	id      string
	clock   Clock
	entries []Entry
	tags    map[string]string
}

// New 创建会话
func New(clock Clock) *Session {
	return &Session{
		id:    uuid.NewString(),
		clock: clock,
		tags:  make(map[string]string),
	}
}

// ID 会话ID
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Clock 会话时钟
func (s *Session) Clock() Clock {
	return s.clock
}

// Now 会话当前时间
func (s *Session) Now() time.Time {
	return s.clock.Now()
}

// Log 追加一条拒绝或状态迁移记录
func (s *Session) Log(symbol, event, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, Entry{
		Time:   s.clock.Now(),
		Symbol: symbol,
		Event:  event,
		Detail: detail,
	})
}

// Logf 格式化追加
func (s *Session) Logf(symbol, event, format string, args ...interface{}) {
	s.Log(symbol, event, fmt.Sprintf(format, args...))
}

// Entries 日志快照
func (s *Session) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.entries...)
}

// Tag 策略标签
func (s *Session) Tag(symbol string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tag, ok := s.tags[symbol]
	return tag, ok
}

// SetTag 记录标的归属的策略
func (s *Session) SetTag(symbol, tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags[symbol] = tag
}

// Flush 写出日志并清空缓冲，sink 为空时只打印条数
func (s *Session) Flush(ctx context.Context, sink Sink) error {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("Session")

	s.mu.Lock()
	entries := s.entries
	id := s.id
	s.entries = nil
	s.mu.Unlock()

	if len(entries) == 0 {
		return nil
	}
	if sink == nil {
		logger.Info(fmt.Sprintf("session %s dropped %d log entries without sink", id, len(entries)))
		return nil
	}

	if err := sink.SaveSessionLog(ctx, id, entries); err != nil {
		// 写失败时放回缓冲，下次再试
		s.mu.Lock()
		s.entries = append(entries, s.entries...)
		s.mu.Unlock()
		return fmt.Errorf("failed to flush session log: %w", err)
	}

	logger.Info(fmt.Sprintf("session %s flushed %d log entries", id, len(entries)))
	return nil
}

// Reset 会话边界：清空日志和标签，换新ID
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = uuid.NewString()
	s.entries = nil
	s.tags = make(map[string]string)
}
