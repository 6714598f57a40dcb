package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/xpwu/go-log/log"
)

// Notifier 运维通知，发送失败只记日志
type Notifier interface {
	Notify(ctx context.Context, message string)
}

// LogNotifier 只写日志，未配置 Telegram 时使用
type LogNotifier struct{}

// Notify 写错误日志
func (LogNotifier) Notify(ctx context.Context, message string) {
	_, logger := log.WithCtx(ctx)
	logger.PushPrefix("Notify")
	logger.Error(message)
}

// Recorder 记录所有通知，回测报告和测试使用
type Recorder struct {
	mu       sync.Mutex
	messages []string
}

// Notify 记录
func (r *Recorder) Notify(ctx context.Context, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
}

// Messages 已记录的通知
func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

// Count 通知条数
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

// Multi 同时发给多个通知渠道
type Multi []Notifier

// Notify 依次转发
func (m Multi) Notify(ctx context.Context, message string) {
	for _, n := range m {
		n.Notify(ctx, message)
	}
}

// Alertf 格式化后通知
func Alertf(ctx context.Context, n Notifier, format string, args ...interface{}) {
	if n == nil {
		return
	}
	n.Notify(ctx, fmt.Sprintf(format, args...))
}
