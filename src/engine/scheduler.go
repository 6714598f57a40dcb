package engine

import (
	"context"
	"fmt"
	"time"

	"equitybot/src/timeframes"

	"github.com/robfig/cron/v3"
	"github.com/xpwu/go-log/log"
)

// Hook 会话事件
type Hook string

const (
	HookBegin Hook = "begin"
	HookEnd   Hook = "end"
	HookFinal Hook = "final"
)

// Scheduler 按交易时段触发 Begin/End/Final
//
// cron 在自己的 goroutine 里触发，这里只把事件投递到通道，
// 由 RunLive 的循环执行，引擎状态始终只在一个 goroutine 里修改。
type Scheduler struct {
	hours   timeframes.SessionHours
	leadMin int
	cron    *cron.Cron
	events  chan Hook
}

// NewScheduler leadMin 为盘后结束前提前触发 End 的分钟数
func NewScheduler(hours timeframes.SessionHours, cal *timeframes.Calendar, leadMin int) *Scheduler {
	return &Scheduler{
		hours:   hours,
		leadMin: leadMin,
		cron:    cron.New(cron.WithSeconds(), cron.WithLocation(cal.Location())),
		events:  make(chan Hook, 3),
	}
}

// Events 事件通道
func (s *Scheduler) Events() <-chan Hook {
	return s.events
}

// Specs 三个事件的 cron 表达式，周一到周五
func (s *Scheduler) Specs() (map[Hook]string, error) {
	open, err := clockMinutes(s.hours.PreOpen)
	if err != nil {
		return nil, err
	}
	closeAt, err := clockMinutes(s.hours.AfterClose)
	if err != nil {
		return nil, err
	}
	end := closeAt - s.leadMin
	if end <= open {
		return nil, fmt.Errorf("end_lead_min %d leaves no trading time", s.leadMin)
	}
	return map[Hook]string{
		HookBegin: weekdaySpec(open),
		HookEnd:   weekdaySpec(end),
		HookFinal: weekdaySpec(closeAt),
	}, nil
}

func clockMinutes(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func weekdaySpec(minutes int) string {
	return fmt.Sprintf("0 %d %d * * MON-FRI", minutes%60, minutes/60)
}

// Start 注册事件并启动 cron
func (s *Scheduler) Start(ctx context.Context) error {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("Scheduler")

	specs, err := s.Specs()
	if err != nil {
		return err
	}
	for _, hook := range []Hook{HookBegin, HookEnd, HookFinal} {
		hook := hook
		spec := specs[hook]
		if _, err := s.cron.AddFunc(spec, func() { s.fire(ctx, hook) }); err != nil {
			return fmt.Errorf("register %s %q: %w", hook, spec, err)
		}
		logger.Info(fmt.Sprintf("scheduled %s at %s", hook, spec))
	}
	s.cron.Start()
	return nil
}

func (s *Scheduler) fire(ctx context.Context, hook Hook) {
	select {
	case s.events <- hook:
	default:
		_, logger := log.WithCtx(ctx)
		logger.Error("事件通道已满，丢弃", "hook", hook)
	}
}

// Stop 停止 cron
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
