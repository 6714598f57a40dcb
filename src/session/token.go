package session

import (
	"context"
	"fmt"
	"sync"

	"equitybot/src/broker"

	"github.com/robfig/cron/v3"
	"github.com/xpwu/go-log/log"
)

// TokenKeeper 进程级会话令牌，按 cron 定时续期，读多写少
type TokenKeeper struct {
	source broker.TokenSource
	spec   string

	mu    sync.RWMutex
	token string

	cron *cron.Cron
}

// NewTokenKeeper spec 为带秒的 cron 表达式
func NewTokenKeeper(source broker.TokenSource, spec string) *TokenKeeper {
	return &TokenKeeper{
		source: source,
		spec:   spec,
		cron:   cron.New(cron.WithSeconds()),
	}
}

// Token 当前令牌
func (k *TokenKeeper) Token() string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.token
}

// Refresh 立即续期一次
func (k *TokenKeeper) Refresh(ctx context.Context) error {
	token, err := k.source.RefreshToken(ctx)
	if err != nil {
		return fmt.Errorf("refresh session token: %w", err)
	}

	k.mu.Lock()
	k.token = token
	k.mu.Unlock()
	return nil
}

// Start 先同步取一次令牌，再挂定时续期
func (k *TokenKeeper) Start(ctx context.Context) error {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("TokenKeeper")

	if err := k.Refresh(ctx); err != nil {
		return err
	}

	_, err := k.cron.AddFunc(k.spec, func() {
		if err := k.Refresh(ctx); err != nil {
			logger.Error(fmt.Sprintf("token refresh failed: %v", err))
			return
		}
		logger.Debug("session token refreshed")
	})
	if err != nil {
		return fmt.Errorf("register token refresh %q: %w", k.spec, err)
	}

	k.cron.Start()
	logger.Info(fmt.Sprintf("token keeper started, spec=%s", k.spec))
	return nil
}

// Stop 停止续期
func (k *TokenKeeper) Stop() {
	<-k.cron.Stop().Done()
}
