package notify

import (
	"context"
	"fmt"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xpwu/go-config/configs"
	"github.com/xpwu/go-log/log"
)

// TelegramConfig Telegram 通知配置
type TelegramConfig struct {
	Token  string `json:"token"`   // 机器人令牌，为空时不启用
	ChatID int64  `json:"chat_id"` // 接收通知的会话
	Prefix string `json:"prefix"`  // 消息前缀
}

// TelegramConfigValue Telegram 配置实例
var TelegramConfigValue = TelegramConfig{
	Token:  "",
	ChatID: 0,
	Prefix: "[equitybot]",
}

func init() {
	configs.Unmarshal(&TelegramConfigValue)
}

// TelegramNotifier 通过 Telegram 机器人发送
type TelegramNotifier struct {
	bot    *tgbot.BotAPI
	config TelegramConfig
}

// NewTelegramNotifier 创建 Telegram 通知
func NewTelegramNotifier(config TelegramConfig) (*TelegramNotifier, error) {
	if config.Token == "" {
		return nil, fmt.Errorf("telegram token is empty")
	}
	bot, err := tgbot.NewBotAPI(config.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &TelegramNotifier{bot: bot, config: config}, nil
}

// Notify 发送消息，失败只记日志
func (t *TelegramNotifier) Notify(ctx context.Context, message string) {
	_, logger := log.WithCtx(ctx)
	logger.PushPrefix("Telegram")

	text := message
	if t.config.Prefix != "" {
		text = t.config.Prefix + " " + message
	}
	if _, err := t.bot.Send(tgbot.NewMessage(t.config.ChatID, text)); err != nil {
		logger.Error(fmt.Sprintf("send telegram message failed: %v", err))
	}
}

// New 按配置选择通知渠道，Telegram 不可用时退回日志
func New(ctx context.Context, config TelegramConfig) Notifier {
	_, logger := log.WithCtx(ctx)
	logger.PushPrefix("Notify")

	if config.Token == "" {
		return LogNotifier{}
	}
	tg, err := NewTelegramNotifier(config)
	if err != nil {
		logger.Error(fmt.Sprintf("telegram disabled: %v", err))
		return LogNotifier{}
	}
	return Multi{LogNotifier{}, tg}
}
