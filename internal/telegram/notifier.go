package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Notifier posts delivery-failure alerts to the admin chat. It satisfies
// accountability.Alerter.
type Notifier struct {
	bot    BotAPI
	chatID int64
	log    *zap.Logger
}

func NewNotifier(bot BotAPI, chatID int64, log *zap.Logger) *Notifier {
	return &Notifier{bot: bot, chatID: chatID, log: log}
}

func (n *Notifier) Alert(_ context.Context, text string) {
	if _, err := n.bot.Send(tgbotapi.NewMessage(n.chatID, "⚠️ "+text)); err != nil {
		n.log.Warn("telegram alert failed", zap.Error(err))
	}
}
