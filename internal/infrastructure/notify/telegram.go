package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	"github.com/vitos/crypto_spread_arb/internal/domain"
	"go.uber.org/zap"
)

// TelegramNotifier delivers entry/exit events to a Telegram chat.
// Delivery is fire-and-forget: the send runs on its own goroutine with
// a short timeout and failures are only logged.
type TelegramNotifier struct {
	bot    *bot.Bot
	chatID int64
	logger *zap.Logger
}

func NewTelegramNotifier(token string, chatID int64, logger *zap.Logger) (*TelegramNotifier, error) {
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	return &TelegramNotifier{bot: b, chatID: chatID, logger: logger}, nil
}

func (n *TelegramNotifier) Notify(ctx context.Context, kind domain.EventKind, text string) {
	go func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		_, err := n.bot.SendMessage(sendCtx, &bot.SendMessageParams{
			ChatID: n.chatID,
			Text:   fmt.Sprintf("[%s] %s", kind, text),
		})
		if err != nil {
			n.logger.Warn("Telegram notification failed",
				zap.String("kind", string(kind)),
				zap.Error(err))
		}
	}()
}

// LogNotifier is the fallback when no Telegram token is configured:
// events only land in the log.
type LogNotifier struct {
	Logger *zap.Logger
}

func (n *LogNotifier) Notify(ctx context.Context, kind domain.EventKind, text string) {
	n.Logger.Info("Trade event",
		zap.String("kind", string(kind)),
		zap.String("text", text))
}
