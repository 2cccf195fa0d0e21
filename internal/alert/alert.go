// Package alert sends operator notifications for auto-reduce triggers
// and worker terminations over Telegram
// (github.com/go-telegram-bot-api/telegram-bot-api/v5), a teacher direct
// dependency with no wired consumer in the retrieved source — this is
// its home (SPEC_FULL §4.13).
package alert

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"hedgegrid/logger"
)

// Sink receives operator-facing notifications. A nil *Telegram is a
// valid Sink: every method becomes a no-op, so alerting is optional
// without the scheduler needing a feature flag.
type Sink interface {
	AutoReduceTriggered(symbol string, side string, qty, price float64)
	WorkerTerminated(symbol, reason string)
	Errorf(format string, args ...interface{})
}

// Telegram is a Sink backed by a single chat.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegram constructs a Telegram sink. An empty token yields a nil
// *Telegram (use NoopSink instead) rather than an error, since alerting
// is an optional ambient concern, not a startup precondition.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	if token == "" {
		return nil, nil
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	return &Telegram{bot: bot, chatID: chatID}, nil
}

func (t *Telegram) send(text string) {
	if t == nil || t.bot == nil {
		return
	}
	msg := tgbotapi.NewMessage(t.chatID, text)
	if _, err := t.bot.Send(msg); err != nil {
		logger.Infof("telegram send failed: %v", err)
	}
}

func (t *Telegram) AutoReduceTriggered(symbol, side string, qty, price float64) {
	t.send(fmt.Sprintf("[auto-reduce] %s %s qty=%.6f price=%.4f", symbol, side, qty, price))
}

func (t *Telegram) WorkerTerminated(symbol, reason string) {
	t.send(fmt.Sprintf("[worker terminated] %s: %s", symbol, reason))
}

func (t *Telegram) Errorf(format string, args ...interface{}) {
	t.send("[error] " + fmt.Sprintf(format, args...))
}

// NoopSink discards every notification; used when Telegram is not
// configured.
type NoopSink struct{}

func (NoopSink) AutoReduceTriggered(string, string, float64, float64) {}
func (NoopSink) WorkerTerminated(string, string)                      {}
func (NoopSink) Errorf(string, ...interface{})                        {}
