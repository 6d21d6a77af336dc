package tg

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/Spok95/lms-recordings/internal/models"
)

// Notifier пишет администраторам в Telegram о заявках на оплату.
// Без токена или без чатов работает как no-op.
type Notifier struct {
	bot     Sender
	chatIDs []int64
	log     *zap.Logger
}

func NewNotifier(token string, chatIDs []int64, log *zap.Logger) (*Notifier, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if token == "" || len(chatIDs) == 0 {
		log.Info("telegram notifications disabled")
		return &Notifier{log: log}, nil
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return NewNotifierWith(bot, chatIDs, log), nil
}

func NewNotifierWith(bot Sender, chatIDs []int64, log *zap.Logger) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{bot: bot, chatIDs: chatIDs, log: log}
}

func (n *Notifier) PaymentSubmitted(ctx context.Context, p *models.PaymentVerification) {
	text := fmt.Sprintf("💳 Новая заявка на оплату\nID: %s\nПользователь: %s\nКурс: %s\nТариф: %s\nСумма: %s\nРеквизиты: %s",
		p.ID, p.UserID, p.CourseID, p.PlanType, formatAmount(p.AmountCents), p.Reference)
	n.broadcast(ctx, text)
}

func (n *Notifier) PaymentReviewed(ctx context.Context, p *models.PaymentVerification) {
	mark := "✅"
	if p.Status == models.VerificationRejected {
		mark = "❌"
	}
	text := fmt.Sprintf("%s Заявка %s: %s", mark, p.ID, p.Status)
	n.broadcast(ctx, text)
}

func (n *Notifier) broadcast(ctx context.Context, text string) {
	if n == nil || n.bot == nil {
		return
	}
	for _, chatID := range n.chatIDs {
		if ctx.Err() != nil {
			return
		}
		if _, err := Send(n.bot, tgbotapi.NewMessage(chatID, text)); err != nil {
			n.log.Warn("telegram send failed", zap.Int64("chat_id", chatID), zap.Error(err))
		}
	}
}

func formatAmount(cents int64) string {
	sign := ""
	if cents < 0 {
		sign, cents = "-", -cents
	}
	return strings.TrimSpace(fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100))
}
