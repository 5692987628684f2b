package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/vyud-ai/vyud/internal/service"
)

// Sender is the part of *tgbotapi.BotAPI used for outgoing messages.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier reports payments to the buyer and the admin chat.
type Notifier struct {
	api         Sender
	adminChatID int64
	log         *slog.Logger
}

func NewNotifier(api Sender, adminChatID int64, log *slog.Logger) *Notifier {
	return &Notifier{api: api, adminChatID: adminChatID, log: log}
}

// NotifyPayment messages the buyer, then the admin chat. A message is not
// sent once ctx is done; the Telegram client itself takes no context.
func (n *Notifier) NotifyPayment(ctx context.Context, receipt service.Receipt) error {
	var errs []error
	if receipt.TelegramID != nil && *receipt.TelegramID != 0 {
		if err := n.sendHTML(ctx, *receipt.TelegramID, buyerMessage(receipt)); err != nil {
			errs = append(errs, fmt.Errorf("notify buyer: %w", err))
		}
	}
	if n.adminChatID != 0 {
		if err := n.sendHTML(ctx, n.adminChatID, adminMessage(receipt)); err != nil {
			errs = append(errs, fmt.Errorf("notify admin: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (n *Notifier) sendHTML(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	_, err := n.api.Send(msg)
	return err
}

func buyerMessage(r service.Receipt) string {
	var b strings.Builder
	b.WriteString("🎉 <b>Оплата прошла успешно!</b>\n\n")
	fmt.Fprintf(&b, "📦 Тариф: <b>%s</b>\n", html.EscapeString(r.Product.Name))
	fmt.Fprintf(&b, "⚡ Начислено: <b>+%d</b> кредитов\n", r.CreditsAdded)
	fmt.Fprintf(&b, "💰 Ваш баланс: <b>%d</b> кредитов", r.NewCredits)
	if r.ExpiresAt != nil {
		fmt.Fprintf(&b, "\n📅 Действует до: %s", r.ExpiresAt.Format("02.01.2006"))
	}
	b.WriteString("\n\nСпасибо, что выбрали VYUD AI! 🚀\nНачать генерацию → /start")
	return b.String()
}

func adminMessage(r service.Receipt) string {
	var b strings.Builder
	b.WriteString("💰 <b>Новая оплата VYUD AI!</b>\n\n")
	fmt.Fprintf(&b, "📧 <code>%s</code>\n", html.EscapeString(r.AccountKey))
	fmt.Fprintf(&b, "📦 %s (%d₽)\n", html.EscapeString(r.Product.Name), r.Product.PriceRUB)
	fmt.Fprintf(&b, "⚡ +%d → баланс %d\n", r.CreditsAdded, r.NewCredits)
	fmt.Fprintf(&b, "🆔 %s\n", html.EscapeString(r.OrderID))
	fmt.Fprintf(&b, "🕐 %s", r.PaidAt.Format("15:04:05 02.01.2006"))
	return b.String()
}
