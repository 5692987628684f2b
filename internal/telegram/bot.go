package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/vyud-ai/vyud/internal/models"
	"github.com/vyud-ai/vyud/internal/service"
)

const botQuizListLimit = 10

// BotAPI is the subset of *tgbotapi.BotAPI the account bot needs.
type BotAPI interface {
	Sender
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot answers account commands: registration, balance and saved quizzes.
type Bot struct {
	api     BotAPI
	log     *slog.Logger
	credits *service.CreditService
	quizzes *service.QuizService
}

func NewBot(api BotAPI, log *slog.Logger, credits *service.CreditService, quizzes *service.QuizService) *Bot {
	return &Bot{api: api, log: log, credits: credits, quizzes: quizzes}
}

// Commands is the menu registered with Telegram.
func Commands() tgbotapi.SetMyCommandsConfig {
	return tgbotapi.NewSetMyCommands(
		tgbotapi.BotCommand{Command: "start", Description: "Запустить VYUD 🚀"},
		tgbotapi.BotCommand{Command: "profile", Description: "Мои кредиты ⚡️"},
		tgbotapi.BotCommand{Command: "quizzes", Description: "Мои тесты 📚"},
		tgbotapi.BotCommand{Command: "help", Description: "Как это работает? 📖"},
	)
}

func (b *Bot) Run(ctx context.Context) error {
	if _, err := b.api.Request(Commands()); err != nil {
		b.log.Warn("set bot commands failed", "err", err)
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.log.Info("telegram bot started")

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message != nil && update.Message.IsCommand() {
				b.handleCommand(ctx, update.Message)
			}
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		}
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	switch msg.Command() {
	case "start":
		acc, created, err := b.ensureAccount(ctx, msg.From)
		if err != nil {
			b.replyError(msg.Chat.ID, "ensure account", err)
			return
		}
		if created {
			b.log.Info("telegram account registered", "account", acc.Key, "telegram_id", msg.From.ID)
		}
		b.sendHTML(msg.Chat.ID, fmt.Sprintf(
			"<b>Привет! Я твой AI-ассистент VYUD</b> 🚀\n\n"+
				"Я превращаю видео, аудио и PDF в обучающие тесты за секунды.\n\n"+
				"⚡️ Твой баланс: <b>%d кредитов</b>\n\n"+
				"<i>Команды: /profile, /quizzes, /help</i>",
			acc.Credits,
		))
	case "profile", "balance":
		acc, _, err := b.ensureAccount(ctx, msg.From)
		if err != nil {
			b.replyError(msg.Chat.ID, "profile", err)
			return
		}
		b.sendHTML(msg.Chat.ID, profileText(msg.From, acc))
	case "quizzes":
		key := accountKey(msg.From)
		quizzes, err := b.quizzes.QuizzesForOwner(ctx, key, botQuizListLimit)
		if err != nil {
			b.replyError(msg.Chat.ID, "list quizzes", err)
			return
		}
		b.sendHTML(msg.Chat.ID, quizListText(quizzes))
	case "help":
		b.sendHTML(msg.Chat.ID,
			"📖 <b>Как это работает</b>\n\n"+
				"1. Отправьте материал, и мы соберём по нему тест.\n"+
				"2. Каждая генерация стоит 1 кредит.\n"+
				"3. Готовые тесты доступны по команде /quizzes.")
	default:
		b.sendHTML(msg.Chat.ID, "Неизвестная команда. Используйте /help.")
	}
}

func (b *Bot) ensureAccount(ctx context.Context, from *tgbotapi.User) (models.Account, bool, error) {
	telegramID := from.ID
	name := strings.TrimSpace(strings.TrimSpace(from.FirstName) + " " + strings.TrimSpace(from.LastName))
	return b.credits.EnsureAccount(ctx, accountKey(from), models.Profile{TelegramID: &telegramID, DisplayName: name})
}

func accountKey(from *tgbotapi.User) string {
	return models.TelegramAccountKey(from.UserName, from.ID)
}

func profileText(from *tgbotapi.User, acc models.Account) string {
	var sb strings.Builder
	name := from.UserName
	if name == "" {
		name = from.FirstName
	}
	fmt.Fprintf(&sb, "👤 Профиль: %s\n⚡️ Баланс: %d кредитов", html.EscapeString(name), acc.Credits)
	if acc.Tariff != "" {
		fmt.Fprintf(&sb, "\n📦 Тариф: %s", html.EscapeString(acc.Tariff))
	}
	if acc.IsPremium && acc.SubscriptionExpires != nil {
		fmt.Fprintf(&sb, "\n📅 Подписка до: %s", acc.SubscriptionExpires.Format("02.01.2006"))
	}
	return sb.String()
}

func quizListText(quizzes []models.Quiz) string {
	if len(quizzes) == 0 {
		return "📭 У вас пока нет сохранённых тестов."
	}
	var sb strings.Builder
	sb.WriteString("📚 <b>Ваши тесты</b>\n")
	for _, q := range quizzes {
		fmt.Fprintf(&sb, "\n<code>%s</code> %s (%d вопр.)", q.ID, html.EscapeString(q.Title), len(q.Questions))
	}
	return sb.String()
}

func (b *Bot) replyError(chatID int64, op string, err error) {
	b.log.Error("bot command failed", "op", op, "err", err)
	text := "Что-то пошло не так, попробуйте позже."
	if errors.Is(err, service.ErrUnavailable) {
		text = "Сервис временно недоступен, попробуйте через минуту."
	}
	b.sendHTML(chatID, text)
}

func (b *Bot) sendHTML(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send text", "err", err)
	}
}
