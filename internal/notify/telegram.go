package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/raine/tori-extract/internal/extraction"
	"github.com/rs/zerolog/log"
)

// maxListedItems caps how many item names go into one message.
const maxListedItems = 10

// BotAPI is the part of the Telegram bot API the notifier needs.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier posts a message to a chat whenever an extraction job
// finishes.
type TelegramNotifier struct {
	tg     BotAPI
	chatID int64
}

// NewTelegramNotifier creates a notifier sending to chatID.
func NewTelegramNotifier(tg BotAPI, chatID int64) *TelegramNotifier {
	return &TelegramNotifier{tg: tg, chatID: chatID}
}

// NewBotAPI connects to Telegram with token.
func NewBotAPI(token string) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	log.Info().Str("username", api.Self.UserName).Msg("telegram notifier authorized")
	return api, nil
}

// JobFinished implements extraction.Notifier.
func (n *TelegramNotifier) JobFinished(ctx context.Context, job extraction.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(n.chatID, formatJob(job))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	if _, err := n.tg.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

func formatJob(job extraction.Job) string {
	var b strings.Builder
	name := job.SourceName
	if name == "" {
		name = job.ID
	}

	switch job.Status {
	case extraction.StatusCompleted:
		fmt.Fprintf(&b, "<b>Extraction completed</b>: %s\n", html.EscapeString(name))
		fmt.Fprintf(&b, "%s, %s", pluralize("frame", "frames", len(job.Frames)), pluralize("sellable item", "sellable items", len(job.Items)))
		for i, it := range job.Items {
			if i == maxListedItems {
				fmt.Fprintf(&b, "\n… and %d more", len(job.Items)-maxListedItems)
				break
			}
			fmt.Fprintf(&b, "\n• %s (%.0f €)", html.EscapeString(it.Name), it.EstimatedPrice)
		}
	default:
		fmt.Fprintf(&b, "<b>Extraction failed</b>: %s\n", html.EscapeString(name))
		fmt.Fprintf(&b, "%s", html.EscapeString(job.Error))
	}

	fmt.Fprintf(&b, "\n<code>%s</code>", html.EscapeString(job.ID))
	return b.String()
}
