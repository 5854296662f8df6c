package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// sendMessage delivers a message and logs delivery failures
func (b *Bot) sendMessage(msg tgbotapi.Chattable) {
	if b.send == nil {
		return // For testing
	}

	if err := b.send(msg); err != nil {
		b.logger.Warn("Failed to send message", zap.Error(err))
	}
}

// reply sends a plain text message to the chat
func (b *Bot) reply(chatID int64, text string) {
	b.sendMessage(tgbotapi.NewMessage(chatID, text))
}

// keyboard lays out buttons two per row
func keyboard(buttons []tgbotapi.InlineKeyboardButton) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var currentRow []tgbotapi.InlineKeyboardButton
	for i, button := range buttons {
		currentRow = append(currentRow, button)

		// Add row when we have 2 buttons or it's the last one
		if len(currentRow) == 2 || i == len(buttons)-1 {
			rows = append(rows, currentRow)
			currentRow = []tgbotapi.InlineKeyboardButton{}
		}
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// callbackData builds the payload of an inline button; Telegram limits it to 64 bytes
func callbackData(prefix string, id uuid.UUID) string {
	return fmt.Sprintf("%s:%s", prefix, id)
}
