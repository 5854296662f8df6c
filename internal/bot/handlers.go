package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// handleMessage processes a single message
func (b *Bot) handleMessage(message *tgbotapi.Message) {
	defer b.lockUser(message.From.ID)()

	// Recover from panics to prevent bot crashes
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in handleMessage",
				zap.Any("panic", r),
				zap.Int64("user_id", message.From.ID),
			)
			b.reply(message.Chat.ID, "An error occurred while processing your request. Please try again.")
		}
	}()

	userID := message.From.ID
	ctx := context.Background()

	if state, ok := b.getState(userID); ok {
		if state.Step == -1 || message.IsCommand() {
			// completed conversations are dropped and any command cancels an ongoing one
			b.deleteState(userID)
		} else {
			b.handleConversation(ctx, message, state)
			return
		}
	}

	if !message.IsCommand() {
		return
	}

	switch message.Command() {
	case "start", "help":
		b.handleStart(message)
	case "books":
		b.handleBooks(ctx, message)
	case "new_book":
		b.handleNewBookStart(message)
	case "new_client":
		b.handleNewClientStart(message)
	case "borrow":
		b.handleBorrowStart(ctx, message)
	case "client_books":
		b.handleClientBooksStart(ctx, message)
	case "fee":
		b.handleFee(message)
	default:
		b.reply(message.Chat.ID, "Unknown command. Use /start to see available commands.")
	}
}

// handleCallbackQuery processes inline keyboard button clicks
func (b *Bot) handleCallbackQuery(query *tgbotapi.CallbackQuery) {
	defer b.lockUser(query.From.ID)()

	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in handleCallbackQuery",
				zap.Any("panic", r),
				zap.String("callback_data", query.Data),
			)
		}
	}()

	userID := query.From.ID
	ctx := context.Background()

	// Answer the callback query to remove loading state
	if b.api != nil {
		if _, err := b.api.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
			b.logger.Warn("Failed to answer callback query", zap.Error(err))
		}
	}

	state, ok := b.getState(userID)
	if !ok || query.Message == nil {
		return
	}

	prefix, _, _ := strings.Cut(query.Data, ":")
	switch prefix {
	case prefixBorrowBook:
		b.handleBorrowBookCallback(ctx, query, state)
	case prefixBorrowClient:
		b.handleBorrowClientCallback(ctx, query, state)
	case prefixClientBooks:
		b.handleClientBooksCallback(ctx, query, state)
	}

	// Clean up completed conversations
	if state.Step == -1 {
		b.deleteState(userID)
	}
}
