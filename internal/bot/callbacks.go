package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"booklending/internal/lending"
	"booklending/internal/models"
)

// handleBorrowBookCallback stores the selected book and asks for the client
func (b *Bot) handleBorrowBookCallback(ctx context.Context, query *tgbotapi.CallbackQuery, state *ConversationState) {
	if state.Command != commandBorrow || state.Step != 1 {
		return
	}
	chatID := query.Message.Chat.ID

	bookID, err := uuid.Parse(strings.TrimPrefix(query.Data, prefixBorrowBook+":"))
	if err != nil {
		b.reply(chatID, "Error: Invalid book selection")
		state.Step = -1
		return
	}

	book, err := b.service.GetBook(ctx, bookID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		state.Step = -1
		return
	}

	clients, err := b.service.ListClients(ctx)
	if err != nil {
		b.logger.Error("Failed to list clients in borrow callback",
			zap.Error(err),
			zap.Int64("user_id", query.From.ID),
		)
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		state.Step = -1
		return
	}
	if len(clients) == 0 {
		b.reply(chatID, "No clients registered yet. Add one with /new_client")
		state.Step = -1
		return
	}

	state.Data["book_id"] = book.ID
	state.Data["book_title"] = book.Title
	state.Step = 2

	msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("👤 Who is borrowing \"%s\"?", book.Title))
	msg.ReplyMarkup = clientKeyboard(clients, prefixBorrowClient)
	b.sendMessage(msg)
}

// handleBorrowClientCallback lends the selected book to the selected client
func (b *Bot) handleBorrowClientCallback(ctx context.Context, query *tgbotapi.CallbackQuery, state *ConversationState) {
	if state.Command != commandBorrow || state.Step != 2 {
		return
	}
	chatID := query.Message.Chat.ID

	bookID := state.Data["book_id"].(uuid.UUID)
	bookTitle := state.Data["book_title"].(string)

	clientID, err := uuid.Parse(strings.TrimPrefix(query.Data, prefixBorrowClient+":"))
	if err != nil {
		b.reply(chatID, "Error: Invalid client selection")
		state.Step = -1
		return
	}

	book, err := b.service.ReserveBook(ctx, bookID, clientID)
	var alreadyBorrowed *models.AlreadyBorrowedError
	switch {
	case err == nil:
		b.reply(chatID, fmt.Sprintf("✅ Book lent!\n\n📚 Book: %s\n📅 Borrowed: %s\n⏳ Return within %d days",
			bookTitle, book.BorrowedDate, models.ReservationPeriodDays))
	case errors.As(err, &alreadyBorrowed):
		b.reply(chatID, fmt.Sprintf("❌ \"%s\" is already borrowed.", bookTitle))
	case errors.Is(err, lending.ErrBookNotFound), errors.Is(err, lending.ErrClientNotFound):
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
	default:
		b.logger.Error("Failed to reserve book",
			zap.Error(err),
			zap.String("book_id", bookID.String()),
			zap.String("client_id", clientID.String()),
		)
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
	}

	state.Step = -1 // Mark conversation as complete
}

// handleClientBooksCallback shows the selected client's borrowed books with late fees
func (b *Bot) handleClientBooksCallback(ctx context.Context, query *tgbotapi.CallbackQuery, state *ConversationState) {
	if state.Command != commandClientBooks {
		return
	}
	chatID := query.Message.Chat.ID
	state.Step = -1

	clientID, err := uuid.Parse(strings.TrimPrefix(query.Data, prefixClientBooks+":"))
	if err != nil {
		b.reply(chatID, "Error: Invalid client selection")
		return
	}

	client, err := b.service.GetClient(ctx, clientID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	books, err := b.service.BorrowedBooks(ctx, clientID)
	if err != nil {
		b.logger.Error("Failed to list borrowed books",
			zap.Error(err),
			zap.String("client_id", clientID.String()),
		)
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	b.reply(chatID, formatBorrowedBooks(client.Name, books))
}
