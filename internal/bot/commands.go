package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"booklending/internal/models"
)

const (
	commandNewBook     = "new_book"
	commandNewClient   = "new_client"
	commandBorrow      = "borrow"
	commandClientBooks = "client_books"
	commandFee         = "fee"

	prefixBorrowBook   = "borrow_book"
	prefixBorrowClient = "borrow_client"
	prefixClientBooks  = "client_books"
)

// handleStart shows welcome message and available commands
func (b *Bot) handleStart(message *tgbotapi.Message) {
	text := `Welcome to the Library Lending Bot! 📚

Available commands:
/books - List all books and their status
/new_book - Register a new book
/new_client - Register a new client
/borrow - Lend a book to a client
/client_books - Show a client's borrowed books and late fees
/fee <days> - Quote the late-return fee for a number of days late`

	b.reply(message.Chat.ID, text)
}

// handleBooks lists the catalogue
func (b *Bot) handleBooks(ctx context.Context, message *tgbotapi.Message) {
	books, err := b.service.ListBooks(ctx)
	if err != nil {
		b.logger.Error("Failed to list books", zap.Error(err))
		b.reply(message.Chat.ID, fmt.Sprintf("Error: %v", err))
		return
	}

	if len(books) == 0 {
		b.reply(message.Chat.ID, "No books registered yet. Add one with /new_book")
		return
	}

	b.reply(message.Chat.ID, formatBooks(books))
}

// handleNewBookStart initiates the new book conversation
func (b *Bot) handleNewBookStart(message *tgbotapi.Message) {
	b.setState(message.From.ID, &ConversationState{
		Command: commandNewBook,
		Step:    1,
		Data:    make(map[string]interface{}),
	})

	b.reply(message.Chat.ID, "Please enter the book title:")
}

// handleNewClientStart initiates the new client conversation
func (b *Bot) handleNewClientStart(message *tgbotapi.Message) {
	b.setState(message.From.ID, &ConversationState{
		Command: commandNewClient,
		Step:    1,
		Data:    make(map[string]interface{}),
	})

	b.reply(message.Chat.ID, "Please enter the client name:")
}

// handleBorrowStart shows the available books to lend
func (b *Bot) handleBorrowStart(ctx context.Context, message *tgbotapi.Message) {
	books, err := b.service.ListBooks(ctx)
	if err != nil {
		b.logger.Error("Failed to list books", zap.Error(err))
		b.reply(message.Chat.ID, fmt.Sprintf("Error: %v", err))
		return
	}

	var buttons []tgbotapi.InlineKeyboardButton
	for _, book := range books {
		if book.IsBorrowed() {
			continue
		}
		buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(book.Title, callbackData(prefixBorrowBook, book.ID)))
	}

	if len(buttons) == 0 {
		b.reply(message.Chat.ID, "No available books to lend.")
		return
	}

	b.setState(message.From.ID, &ConversationState{
		Command: commandBorrow,
		Step:    1,
		Data:    make(map[string]interface{}),
	})

	msg := tgbotapi.NewMessage(message.Chat.ID, "📚 Select a book:")
	msg.ReplyMarkup = keyboard(buttons)
	b.sendMessage(msg)
}

// handleClientBooksStart asks which client's books to show
func (b *Bot) handleClientBooksStart(ctx context.Context, message *tgbotapi.Message) {
	clients, err := b.service.ListClients(ctx)
	if err != nil {
		b.logger.Error("Failed to list clients", zap.Error(err))
		b.reply(message.Chat.ID, fmt.Sprintf("Error: %v", err))
		return
	}

	if len(clients) == 0 {
		b.reply(message.Chat.ID, "No clients registered yet. Add one with /new_client")
		return
	}

	b.setState(message.From.ID, &ConversationState{
		Command: commandClientBooks,
		Step:    1,
		Data:    make(map[string]interface{}),
	})

	msg := tgbotapi.NewMessage(message.Chat.ID, "👤 Select a client:")
	msg.ReplyMarkup = clientKeyboard(clients, prefixClientBooks)
	b.sendMessage(msg)
}

// handleFee quotes the fee for /fee <days>, or asks for the days when none are given
func (b *Bot) handleFee(message *tgbotapi.Message) {
	args := strings.TrimSpace(message.CommandArguments())
	if args == "" {
		b.setState(message.From.ID, &ConversationState{
			Command: commandFee,
			Step:    1,
			Data:    make(map[string]interface{}),
		})
		b.reply(message.Chat.ID, "Please enter the number of days late:")
		return
	}

	b.quoteFee(message.Chat.ID, args)
}

func clientKeyboard(clients []models.Client, prefix string) tgbotapi.InlineKeyboardMarkup {
	buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(clients))
	for _, client := range clients {
		buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(client.Name, callbackData(prefix, client.ID)))
	}
	return keyboard(buttons)
}

func formatBooks(books []models.Book) string {
	var text strings.Builder
	text.WriteString("Books:\n\n")
	for i, book := range books {
		text.WriteString(fmt.Sprintf("%d. %s - %s (%s)\n", i+1, book.Title, book.Author, book.Status))
	}
	return text.String()
}

func formatBorrowedBooks(clientName string, books []models.BorrowedBook) string {
	if len(books) == 0 {
		return fmt.Sprintf("%s has no borrowed books.", clientName)
	}

	var text strings.Builder
	text.WriteString(fmt.Sprintf("📚 Books borrowed by %s:\n\n", clientName))
	for i, book := range books {
		text.WriteString(fmt.Sprintf("%d. %s - %s\n   Borrowed: %s\n", i+1, book.Title, book.Author, book.BorrowedDate))
		if book.DaysLate > 0 {
			text.WriteString(fmt.Sprintf("   ⚠️ %d days late, fee %.2f%%\n", book.DaysLate, book.LateReturnFeePercentage))
		}
	}
	return text.String()
}
