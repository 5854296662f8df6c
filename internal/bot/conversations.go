package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"booklending/internal/lending"
)

// handleConversation processes multi-step conversations
func (b *Bot) handleConversation(ctx context.Context, message *tgbotapi.Message, state *ConversationState) {
	userID := message.From.ID

	switch state.Command {
	case commandNewBook:
		b.handleNewBookConversation(ctx, message, state)
	case commandNewClient:
		b.handleNewClientConversation(ctx, message, state)
	case commandFee:
		b.handleFeeConversation(message, state)
	}
	// borrow and client_books continue through inline keyboard callbacks only

	// Clean up completed conversations
	if state.Step == -1 {
		b.deleteState(userID)
	}
}

// handleNewBookConversation asks for the title, then the author
func (b *Bot) handleNewBookConversation(ctx context.Context, message *tgbotapi.Message, state *ConversationState) {
	switch state.Step {
	case 1: // Waiting for title
		title := strings.TrimSpace(message.Text)
		if title == "" {
			b.reply(message.Chat.ID, "The title cannot be empty. Please enter the book title:")
			return
		}
		if utf8.RuneCountInString(title) > lending.MaxTitleLength {
			b.reply(message.Chat.ID, fmt.Sprintf("The title is too long (max %d characters). Please enter the book title:", lending.MaxTitleLength))
			return
		}
		state.Data["title"] = title
		state.Step = 2
		b.reply(message.Chat.ID, "Please enter the author:")

	case 2: // Waiting for author
		title := state.Data["title"].(string)
		author := strings.TrimSpace(message.Text)
		if author == "" {
			b.reply(message.Chat.ID, "The author cannot be empty. Please enter the author:")
			return
		}

		book, err := b.service.RegisterBook(ctx, title, author)
		if err != nil {
			b.reply(message.Chat.ID, fmt.Sprintf("Error creating book: %v", err))
		} else {
			b.reply(message.Chat.ID, fmt.Sprintf("✅ Book registered!\n\n📚 %s - %s", book.Title, book.Author))
		}

		state.Step = -1 // Mark conversation as complete
	}
}

// handleNewClientConversation registers the client named in the message
func (b *Bot) handleNewClientConversation(ctx context.Context, message *tgbotapi.Message, state *ConversationState) {
	name := strings.TrimSpace(message.Text)
	if name == "" {
		b.reply(message.Chat.ID, "The name cannot be empty. Please enter the client name:")
		return
	}

	client, err := b.service.RegisterClient(ctx, name)
	if err != nil {
		b.reply(message.Chat.ID, fmt.Sprintf("Error creating client: %v", err))
	} else {
		b.reply(message.Chat.ID, fmt.Sprintf("✅ Client registered: %s", client.Name))
	}

	state.Step = -1
}

// handleFeeConversation waits for a valid number of days late
func (b *Bot) handleFeeConversation(message *tgbotapi.Message, state *ConversationState) {
	if b.quoteFee(message.Chat.ID, strings.TrimSpace(message.Text)) {
		state.Step = -1
	}
}

// quoteFee replies with the fee for the given days late and reports whether the input was valid
func (b *Bot) quoteFee(chatID int64, input string) bool {
	daysLate, err := strconv.Atoi(input)
	if err != nil {
		b.reply(chatID, "❌ Invalid number of days. Please enter a whole number\n\nExample: 4")
		return false
	}

	quote := b.service.QuoteFee(daysLate)
	if quote.FeeRate == 0 {
		b.reply(chatID, fmt.Sprintf("No late-return fee for %d days late.", daysLate))
		return true
	}

	b.reply(chatID, fmt.Sprintf("💰 Late-return fee for %d days late: %.2f%%", daysLate, quote.FeePercentage))
	return true
}
