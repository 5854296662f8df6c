package bot

import (
	"context"
	"strings"
	"sync"
	"testing"

	"cloud.google.com/go/civil"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"booklending/internal/lending"
	"booklending/internal/models"
	"booklending/internal/storage/stubs"
)

// Note: We can't easily mock tgbotapi.BotAPI, so tests capture outgoing messages
// through the send hook instead of talking to Telegram

const (
	userID = int64(123)
	chatID = int64(456)
)

type testBot struct {
	*Bot
	service *lending.Service
	sent    []tgbotapi.MessageConfig
}

func newTestBot(t *testing.T) *testBot {
	t.Helper()

	service := lending.NewService(stubs.NewMockDB(),
		lending.WithClock(func() civil.Date { return civil.Date{Year: 2024, Month: 3, Day: 1} }),
	)
	tb := &testBot{
		Bot:     newBot(service, []int64{userID}, zap.NewNop()),
		service: service,
	}
	tb.send = func(c tgbotapi.Chattable) error {
		if msg, ok := c.(tgbotapi.MessageConfig); ok {
			tb.sent = append(tb.sent, msg)
		}
		return nil
	}
	return tb
}

func (tb *testBot) lastText(t *testing.T) string {
	t.Helper()

	if len(tb.sent) == 0 {
		t.Fatal("Expected a message to be sent")
	}
	return tb.sent[len(tb.sent)-1].Text
}

func textMessage(text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		From: &tgbotapi.User{ID: userID},
		Chat: &tgbotapi.Chat{ID: chatID},
		Text: text,
	}
}

func commandMessage(command string) *tgbotapi.Message {
	message := textMessage(command)
	name, _, _ := strings.Cut(command, " ")
	message.Entities = []tgbotapi.MessageEntity{
		{Type: "bot_command", Offset: 0, Length: len(name)},
	}
	return message
}

func callback(data string) *tgbotapi.CallbackQuery {
	return &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: userID},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}},
		Data:    data,
	}
}

func TestBot_NewBookConversation(t *testing.T) {
	tb := newTestBot(t)
	ctx := context.Background()

	tb.handleMessage(commandMessage("/new_book"))

	state, ok := tb.getState(userID)
	if !ok {
		t.Fatal("Expected conversation state to be created")
	}
	if state.Command != commandNewBook {
		t.Errorf("Expected command 'new_book', got '%s'", state.Command)
	}
	if state.Step != 1 {
		t.Errorf("Expected step 1, got %d", state.Step)
	}

	tb.handleMessage(textMessage("Dune"))
	if state.Step != 2 {
		t.Errorf("Expected step 2, got %d", state.Step)
	}

	tb.handleMessage(textMessage("Frank Herbert"))
	if _, exists := tb.getState(userID); exists {
		t.Error("Expected completed conversation to be cleaned up")
	}

	books, err := tb.service.ListBooks(ctx)
	if err != nil {
		t.Fatalf("Failed to list books: %v", err)
	}
	if len(books) != 1 || books[0].Title != "Dune" || books[0].Author != "Frank Herbert" {
		t.Fatalf("Expected Dune by Frank Herbert to be created, got %+v", books)
	}
	if !strings.Contains(tb.lastText(t), "Book registered") {
		t.Errorf("Unexpected reply: %s", tb.lastText(t))
	}
}

func TestBot_NewBookRejectsEmptyTitle(t *testing.T) {
	tb := newTestBot(t)

	tb.handleMessage(commandMessage("/new_book"))
	tb.handleMessage(textMessage("   "))

	state, ok := tb.getState(userID)
	if !ok || state.Step != 1 {
		t.Fatal("Expected to stay on step 1")
	}
}

func TestBot_NewBookRejectsLongTitle(t *testing.T) {
	tb := newTestBot(t)

	tb.handleMessage(commandMessage("/new_book"))
	tb.handleMessage(textMessage(strings.Repeat("x", 101)))
	if !strings.Contains(tb.lastText(t), "too long") {
		t.Errorf("Unexpected reply: %s", tb.lastText(t))
	}
	state, ok := tb.getState(userID)
	if !ok || state.Step != 1 {
		t.Fatal("Expected to keep waiting for a title")
	}

	tb.handleMessage(textMessage("Dune"))
	tb.handleMessage(textMessage(strings.Repeat("y", 81)))
	if !strings.Contains(tb.lastText(t), "Error creating book") {
		t.Errorf("Unexpected reply: %s", tb.lastText(t))
	}

	books, err := tb.service.ListBooks(context.Background())
	if err != nil {
		t.Fatalf("Failed to list books: %v", err)
	}
	if len(books) != 0 {
		t.Errorf("Expected no book to be registered, got %d", len(books))
	}
}

// Webhook updates are handled in their own goroutines; run with -race
func TestBot_ConcurrentUpdatesFromOneUser(t *testing.T) {
	tb := newTestBot(t)

	tb.HandleUpdate(tgbotapi.Update{Message: commandMessage("/new_book")})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tb.HandleUpdate(tgbotapi.Update{Message: textMessage("Dune")})
		}()
	}
	wg.Wait()

	// title, author, then two messages with no conversation left
	books, err := tb.service.ListBooks(context.Background())
	if err != nil {
		t.Fatalf("Failed to list books: %v", err)
	}
	if len(books) != 1 {
		t.Fatalf("Expected exactly one book, got %d", len(books))
	}
	if books[0].Title != "Dune" || books[0].Author != "Dune" {
		t.Errorf("Unexpected book: %+v", books[0])
	}
	if _, exists := tb.getState(userID); exists {
		t.Error("Expected completed conversation to be cleaned up")
	}
}

func TestBot_NewClientConversation(t *testing.T) {
	tb := newTestBot(t)

	tb.handleMessage(commandMessage("/new_client"))
	tb.handleMessage(textMessage("Alice"))

	clients, err := tb.service.ListClients(context.Background())
	if err != nil {
		t.Fatalf("Failed to list clients: %v", err)
	}
	if len(clients) != 1 || clients[0].Name != "Alice" {
		t.Fatalf("Expected Alice to be created, got %+v", clients)
	}
	if _, exists := tb.getState(userID); exists {
		t.Error("Expected completed conversation to be cleaned up")
	}
}

func TestBot_BorrowFlow(t *testing.T) {
	tb := newTestBot(t)
	ctx := context.Background()

	book, err := tb.service.RegisterBook(ctx, "Dune", "Frank Herbert")
	if err != nil {
		t.Fatalf("Failed to create book: %v", err)
	}
	client, err := tb.service.RegisterClient(ctx, "Alice")
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	tb.handleMessage(commandMessage("/borrow"))
	state, ok := tb.getState(userID)
	if !ok || state.Command != commandBorrow {
		t.Fatal("Expected borrow conversation to be started")
	}
	markup, ok := tb.sent[len(tb.sent)-1].ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok || len(markup.InlineKeyboard) != 1 {
		t.Fatal("Expected an inline keyboard with the available book")
	}

	tb.handleCallbackQuery(callback(callbackData(prefixBorrowBook, book.ID)))
	if state.Step != 2 {
		t.Fatalf("Expected step 2, got %d", state.Step)
	}
	if state.Data["book_id"].(uuid.UUID) != book.ID {
		t.Error("Expected selected book to be stored in the conversation")
	}

	tb.handleCallbackQuery(callback(callbackData(prefixBorrowClient, client.ID)))
	if _, exists := tb.getState(userID); exists {
		t.Error("Expected completed conversation to be cleaned up")
	}
	if !strings.Contains(tb.lastText(t), "Book lent") {
		t.Errorf("Unexpected reply: %s", tb.lastText(t))
	}

	stored, err := tb.service.GetBook(ctx, book.ID)
	if err != nil {
		t.Fatalf("Failed to get book: %v", err)
	}
	if !stored.IsBorrowed() || *stored.ClientID != client.ID {
		t.Errorf("Expected book to be borrowed by %s, got %+v", client.ID, stored)
	}

	// The borrowed book is no longer offered
	tb.handleMessage(commandMessage("/borrow"))
	if tb.lastText(t) != "No available books to lend." {
		t.Errorf("Unexpected reply: %s", tb.lastText(t))
	}
}

func TestBot_BorrowAlreadyBorrowedBook(t *testing.T) {
	tb := newTestBot(t)
	ctx := context.Background()

	book, _ := tb.service.RegisterBook(ctx, "Dune", "Frank Herbert")
	alice, _ := tb.service.RegisterClient(ctx, "Alice")
	bob, _ := tb.service.RegisterClient(ctx, "Bob")

	tb.handleMessage(commandMessage("/borrow"))
	tb.handleCallbackQuery(callback(callbackData(prefixBorrowBook, book.ID)))

	// someone else borrows the book while the conversation is open
	if _, err := tb.service.ReserveBook(ctx, book.ID, alice.ID); err != nil {
		t.Fatalf("Failed to reserve book: %v", err)
	}

	tb.handleCallbackQuery(callback(callbackData(prefixBorrowClient, bob.ID)))
	if !strings.Contains(tb.lastText(t), "already borrowed") {
		t.Errorf("Unexpected reply: %s", tb.lastText(t))
	}

	stored, _ := tb.service.GetBook(ctx, book.ID)
	if *stored.ClientID != alice.ID {
		t.Error("Expected the first loan to be kept")
	}
}

func TestBot_ClientBooks(t *testing.T) {
	tb := newTestBot(t)
	ctx := context.Background()

	book, _ := tb.service.RegisterBook(ctx, "Dune", "Frank Herbert")
	client, _ := tb.service.RegisterClient(ctx, "Alice")
	if _, err := tb.service.ReserveBook(ctx, book.ID, client.ID); err != nil {
		t.Fatalf("Failed to reserve book: %v", err)
	}

	tb.handleMessage(commandMessage("/client_books"))
	tb.handleCallbackQuery(callback(callbackData(prefixClientBooks, client.ID)))

	text := tb.lastText(t)
	if !strings.Contains(text, "Books borrowed by Alice") || !strings.Contains(text, "Dune") {
		t.Errorf("Unexpected reply: %s", text)
	}
	if _, exists := tb.getState(userID); exists {
		t.Error("Expected completed conversation to be cleaned up")
	}
}

func TestBot_Fee(t *testing.T) {
	tb := newTestBot(t)

	tb.handleMessage(commandMessage("/fee 10"))
	if tb.lastText(t) != "💰 Late-return fee for 10 days late: 13.00%" {
		t.Errorf("Unexpected reply: %s", tb.lastText(t))
	}

	tb.handleMessage(commandMessage("/fee 0"))
	if tb.lastText(t) != "No late-return fee for 0 days late." {
		t.Errorf("Unexpected reply: %s", tb.lastText(t))
	}

	// Without arguments the bot asks for the days and waits for a valid number
	tb.handleMessage(commandMessage("/fee"))
	tb.handleMessage(textMessage("soon"))
	if _, exists := tb.getState(userID); !exists {
		t.Fatal("Expected to keep waiting for a valid number")
	}
	tb.handleMessage(textMessage("4"))
	if tb.lastText(t) != "💰 Late-return fee for 4 days late: 6.60%" {
		t.Errorf("Unexpected reply: %s", tb.lastText(t))
	}
	if _, exists := tb.getState(userID); exists {
		t.Error("Expected completed conversation to be cleaned up")
	}
}

func TestBot_UnauthorizedUser(t *testing.T) {
	tb := newTestBot(t)

	message := commandMessage("/new_book")
	message.From = &tgbotapi.User{ID: 999}
	tb.HandleUpdate(tgbotapi.Update{Message: message})

	if _, exists := tb.getState(999); exists {
		t.Error("Expected unauthorized user to be ignored")
	}
	if tb.lastText(t) != "Sorry, you are not authorized to use this bot." {
		t.Errorf("Unexpected reply: %s", tb.lastText(t))
	}
}

func TestBot_UnauthorizedCallback(t *testing.T) {
	tb := newTestBot(t)
	ctx := context.Background()

	book, err := tb.service.RegisterBook(ctx, "Dune", "Frank Herbert")
	if err != nil {
		t.Fatalf("Failed to create book: %v", err)
	}
	client, err := tb.service.RegisterClient(ctx, "Alice")
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	tb.setState(999, &ConversationState{
		Command: commandBorrow,
		Step:    2,
		Data:    map[string]interface{}{"book_id": book.ID},
	})

	query := callback(callbackData(prefixBorrowClient, client.ID))
	query.From = &tgbotapi.User{ID: 999}
	tb.HandleUpdate(tgbotapi.Update{CallbackQuery: query})

	if len(tb.sent) != 0 {
		t.Errorf("Expected no reply, got %d messages", len(tb.sent))
	}
	stored, err := tb.service.GetBook(ctx, book.ID)
	if err != nil {
		t.Fatalf("Failed to get book: %v", err)
	}
	if stored.IsBorrowed() {
		t.Error("Expected unauthorized callback to leave the book available")
	}
}

func TestBot_PanicRecovery(t *testing.T) {
	tb := newTestBot(t)

	// Create a state that will cause a panic (missing required data)
	tb.setState(userID, &ConversationState{
		Command: commandNewBook,
		Step:    2,
		Data:    map[string]interface{}{},
	})

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("handleMessage panicked: %v", r)
		}
	}()

	tb.handleMessage(textMessage("Frank Herbert"))

	if !strings.Contains(tb.lastText(t), "An error occurred") {
		t.Errorf("Unexpected reply: %s", tb.lastText(t))
	}
}

func TestBot_CommandAfterCallbackCompletion(t *testing.T) {
	tb := newTestBot(t)

	// Simulate a completed conversation state (Step = -1) as would happen after a callback
	tb.setState(userID, &ConversationState{
		Command: commandBorrow,
		Step:    -1,
		Data:    map[string]interface{}{},
	})

	tb.handleMessage(commandMessage("/start"))

	if _, exists := tb.getState(userID); exists {
		t.Error("Expected state to be cleaned up after processing new command")
	}
	if !strings.Contains(tb.lastText(t), "Available commands") {
		t.Errorf("Expected /start to be processed, got: %s", tb.lastText(t))
	}
}

func TestBot_CommandInterruptsConversation(t *testing.T) {
	tb := newTestBot(t)

	tb.handleMessage(commandMessage("/new_book"))
	if _, exists := tb.getState(userID); !exists {
		t.Fatal("Expected conversation state to be created")
	}

	tb.handleMessage(commandMessage("/books"))
	if _, exists := tb.getState(userID); exists {
		t.Error("Expected conversation state to be deleted when interrupted by new command")
	}

	if _, err := tb.service.RegisterBook(context.Background(), "Dune", "Frank Herbert"); err != nil {
		t.Fatalf("Failed to create book: %v", err)
	}

	tb.handleMessage(commandMessage("/borrow"))
	if _, exists := tb.getState(userID); !exists {
		t.Fatal("Expected /borrow conversation state to be created")
	}

	tb.handleMessage(commandMessage("/fee 3"))
	if _, exists := tb.getState(userID); exists {
		t.Error("Expected /borrow conversation to be cancelled when interrupted")
	}
}

func TestFormatBorrowedBooks(t *testing.T) {
	books := []models.BorrowedBook{
		{Title: "Dune", Author: "Frank Herbert", BorrowedDate: civil.Date{Year: 2024, Month: 2, Day: 20}, DaysLate: 7, LateReturnFeePercentage: 11.2},
		{Title: "Emma", Author: "Jane Austen", BorrowedDate: civil.Date{Year: 2024, Month: 2, Day: 29}},
	}

	text := formatBorrowedBooks("Alice", books)
	if !strings.Contains(text, "7 days late, fee 11.20%") {
		t.Errorf("Expected late fee line, got: %s", text)
	}
	if strings.Count(text, "days late") != 1 {
		t.Errorf("Expected only the late book to show a fee, got: %s", text)
	}

	if formatBorrowedBooks("Bob", nil) != "Bob has no borrowed books." {
		t.Error("Unexpected text for a client without books")
	}
}
