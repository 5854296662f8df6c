package bot

import (
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"booklending/internal/lending"
)

// Bot represents the Telegram bot wrapper
type Bot struct {
	api          *tgbotapi.BotAPI
	service      *lending.Service
	allowedUsers map[int64]bool
	states       map[int64]*ConversationState
	statesMu     sync.RWMutex
	logger       *zap.Logger

	// one update per user at a time; conversation state is not safe for concurrent use
	userLocks   map[int64]*sync.Mutex
	userLocksMu sync.Mutex

	// send delivers outgoing messages; nil drops them (tests without a Telegram API)
	send func(tgbotapi.Chattable) error
}

// ConversationState tracks the state of multi-step commands
type ConversationState struct {
	Command string
	Step    int // -1 marks a completed conversation
	Data    map[string]interface{}
}

func (b *Bot) getState(userID int64) (*ConversationState, bool) {
	b.statesMu.RLock()
	defer b.statesMu.RUnlock()
	state, ok := b.states[userID]
	return state, ok
}

func (b *Bot) setState(userID int64, state *ConversationState) {
	b.statesMu.Lock()
	defer b.statesMu.Unlock()
	b.states[userID] = state
}

func (b *Bot) deleteState(userID int64) {
	b.statesMu.Lock()
	defer b.statesMu.Unlock()
	delete(b.states, userID)
}

// lockUser blocks until no other update from userID is being handled and returns the unlock func
func (b *Bot) lockUser(userID int64) func() {
	b.userLocksMu.Lock()
	mu, ok := b.userLocks[userID]
	if !ok {
		mu = &sync.Mutex{}
		b.userLocks[userID] = mu
	}
	b.userLocksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}
