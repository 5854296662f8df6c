package bot

import (
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"booklending/internal/lending"
)

// NewBot creates a new Telegram bot
func NewBot(token string, service *lending.Service, allowedUserIDs []int64, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		logger.Error("Failed to create bot API", zap.Error(err))
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	logger.Info("Bot created", zap.String("bot_username", api.Self.UserName))

	b := newBot(service, allowedUserIDs, logger)
	b.api = api
	b.send = func(c tgbotapi.Chattable) error {
		_, err := api.Send(c)
		return err
	}
	return b, nil
}

func newBot(service *lending.Service, allowedUserIDs []int64, logger *zap.Logger) *Bot {
	allowedUsers := make(map[int64]bool)
	for _, id := range allowedUserIDs {
		allowedUsers[id] = true
	}

	return &Bot{
		service:      service,
		allowedUsers: allowedUsers,
		states:       make(map[int64]*ConversationState),
		userLocks:    make(map[int64]*sync.Mutex),
		logger:       logger,
	}
}
