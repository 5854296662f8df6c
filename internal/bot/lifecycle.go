package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const (
	// WebhookPath is the HTTP path Telegram posts updates to in webhook mode
	WebhookPath = "/telegram-webhook"

	pollTimeoutSeconds    = 60
	webhookMaxConnections = 40
)

// Start polls Telegram for updates and blocks until Stop is called
func (b *Bot) Start() error {
	if b.api == nil {
		return fmt.Errorf("bot has no Telegram API")
	}
	b.logger.Info("Starting bot in polling mode")

	// getUpdates is refused while a webhook is set
	if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		b.logger.Warn("Failed to delete webhook", zap.Error(err))
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeoutSeconds

	for update := range b.api.GetUpdatesChan(u) {
		b.HandleUpdate(update)
	}
	b.logger.Info("Bot polling finished")
	return nil
}

// Stop stops polling for updates
func (b *Bot) Stop() {
	if b.api != nil {
		b.api.StopReceivingUpdates()
	}
}

// StartWebhook registers baseURL+WebhookPath with Telegram
func (b *Bot) StartWebhook(baseURL string) error {
	if b.api == nil {
		return fmt.Errorf("bot has no Telegram API")
	}

	webhookConfig, err := tgbotapi.NewWebhook(baseURL + WebhookPath)
	if err != nil {
		return fmt.Errorf("invalid webhook URL: %w", err)
	}
	webhookConfig.MaxConnections = webhookMaxConnections

	if _, err := b.api.Request(webhookConfig); err != nil {
		return fmt.Errorf("failed to set webhook: %w", err)
	}

	if info, err := b.api.GetWebhookInfo(); err == nil {
		b.logger.Info("Webhook registered",
			zap.String("url", info.URL),
			zap.Int("pending_updates", info.PendingUpdateCount),
		)
	}
	return nil
}

// HandleUpdate dispatches one update from polling or the webhook endpoint.
// Updates from users outside the allow list are dropped.
func (b *Bot) HandleUpdate(update tgbotapi.Update) {
	switch {
	case update.Message != nil && update.Message.From != nil:
		if !b.authorized(update.Message.From, zap.String("text", update.Message.Text)) {
			b.reply(update.Message.Chat.ID, "Sorry, you are not authorized to use this bot.")
			return
		}
		b.handleMessage(update.Message)
	case update.CallbackQuery != nil:
		if !b.authorized(update.CallbackQuery.From, zap.String("callback_data", update.CallbackQuery.Data)) {
			return
		}
		b.handleCallbackQuery(update.CallbackQuery)
	}
}

func (b *Bot) authorized(user *tgbotapi.User, detail zap.Field) bool {
	if user != nil && b.allowedUsers[user.ID] {
		return true
	}

	fields := []zap.Field{detail}
	if user != nil {
		fields = append(fields, zap.Int64("user_id", user.ID), zap.String("username", user.UserName))
	}
	b.logger.Warn("Unauthorized access attempt", fields...)
	return false
}
