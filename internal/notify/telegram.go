package notify

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"

	"smartshuffle/internal/core"
	"smartshuffle/internal/flood"
)

// DefaultEditsPerMinute caps progress edits of the status message per chat
const DefaultEditsPerMinute = 20

// messenger is the subset of *bot.Bot the notifier uses
type messenger interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*models.Message, error)
	DeleteMessage(ctx context.Context, params *bot.DeleteMessageParams) (bool, error)
}

// TelegramNotifier keeps one status message per delivery in a Telegram chat: it is sent
// on start, edited for progress and the final outcome, and deleted on dismiss.
type TelegramNotifier struct {
	chatID    int64
	client    messenger
	formatter *Formatter
	floodgate *flood.Gate
	logger    *zap.Logger

	mutex     sync.Mutex
	messageID int
}

// NewTelegramNotifier connects to the Bot API with the configured token.
func NewTelegramNotifier(config core.NotifyConfig, formatter *Formatter, logger *zap.Logger) (*TelegramNotifier, error) {
	if config.TelegramBotToken == "" {
		return nil, fmt.Errorf("%w: telegram bot token is required", core.ErrValidation)
	}
	if config.TelegramChatID == 0 {
		return nil, fmt.Errorf("%w: telegram chat ID is required", core.ErrValidation)
	}

	b, err := bot.New(config.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return newTelegramNotifier(config.TelegramChatID, b, formatter, logger), nil
}

func newTelegramNotifier(chatID int64, client messenger, formatter *Formatter, logger *zap.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		chatID:    chatID,
		client:    client,
		formatter: formatter,
		floodgate: flood.New(DefaultEditsPerMinute),
		logger:    logger.Named("telegram"),
	}
}

// Close stops the edit limiter.
func (t *TelegramNotifier) Close() {
	t.floodgate.Stop()
}

func (t *TelegramNotifier) NotifyStart(ctx context.Context, playlistName string, totalCount int) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	// A leftover status message belongs to an abandoned delivery.
	t.deleteUnsafe(ctx)

	text := t.formatter.Start(playlistName, totalCount)
	msg, err := t.client.SendMessage(ctx, t.sendParams(text))
	if err != nil {
		t.logger.Warn("Failed to send start notification", zap.Error(err))
		return
	}
	t.messageID = msg.ID
}

func (t *TelegramNotifier) NotifyProgress(ctx context.Context, current, total int, playlistName string) {
	if !t.floodgate.Allow(strconv.FormatInt(t.chatID, 10)) {
		t.logger.Debug("Skipping progress edit, chat edit limit reached", zap.Int("current", current))
		return
	}

	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.upsertUnsafe(ctx, t.formatter.Progress(current, total, playlistName))
}

func (t *TelegramNotifier) NotifyComplete(ctx context.Context, totalDelivered int, playlistName string, remainingUnheard *int) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.upsertUnsafe(ctx, t.formatter.Complete(totalDelivered, playlistName, remainingUnheard))
	// The final message stays in the chat.
	t.messageID = 0
}

func (t *TelegramNotifier) NotifyError(ctx context.Context, message string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.upsertUnsafe(ctx, t.formatter.Error(message))
	t.messageID = 0
}

func (t *TelegramNotifier) Dismiss(ctx context.Context) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.deleteUnsafe(ctx)
}

// upsertUnsafe requires lock
func (t *TelegramNotifier) upsertUnsafe(ctx context.Context, text string) {
	if t.messageID == 0 {
		msg, err := t.client.SendMessage(ctx, t.sendParams(text))
		if err != nil {
			t.logger.Warn("Failed to send notification", zap.Error(err))
			return
		}
		t.messageID = msg.ID
		return
	}

	_, err := t.client.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:    t.chatID,
		MessageID: t.messageID,
		Text:      text,
	})
	if err != nil {
		t.logger.Warn("Failed to edit notification",
			zap.Int("messageID", t.messageID),
			zap.Error(err))
	}
}

// deleteUnsafe requires lock
func (t *TelegramNotifier) deleteUnsafe(ctx context.Context) {
	if t.messageID == 0 {
		return
	}

	_, err := t.client.DeleteMessage(ctx, &bot.DeleteMessageParams{
		ChatID:    t.chatID,
		MessageID: t.messageID,
	})
	if err != nil {
		t.logger.Warn("Failed to delete notification",
			zap.Int("messageID", t.messageID),
			zap.Error(err))
	}
	t.messageID = 0
}

func (t *TelegramNotifier) sendParams(text string) *bot.SendMessageParams {
	disabled := true
	return &bot.SendMessageParams{
		ChatID: t.chatID,
		Text:   text,
		LinkPreviewOptions: &models.LinkPreviewOptions{
			IsDisabled: &disabled,
		},
	}
}
