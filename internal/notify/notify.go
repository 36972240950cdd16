// Package notify surfaces shuffle delivery progress to the user.
package notify

import (
	"context"

	"go.uber.org/zap"

	"smartshuffle/internal/core"
	"smartshuffle/internal/i18n"
)

// Formatter renders delivery events as localized text.
type Formatter struct {
	localizer *i18n.Localizer
}

// NewFormatter creates a Formatter for a catalog code or BCP-47 tag.
func NewFormatter(language string) *Formatter {
	if language == "" {
		language = i18n.DefaultLanguage
	}
	return &Formatter{localizer: i18n.NewLocalizer(language)}
}

func (f *Formatter) Start(playlistName string, total int) string {
	return f.localizer.T("delivery.start", playlistName, total)
}

func (f *Formatter) Progress(current, total int, playlistName string) string {
	return f.localizer.T("delivery.progress", playlistName, current, total)
}

func (f *Formatter) Complete(delivered int, playlistName string, remaining *int) string {
	if remaining == nil {
		return f.localizer.T("delivery.complete", playlistName, delivered)
	}
	return f.localizer.T("delivery.complete_remaining", playlistName, delivered, *remaining)
}

func (f *Formatter) Error(message string) string {
	return f.localizer.T("error.delivery", message)
}

// LogNotifier writes delivery events to the log. It is always wired so a headless
// install still records progress.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("notify")}
}

func (n *LogNotifier) NotifyStart(_ context.Context, playlistName string, totalCount int) {
	n.logger.Info("Delivery started",
		zap.String("playlist", playlistName),
		zap.Int("total", totalCount))
}

func (n *LogNotifier) NotifyProgress(_ context.Context, current, total int, playlistName string) {
	n.logger.Info("Delivery progress",
		zap.String("playlist", playlistName),
		zap.Int("current", current),
		zap.Int("total", total))
}

func (n *LogNotifier) NotifyComplete(_ context.Context, totalDelivered int, playlistName string, remainingUnheard *int) {
	fields := []zap.Field{
		zap.String("playlist", playlistName),
		zap.Int("delivered", totalDelivered),
	}
	if remainingUnheard != nil {
		fields = append(fields, zap.Int("remainingUnheard", *remainingUnheard))
	}
	n.logger.Info("Delivery complete", fields...)
}

func (n *LogNotifier) NotifyError(_ context.Context, message string) {
	n.logger.Warn("Delivery error", zap.String("message", message))
}

func (n *LogNotifier) Dismiss(context.Context) {
	n.logger.Debug("Delivery notification dismissed")
}

// Fanout forwards every event to each notifier in order.
type Fanout []core.Notifier

func (f Fanout) NotifyStart(ctx context.Context, playlistName string, totalCount int) {
	for _, n := range f {
		n.NotifyStart(ctx, playlistName, totalCount)
	}
}

func (f Fanout) NotifyProgress(ctx context.Context, current, total int, playlistName string) {
	for _, n := range f {
		n.NotifyProgress(ctx, current, total, playlistName)
	}
}

func (f Fanout) NotifyComplete(ctx context.Context, totalDelivered int, playlistName string, remainingUnheard *int) {
	for _, n := range f {
		n.NotifyComplete(ctx, totalDelivered, playlistName, remainingUnheard)
	}
}

func (f Fanout) NotifyError(ctx context.Context, message string) {
	for _, n := range f {
		n.NotifyError(ctx, message)
	}
}

func (f Fanout) Dismiss(ctx context.Context) {
	for _, n := range f {
		n.Dismiss(ctx)
	}
}
