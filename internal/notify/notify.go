// Package notify defines the notifier capability the dispatcher
// depends on, plus the built-in channel implementations.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"modelguard/internal/config"
	"modelguard/internal/model"
)

// Notifier delivers one alert to a team channel. Implementations must
// honor the context deadline; errors are recovered by the dispatcher.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, record model.AlertRecord) error
}

// FromConfig builds the configured notifier.
func FromConfig(cfg config.NotifierConfig, modelName string, logger *slog.Logger) (Notifier, error) {
	switch cfg.Type {
	case "log":
		return &LogNotifier{logger: logger}, nil
	case "webhook":
		return NewWebhookNotifier(cfg.WebhookURL, modelName), nil
	case "smtp":
		return NewSMTPNotifier(cfg.SMTP, modelName), nil
	}
	return nil, fmt.Errorf("unknown notifier type %q", cfg.Type)
}

// LogNotifier writes alerts to the structured log. It is the default
// channel and never fails.
type LogNotifier struct {
	logger *slog.Logger
}

func (n *LogNotifier) Name() string { return "log" }

func (n *LogNotifier) Notify(_ context.Context, record model.AlertRecord) error {
	if n.logger != nil {
		n.logger.Warn("security alert",
			"alert_id", record.ID,
			"identity", record.Identity,
			"severity", record.Severity.String(),
			"reasons", record.Reasons,
		)
	}
	return nil
}
