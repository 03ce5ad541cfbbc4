package services

import (
	"context"

	"github.com/rs/zerolog"
	"resetd/internal/models"
)

// LogNotifier writes the reset link to the log instead of delivering it.
// Development only.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(ctx context.Context, notice models.ResetNotice) error {
	n.log.Info().
		Str("email", notice.Email).
		Str("link", notice.Link).
		Time("expires_at", notice.ExpiresAt).
		Msg("[DEMO] reset link issued")
	return nil
}
