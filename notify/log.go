package notify

import (
	"context"
	"log/slog"

	"github.com/MrEthical07/passly/otp"
)

// Log writes notifications to a structured logger instead of delivering
// them. The code-bearing body is logged at Debug only.
type Log struct {
	logger *slog.Logger
}

// NewLog returns a Log notifier. A nil logger selects slog.Default.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger.With(slog.String("component", "notify_log"))}
}

// Send logs msg and always succeeds.
func (l *Log) Send(ctx context.Context, msg otp.Message) error {
	l.logger.InfoContext(ctx, "otp notification",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("purpose", msg.Purpose.String()))
	l.logger.DebugContext(ctx, "otp notification body",
		slog.String("to", msg.To),
		slog.String("body", msg.Body))
	return nil
}
