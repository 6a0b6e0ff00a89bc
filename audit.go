package passly

import (
	"context"
	"io"
	"log/slog"

	"github.com/MrEthical07/passly/internal/audit"
)

// SecurityEvent is a record of a security-relevant occurrence.
type SecurityEvent = audit.Event

// SecurityEventType classifies a SecurityEvent.
type SecurityEventType = audit.EventType

// SecurityEventSink receives security events from the dispatcher goroutine.
type SecurityEventSink = audit.Sink

const (
	EventLoginFailed            = audit.LoginFailed
	EventAccountLocked          = audit.AccountLocked
	EventSuspiciousLoginAttempt = audit.SuspiciousLoginAttempt
	EventTokenReuse             = audit.TokenReuse
	EventLoginOtpRequested      = audit.LoginOtpRequested
)

// NoOpSink discards every event.
type NoOpSink = audit.NoOpSink

// ChannelSink forwards events to a buffered channel.
type ChannelSink = audit.ChannelSink

// NewChannelSink creates a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink writes one JSON object per event to w.
func NewJSONWriterSink(w io.Writer) SecurityEventSink {
	return audit.NewJSONWriterSink(w)
}

// NewSlogSink logs every event at Warn through logger.
func NewSlogSink(logger *slog.Logger) SecurityEventSink {
	return audit.NewSlogSink(logger)
}

// emitEvent queues an event of type t for accountID with the client details
// found in ctx. metadata may be nil; it is only evaluated when dispatch is on.
func (e *Engine) emitEvent(ctx context.Context, t SecurityEventType, accountID string, metadata func() map[string]string) {
	if e == nil || e.audit == nil {
		return
	}

	event := audit.NewEvent(t, accountID, e.now())
	event.IP = clientIPFromContext(ctx)
	event.UserAgent = userAgentFromContext(ctx)
	if metadata != nil {
		event.Metadata = metadata()
	}
	e.audit.Emit(ctx, event)
}

// AuditDropped returns the number of security events dropped because the
// dispatch buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}
