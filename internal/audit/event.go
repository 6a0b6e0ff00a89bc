package audit

import (
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// EventType classifies a security event. Values are stable and persisted.
type EventType int

const (
	LoginFailed EventType = iota + 1
	AccountLocked
	SuspiciousLoginAttempt
	TokenReuse
	LoginOtpRequested
)

var eventTypeNames = map[EventType]string{
	LoginFailed:            "login_failed",
	AccountLocked:          "account_locked",
	SuspiciousLoginAttempt: "suspicious_login_attempt",
	TokenReuse:             "token_reuse",
	LoginOtpRequested:      "login_otp_requested",
}

func (t EventType) String() string {
	if name, ok := eventTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("event(%d)", int(t))
}

// MarshalText encodes the type by name.
func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes a name written by MarshalText.
func (t *EventType) UnmarshalText(b []byte) error {
	for k, v := range eventTypeNames {
		if v == string(b) {
			*t = k
			return nil
		}
	}
	return fmt.Errorf("unknown security event type %q", b)
}

// Event is one security-relevant occurrence.
type Event struct {
	ID        string            `json:"id"`
	AccountID string            `json:"account_id,omitempty"`
	Type      EventType         `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	IP        string            `json:"ip,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NewEvent returns an event of type t stamped at now with a fresh ULID.
func NewEvent(t EventType, accountID string, now time.Time) Event {
	return Event{
		ID:        ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		AccountID: accountID,
		Type:      t,
		Timestamp: now.UTC(),
	}
}
