package otp

import (
	"context"
	"fmt"
)

// Message is one outbound code notification.
type Message struct {
	To      string
	Subject string
	Body    string
	Purpose Purpose
}

// Notifier delivers code notifications. Send returns once delivery
// succeeded or failed.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, msg Message) error

// Send calls f.
func (f NotifierFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Subject returns the notification subject for purpose.
func Subject(purpose Purpose) string {
	switch purpose {
	case PurposeEmailVerification:
		return "Verify your email address"
	case PurposeLoginVerification:
		return "Your login verification code"
	case PurposePasswordReset:
		return "Password reset code"
	default:
		return "Your verification code"
	}
}

// Body returns the notification body for code.
func Body(code string, expiryMinutes int) string {
	return fmt.Sprintf("Your one-time code is %s. It will expire in %d minutes.", code, expiryMinutes)
}

// NewMessage builds the message for code sent to email.
func NewMessage(email, code string, purpose Purpose, expiryMinutes int) Message {
	return Message{
		To:      email,
		Subject: Subject(purpose),
		Body:    Body(code, expiryMinutes),
		Purpose: purpose,
	}
}
