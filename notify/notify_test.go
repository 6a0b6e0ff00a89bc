package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/passly/otp"
)

type smtpSession struct {
	from string
	rcpt string
	data string
}

// fakeSMTP accepts one connection and speaks just enough SMTP for a
// delivery. extensions are advertised in the EHLO reply.
func fakeSMTP(t *testing.T, extensions ...string) (string, int, <-chan smtpSession) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	out := make(chan smtpSession, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		tp := textproto.NewConn(conn)

		var s smtpSession
		defer func() { out <- s }()

		_ = tp.PrintfLine("220 localhost ESMTP")
		for {
			line, err := tp.ReadLine()
			if err != nil {
				return
			}
			verb := strings.ToUpper(strings.SplitN(line, " ", 2)[0])
			switch verb {
			case "EHLO", "HELO":
				if len(extensions) == 0 {
					_ = tp.PrintfLine("250 localhost")
					continue
				}
				_ = tp.PrintfLine("250-localhost")
				for i, ext := range extensions {
					if i == len(extensions)-1 {
						_ = tp.PrintfLine("250 %s", ext)
					} else {
						_ = tp.PrintfLine("250-%s", ext)
					}
				}
			case "MAIL":
				s.from = line
				_ = tp.PrintfLine("250 OK")
			case "RCPT":
				s.rcpt = line
				_ = tp.PrintfLine("250 OK")
			case "DATA":
				_ = tp.PrintfLine("354 go ahead")
				data, err := tp.ReadDotBytes()
				if err != nil {
					return
				}
				s.data = string(data)
				_ = tp.PrintfLine("250 queued")
			case "QUIT":
				_ = tp.PrintfLine("221 bye")
				return
			default:
				_ = tp.PrintfLine("502 not implemented")
			}
		}
	}()

	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	return host, port, out
}

func testMessage() otp.Message {
	return otp.NewMessage("user@example.com", "482913", otp.PurposePasswordReset, 5)
}

func TestSMTPSendDeliversMessage(t *testing.T) {
	host, port, sessions := fakeSMTP(t)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	n, err := NewSMTP(SMTPConfig{
		Host:        host,
		Port:        port,
		FromAddress: "no-reply@passly.test",
		DisplayName: "Passly",
		Now:         func() time.Time { return fixed },
	}, nil)
	if err != nil {
		t.Fatalf("NewSMTP error: %v", err)
	}

	if err := n.Send(context.Background(), testMessage()); err != nil {
		t.Fatalf("Send error: %v", err)
	}

	var s smtpSession
	select {
	case s = <-sessions:
	case <-time.After(5 * time.Second):
		t.Fatal("server saw no session")
	}

	if !strings.Contains(s.from, "<no-reply@passly.test>") {
		t.Fatalf("unexpected MAIL line %q", s.from)
	}
	if !strings.Contains(s.rcpt, "<user@example.com>") {
		t.Fatalf("unexpected RCPT line %q", s.rcpt)
	}
	for _, want := range []string{
		`From: "Passly" <no-reply@passly.test>`,
		"To: <user@example.com>",
		"Subject: Password reset code",
		"Date: " + fixed.Format(time.RFC1123Z),
		"Content-Type: text/plain; charset=UTF-8",
		"Your one-time code is 482913. It will expire in 5 minutes.",
	} {
		if !strings.Contains(s.data, want) {
			t.Fatalf("message missing %q:\n%s", want, s.data)
		}
	}
}

func TestSMTPRequireTLS(t *testing.T) {
	host, port, _ := fakeSMTP(t)
	n, err := NewSMTP(SMTPConfig{
		Host:        host,
		Port:        port,
		FromAddress: "no-reply@passly.test",
		RequireTLS:  true,
	}, nil)
	if err != nil {
		t.Fatalf("NewSMTP error: %v", err)
	}
	if err := n.Send(context.Background(), testMessage()); !errors.Is(err, ErrTLSUnavailable) {
		t.Fatalf("expected ErrTLSUnavailable, got %v", err)
	}
}

func TestSMTPSendErrors(t *testing.T) {
	n, err := NewSMTP(SMTPConfig{Host: "127.0.0.1", Port: 1, FromAddress: "no-reply@passly.test"}, nil)
	if err != nil {
		t.Fatalf("NewSMTP error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := n.Send(ctx, testMessage()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	bad := testMessage()
	bad.To = "not an address"
	if err := n.Send(context.Background(), bad); err == nil {
		t.Fatal("expected invalid recipient error")
	}
}

func TestNewSMTPValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  SMTPConfig
	}{
		{"missing host", SMTPConfig{Port: 25, FromAddress: "a@b.c"}},
		{"bad port", SMTPConfig{Host: "localhost", Port: 0, FromAddress: "a@b.c"}},
		{"bad from", SMTPConfig{Host: "localhost", Port: 25, FromAddress: "nope"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewSMTP(tc.cfg, nil); err == nil {
				t.Fatal("expected config to be rejected")
			}
		})
	}
}

func TestLogKeepsCodeOutOfInfo(t *testing.T) {
	var info, debug bytes.Buffer
	n := NewLog(slog.New(slog.NewTextHandler(&info, &slog.HandlerOptions{Level: slog.LevelInfo})))
	if err := n.Send(context.Background(), testMessage()); err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if strings.Contains(info.String(), "482913") {
		t.Fatalf("code leaked at info level: %s", info.String())
	}
	if !strings.Contains(info.String(), "user@example.com") {
		t.Fatalf("recipient missing from log: %s", info.String())
	}

	n = NewLog(slog.New(slog.NewTextHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug})))
	if err := n.Send(context.Background(), testMessage()); err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if !strings.Contains(debug.String(), "482913") {
		t.Fatalf("code missing at debug level: %s", debug.String())
	}
}
