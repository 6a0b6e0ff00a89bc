package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/passly/otp"
)

// ErrTLSUnavailable is returned when RequireTLS is set and the server does
// not offer STARTTLS.
var ErrTLSUnavailable = errors.New("smtp server does not offer STARTTLS")

// SMTPConfig defines an SMTP notifier.
type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromAddress string
	DisplayName string
	// RequireTLS fails delivery when the server does not offer STARTTLS.
	RequireTLS bool
	// Timeout bounds one delivery, dial included. Zero selects 10s.
	Timeout time.Duration
	// TLSConfig overrides the STARTTLS client config. ServerName defaults
	// to Host.
	TLSConfig *tls.Config
	Now       func() time.Time
}

// SMTP sends one-time codes as plain-text mail.
type SMTP struct {
	cfg    SMTPConfig
	from   mail.Address
	logger *slog.Logger
}

// NewSMTP validates cfg and returns an SMTP notifier.
func NewSMTP(cfg SMTPConfig, logger *slog.Logger) (*SMTP, error) {
	cfg.Host = strings.TrimSpace(cfg.Host)
	if cfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid smtp port %d", cfg.Port)
	}
	from, err := mail.ParseAddress(cfg.FromAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	from.Name = cfg.DisplayName
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SMTP{
		cfg:    cfg,
		from:   *from,
		logger: logger.With(slog.String("component", "notify_smtp")),
	}, nil
}

// Send delivers msg. It honours ctx for the dial and bounds the whole
// session by the configured timeout.
func (s *SMTP) Send(ctx context.Context, msg otp.Message) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	to, err := mail.ParseAddress(msg.To)
	if err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		tlsConfig := s.cfg.TLSConfig
		if tlsConfig == nil {
			tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		} else {
			tlsConfig = tlsConfig.Clone()
		}
		if tlsConfig.ServerName == "" {
			tlsConfig.ServerName = s.cfg.Host
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("failed to start TLS: %w", err)
		}
	} else if s.cfg.RequireTLS {
		return ErrTLSUnavailable
	}

	if s.cfg.Username != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("failed to authenticate: %w", err)
		}
	}

	if err := client.Mail(s.from.Address); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := client.Rcpt(to.Address); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to get data writer: %w", err)
	}
	if _, err := w.Write(s.compose(to, msg)); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}
	if err := client.Quit(); err != nil {
		return fmt.Errorf("failed to quit SMTP session: %w", err)
	}

	s.logger.InfoContext(ctx, "otp email sent",
		slog.String("to", to.Address),
		slog.String("purpose", msg.Purpose.String()))
	return nil
}

func (s *SMTP) compose(to *mail.Address, msg otp.Message) []byte {
	var b bytes.Buffer
	header := func(k, v string) {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(v)
		b.WriteString("\r\n")
	}
	header("From", s.from.String())
	header("To", to.String())
	header("Subject", mimeHeader(msg.Subject))
	header("Date", s.cfg.Now().Format(time.RFC1123Z))
	header("MIME-Version", "1.0")
	header("Content-Type", "text/plain; charset=UTF-8")
	header("Content-Transfer-Encoding", "8bit")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return b.Bytes()
}

func mimeHeader(v string) string {
	for _, r := range v {
		if r >= 0x80 {
			return mime.QEncoding.Encode("utf-8", v)
		}
	}
	return v
}
