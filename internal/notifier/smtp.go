package notifier

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/sirupsen/logrus"

	"label-notifier-go/internal/config"
)

const smtpDialTimeout = 30 * time.Second

// SMTPNotifier sends notifications through an SMTP submission server
type SMTPNotifier struct {
	host     string
	port     int
	username string
	password string
	from     string
	tlsMode  string

	tlsConfig *tls.Config
}

// NewSMTPNotifier creates an SMTP notifier. No connection is made until Send or Verify.
func NewSMTPNotifier(cfg *config.SMTPConfig) *SMTPNotifier {
	return &SMTPNotifier{
		host:     cfg.Host,
		port:     cfg.Port,
		username: cfg.Username,
		password: cfg.Password,
		from:     cfg.From,
		tlsMode:  cfg.TLSMode,

		tlsConfig: &tls.Config{ServerName: cfg.Host},
	}
}

// Send delivers n in a single SMTP transaction
func (s *SMTPNotifier) Send(ctx context.Context, n Notification) error {
	raw, err := Compose(s.from, n, time.Now())
	if err != nil {
		return err
	}
	return s.SendRaw(ctx, n.To, raw)
}

// SendRaw delivers a composed message to one recipient
func (s *SMTPNotifier) SendRaw(ctx context.Context, to string, raw []byte) error {
	c, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Mail(s.from, nil); err != nil {
		return fmt.Errorf("failed to set SMTP sender: %w", err)
	}
	if err := c.Rcpt(to, nil); err != nil {
		return fmt.Errorf("failed to set SMTP recipient %q: %w", to, err)
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("failed to start SMTP data: %w", err)
	}
	if _, err := io.Copy(w, bytes.NewReader(raw)); err != nil {
		w.Close()
		return fmt.Errorf("failed to write SMTP data: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish SMTP data: %w", err)
	}

	if err := c.Quit(); err != nil {
		logrus.Warnf("SMTP quit failed: %v", err)
	}

	logrus.WithField("to", to).Info("Sent notification over SMTP")
	return nil
}

// Verify connects and authenticates without sending
func (s *SMTPNotifier) Verify(ctx context.Context) error {
	c, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Noop(); err != nil {
		return fmt.Errorf("failed to test SMTP connection: %w", err)
	}
	return c.Quit()
}

// Close is a no-op; connections are per send
func (s *SMTPNotifier) Close() error {
	return nil
}

func (s *SMTPNotifier) connect(ctx context.Context) (*smtp.Client, error) {
	address := net.JoinHostPort(s.host, fmt.Sprintf("%d", s.port))

	var conn net.Conn
	var err error
	dialer := &net.Dialer{Timeout: smtpDialTimeout}
	if s.tlsMode == config.TLSModeImplicit {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: s.tlsConfig}).DialContext(ctx, "tcp", address)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", address)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SMTP server: %w", err)
	}

	var c *smtp.Client
	if s.tlsMode == config.TLSModeStartTLS {
		// NewClientStartTLS closes the connection on failure
		c, err = smtp.NewClientStartTLS(conn, s.tlsConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to start TLS: %w", err)
		}
	} else {
		c = smtp.NewClient(conn)
	}

	if s.username != "" {
		auth := sasl.NewPlainClient("", s.username, s.password)
		if err := c.Auth(auth); err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to authenticate to SMTP server: %w", err)
		}
	}

	return c, nil
}
