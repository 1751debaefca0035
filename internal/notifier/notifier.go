// Package notifier delivers notification emails.
package notifier

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
)

// Notification is one outbound notification email
type Notification struct {
	To      string
	Subject string
	Body    string
}

// Notifier sends notifications through a mail transport
type Notifier interface {
	Send(ctx context.Context, n Notification) error
	// Verify checks the transport credentials without sending anything.
	Verify(ctx context.Context) error
	Close() error
}

// RawSender is a Notifier that can deliver a message already rendered by
// Compose, so the same bytes can be sent and archived.
type RawSender interface {
	Notifier
	SendRaw(ctx context.Context, to string, raw []byte) error
}

// Compose renders n as an RFC 5322 plain text message. The To header is
// written verbatim so an empty or malformed destination reaches the transport
// unchanged. The body always ends with a line break; SMTP would add one
// otherwise.
func Compose(from string, n Notification, date time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(date)
	if from != "" {
		h.SetAddressList("From", []*mail.Address{{Address: from}})
	}
	h.Set("To", n.To)
	h.SetSubject(n.Subject)
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("failed to generate message id: %w", err)
	}

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create message writer: %w", err)
	}
	body := n.Body
	if !strings.HasSuffix(body, "\n") {
		body += "\r\n"
	}
	if _, err := io.WriteString(w, body); err != nil {
		return nil, fmt.Errorf("failed to write message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish message: %w", err)
	}

	return buf.Bytes(), nil
}
