package notifier

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"label-notifier-go/internal/config"
)

type receivedMail struct {
	From string
	To   []string
	Data []byte
	TLS  bool
}

type smtpBackend struct {
	mu       sync.Mutex
	received []receivedMail
}

func (b *smtpBackend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	return &smtpSession{backend: b, conn: c}, nil
}

type smtpSession struct {
	backend *smtpBackend
	conn    *smtp.Conn
	current receivedMail
}

func (s *smtpSession) Reset() {
	s.current = receivedMail{}
}

func (s *smtpSession) Logout() error {
	return nil
}

func (s *smtpSession) Mail(from string, opts *smtp.MailOptions) error {
	s.current.From = from
	return nil
}

func (s *smtpSession) Rcpt(to string, opts *smtp.RcptOptions) error {
	if to == "" {
		return errors.New("empty recipient")
	}
	s.current.To = append(s.current.To, to)
	return nil
}

func (s *smtpSession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.current.Data = data
	_, s.current.TLS = s.conn.TLSConnectionState()

	s.backend.mu.Lock()
	s.backend.received = append(s.backend.received, s.current)
	s.backend.mu.Unlock()
	return nil
}

func startSMTPServer(t *testing.T) (*smtpBackend, *config.SMTPConfig) {
	t.Helper()
	return startSMTPServerWithTLS(t, nil)
}

// startSMTPServerWithTLS offers STARTTLS when tlsConfig is set
func startSMTPServerWithTLS(t *testing.T, tlsConfig *tls.Config) (*smtpBackend, *config.SMTPConfig) {
	t.Helper()

	backend := &smtpBackend{}
	server := smtp.NewServer(backend)
	server.Domain = "localhost"
	server.TLSConfig = tlsConfig

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go server.Serve(listener)
	t.Cleanup(func() { server.Close() })

	addr := listener.Addr().(*net.TCPAddr)
	return backend, &config.SMTPConfig{
		Enabled: true,
		Host:    "127.0.0.1",
		Port:    addr.Port,
		From:    "owner@example.com",
		TLSMode: config.TLSModeNone,
	}
}

func TestSMTPNotifierSend(t *testing.T) {
	backend, cfg := startSMTPServer(t)
	notifier := NewSMTPNotifier(cfg)

	n := Notification{To: "alerts@example.com", Subject: "New mail in your inbox", Body: "New mail: Invoice"}
	require.NoError(t, notifier.Send(context.Background(), n))

	backend.mu.Lock()
	defer backend.mu.Unlock()
	require.Len(t, backend.received, 1)
	received := backend.received[0]
	assert.Equal(t, "owner@example.com", received.From)
	assert.Equal(t, []string{"alerts@example.com"}, received.To)

	msg := parseMessage(t, received.Data)
	subject, err := msg.header.Subject()
	require.NoError(t, err)
	assert.Equal(t, n.Subject, subject)
	assert.Equal(t, n.Body+"\n", msg.body)
}

func TestSMTPNotifierStartTLS(t *testing.T) {
	// httptest's certificate is valid for 127.0.0.1
	certServer := httptest.NewTLSServer(http.NotFoundHandler())
	t.Cleanup(certServer.Close)

	backend, cfg := startSMTPServerWithTLS(t, &tls.Config{Certificates: certServer.TLS.Certificates})
	cfg.TLSMode = config.TLSModeStartTLS

	roots := x509.NewCertPool()
	roots.AddCert(certServer.Certificate())
	notifier := NewSMTPNotifier(cfg)
	notifier.tlsConfig.RootCAs = roots

	n := Notification{To: "alerts@example.com", Subject: "New mail in your inbox", Body: "New mail: Invoice"}
	require.NoError(t, notifier.Send(context.Background(), n))
	require.NoError(t, notifier.Verify(context.Background()))

	backend.mu.Lock()
	defer backend.mu.Unlock()
	require.Len(t, backend.received, 1)
	assert.True(t, backend.received[0].TLS)
	assert.Equal(t, n.Body+"\n", parseMessage(t, backend.received[0].Data).body)
}

func TestSMTPNotifierStartTLSUnsupported(t *testing.T) {
	backend, cfg := startSMTPServer(t)
	cfg.TLSMode = config.TLSModeStartTLS

	err := NewSMTPNotifier(cfg).Send(context.Background(), Notification{To: "alerts@example.com", Body: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start TLS")
	assert.Empty(t, backend.received)
}

func TestSMTPNotifierRejectedRecipient(t *testing.T) {
	backend, cfg := startSMTPServer(t)
	notifier := NewSMTPNotifier(cfg)

	err := notifier.Send(context.Background(), Notification{To: "", Subject: "s", Body: "b"})
	require.Error(t, err)
	assert.Empty(t, backend.received)
}

func TestSMTPNotifierVerify(t *testing.T) {
	_, cfg := startSMTPServer(t)
	notifier := NewSMTPNotifier(cfg)

	assert.NoError(t, notifier.Verify(context.Background()))
	assert.NoError(t, notifier.Close())
}

func TestSMTPNotifierConnectionRefused(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()

	notifier := NewSMTPNotifier(&config.SMTPConfig{Host: "127.0.0.1", Port: port, TLSMode: config.TLSModeNone})
	err = notifier.Verify(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to SMTP server")
}
