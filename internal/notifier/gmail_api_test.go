package notifier

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const rateLimitBody = `{"error":{"code":403,"message":"User-rate limit exceeded","errors":[{"reason":"userRateLimitExceeded","message":"User-rate limit exceeded"}]}}`

type fakeSendServer struct {
	mu       sync.Mutex
	failures []string
	calls    int
	raw      [][]byte
}

func (f *fakeSendServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	w.Header().Set("Content-Type", "application/json")

	if r.URL.Path == "/gmail/v1/users/me/profile" {
		json.NewEncoder(w).Encode(&gmail.Profile{EmailAddress: "owner@example.com"})
		return
	}
	if r.Method != http.MethodPost || r.URL.Path != "/gmail/v1/users/me/messages/send" {
		http.NotFound(w, r)
		return
	}

	if len(f.failures) > 0 {
		body := f.failures[0]
		f.failures = f.failures[1:]
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(body))
		return
	}

	var message gmail.Message
	json.NewDecoder(r.Body).Decode(&message)
	raw, err := base64.URLEncoding.DecodeString(message.Raw)
	if err != nil {
		http.Error(w, `{"error":{"code":400,"message":"bad raw"}}`, http.StatusBadRequest)
		return
	}
	f.raw = append(f.raw, raw)
	json.NewEncoder(w).Encode(&gmail.Message{Id: "sent-1"})
}

func newTestGmailNotifier(t *testing.T, fake *fakeSendServer, maxAttempts int) *GmailAPINotifier {
	t.Helper()

	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	service, err := gmail.NewService(context.Background(),
		option.WithHTTPClient(srv.Client()),
		option.WithEndpoint(srv.URL+"/"),
	)
	require.NoError(t, err)
	return newGmailAPINotifier(service, "me", "owner@example.com", maxAttempts, time.Millisecond)
}

func TestGmailAPINotifierWithoutSenderAddress(t *testing.T) {
	fake := &fakeSendServer{}
	notifier := newTestGmailNotifier(t, fake, 1)
	notifier.from = ""

	require.NoError(t, notifier.Send(context.Background(), Notification{To: "alerts@example.com", Subject: "s", Body: "b"}))

	require.Len(t, fake.raw, 1)
	msg := parseMessage(t, fake.raw[0])
	assert.False(t, msg.header.Has("From"))
}

func TestGmailAPINotifierSend(t *testing.T) {
	fake := &fakeSendServer{}
	notifier := newTestGmailNotifier(t, fake, 3)

	n := Notification{To: "alerts@example.com", Subject: "New mail in your inbox", Body: "New mail: Lunch"}
	require.NoError(t, notifier.Send(context.Background(), n))

	require.Len(t, fake.raw, 1)
	msg := parseMessage(t, fake.raw[0])
	subject, err := msg.header.Subject()
	require.NoError(t, err)
	assert.Equal(t, n.Subject, subject)
	assert.Equal(t, n.To, msg.header.Get("To"))
	assert.Equal(t, n.Body+"\n", msg.body)
}

func TestGmailAPINotifierRetriesRateLimits(t *testing.T) {
	fake := &fakeSendServer{failures: []string{rateLimitBody, rateLimitBody}}
	notifier := newTestGmailNotifier(t, fake, 3)

	require.NoError(t, notifier.Send(context.Background(), Notification{To: "alerts@example.com"}))
	assert.Equal(t, 3, fake.calls)
	assert.Len(t, fake.raw, 1)
}

func TestGmailAPINotifierGivesUpAfterMaxAttempts(t *testing.T) {
	fake := &fakeSendServer{failures: []string{rateLimitBody, rateLimitBody, rateLimitBody}}
	notifier := newTestGmailNotifier(t, fake, 2)

	err := notifier.Send(context.Background(), Notification{To: "alerts@example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to send notification")
	assert.Equal(t, 2, fake.calls)
}

func TestGmailAPINotifierDoesNotRetryOtherErrors(t *testing.T) {
	fake := &fakeSendServer{failures: []string{`{"error":{"code":403,"message":"Forbidden","errors":[{"reason":"forbidden"}]}}`}}
	notifier := newTestGmailNotifier(t, fake, 3)

	err := notifier.Send(context.Background(), Notification{To: ""})
	require.Error(t, err)
	assert.Equal(t, 1, fake.calls)
}

func TestGmailAPINotifierVerify(t *testing.T) {
	notifier := newTestGmailNotifier(t, &fakeSendServer{}, 1)
	assert.NoError(t, notifier.Verify(context.Background()))
	assert.NoError(t, notifier.Close())
}
