package mailbox

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-imap/responses"
	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/sirupsen/logrus"

	"label-notifier-go/internal/config"
)

// IMAPSource implements ThreadSource against Gmail's IMAP extensions
// (X-GM-LABELS, X-GM-THRID). Commands are serialized on one connection,
// which is re-established when the server drops it.
type IMAPSource struct {
	host     string
	port     int
	user     string
	password string
	dial     func(addr string) (*client.Client, error)

	mu     sync.Mutex
	client *client.Client
}

// threadMessage is one marked message and the thread it belongs to
type threadMessage struct {
	UID          uint32
	ThreadID     string
	InternalDate time.Time
}

// NewIMAPSource connects to the IMAP server and logs in
func NewIMAPSource(cfg *config.GmailConfig) (*IMAPSource, error) {
	s := &IMAPSource{
		host:     cfg.IMAPHost,
		port:     cfg.IMAPPort,
		user:     cfg.IMAPUser,
		password: cfg.IMAPPassword,
		dial: func(addr string) (*client.Client, error) {
			return client.DialTLS(addr, &tls.Config{ServerName: cfg.IMAPHost})
		},
	}
	if _, err := s.connection(); err != nil {
		return nil, err
	}
	return s, nil
}

// Threads returns the marked threads, most recently active first
func (s *IMAPSource) Threads(ctx context.Context, marker string) ([]Thread, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.connection()
	if err != nil {
		return nil, err
	}

	exists, err := labelExists(c, marker)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("label %q: %w", marker, ErrMarkerNotFound)
	}

	messages, err := markedMessages(c, marker)
	if err != nil {
		return nil, err
	}
	threads := groupThreads(messages)

	logrus.WithFields(logrus.Fields{
		"marker":   marker,
		"messages": len(messages),
		"threads":  len(threads),
	}).Debug("Listed marked threads over IMAP")
	return threads, nil
}

// FirstSubject returns the decoded subject of the earliest message in the thread
func (s *IMAPSource) FirstSubject(ctx context.Context, thread Thread) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.connection()
	if err != nil {
		return "", err
	}
	if _, err := c.Select(gmailAllMail, true); err != nil {
		return "", fmt.Errorf("failed to select %s: %w", gmailAllMail, err)
	}

	if !isNumericID(thread.ID) {
		return "", fmt.Errorf("invalid thread id %q", thread.ID)
	}
	uids, err := searchUIDs(c, "X-GM-THRID", thread.ID)
	if err != nil {
		return "", err
	}
	if len(uids) == 0 {
		return "", fmt.Errorf("thread %s has no messages", thread.ID)
	}

	section := &imap.BodySectionName{
		BodyPartName: imap.BodyPartName{
			Specifier: imap.HeaderSpecifier,
			Fields:    []string{"SUBJECT"},
		},
		Peek: true,
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqSet, []imap.FetchItem{imap.FetchUid, imap.FetchInternalDate, section.FetchItem()}, messages)
	}()

	var first *imap.Message
	var header []byte
	for msg := range messages {
		if first != nil && !earlier(msg, first) {
			continue
		}
		raw, err := readSection(msg)
		if err != nil {
			logrus.Warnf("Failed to read header of message %d: %v", msg.Uid, err)
			continue
		}
		first = msg
		header = raw
	}
	if err := <-done; err != nil {
		return "", fmt.Errorf("failed to fetch thread %s: %w", thread.ID, err)
	}
	if first == nil {
		return "", fmt.Errorf("thread %s has no readable messages", thread.ID)
	}

	return parseSubject(header)
}

// RemoveMarker removes the marker label from every message of the given threads
func (s *IMAPSource) RemoveMarker(ctx context.Context, marker string, threads []Thread) error {
	if len(threads) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.connection()
	if err != nil {
		return err
	}

	messages, err := markedMessages(c, marker)
	if err != nil {
		return err
	}

	wanted := make(map[string]struct{}, len(threads))
	for _, thread := range threads {
		wanted[thread.ID] = struct{}{}
	}

	seqSet := new(imap.SeqSet)
	matched := 0
	for _, msg := range messages {
		if _, ok := wanted[msg.ThreadID]; ok {
			seqSet.AddNum(msg.UID)
			matched++
		}
	}
	if matched == 0 {
		return nil
	}

	label, err := encodeLabel(marker)
	if err != nil {
		return err
	}
	cmd := &gmailStoreLabels{SeqSet: seqSet, Add: false, Labels: []string{label}}
	if err := execute(c, cmd, nil); err != nil {
		return fmt.Errorf("failed to remove label %q: %w", marker, err)
	}

	logrus.WithFields(logrus.Fields{
		"marker":   marker,
		"threads":  len(threads),
		"messages": matched,
	}).Debug("Removed marker over IMAP")
	return nil
}

// Verify checks the IMAP session
func (s *IMAPSource) Verify(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.connection()
	if err != nil {
		return err
	}
	if err := c.Noop(); err != nil {
		return fmt.Errorf("failed to test IMAP connection: %w", err)
	}
	return nil
}

// Close logs out of the IMAP server
func (s *IMAPSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil || s.client.State() == imap.LogoutState {
		return nil
	}
	return s.client.Logout()
}

// connection returns the current session, dialing a new one if needed. Callers hold s.mu.
func (s *IMAPSource) connection() (*client.Client, error) {
	if s.client != nil && s.client.State() != imap.LogoutState {
		return s.client, nil
	}

	c, err := s.dial(fmt.Sprintf("%s:%d", s.host, s.port))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
	}

	if err := c.Login(s.user, s.password); err != nil {
		c.Logout()
		return nil, fmt.Errorf("failed to login to IMAP server: %w", err)
	}

	s.client = c
	return c, nil
}

// labelExists reports whether the label is listed as a mailbox
func labelExists(c *client.Client, label string) (bool, error) {
	mailboxes := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.List("", label, mailboxes)
	}()

	found := false
	for mailbox := range mailboxes {
		if mailbox.Name == label {
			found = true
		}
	}
	if err := <-done; err != nil {
		return false, fmt.Errorf("failed to list labels: %w", err)
	}
	return found, nil
}

// markedMessages returns every message in All Mail carrying the label
func markedMessages(c *client.Client, label string) ([]threadMessage, error) {
	if _, err := c.Select(gmailAllMail, false); err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", gmailAllMail, err)
	}

	encoded, err := encodeLabel(label)
	if err != nil {
		return nil, err
	}
	uids, err := searchUIDs(c, "X-GM-LABELS", quoteLabel(encoded))
	if err != nil {
		return nil, err
	}
	if len(uids) == 0 {
		return []threadMessage{}, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqSet, []imap.FetchItem{imap.FetchUid, imap.FetchInternalDate, fetchGmailThreadID}, messages)
	}()

	out := make([]threadMessage, 0, len(uids))
	for msg := range messages {
		threadID := parseIDValue(msg.Items[fetchGmailThreadID])
		if threadID == "" {
			logrus.Warnf("Message %d has no thread id, skipping", msg.Uid)
			continue
		}
		out = append(out, threadMessage{
			UID:          msg.Uid,
			ThreadID:     threadID,
			InternalDate: msg.InternalDate,
		})
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch marked messages: %w", err)
	}
	return out, nil
}

func searchUIDs(c *client.Client, atom, value string) ([]uint32, error) {
	response := &responses.Search{}
	if err := execute(c, &gmailSearch{Atom: atom, Value: value}, response); err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", atom, err)
	}
	return response.Ids, nil
}

// execute runs a raw command. A tagged NO or BAD is returned as an error.
func execute(c *client.Client, cmd imap.Commander, h responses.Handler) error {
	status, err := c.Execute(cmd, h)
	if err != nil {
		return err
	}
	return status.Err()
}

// groupThreads collapses marked messages into threads ordered by their most
// recent message, newest first, the way Gmail lists them.
func groupThreads(messages []threadMessage) []Thread {
	latest := make(map[string]time.Time, len(messages))
	for _, msg := range messages {
		if current, ok := latest[msg.ThreadID]; !ok || msg.InternalDate.After(current) {
			latest[msg.ThreadID] = msg.InternalDate
		}
	}

	threads := make([]Thread, 0, len(latest))
	for id := range latest {
		threads = append(threads, Thread{ID: id})
	}
	sort.Slice(threads, func(i, j int) bool {
		a, b := latest[threads[i].ID], latest[threads[j].ID]
		if !a.Equal(b) {
			return a.After(b)
		}
		return threads[i].ID < threads[j].ID
	})
	return threads
}

func isNumericID(id string) bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// earlier reports whether a precedes b in the thread
func earlier(a, b *imap.Message) bool {
	if !a.InternalDate.Equal(b.InternalDate) {
		return a.InternalDate.Before(b.InternalDate)
	}
	return a.Uid < b.Uid
}

func readSection(msg *imap.Message) ([]byte, error) {
	for _, literal := range msg.Body {
		if literal == nil {
			continue
		}
		return io.ReadAll(literal)
	}
	return nil, errors.New("no header section in response")
}

// parseSubject decodes the Subject field of a raw header block
func parseSubject(raw []byte) (string, error) {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return "", fmt.Errorf("failed to parse message header: %w", err)
	}

	header := mail.Header{Header: entity.Header}
	subject, err := header.Subject()
	if err != nil && !message.IsUnknownCharset(err) {
		return "", fmt.Errorf("failed to decode subject: %w", err)
	}
	return subject, nil
}
