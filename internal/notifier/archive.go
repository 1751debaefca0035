package notifier

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/emersion/go-mbox"
	"github.com/sirupsen/logrus"
)

// ArchiveNotifier wraps a RawSender and appends every delivered
// notification to an mbox file. The archived copy is byte for byte the
// message that was sent.
type ArchiveNotifier struct {
	next RawSender
	path string
	from string
	mu   sync.Mutex
}

// NewArchiveNotifier archives notifications sent through next to the mbox at
// path. from must be the sender address next composes with.
func NewArchiveNotifier(next RawSender, path, from string) *ArchiveNotifier {
	return &ArchiveNotifier{
		next: next,
		path: path,
		from: from,
	}
}

// Send composes n once, delivers it and archives it. Archive failures are
// logged only.
func (a *ArchiveNotifier) Send(ctx context.Context, n Notification) error {
	date := time.Now()
	raw, err := Compose(a.from, n, date)
	if err != nil {
		return err
	}
	return a.deliver(ctx, n.To, raw, date)
}

// SendRaw delivers and archives an already composed message
func (a *ArchiveNotifier) SendRaw(ctx context.Context, to string, raw []byte) error {
	return a.deliver(ctx, to, raw, time.Now())
}

// Verify checks the wrapped transport
func (a *ArchiveNotifier) Verify(ctx context.Context) error {
	return a.next.Verify(ctx)
}

// Close closes the wrapped transport
func (a *ArchiveNotifier) Close() error {
	return a.next.Close()
}

func (a *ArchiveNotifier) deliver(ctx context.Context, to string, raw []byte, date time.Time) error {
	if err := a.next.SendRaw(ctx, to, raw); err != nil {
		return err
	}

	if err := a.archive(raw, date); err != nil {
		logrus.WithField("path", a.path).Warnf("Failed to archive notification: %v", err)
	}
	return nil
}

func (a *ArchiveNotifier) archive(raw []byte, date time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	from := a.from
	if from == "" {
		from = "MAILER-DAEMON"
	}

	mw := mbox.NewWriter(f)
	w, err := mw.CreateMessage(from, date)
	if err != nil {
		return fmt.Errorf("failed to create archive entry: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("failed to write archive entry: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("failed to close archive entry: %w", err)
	}
	return nil
}
