package mailbox

import (
	"context"
	"fmt"
	"strings"

	gmail "google.golang.org/api/gmail/v1"

	"github.com/sirupsen/logrus"

	"label-notifier-go/internal/config"
	"label-notifier-go/internal/gmailapi"
)

// GmailAPISource implements ThreadSource using the Gmail API
type GmailAPISource struct {
	service *gmail.Service
	userID  string
}

// NewGmailAPISource creates a Gmail API thread source
func NewGmailAPISource(ctx context.Context, cfg *config.GmailConfig) (*GmailAPISource, error) {
	service, err := gmailapi.NewService(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return newGmailAPISource(service, gmailapi.UserID(cfg)), nil
}

func newGmailAPISource(service *gmail.Service, userID string) *GmailAPISource {
	return &GmailAPISource{
		service: service,
		userID:  userID,
	}
}

// Threads lists every thread carrying the marker label, following pagination
func (s *GmailAPISource) Threads(ctx context.Context, marker string) ([]Thread, error) {
	labelID, err := s.labelID(ctx, marker)
	if err != nil {
		return nil, err
	}

	var threads []Thread
	pageToken := ""
	for {
		call := s.service.Users.Threads.List(s.userID).LabelIds(labelID).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		response, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("failed to list threads for label %q: %w", marker, err)
		}

		for _, thread := range response.Threads {
			threads = append(threads, Thread{ID: thread.Id})
		}

		if response.NextPageToken == "" {
			break
		}
		pageToken = response.NextPageToken
	}

	logrus.WithFields(logrus.Fields{
		"marker":  marker,
		"threads": len(threads),
	}).Debug("Listed marked threads")
	return threads, nil
}

// FirstSubject fetches the subject header of the thread's first message
func (s *GmailAPISource) FirstSubject(ctx context.Context, thread Thread) (string, error) {
	response, err := s.service.Users.Threads.Get(s.userID, thread.ID).
		Format("metadata").
		MetadataHeaders("Subject").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("failed to get thread %s: %w", thread.ID, err)
	}
	if len(response.Messages) == 0 {
		return "", fmt.Errorf("thread %s has no messages", thread.ID)
	}

	first := response.Messages[0]
	if first.Payload == nil {
		return "", nil
	}
	for _, header := range first.Payload.Headers {
		if strings.EqualFold(header.Name, "Subject") {
			return header.Value, nil
		}
	}
	return "", nil
}

// RemoveMarker removes the marker label from each thread
func (s *GmailAPISource) RemoveMarker(ctx context.Context, marker string, threads []Thread) error {
	if len(threads) == 0 {
		return nil
	}

	labelID, err := s.labelID(ctx, marker)
	if err != nil {
		return err
	}

	request := &gmail.ModifyThreadRequest{RemoveLabelIds: []string{labelID}}
	for _, thread := range threads {
		if _, err := s.service.Users.Threads.Modify(s.userID, thread.ID, request).Context(ctx).Do(); err != nil {
			return fmt.Errorf("failed to remove label %q from thread %s: %w", marker, thread.ID, err)
		}
	}
	return nil
}

// Verify tests the Gmail API connection
func (s *GmailAPISource) Verify(ctx context.Context) error {
	if _, err := s.service.Users.GetProfile(s.userID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to test Gmail API connection: %w", err)
	}
	return nil
}

// Close closes the source (no-op for Gmail API)
func (s *GmailAPISource) Close() error {
	return nil
}

// labelID resolves a user label name to its Gmail label id
func (s *GmailAPISource) labelID(ctx context.Context, name string) (string, error) {
	response, err := s.service.Users.Labels.List(s.userID).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to list labels: %w", err)
	}
	for _, label := range response.Labels {
		if label.Name == name {
			return label.Id, nil
		}
	}
	return "", fmt.Errorf("label %q: %w", name, ErrMarkerNotFound)
}
