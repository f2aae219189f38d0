package notify

import (
	"context"

	"github.com/askloop/askloop/server/internal/model"
	"github.com/askloop/askloop/server/internal/store"
)

// InboxSink persists notifications to the recipient's inbox in the store.
type InboxSink struct {
	store store.Store
}

func NewInboxSink(s store.Store) *InboxSink {
	return &InboxSink{store: s}
}

func (s *InboxSink) Name() string { return "inbox" }

func (s *InboxSink) Deliver(ctx context.Context, n *model.Notification) error {
	_, err := s.store.Notifications().Create(ctx, n)
	return err
}
