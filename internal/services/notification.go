package services

import (
	"context"

	"github.com/askloop/askloop/server/internal/model"
	"github.com/askloop/askloop/server/internal/store"
)

// NotificationService exposes the recipient's inbox.
type NotificationService struct {
	store store.Store
}

func NewNotificationService(s store.Store) *NotificationService {
	return &NotificationService{store: s}
}

// List pages the recipient's notifications, newest first.
func (svc *NotificationService) List(ctx context.Context, recipientID string, limit, offset int) ([]*model.Notification, error) {
	return svc.store.Notifications().ListByRecipient(ctx, recipientID, limit, offset)
}

// Counts returns total and unread counts for the recipient.
func (svc *NotificationService) Counts(ctx context.Context, recipientID string) (total, unread int, err error) {
	return svc.store.Notifications().Counts(ctx, recipientID)
}

// MarkRead marks one notification read. Scoped to the recipient.
func (svc *NotificationService) MarkRead(ctx context.Context, recipientID, notificationID string) error {
	return svc.store.Notifications().MarkRead(ctx, notificationID, recipientID)
}

// MarkAllRead marks every unread notification read and returns how many.
func (svc *NotificationService) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	return svc.store.Notifications().MarkAllRead(ctx, recipientID)
}

// Delete removes a notification from the recipient's inbox.
func (svc *NotificationService) Delete(ctx context.Context, recipientID, notificationID string) error {
	return svc.store.Notifications().Delete(ctx, notificationID, recipientID)
}
