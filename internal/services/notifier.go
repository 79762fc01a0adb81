package services

import (
	"context"
	"log"

	"github.com/yukikurage/family-task-sync/internal/constants"
	"github.com/yukikurage/family-task-sync/internal/models"
	"github.com/yukikurage/family-task-sync/internal/repository"
)

// Notifier hands a notification to whatever schedules pushes for the recipient.
type Notifier interface {
	Notify(ctx context.Context, notification models.Notification) error
}

// RemoteNotifier writes notifications to the remote store, where the push
// scheduler picks them up. Offline writes wait in the outbox like any other.
type RemoteNotifier struct {
	router *repository.Router
}

func NewRemoteNotifier(router *repository.Router) *RemoteNotifier {
	return &RemoteNotifier{router: router}
}

func (n *RemoteNotifier) Notify(ctx context.Context, notification models.Notification) error {
	_, err := n.router.Write(ctx, models.OperationCreate, constants.CollectionNotifications,
		notification.ID, notification, notification.ToDocument())
	return err
}

// LogNotifier only logs. It is used when no remote store is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, notification models.Notification) error {
	log.Printf("Notification for %s: %s - %s", notification.RecipientID, notification.Title, notification.Body)
	return nil
}
