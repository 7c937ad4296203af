package worker

import (
	"context"

	"github.com/spec-kit/servicedesk-sla/internal/notify"
	"github.com/spec-kit/servicedesk-sla/internal/service"
)

// StartNotificationWorker registers notification handlers and, when a
// queue consumer is given, drains queued notifications until ctx ends.
// The returned channel closes once the consumer has stopped.
func StartNotificationWorker(ctx context.Context, notificationService *service.NotificationService, consumer *notify.Consumer) <-chan struct{} {
	done := make(chan struct{})
	if notificationService != nil {
		notificationService.RegisterHandlers()
	}
	if consumer == nil {
		close(done)
		return done
	}
	go func() {
		defer close(done)
		consumer.Run(ctx)
	}()
	return done
}
