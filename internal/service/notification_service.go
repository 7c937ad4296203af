package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spec-kit/servicedesk-sla/internal/domain"
	"github.com/spec-kit/servicedesk-sla/internal/events"
	"github.com/spec-kit/servicedesk-sla/internal/notify"
	"github.com/spec-kit/servicedesk-sla/internal/repository"
)

// StatusNotifier enqueues status-change emails.
type StatusNotifier interface {
	SendStatusChanged(ctx context.Context, ticket notify.TicketRef, recipient notify.Recipient, data map[string]string) error
}

// NotificationService reacts to domain events: it tells ticket creators
// about status changes and logs SLA events.
type NotificationService struct {
	dispatcher events.Dispatcher
	store      repository.Store
	sender     StatusNotifier
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, store repository.Store, sender StatusNotifier, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		store:      store,
		sender:     sender,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.logEvent)
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.handleTicketStatusChanged)
	n.dispatcher.Subscribe(events.EventTicketAssigned, n.logEvent)
	n.dispatcher.Subscribe(events.EventSLAWarning, n.logEvent)
	n.dispatcher.Subscribe(events.EventSLABreached, n.logEvent)
}

func (n *NotificationService) logEvent(_ context.Context, event events.Event) error {
	n.logger.Info(string(event.Type), zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handleTicketStatusChanged(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketStatusChanged", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	payload, ok := event.Payload.(events.TicketStatusChangedPayload)
	if !ok || payload.CreatedByID == nil || n.sender == nil {
		return nil
	}

	ticket, err := n.store.Tickets().GetByID(ctx, event.TicketID)
	if err != nil {
		return err
	}
	creator, err := n.store.Employees().GetByID(ctx, *payload.CreatedByID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	recipient := notify.Recipient{Name: creator.Name, Email: creator.Email}
	if recipient.Empty() {
		return nil
	}

	data := map[string]string{
		notify.DataSummary:   ticket.Summary,
		notify.DataOldStatus: string(payload.OldStatus),
		notify.DataNewStatus: string(payload.NewStatus),
		notify.DataCreatedBy: creator.Name,
		notify.DataAssignee:  n.assigneeName(ctx, ticket),
	}
	return n.sender.SendStatusChanged(ctx, notify.TicketRef{ID: ticket.ID, Key: ticket.ExternalKey}, recipient, data)
}

func (n *NotificationService) assigneeName(ctx context.Context, ticket *domain.Ticket) string {
	if ticket.AssigneeID == nil {
		return "Unassigned"
	}
	employee, err := n.store.Employees().GetByID(ctx, *ticket.AssigneeID)
	if err != nil {
		return "Unassigned"
	}
	return employee.Name
}
