// Package notify delivers SLA warnings, SLA breaches and status-change
// notices. Producers publish Jobs; a Redis-backed Queue or the in-process
// Async fallback hands them to a Dispatcher that fans out to channels.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Kind names a notification template.
type Kind string

const (
	KindSLAWarning    Kind = "sla_warning"
	KindSLABreach     Kind = "sla_breach"
	KindStatusChanged Kind = "status_changed"
)

// ErrQueueFull is returned when the in-process buffer cannot take a job.
var ErrQueueFull = errors.New("notification queue full")

// Recipient is who a notification goes to. Either address may be empty.
type Recipient struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Empty reports whether there is no address to deliver to.
func (r Recipient) Empty() bool {
	return r.Email == "" && r.Phone == ""
}

// TicketRef identifies a ticket by storage id and human key.
type TicketRef struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

// Job is one queued notification. Channels lists the channels still to be
// tried; empty means every channel that accepts the job.
type Job struct {
	ID        string            `json:"id"`
	Kind      Kind              `json:"kind"`
	Ticket    TicketRef         `json:"ticket"`
	Recipient Recipient         `json:"recipient"`
	DueDate   *time.Time        `json:"due_date,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
	Channels  []string          `json:"channels,omitempty"`
	Retries   int               `json:"retries,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Data keys used by the status_changed template.
const (
	DataSummary   = "summary"
	DataOldStatus = "old_status"
	DataNewStatus = "new_status"
	DataCreatedBy = "created_by"
	DataAssignee  = "assignee"
)

// Notifier is what the SLA engine needs from delivery. Calls only enqueue;
// they never wait for the message to go out.
type Notifier interface {
	SendWarning(ctx context.Context, ticket TicketRef, recipient Recipient, due time.Time) error
	SendBreach(ctx context.Context, ticket TicketRef, recipient Recipient, due time.Time) error
}

// Publisher accepts jobs for later delivery.
type Publisher interface {
	Publish(ctx context.Context, job Job) error
}

// Deliverer sends a job now. It returns the names of the channels that
// failed so only those are retried.
type Deliverer interface {
	Deliver(ctx context.Context, job Job) ([]string, error)
}

// Sender turns notification requests into jobs for a Publisher.
type Sender struct {
	publisher Publisher
	now       func() time.Time
}

var _ Notifier = (*Sender)(nil)

// NewSender wraps publisher. now stamps CreatedAt; nil means time.Now.
func NewSender(publisher Publisher, now func() time.Time) *Sender {
	if now == nil {
		now = time.Now
	}
	return &Sender{publisher: publisher, now: now}
}

// SendWarning enqueues an SLA warning.
func (s *Sender) SendWarning(ctx context.Context, ticket TicketRef, recipient Recipient, due time.Time) error {
	return s.publisher.Publish(ctx, s.newJob(KindSLAWarning, ticket, recipient, &due, nil))
}

// SendBreach enqueues an SLA breach notice.
func (s *Sender) SendBreach(ctx context.Context, ticket TicketRef, recipient Recipient, due time.Time) error {
	return s.publisher.Publish(ctx, s.newJob(KindSLABreach, ticket, recipient, &due, nil))
}

// SendStatusChanged enqueues a status-change email. data carries the
// template fields (DataSummary, DataNewStatus, ...).
func (s *Sender) SendStatusChanged(ctx context.Context, ticket TicketRef, recipient Recipient, data map[string]string) error {
	return s.publisher.Publish(ctx, s.newJob(KindStatusChanged, ticket, recipient, nil, data))
}

func (s *Sender) newJob(kind Kind, ticket TicketRef, recipient Recipient, due *time.Time, data map[string]string) Job {
	return Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Ticket:    ticket,
		Recipient: recipient,
		DueDate:   due,
		Data:      data,
		CreatedAt: s.now().UTC(),
	}
}
