package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
)

// SMSChannel posts SLA alerts to an HTTP SMS gateway.
type SMSChannel struct {
	url     string
	token   string
	timeout time.Duration
}

// NewSMSChannel targets the gateway at url.
func NewSMSChannel(url, token string, timeout time.Duration) *SMSChannel {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SMSChannel{url: url, token: token, timeout: timeout}
}

func (s *SMSChannel) Name() string { return "sms" }

// Accepts only SLA alerts for recipients with a phone number.
func (s *SMSChannel) Accepts(job Job) bool {
	if job.Recipient.Phone == "" {
		return false
	}
	return job.Kind == KindSLAWarning || job.Kind == KindSLABreach
}

type smsRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

func (s *SMSChannel) Deliver(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	timeout := s.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}

	agent := fiber.Post(s.url)
	agent.Timeout(timeout)
	if s.token != "" {
		agent.Set(fiber.HeaderAuthorization, "Bearer "+s.token)
	}
	agent.JSON(smsRequest{To: job.Recipient.Phone, Message: smsText(job)})

	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("sms gateway: %w", errors.Join(errs...))
	}
	if code < 200 || code >= 300 {
		return fmt.Errorf("sms gateway returned %d: %s", code, body)
	}
	return nil
}

func smsText(job Job) string {
	key := job.Ticket.Key
	if key == "" {
		key = job.Ticket.ID
	}
	due := ""
	if job.DueDate != nil {
		due = " (due " + job.DueDate.UTC().Format("2006-01-02 15:04 UTC") + ")"
	}
	if job.Kind == KindSLABreach {
		return "SLA BREACHED for ticket " + key + due
	}
	return "SLA warning for ticket " + key + due
}
