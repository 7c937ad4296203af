package notify

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/wneessen/go-mail"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var mailTemplates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

// MailSender delivers composed messages. *mail.Client satisfies it.
type MailSender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// EmailConfig configures the SMTP channel.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	SiteURL  string
	Location *time.Location
}

// EmailChannel renders jobs with text/template and sends them over SMTP.
type EmailChannel struct {
	cfg    EmailConfig
	sender MailSender
}

// NewEmailChannel builds the channel. A nil sender means a go-mail client
// for cfg.Host that upgrades to TLS when the server offers it and
// authenticates with PLAIN when a username is set.
func NewEmailChannel(cfg EmailConfig, sender MailSender) (*EmailChannel, error) {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if sender == nil {
		opts := []mail.Option{mail.WithPort(cfg.Port), mail.WithTLSPolicy(mail.TLSOpportunistic)}
		if cfg.Username != "" {
			opts = append(opts,
				mail.WithSMTPAuth(mail.SMTPAuthPlain),
				mail.WithUsername(cfg.Username),
				mail.WithPassword(cfg.Password))
		}
		client, err := mail.NewClient(cfg.Host, opts...)
		if err != nil {
			return nil, fmt.Errorf("smtp client: %w", err)
		}
		sender = client
	}
	return &EmailChannel{cfg: cfg, sender: sender}, nil
}

func (e *EmailChannel) Name() string { return "email" }

func (e *EmailChannel) Accepts(job Job) bool {
	return job.Recipient.Email != ""
}

type emailData struct {
	TicketKey string
	TicketURL string
	DueDate   string
	Summary   string
	OldStatus string
	NewStatus string
	CreatedBy string
	Assignee  string
}

// Render returns the subject and body for job.
func (e *EmailChannel) Render(job Job) (string, string, error) {
	key := job.Ticket.Key
	if key == "" {
		key = job.Ticket.ID
	}
	data := emailData{
		TicketKey: key,
		Summary:   job.Data[DataSummary],
		OldStatus: job.Data[DataOldStatus],
		NewStatus: job.Data[DataNewStatus],
		CreatedBy: orDefault(job.Data[DataCreatedBy], "Unknown"),
		Assignee:  orDefault(job.Data[DataAssignee], "Unassigned"),
	}
	if e.cfg.SiteURL != "" {
		data.TicketURL = strings.TrimRight(e.cfg.SiteURL, "/") + "/tickets/" + key
	}
	if job.DueDate != nil {
		data.DueDate = job.DueDate.In(e.cfg.Location).Format("2006-01-02 15:04:05 MST")
	}

	var subject, body bytes.Buffer
	if err := mailTemplates.ExecuteTemplate(&subject, string(job.Kind)+"_subject", data); err != nil {
		return "", "", fmt.Errorf("render %s subject: %w", job.Kind, err)
	}
	if err := mailTemplates.ExecuteTemplate(&body, string(job.Kind)+"_body", data); err != nil {
		return "", "", fmt.Errorf("render %s body: %w", job.Kind, err)
	}
	return sanitizeHeader(subject.String()), body.String(), nil
}

// Deliver renders job and sends it within ctx.
func (e *EmailChannel) Deliver(ctx context.Context, job Job) error {
	subject, body, err := e.Render(job)
	if err != nil {
		return err
	}

	msg := mail.NewMsg()
	if err := msg.From(sanitizeHeader(e.cfg.From)); err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	if err := msg.To(sanitizeHeader(job.Recipient.Email)); err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	return e.sender.DialAndSendWithContext(ctx, msg)
}

func sanitizeHeader(v string) string {
	return strings.TrimSpace(strings.NewReplacer("\r", "", "\n", "").Replace(v))
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
