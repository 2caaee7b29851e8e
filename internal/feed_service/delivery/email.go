package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/wneessen/go-mail"

	"github.com/solidusdata/feedpipe/internal/feed_service/domain"
	"github.com/solidusdata/feedpipe/internal/platform/storage"
)

// attachmentLimit is the largest artifact inlined into a notification
// email; bigger files are referenced by download link only.
const attachmentLimit = 10 * 1024 * 1024

// MailSender is the seam between the email handler and the SMTP client.
type MailSender interface {
	DialAndSend(messages ...*mail.Msg) error
}

type emailConfig struct {
	Email           string   `json:"email" validate:"omitempty,email"`
	CCEmails        []string `json:"cc_emails" validate:"dive,email"`
	SubjectTemplate string   `json:"subject_template"`
}

// EmailHandler mails a "feed ready" notification, attaching the
// artifact when it is small enough.
type EmailHandler struct {
	sink    storage.Sink
	smtp    SMTPConfig
	baseURL string
	mailer  MailSender
	logger  *slog.Logger
}

func NewEmailHandler(sink storage.Sink, smtp SMTPConfig, baseURL string, mailer MailSender, logger *slog.Logger) *EmailHandler {
	return &EmailHandler{
		sink:    sink,
		smtp:    smtp,
		baseURL: baseURL,
		mailer:  mailer,
		logger:  logger.With("component", "email_handler"),
	}
}

func (h *EmailHandler) Deliver(ctx context.Context, feed *domain.Feed, gen *domain.Generation) domain.DeliveryOutcome {
	var cfg emailConfig
	if len(feed.DeliveryConfig) > 0 {
		if err := json.Unmarshal(feed.DeliveryConfig, &cfg); err != nil {
			return failure(fmt.Errorf("invalid email delivery config: %w", err))
		}
	}
	if err := validate.StructCtx(ctx, cfg); err != nil {
		return failure(fmt.Errorf("invalid email delivery config: %w", err))
	}

	recipient := cfg.Email
	if recipient == "" {
		recipient = feed.CustomerEmail
	}
	if recipient == "" {
		return failure(fmt.Errorf("no recipient configured and feed owner has no email"))
	}

	subject := renderSubject(cfg.SubjectTemplate, feed, gen)
	downloadURL := fmt.Sprintf("%s/feeds/download/%s/", strings.TrimRight(h.baseURL, "/"), gen.ID)

	msg := mail.NewMsg()
	if err := msg.From(h.smtp.From); err != nil {
		return failure(fmt.Errorf("invalid sender address: %w", err))
	}
	if err := msg.To(recipient); err != nil {
		return failure(fmt.Errorf("invalid recipient address: %w", err))
	}
	if len(cfg.CCEmails) > 0 {
		if err := msg.Cc(cfg.CCEmails...); err != nil {
			return failure(fmt.Errorf("invalid cc address: %w", err))
		}
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, h.renderBody(feed, gen, downloadURL))

	attached := false
	if gen.FileSize > 0 && gen.FileSize < attachmentLimit {
		content, err := h.sink.Open(ctx, gen.FilePath)
		if err != nil {
			return failure(fmt.Errorf("reading artifact for attachment: %w", err))
		}
		if err := msg.AttachReader(path.Base(gen.FilePath), bytes.NewReader(content)); err != nil {
			return failure(fmt.Errorf("attaching artifact: %w", err))
		}
		attached = true
	}

	sender := h.mailer
	if sender == nil {
		client, err := h.newClient()
		if err != nil {
			return failure(fmt.Errorf("building SMTP client: %w", err))
		}
		sender = client
	}

	if err := sender.DialAndSend(msg); err != nil {
		h.logger.ErrorContext(ctx, "Email delivery failed", "feed_id", feed.ID, "generation_id", gen.ID, "error", err)
		return failure(fmt.Errorf("sending email: %w", err))
	}

	h.logger.InfoContext(ctx, "Feed delivered by email", "feed_id", feed.ID, "generation_id", gen.ID, "recipient", recipient, "attached", attached)
	return domain.DeliveryOutcome{
		Success: true,
		Details: map[string]any{
			"recipient": recipient,
			"cc":        cfg.CCEmails,
			"attached":  attached,
		},
	}
}

func (h *EmailHandler) newClient() (*mail.Client, error) {
	opts := []mail.Option{mail.WithPort(h.smtp.Port)}
	if h.smtp.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(h.smtp.Username),
			mail.WithPassword(h.smtp.Password),
		)
	}
	return mail.NewClient(h.smtp.Host, opts...)
}

func (h *EmailHandler) renderBody(feed *domain.Feed, gen *domain.Generation, downloadURL string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", feed.CustomerName)
	fmt.Fprintf(&b, "Your %s feed %q generated on %s is ready.\n", feed.FeedType, feed.Name, gen.StartedAt.Format("2006-01-02"))
	fmt.Fprintf(&b, "Rows: %d\n\n", gen.RowCount)
	fmt.Fprintf(&b, "Download: %s\n", downloadURL)
	return b.String()
}

// renderSubject fills the configured subject template. Supported
// placeholders: {feed_name}, {feed_type}, {date}.
func renderSubject(template string, feed *domain.Feed, gen *domain.Generation) string {
	if template == "" {
		template = "Your {feed_name} is ready"
	}
	r := strings.NewReplacer(
		"{feed_name}", feed.Name,
		"{feed_type}", string(feed.FeedType),
		"{date}", gen.StartedAt.Format("2006-01-02"),
	)
	return r.Replace(template)
}
