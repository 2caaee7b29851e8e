// Package delivery transmits generated feed artifacts through the
// transport a feed definition configures. Handlers never panic outward:
// every internal fault is captured into the DeliveryOutcome so the
// orchestrator can record it without crashing the batch.
package delivery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/solidusdata/feedpipe/internal/feed_service/domain"
	"github.com/solidusdata/feedpipe/internal/platform/storage"
)

// validate checks typed delivery-config structs before any network I/O.
var validate = validator.New()

// Handler delivers one completed generation.
type Handler interface {
	Deliver(ctx context.Context, feed *domain.Feed, gen *domain.Generation) domain.DeliveryOutcome
}

// SMTPConfig carries the outbound mail settings for the email handler.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Deps bundles the collaborators handlers need.
type Deps struct {
	Sink    storage.Sink
	Logger  *slog.Logger
	BaseURL string
	SMTP    SMTPConfig
	// Mailer overrides the SMTP client, for tests. Nil means a real
	// client built from SMTP.
	Mailer MailSender
}

// ForMethod selects the handler for a delivery method.
func ForMethod(method domain.DeliveryMethod, deps Deps) (Handler, error) {
	switch method {
	case domain.DeliveryDownload:
		return NewDownloadHandler(deps.Logger), nil
	case domain.DeliveryEmail:
		return NewEmailHandler(deps.Sink, deps.SMTP, deps.BaseURL, deps.Mailer, deps.Logger), nil
	case domain.DeliveryFTP:
		return NewFTPHandler(deps.Sink, deps.Logger), nil
	case domain.DeliverySFTP:
		return NewSFTPHandler(deps.Sink, deps.Logger), nil
	case domain.DeliveryWebhook:
		return NewWebhookHandler(deps.BaseURL, deps.Logger), nil
	default:
		return nil, fmt.Errorf("unsupported delivery method: %s", method)
	}
}

// failure is the uniform error outcome.
func failure(err error) domain.DeliveryOutcome {
	return domain.DeliveryOutcome{Success: false, Error: err.Error()}
}
