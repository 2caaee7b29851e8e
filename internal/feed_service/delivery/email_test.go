package delivery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"

	"github.com/solidusdata/feedpipe/internal/feed_service/domain"
)

type capturingMailer struct {
	sent []*mail.Msg
	err  error
}

func (m *capturingMailer) DialAndSend(messages ...*mail.Msg) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, messages...)
	return nil
}

func testSMTP() SMTPConfig {
	return SMTPConfig{Host: "smtp.example.com", Port: 587, From: "feeds@example.com"}
}

func TestEmailDeliveryAttachesSmallArtifact(t *testing.T) {
	sink := newMemorySink()
	feed := deliveryFeed(t, domain.DeliveryEmail, `{"email":"buyer@acme.example","subject_template":"{feed_name} for {date}"}`)
	gen := deliveredGeneration(feed)
	_, err := sink.Save(context.Background(), gen.FilePath, []byte("sku,name\nA1,Bolt\n"))
	require.NoError(t, err)

	mailer := &capturingMailer{}
	h := NewEmailHandler(sink, testSMTP(), "https://feeds.example.com", mailer, testLogger())

	outcome := h.Deliver(context.Background(), feed, gen)

	require.True(t, outcome.Success, "error: %s", outcome.Error)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "buyer@acme.example", outcome.Details["recipient"])
	assert.Equal(t, true, outcome.Details["attached"])
}

func TestEmailDeliverySkipsAttachmentAboveLimit(t *testing.T) {
	feed := deliveryFeed(t, domain.DeliveryEmail, `{"email":"buyer@acme.example"}`)
	gen := deliveredGeneration(feed)
	gen.FileSize = attachmentLimit + 1

	mailer := &capturingMailer{}
	// The sink holds nothing: an oversized artifact must never be read.
	h := NewEmailHandler(newMemorySink(), testSMTP(), "https://feeds.example.com", mailer, testLogger())

	outcome := h.Deliver(context.Background(), feed, gen)

	require.True(t, outcome.Success, "error: %s", outcome.Error)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, false, outcome.Details["attached"])
}

func TestEmailDeliveryFallsBackToFeedOwner(t *testing.T) {
	sink := newMemorySink()
	feed := deliveryFeed(t, domain.DeliveryEmail, `{}`)
	gen := deliveredGeneration(feed)
	_, err := sink.Save(context.Background(), gen.FilePath, []byte("x"))
	require.NoError(t, err)

	mailer := &capturingMailer{}
	outcome := NewEmailHandler(sink, testSMTP(), "https://feeds.example.com", mailer, testLogger()).Deliver(context.Background(), feed, gen)

	require.True(t, outcome.Success, "error: %s", outcome.Error)
	assert.Equal(t, feed.CustomerEmail, outcome.Details["recipient"])
}

func TestEmailDeliveryNoRecipientFails(t *testing.T) {
	feed := deliveryFeed(t, domain.DeliveryEmail, `{}`)
	feed.CustomerEmail = ""

	mailer := &capturingMailer{}
	outcome := NewEmailHandler(newMemorySink(), testSMTP(), "https://feeds.example.com", mailer, testLogger()).Deliver(context.Background(), feed, deliveredGeneration(feed))

	assert.False(t, outcome.Success)
	assert.Empty(t, mailer.sent)
}

func TestEmailDeliveryInvalidAddressFails(t *testing.T) {
	feed := deliveryFeed(t, domain.DeliveryEmail, `{"email":"not-an-address"}`)

	outcome := NewEmailHandler(newMemorySink(), testSMTP(), "https://feeds.example.com", &capturingMailer{}, testLogger()).Deliver(context.Background(), feed, deliveredGeneration(feed))

	assert.False(t, outcome.Success)
}

func TestEmailDeliverySendFailure(t *testing.T) {
	sink := newMemorySink()
	feed := deliveryFeed(t, domain.DeliveryEmail, `{"email":"buyer@acme.example"}`)
	gen := deliveredGeneration(feed)
	_, err := sink.Save(context.Background(), gen.FilePath, []byte("x"))
	require.NoError(t, err)

	mailer := &capturingMailer{err: errors.New("connection refused")}
	outcome := NewEmailHandler(sink, testSMTP(), "https://feeds.example.com", mailer, testLogger()).Deliver(context.Background(), feed, gen)

	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Error, "connection refused")
}

func TestRenderSubject(t *testing.T) {
	feed := deliveryFeed(t, domain.DeliveryEmail, `{}`)
	gen := deliveredGeneration(feed)

	assert.Equal(t, "Your Catalog Export is ready", renderSubject("", feed, gen))
	assert.Equal(t, "Catalog Export (product_catalog) 2024-03-05",
		renderSubject("{feed_name} ({feed_type}) {date}", feed, gen))
}
