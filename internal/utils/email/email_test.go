package email

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/Kevjes/liberal-api/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSender() *Sender {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewSender(&config.Config{
		AppName:     "Liberal",
		SenderEmail: "no-reply@liberal.test",
		SMTPHost:    "127.0.0.1",
		SMTPPort:    "1",
		SMTPTLS:     "none",
	}, logger)
}

func TestCardEmail(t *testing.T) {
	s := newTestSender()
	pdf := []byte("%PDF-1.3 fake")

	e, err := s.cardEmail("jane@x.com", CardMail{FirstName: "Jane", LastName: "Doe", Number: 7, PDF: pdf})
	require.NoError(t, err)

	assert.Equal(t, []string{"jane@x.com"}, e.To)
	assert.Equal(t, "no-reply@liberal.test", e.From)
	assert.Equal(t, "Votre carte de membre - Jane Doe", e.Subject)
	assert.Contains(t, string(e.Text), "Numéro: 000007")
	assert.Contains(t, string(e.HTML), "<strong>000007</strong>")
	assert.Contains(t, string(e.Text), "L'équipe de Liberal")

	require.Len(t, e.Attachments, 1)
	assert.Equal(t, "carte_membre_Doe_Jane.pdf", e.Attachments[0].Filename)
	assert.Equal(t, pdf, e.Attachments[0].Content)
}

func TestCardEmail_EscapesHTML(t *testing.T) {
	e, err := newTestSender().cardEmail("x@x.com", CardMail{FirstName: "<b>Jo</b>", LastName: "Doe"})
	require.NoError(t, err)
	assert.NotContains(t, string(e.HTML), "<b>Jo</b>")
	assert.Contains(t, string(e.HTML), "&lt;b&gt;Jo&lt;/b&gt;")
}

func TestResetEmail(t *testing.T) {
	e := newTestSender().resetEmail("a@x.com", "https://x/auth/reset-password?token=abc", 15*time.Minute)
	assert.Equal(t, "Resetting your Liberal password", e.Subject)
	assert.Contains(t, string(e.Text), "https://x/auth/reset-password?token=abc")
	assert.Contains(t, string(e.Text), "15 minutes")
}

func TestDigestEmail(t *testing.T) {
	created := time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)
	e := newTestSender().digestEmail([]string{"admin@x.com", "boss@x.com"}, []PendingCard{
		{Number: 3, FirstName: "Jane", LastName: "Doe", Creator: "agent@x.com", CreatedAt: created},
		{Number: 4, FirstName: "John", LastName: "Roe", Creator: "agent@x.com", CreatedAt: created},
	})
	assert.Equal(t, []string{"admin@x.com", "boss@x.com"}, e.To)
	assert.Equal(t, "2 carte(s) en attente de validation", e.Subject)
	assert.Equal(t, 2, strings.Count(string(e.Text), "créée le 2026-05-04"))
	assert.Contains(t, string(e.Text), "N° 000003")
}

func TestSend_ReportsTransportFailure(t *testing.T) {
	err := newTestSender().SendPasswordChanged(context.Background(), "a@x.com", time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to send email")
}

func TestSend_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := newTestSender().SendPasswordChanged(ctx, "a@x.com", time.Now())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSendPendingDigest_NoRecipients(t *testing.T) {
	assert.NoError(t, newTestSender().SendPendingDigest(context.Background(), nil, []PendingCard{{Number: 1}}))
}
