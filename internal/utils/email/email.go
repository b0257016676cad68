// Package email sends the application's transactional mail over SMTP.
package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html"
	"net/smtp"
	"strings"
	"time"

	"github.com/Kevjes/liberal-api/internal/config"
	"github.com/Kevjes/liberal-api/internal/utils"
	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"
)

// Sender handles sending emails via SMTP
type Sender struct {
	cfg    *config.Config
	logger *logrus.Logger
}

// NewSender creates a new email sender
func NewSender(cfg *config.Config, logger *logrus.Logger) *Sender {
	return &Sender{
		cfg:    cfg,
		logger: logger,
	}
}

// CardMail is a rendered card addressed to a member.
type CardMail struct {
	FirstName string
	LastName  string
	Number    int64
	PDF       []byte
}

// PendingCard is one line of the approval digest.
type PendingCard struct {
	Number    int64
	FirstName string
	LastName  string
	Creator   string
	CreatedAt time.Time
}

// SendCard mails the card PDF to a member.
func (s *Sender) SendCard(ctx context.Context, to string, card CardMail) error {
	e, err := s.cardEmail(to, card)
	if err != nil {
		return err
	}
	return s.send(ctx, e)
}

func (s *Sender) cardEmail(to string, card CardMail) (*email.Email, error) {
	e := s.newEmail(to, fmt.Sprintf("Votre carte de membre - %s %s", card.FirstName, card.LastName))
	number := utils.FormatCardNumber(card.Number, utils.EmailNumberWidth)

	e.Text = []byte(fmt.Sprintf(
		"Bonjour %s,\n\n"+
			"Veuillez trouver ci-joint votre carte de membre (Numéro: %s).\n\n"+
			"Cordialement,\n"+
			"L'équipe de %s",
		card.FirstName, number, s.cfg.AppName,
	))
	e.HTML = []byte(fmt.Sprintf(
		"<p>Bonjour %s,</p>"+
			"<p>Veuillez trouver ci-joint votre carte de membre (Numéro: <strong>%s</strong>).</p>"+
			"<p>Cordialement,<br>L'équipe de %s</p>",
		html.EscapeString(card.FirstName), number, html.EscapeString(s.cfg.AppName),
	))

	name := utils.CardAttachmentName(card.FirstName, card.LastName)
	if _, err := e.Attach(bytes.NewReader(card.PDF), name, "application/pdf"); err != nil {
		return nil, fmt.Errorf("failed to attach card: %w", err)
	}
	return e, nil
}

// SendPasswordReset mails a reset link valid for ttl.
func (s *Sender) SendPasswordReset(ctx context.Context, to, link string, ttl time.Duration) error {
	return s.send(ctx, s.resetEmail(to, link, ttl))
}

func (s *Sender) resetEmail(to, link string, ttl time.Duration) *email.Email {
	e := s.newEmail(to, fmt.Sprintf("Resetting your %s password", s.cfg.AppName))
	minutes := int(ttl.Minutes())
	e.Text = []byte(fmt.Sprintf(
		"Hello,\n\n"+
			"You have requested to reset your %s password.\n"+
			"Please click the following link to reset your password:\n%s\n\n"+
			"This link expires in %d minutes.\n"+
			"If you have not requested to reset your password, you can ignore this email.",
		s.cfg.AppName, link, minutes,
	))
	e.HTML = []byte(fmt.Sprintf(
		"<p>Hello,</p>"+
			"<p>You have requested to reset your %s password.</p>"+
			`<p><a href="%s">Reset my password</a></p>`+
			"<p>This link expires in %d minutes. If you have not requested it, you can ignore this email.</p>",
		html.EscapeString(s.cfg.AppName), html.EscapeString(link), minutes,
	))
	return e
}

// SendPasswordChanged confirms a completed password reset.
func (s *Sender) SendPasswordChanged(ctx context.Context, to string, at time.Time) error {
	e := s.newEmail(to, "Password Reset Successful")
	when := at.Format("January 02, 2006 at 03:04 PM MST")
	e.Text = []byte(fmt.Sprintf(
		"Hello,\n\n"+
			"This email confirms that the password for your %s account associated with %s was successfully changed on %s.\n\n"+
			"If you did not make this change, contact an administrator immediately.",
		s.cfg.AppName, to, when,
	))
	return s.send(ctx, e)
}

// SendPendingDigest lists inactive cards to the administrators.
func (s *Sender) SendPendingDigest(ctx context.Context, to []string, cards []PendingCard) error {
	if len(to) == 0 {
		return nil
	}
	e := s.digestEmail(to, cards)
	return s.send(ctx, e)
}

func (s *Sender) digestEmail(to []string, cards []PendingCard) *email.Email {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = to
	e.Subject = fmt.Sprintf("%d carte(s) en attente de validation", len(cards))

	var b strings.Builder
	b.WriteString("Bonjour,\n\nLes cartes suivantes attendent une validation :\n\n")
	for _, c := range cards {
		fmt.Fprintf(&b, "- N° %s  %s %s (créée le %s par %s)\n",
			utils.FormatCardNumber(c.Number, utils.EmailNumberWidth), c.FirstName, c.LastName,
			c.CreatedAt.Format("2006-01-02"), c.Creator)
	}
	fmt.Fprintf(&b, "\nCordialement,\nL'équipe de %s", s.cfg.AppName)
	e.Text = []byte(b.String())
	return e
}

func (s *Sender) newEmail(to, subject string) *email.Email {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{to}
	e.Subject = subject
	return e
}

func (s *Sender) send(ctx context.Context, e *email.Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	var auth smtp.Auth
	if s.cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	}
	tlsConfig := &tls.Config{
		ServerName:         s.cfg.SMTPHost,
		InsecureSkipVerify: s.cfg.SMTPSkipVerify,
	}

	var err error
	switch s.cfg.SMTPTLS {
	case "tls":
		err = e.SendWithTLS(addr, auth, tlsConfig)
	case "starttls":
		err = e.SendWithStartTLS(addr, auth, tlsConfig)
	default:
		err = e.Send(addr, auth)
	}
	if err != nil {
		s.logger.Errorf("Failed to send email to %s: %v", strings.Join(e.To, ", "), err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Infof("Email sent to %s: %s", strings.Join(e.To, ", "), e.Subject)
	return nil
}
