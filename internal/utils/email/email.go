package email

import (
	"fmt"
	"net/smtp"
	"time"

	"github.com/cardhub/card-service/internal/config"
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

// SendCardExpired notifies a card owner that their card has been
// marked expired by the nightly sweep.
func (s *Sender) SendCardExpired(to, name, maskedNumber string, expiry time.Time) error {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{to}
	e.Subject = "Card Expired Notification"

	body := fmt.Sprintf(
		"Dear %s,\n\n"+
			"Your card %s expired on %s and has been deactivated.\n"+
			"Please contact the bank to receive a replacement card.\n"+
			"\nBest regards,\nCard Service",
		name, maskedNumber, expiry.Format("2006-01-02"),
	)
	e.Text = []byte(body)

	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	auth := smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	if err := e.Send(addr, auth); err != nil {
		s.logger.Errorf("Failed to send email to %s: %v", to, err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Infof("Email sent to %s: %s", to, e.Subject)
	return nil
}
