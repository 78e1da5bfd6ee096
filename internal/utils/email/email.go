package email

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"time"

	"github.com/Dan9191/referral-service/internal/config"
	"github.com/Dan9191/referral-service/internal/models"
	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"
)

// Sender handles sending emails via SMTP
type Sender struct {
	cfg    *config.Config
	logger *logrus.Logger

	deliver func(e *email.Email) error
}

// NewSender creates a new email sender
func NewSender(cfg *config.Config, logger *logrus.Logger) *Sender {
	s := &Sender{
		cfg:    cfg,
		logger: logger,
	}
	s.deliver = s.sendSMTP
	return s
}

// ReferralCompleted tells the referrer that a user they referred completed their profile
func (s *Sender) ReferralCompleted(_ context.Context, referrer, referred *models.User) error {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{referrer.Email}
	e.Subject = "Your referral completed their profile"

	// Format email body
	body := fmt.Sprintf(
		"Hello,\n\n"+
			"%s, who signed up with your referral code %s, has completed their profile.\n"+
			"This now counts as a successful referral.\n",
		referred.Email, referrer.ReferralCode,
	)
	body += "\nBest regards,\nReferral Service"
	e.Text = []byte(body)

	if err := s.deliver(e); err != nil {
		s.logger.Errorf("Failed to send referral notification to %s: %v", referrer.Email, err)
		return fmt.Errorf("failed to send referral notification: %w", err)
	}

	s.logger.Infof("Email sent to %s: %s", referrer.Email, e.Subject)
	return nil
}

// SendReport mails the CSV referral report as an attachment
func (s *Sender) SendReport(to []string, csv []byte, generatedAt time.Time) error {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = to
	e.Subject = fmt.Sprintf("Referral report %s", generatedAt.Format("2006-01-02"))
	e.Text = []byte(fmt.Sprintf(
		"The referral report generated at %s is attached.\n\nBest regards,\nReferral Service",
		generatedAt.Format("2006-01-02 15:04:05"),
	))

	if _, err := e.Attach(bytes.NewReader(csv), "referral_report.csv", "text/csv"); err != nil {
		return fmt.Errorf("failed to attach report: %w", err)
	}

	if err := s.deliver(e); err != nil {
		s.logger.Errorf("Failed to send referral report to %v: %v", to, err)
		return fmt.Errorf("failed to send referral report: %w", err)
	}

	s.logger.Infof("Referral report sent to %v", to)
	return nil
}

func (s *Sender) sendSMTP(e *email.Email) error {
	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	var auth smtp.Auth
	if s.cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	}
	return e.Send(addr, auth)
}
