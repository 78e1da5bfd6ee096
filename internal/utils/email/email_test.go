package email

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/Dan9191/referral-service/internal/config"
	"github.com/Dan9191/referral-service/internal/models"
	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSender() (*Sender, *[]*email.Email) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	s := NewSender(&config.Config{SenderEmail: "no-reply@example.com"}, logger)
	var sent []*email.Email
	s.deliver = func(e *email.Email) error {
		sent = append(sent, e)
		return nil
	}
	return s, &sent
}

func TestReferralCompleted(t *testing.T) {
	s, sent := newTestSender()
	referrer := &models.User{Email: "alice@example.com", ReferralCode: "AAAA1111"}
	referred := &models.User{Email: "bob@example.com"}

	require.NoError(t, s.ReferralCompleted(context.Background(), referrer, referred))

	require.Len(t, *sent, 1)
	e := (*sent)[0]
	assert.Equal(t, "no-reply@example.com", e.From)
	assert.Equal(t, []string{"alice@example.com"}, e.To)
	assert.Contains(t, string(e.Text), "bob@example.com")
	assert.Contains(t, string(e.Text), "AAAA1111")
}

func TestSendReportAttachesCSV(t *testing.T) {
	s, sent := newTestSender()
	at := time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)

	require.NoError(t, s.SendReport([]string{"admin@example.com"}, []byte("User ID,Email\n"), at))

	require.Len(t, *sent, 1)
	e := (*sent)[0]
	assert.Equal(t, "Referral report 2026-10-16", e.Subject)
	require.Len(t, e.Attachments, 1)
	assert.Equal(t, "referral_report.csv", e.Attachments[0].Filename)
	assert.True(t, strings.HasPrefix(string(e.Attachments[0].Content), "User ID"))
}

func TestDeliveryFailure(t *testing.T) {
	s, _ := newTestSender()
	s.deliver = func(*email.Email) error { return errors.New("connection refused") }

	err := s.ReferralCompleted(context.Background(), &models.User{Email: "a@example.com"}, &models.User{Email: "b@example.com"})
	assert.ErrorContains(t, err, "connection refused")
}
