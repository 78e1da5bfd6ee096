// Package scheduler mails the referral report on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// ReportSource renders the referral report as CSV
type ReportSource interface {
	ReportCSV(ctx context.Context) ([]byte, error)
}

// ReportMailer delivers a rendered report
type ReportMailer interface {
	SendReport(to []string, csv []byte, generatedAt time.Time) error
}

// ReportScheduler periodically mails the referral report to a fixed recipient list
type ReportScheduler struct {
	cron       *cron.Cron
	source     ReportSource
	mailer     ReportMailer
	recipients []string
	timeout    time.Duration
	log        *logrus.Logger
}

// NewReportScheduler registers the report job under spec, a standard
// five-field cron expression or a descriptor such as "@daily"
func NewReportScheduler(spec string, source ReportSource, mailer ReportMailer, recipients []string, log *logrus.Logger) (*ReportScheduler, error) {
	s := &ReportScheduler{
		cron:       cron.New(),
		source:     source,
		mailer:     mailer,
		recipients: recipients,
		timeout:    time.Minute,
		log:        log,
	}
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return nil, fmt.Errorf("invalid report schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start runs the scheduler in its own goroutine
func (s *ReportScheduler) Start() {
	s.cron.Start()
	s.log.Infof("Referral report scheduled for %v", s.recipients)
}

// Stop halts scheduling and waits for a running job to finish
func (s *ReportScheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunOnce generates and mails the report immediately
func (s *ReportScheduler) RunOnce(ctx context.Context) error {
	csv, err := s.source.ReportCSV(ctx)
	if err != nil {
		return fmt.Errorf("failed to generate scheduled report: %w", err)
	}
	return s.mailer.SendReport(s.recipients, csv, time.Now())
}

func (s *ReportScheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.RunOnce(ctx); err != nil {
		s.log.Errorf("Scheduled referral report failed: %v", err)
	}
}
