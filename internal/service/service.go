package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dan9191/referral-service/internal/metrics"
	"github.com/Dan9191/referral-service/internal/models"
	"github.com/Dan9191/referral-service/internal/report"
	"github.com/Dan9191/referral-service/internal/repository"
	"github.com/Dan9191/referral-service/internal/utils"
	"github.com/sirupsen/logrus"
)

// maxCodeAttempts bounds referral code regeneration after a collision
const maxCodeAttempts = 5

var (
	ErrInvalidInput        = errors.New("email and password are required")
	ErrDuplicateEmail      = errors.New("email already exists")
	ErrInvalidReferralCode = errors.New("invalid referral code")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrUserNotFound        = errors.New("user not found")
)

// Store is the persistence contract the service depends on
type Store interface {
	CreateUser(ctx context.Context, user *models.User) error
	FindUserByID(ctx context.Context, id int64) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindUserByReferralCode(ctx context.Context, code string) (*models.User, error)
	FindUsersByReferrerID(ctx context.Context, referrerID int64) ([]models.User, error)
	FindAllUsers(ctx context.Context) ([]models.User, error)
	MarkProfileCompleted(ctx context.Context, id int64) (user *models.User, changed bool, err error)
}

// Hasher hashes and verifies passwords
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

// TokenIssuer issues bearer tokens for a subject
type TokenIssuer interface {
	Issue(subject string) (string, error)
}

// Notifier is told when a referred user completes their profile
type Notifier interface {
	ReferralCompleted(ctx context.Context, referrer, referred *models.User) error
}

// Service handles business logic
type Service struct {
	repo     Store
	hasher   Hasher
	tokens   TokenIssuer
	notifier Notifier
	metrics  *metrics.Metrics
	log      *logrus.Logger

	// dummyHash is verified against when the login email is unknown, so
	// both failure paths pay for one bcrypt comparison
	dummyHash    string
	generateCode func() (string, error)
}

// Option customizes a Service
type Option func(*Service)

// WithNotifier sets the notifier used on referral completion
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithMetrics sets the metrics sink
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService initializes a new service
func NewService(repo Store, hasher Hasher, tokens TokenIssuer, log *logrus.Logger, opts ...Option) *Service {
	s := &Service{
		repo:         repo,
		hasher:       hasher,
		tokens:       tokens,
		log:          log,
		generateCode: utils.GenerateReferralCode,
	}
	for _, opt := range opts {
		opt(s)
	}

	hash, err := hasher.Hash("referral-service-login-placeholder")
	if err != nil {
		log.Warnf("Failed to prepare placeholder password hash: %v", err)
	}
	s.dummyHash = hash
	return s
}

// Signup creates a user, linking it to the owner of referralCode when one is given
func (s *Service) Signup(ctx context.Context, email, password, referralCode string) (*models.User, error) {
	user, err := s.signup(ctx, email, password, referralCode)
	if err != nil {
		s.metrics.RecordSignup(metrics.ResultFailure, referralCode != "")
		return nil, err
	}
	s.metrics.RecordSignup(metrics.ResultSuccess, user.HasReferrer())
	s.log.Infof("User signed up: %s (id %d)", user.Email, user.ID)
	return user, nil
}

func (s *Service) signup(ctx context.Context, email, password, referralCode string) (*models.User, error) {
	email = utils.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidInput
	}

	// Fast path; the unique constraint is still authoritative on insert
	if _, err := s.repo.FindUserByEmail(ctx, email); err == nil {
		return nil, ErrDuplicateEmail
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	user := &models.User{Email: email}
	if referralCode != "" {
		referrer, err := s.repo.FindUserByReferralCode(ctx, referralCode)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidReferralCode
		}
		if err != nil {
			return nil, err
		}
		referrerID := referrer.ID
		user.ReferrerID = &referrerID
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	user.PasswordHash = hash

	for attempt := 1; ; attempt++ {
		if user.ReferralCode, err = s.generateCode(); err != nil {
			return nil, err
		}

		err = s.repo.CreateUser(ctx, user)
		switch {
		case err == nil:
			return user, nil
		case errors.Is(err, repository.ErrDuplicateEmail):
			return nil, ErrDuplicateEmail
		case errors.Is(err, repository.ErrDuplicateReferralCode) && attempt < maxCodeAttempts:
			s.log.Warnf("Referral code collision on signup of %s, regenerating (attempt %d)", email, attempt)
		case errors.Is(err, repository.ErrDuplicateReferralCode):
			return nil, fmt.Errorf("could not allocate a unique referral code after %d attempts: %w", attempt, err)
		default:
			return nil, err
		}
	}
}

// Login verifies credentials and returns a bearer token for the user's email.
// Unknown emails and wrong passwords yield the same error.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.repo.FindUserByEmail(ctx, utils.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.hasher.Verify(password, s.dummyHash)
			s.metrics.RecordLogin(metrics.ResultFailure)
			return "", ErrInvalidCredentials
		}
		return "", err
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		s.metrics.RecordLogin(metrics.ResultFailure)
		return "", ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.Email)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	s.metrics.RecordLogin(metrics.ResultSuccess)
	s.log.Infof("User logged in: %s", user.Email)
	return token, nil
}

// UserByEmail resolves an authenticated subject to its user
func (s *Service) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := s.repo.FindUserByEmail(ctx, utils.NormalizeEmail(email))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

// CompleteProfile marks the profile completed. Repeat calls succeed without
// changing state; only the call that flips the flag records and notifies.
func (s *Service) CompleteProfile(ctx context.Context, userID int64) (*models.User, error) {
	user, changed, err := s.repo.MarkProfileCompleted(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	if !changed {
		return user, nil
	}

	s.metrics.RecordProfileCompletion()
	s.log.Infof("Profile completed for user %d", user.ID)
	s.notifyReferrer(ctx, user)
	return user, nil
}

// notifyReferrer tells the notifier a referral became successful. Failures are only logged.
func (s *Service) notifyReferrer(ctx context.Context, user *models.User) {
	if s.notifier == nil || user.ReferrerID == nil {
		return
	}
	referrer, err := s.repo.FindUserByID(ctx, *user.ReferrerID)
	if err != nil {
		s.log.Warnf("Referrer %d of user %d not notified: %v", *user.ReferrerID, user.ID, err)
		return
	}
	if err := s.notifier.ReferralCompleted(ctx, referrer, user); err != nil {
		s.log.Warnf("Referral notification to %s failed: %v", referrer.Email, err)
	}
}

// ListReferrals returns the users referred by userID, ordered by id
func (s *Service) ListReferrals(ctx context.Context, userID int64) ([]models.User, error) {
	return s.repo.FindUsersByReferrerID(ctx, userID)
}

// GenerateReport builds one report row per user, ordered by id
func (s *Service) GenerateReport(ctx context.Context) ([]models.ReferralReportRow, error) {
	users, err := s.repo.FindAllUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load users for report: %w", err)
	}
	return report.Build(users), nil
}

// ReportCSV renders the referral report as CSV
func (s *Service) ReportCSV(ctx context.Context) ([]byte, error) {
	rows, err := s.GenerateReport(ctx)
	if err != nil {
		return nil, err
	}
	out, err := report.CSV(rows)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordReport("csv")
	return out, nil
}

// ReportXML renders the referral report as XML
func (s *Service) ReportXML(ctx context.Context) ([]byte, error) {
	rows, err := s.GenerateReport(ctx)
	if err != nil {
		return nil, err
	}
	out, err := report.XML(rows)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordReport("xml")
	return out, nil
}
