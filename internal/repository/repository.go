package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dan9191/referral-service/internal/models"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a lookup matches no user
	ErrNotFound = errors.New("user not found")
	// ErrDuplicateEmail is returned when the email unique constraint rejects a write
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrDuplicateReferralCode is returned when the referral code unique constraint rejects a write
	ErrDuplicateReferralCode = errors.New("referral code already taken")
)

const (
	uniqueViolation        = "23505"
	emailConstraint        = "users_email_key"
	emailLowerIndex        = "users_email_lower_key"
	referralCodeConstraint = "users_referral_code_key"

	userColumns = `id, email, password_hash, referral_code, referrer_id, profile_completed, created_at`
)

// Repository provides database operations
type Repository struct {
	db *sqlx.DB
}

// NewRepository initializes a new repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: sqlx.NewDb(db, "postgres")}
}

// CreateUser creates a new user in the database
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (email, password_hash, referral_code, referrer_id, profile_completed, created_at)
		VALUES ($1, $2, $3, $4, $5, CURRENT_TIMESTAMP)
		RETURNING id, created_at`
	err := r.db.QueryRowxContext(ctx, query, user.Email, user.PasswordHash, user.ReferralCode, user.ReferrerID, user.ProfileCompleted).
		Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		if mapped := mapConstraintError(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// FindUserByID retrieves a user by id
func (r *Repository) FindUserByID(ctx context.Context, id int64) (*models.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// FindUserByEmail retrieves a user by email
func (r *Repository) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
}

// FindUserByReferralCode retrieves the owner of a referral code
func (r *Repository) FindUserByReferralCode(ctx context.Context, code string) (*models.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE referral_code = $1`, code)
}

// FindUsersByReferrerID retrieves users referred by referrerID ordered by id
func (r *Repository) FindUsersByReferrerID(ctx context.Context, referrerID int64) ([]models.User, error) {
	users := []models.User{}
	query := `SELECT ` + userColumns + ` FROM users WHERE referrer_id = $1 ORDER BY id`
	if err := r.db.SelectContext(ctx, &users, query, referrerID); err != nil {
		return nil, fmt.Errorf("failed to find referrals: %w", err)
	}
	return users, nil
}

// FindAllUsers retrieves every user ordered by id
func (r *Repository) FindAllUsers(ctx context.Context) ([]models.User, error) {
	users := []models.User{}
	query := `SELECT ` + userColumns + ` FROM users ORDER BY id`
	if err := r.db.SelectContext(ctx, &users, query); err != nil {
		return nil, fmt.Errorf("failed to find users: %w", err)
	}
	return users, nil
}

// MarkProfileCompleted sets profile_completed on the user. changed is false
// when the profile was already completed, so exactly one caller observes the
// transition.
func (r *Repository) MarkProfileCompleted(ctx context.Context, id int64) (*models.User, bool, error) {
	user := &models.User{}
	query := `
		UPDATE users SET profile_completed = TRUE
		WHERE id = $1 AND NOT profile_completed
		RETURNING ` + userColumns
	err := r.db.GetContext(ctx, user, query, id)
	if err == nil {
		return user, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to complete profile: %w", err)
	}

	// No row changed: either unknown id or already completed
	user, err = r.FindUserByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return user, false, nil
}

func (r *Repository) findOne(ctx context.Context, query string, arg interface{}) (*models.User, error) {
	user := &models.User{}
	err := r.db.GetContext(ctx, user, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// mapConstraintError translates unique violations into repository errors
func mapConstraintError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return nil
	}
	switch pqErr.Constraint {
	case emailConstraint, emailLowerIndex:
		return ErrDuplicateEmail
	case referralCodeConstraint:
		return ErrDuplicateReferralCode
	}
	return nil
}
