package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Dan9191/referral-service/internal/models"
)

// MemoryRepository keeps users in process memory. Uniqueness of email
// (case-insensitive, like the Postgres index) and referral code is enforced
// under the same lock as the insert.
type MemoryRepository struct {
	mu     sync.RWMutex
	nextID int64
	users  []*models.User
	byID   map[int64]*models.User
	byMail map[string]*models.User
	byCode map[string]*models.User
}

// NewMemoryRepository creates an empty in-memory store
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:   make(map[int64]*models.User),
		byMail: make(map[string]*models.User),
		byCode: make(map[string]*models.User),
	}
}

// CreateUser inserts user and assigns its id
func (r *MemoryRepository) CreateUser(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byMail[strings.ToLower(user.Email)]; ok {
		return ErrDuplicateEmail
	}
	if _, ok := r.byCode[user.ReferralCode]; ok {
		return ErrDuplicateReferralCode
	}

	r.nextID++
	user.ID = r.nextID
	user.CreatedAt = time.Now().UTC()

	stored := clone(user)
	r.users = append(r.users, stored)
	r.byID[stored.ID] = stored
	r.byMail[strings.ToLower(stored.Email)] = stored
	r.byCode[stored.ReferralCode] = stored
	return nil
}

// FindUserByID retrieves a user by id
func (r *MemoryRepository) FindUserByID(_ context.Context, id int64) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return found(r.byID[id])
}

// FindUserByEmail retrieves a user by email
func (r *MemoryRepository) FindUserByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return found(r.byMail[strings.ToLower(email)])
}

// FindUserByReferralCode retrieves the owner of a referral code
func (r *MemoryRepository) FindUserByReferralCode(_ context.Context, code string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return found(r.byCode[code])
}

// FindUsersByReferrerID retrieves users referred by referrerID in id order
func (r *MemoryRepository) FindUsersByReferrerID(_ context.Context, referrerID int64) ([]models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []models.User{}
	for _, u := range r.users {
		if u.ReferrerID != nil && *u.ReferrerID == referrerID {
			out = append(out, *clone(u))
		}
	}
	return out, nil
}

// FindAllUsers retrieves every user in id order
func (r *MemoryRepository) FindAllUsers(_ context.Context) ([]models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, *clone(u))
	}
	return out, nil
}

// MarkProfileCompleted sets profile_completed; changed reports whether it was previously unset
func (r *MemoryRepository) MarkProfileCompleted(_ context.Context, id int64) (*models.User, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[id]
	if !ok {
		return nil, false, ErrNotFound
	}
	changed := !stored.ProfileCompleted
	stored.ProfileCompleted = true
	return clone(stored), changed, nil
}

func found(u *models.User) (*models.User, error) {
	if u == nil {
		return nil, ErrNotFound
	}
	return clone(u), nil
}

func clone(u *models.User) *models.User {
	c := *u
	if u.ReferrerID != nil {
		id := *u.ReferrerID
		c.ReferrerID = &id
	}
	return &c
}
