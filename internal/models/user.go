package models

import "time"

// User represents an account that can refer and be referred
type User struct {
	ID               int64     `json:"id" db:"id"`
	Email            string    `json:"email" db:"email"`
	PasswordHash     string    `json:"-" db:"password_hash"` // Not serialized
	ReferralCode     string    `json:"referral_code" db:"referral_code"`
	ReferrerID       *int64    `json:"referrer_id" db:"referrer_id"`
	ProfileCompleted bool      `json:"profile_completed" db:"profile_completed"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// HasReferrer reports whether the user signed up with a referral code
func (u User) HasReferrer() bool {
	return u.ReferrerID != nil
}
