package models

// ReferralReportRow is one line of the referral report
type ReferralReportRow struct {
	UserID              int64  `json:"user_id"`
	Email               string `json:"email"`
	ReferralCode        string `json:"referral_code"`
	ReferrerID          *int64 `json:"referrer_id"`
	ProfileCompleted    bool   `json:"profile_completed"`
	SuccessfulReferrals int    `json:"successful_referrals"`
}
