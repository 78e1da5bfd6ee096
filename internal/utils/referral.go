package utils

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ReferralCodeLength is the fixed length of a referral code
const ReferralCodeLength = 8

var referralCodePattern = regexp.MustCompile(`^[A-Z0-9]{8}$`)

// GenerateReferralCode returns 8 uppercase alphanumeric characters taken from a random UUID
func GenerateReferralCode() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate referral code: %w", err)
	}

	code := strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:ReferralCodeLength])

	// Ensure format is exact
	if !IsReferralCode(code) {
		return "", fmt.Errorf("generated referral code has invalid format: %q", code)
	}
	return code, nil
}

// IsReferralCode reports whether code has the referral code format
func IsReferralCode(code string) bool {
	return referralCodePattern.MatchString(code)
}
