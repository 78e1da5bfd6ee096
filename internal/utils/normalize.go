package utils

import "strings"

// NormalizeEmail trims and lowercases an email address. Stored emails,
// token subjects and the administrator list all use this form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
