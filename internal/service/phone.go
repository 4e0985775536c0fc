package service

import (
	"regexp"
	"strings"
	"time"
)

var (
	mobilePattern = regexp.MustCompile(`^\+?[0-9]{2,15}$`)
	codePattern   = regexp.MustCompile(`^[0-9]{6}$`)
)

// NormalizeMobileNumber trims raw and prefixes countryCode when no leading '+' is present.
func NormalizeMobileNumber(raw, countryCode string) string {
	phone := strings.TrimSpace(raw)
	if phone == "" || strings.HasPrefix(phone, "+") {
		return phone
	}
	return countryCode + phone
}

// IsValidMobileNumber checks the international format: optional '+', 2 to 15 digits.
func IsValidMobileNumber(phone string) bool {
	return mobilePattern.MatchString(phone)
}

// IsValidCode reports whether code is exactly six ASCII digits.
func IsValidCode(code string) bool {
	return codePattern.MatchString(code)
}

// IsExpired is true only once now is strictly after expiresAt.
func IsExpired(now, expiresAt time.Time) bool {
	return now.After(expiresAt)
}
