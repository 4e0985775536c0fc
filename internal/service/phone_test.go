package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeMobileNumber(t *testing.T) {
	testCases := []struct {
		raw  string
		want string
	}{
		{"9876543210", "+919876543210"},
		{"  9876543210 ", "+919876543210"},
		{"+14155550100", "+14155550100"},
		{"+919876543210", "+919876543210"},
		{"", ""},
		{"   ", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.raw, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeMobileNumber(tc.raw, "+91"))
		})
	}
}

func TestIsValidMobileNumber(t *testing.T) {
	testCases := []struct {
		phone string
		valid bool
	}{
		{"+919876543210", true},
		{"+12", true},
		{"+123456789012345", true},
		{"919876543210", true},
		{"+1", false},
		{"+1234567890123456", false},
		{"+91 98765 43210", false},
		{"+91-9876543210", false},
		{"++919876543210", false},
		{"", false},
	}

	for _, tc := range testCases {
		t.Run(tc.phone, func(t *testing.T) {
			assert.Equal(t, tc.valid, IsValidMobileNumber(tc.phone))
		})
	}
}

func TestIsValidCode(t *testing.T) {
	assert.True(t, IsValidCode("000000"))
	assert.True(t, IsValidCode("123456"))
	assert.False(t, IsValidCode("12345"))
	assert.False(t, IsValidCode("1234567"))
	assert.False(t, IsValidCode("12a456"))
	assert.False(t, IsValidCode(" 12345"))
	assert.False(t, IsValidCode("١٢٣٤٥٦"))
}

func TestIsExpired(t *testing.T) {
	expiresAt := time.Date(2024, 5, 1, 12, 15, 0, 0, time.UTC)

	assert.False(t, IsExpired(expiresAt.Add(-time.Second), expiresAt))
	assert.False(t, IsExpired(expiresAt, expiresAt))
	assert.True(t, IsExpired(expiresAt.Add(time.Nanosecond), expiresAt))
}

func TestGenerateRandomOTP(t *testing.T) {
	for i := 0; i < 100; i++ {
		code, err := generateRandomOTP(codeLength)
		assert.NoError(t, err)
		assert.True(t, IsValidCode(code), code)
	}
}
