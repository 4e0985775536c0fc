package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/qcom/mobileauth/internal/models"
)

const codeLength = 6

// ChallengeStrategy decides how codes are produced and checked.
type ChallengeStrategy interface {
	// NewCode returns a six digit code for a fresh challenge.
	NewCode() (string, error)
	// RevealCode reports whether the code goes back to the caller instead of the SMS channel.
	RevealCode() bool
	// Verify checks code for user and consumes the stored challenge on success.
	Verify(ctx context.Context, store ChallengeStore, user *models.User, code string, now time.Time) error
}

// ProductionStrategy issues random codes and verifies against the challenge store.
type ProductionStrategy struct{}

func NewProductionStrategy() ProductionStrategy {
	return ProductionStrategy{}
}

func (ProductionStrategy) NewCode() (string, error) {
	return generateRandomOTP(codeLength)
}

func (ProductionStrategy) RevealCode() bool {
	return false
}

func (ProductionStrategy) Verify(ctx context.Context, store ChallengeStore, user *models.User, code string, now time.Time) error {
	otp, err := store.GetByUserID(ctx, user.ID)
	if err != nil {
		return unavailableError(fmt.Errorf("failed to load challenge: %w", err))
	}
	if otp == nil {
		return notFoundError("no pending challenge, request a new code")
	}
	if IsExpired(now, otp.ExpiresAt) {
		return expiredError("code has expired, request a new code")
	}
	if otp.Code != code {
		return invalidError("invalid code")
	}

	// Conditional on the code so a concurrent re-issue or a second verifier cannot both win.
	deleted, err := store.DeleteIfMatch(ctx, user.ID, code)
	if err != nil {
		return unavailableError(fmt.Errorf("failed to consume challenge: %w", err))
	}
	if !deleted {
		return notFoundError("no pending challenge, request a new code")
	}
	return nil
}

// DevelopmentStrategy issues a fixed, publicly known code and accepts it without a store lookup.
// Any other code goes through the production path.
type DevelopmentStrategy struct {
	testCode string
	fallback ProductionStrategy
}

func NewDevelopmentStrategy(testCode string) (DevelopmentStrategy, error) {
	if !IsValidCode(testCode) {
		return DevelopmentStrategy{}, fmt.Errorf("test code must be exactly %d digits", codeLength)
	}
	return DevelopmentStrategy{testCode: testCode}, nil
}

func (s DevelopmentStrategy) NewCode() (string, error) {
	return s.testCode, nil
}

func (DevelopmentStrategy) RevealCode() bool {
	return true
}

func (s DevelopmentStrategy) Verify(ctx context.Context, store ChallengeStore, user *models.User, code string, now time.Time) error {
	if code == s.testCode {
		return nil
	}
	return s.fallback.Verify(ctx, store, user, code, now)
}

func generateRandomOTP(length int) (string, error) {
	digits := make([]byte, length)
	for i := range digits {
		num, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + num.Int64())
	}
	return string(digits), nil
}
