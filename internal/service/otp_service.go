package service

import (
	"context"
	"fmt"
	"time"

	"github.com/qcom/mobileauth/internal/config"
	"github.com/qcom/mobileauth/internal/models"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// UserStore resolves mobile numbers to identities.
type UserStore interface {
	// GetOrCreate returns the identity for an already normalized number, creating it on first
	// sight. created is false when another caller created it first.
	GetOrCreate(ctx context.Context, mobileNumber string) (user *models.User, created bool, err error)
	// GetByMobileNumber returns nil, nil when the number is unknown.
	GetByMobileNumber(ctx context.Context, mobileNumber string) (*models.User, error)
}

// ChallengeStore keeps at most one challenge per user.
type ChallengeStore interface {
	// Upsert replaces any existing challenge of otp.UserID atomically.
	Upsert(ctx context.Context, otp *models.OTP) error
	// GetByUserID returns nil, nil when the user has no challenge.
	GetByUserID(ctx context.Context, userID int64) (*models.OTP, error)
	// DeleteIfMatch removes the challenge only if it still carries code, reporting whether it did.
	DeleteIfMatch(ctx context.Context, userID int64, code string) (bool, error)
}

// CodeSender delivers a code to the owner of a mobile number.
type CodeSender interface {
	SendOTP(ctx context.Context, mobileNumber, code string) error
}

// TokenIssuer mints session tokens.
type TokenIssuer interface {
	Issue(ctx context.Context, payload models.TokenPayload) (string, time.Time, error)
}

type ChallengeResult struct {
	NormalizedMobile string
	IsNewUser        bool
	// Code is only set when the strategy reveals codes (development mode).
	Code string
}

type VerifyResult struct {
	Token     string
	ExpiresAt time.Time
	User      *models.User
}

type OTPService struct {
	users    UserStore
	otps     ChallengeStore
	strategy ChallengeStrategy
	tokens   TokenIssuer
	sender   CodeSender
	cfg      *config.OTPConfig
	now      func() time.Time
	tracer   trace.Tracer
	logger   *logrus.Logger
}

type OTPOption func(*OTPService)

// WithOTPClock overrides the time source for expiry computation and checks.
func WithOTPClock(now func() time.Time) OTPOption {
	return func(s *OTPService) {
		s.now = now
	}
}

func NewOTPService(
	users UserStore,
	otps ChallengeStore,
	strategy ChallengeStrategy,
	tokens TokenIssuer,
	sender CodeSender,
	cfg *config.OTPConfig,
	logger *logrus.Logger,
	opts ...OTPOption,
) *OTPService {
	s := &OTPService{
		users:    users,
		otps:     otps,
		strategy: strategy,
		tokens:   tokens,
		sender:   sender,
		cfg:      cfg,
		now:      time.Now,
		tracer:   otel.Tracer("github.com/qcom/mobileauth/internal/service"),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IssueChallenge creates or replaces the challenge for mobileNumber.
func (s *OTPService) IssueChallenge(ctx context.Context, mobileNumber string) (result *ChallengeResult, err error) {
	ctx, span := s.tracer.Start(ctx, "OTPService.IssueChallenge")
	defer func() { endSpan(span, err) }()

	phone, err := s.normalize(mobileNumber)
	if err != nil {
		return nil, err
	}

	user, created, err := s.users.GetOrCreate(ctx, phone)
	if err != nil {
		s.logger.WithError(err).Error("Failed to resolve user")
		return nil, unavailableError(fmt.Errorf("failed to resolve user: %w", err))
	}
	span.SetAttributes(attribute.Bool("user.created", created))

	code, err := s.strategy.NewCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate OTP: %w", err)
	}

	now := s.now()
	otp := &models.OTP{
		UserID:       user.ID,
		MobileNumber: phone,
		Code:         code,
		ExpiresAt:    now.Add(s.cfg.Expiry),
		CreatedAt:    now,
	}
	if err := s.otps.Upsert(ctx, otp); err != nil {
		s.logger.WithError(err).WithField("user_id", user.ID).Error("Failed to store OTP")
		return nil, unavailableError(fmt.Errorf("failed to store OTP: %w", err))
	}

	result = &ChallengeResult{
		NormalizedMobile: phone,
		IsNewUser:        created,
	}

	if s.strategy.RevealCode() {
		result.Code = code
		s.logger.WithField("user_id", user.ID).Info("OTP issued in development mode")
		return result, nil
	}

	// Delivery problems never fail the request; the caller can ask for a new code.
	if err := s.sender.SendOTP(ctx, phone, code); err != nil {
		s.logger.WithError(err).WithField("user_id", user.ID).Warn("Failed to deliver OTP")
	}

	return result, nil
}

// VerifyChallenge checks code for mobileNumber and, on success, consumes the challenge and
// returns a session token.
func (s *OTPService) VerifyChallenge(ctx context.Context, mobileNumber, code string) (result *VerifyResult, err error) {
	ctx, span := s.tracer.Start(ctx, "OTPService.VerifyChallenge")
	defer func() { endSpan(span, err) }()

	if code == "" {
		return nil, validationError("code is required")
	}
	if !IsValidCode(code) {
		return nil, validationError("code must be exactly 6 digits")
	}

	phone, err := s.normalize(mobileNumber)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByMobileNumber(ctx, phone)
	if err != nil {
		s.logger.WithError(err).Error("Failed to look up user")
		return nil, unavailableError(fmt.Errorf("failed to look up user: %w", err))
	}
	if user == nil {
		return nil, notFoundError("user not found, request a challenge first")
	}

	if err := s.strategy.Verify(ctx, s.otps, user, code, s.now()); err != nil {
		if KindOf(err) == KindUnavailable {
			s.logger.WithError(err).WithField("user_id", user.ID).Error("Failed to verify OTP")
		}
		return nil, err
	}

	token, expiresAt, err := s.tokens.Issue(ctx, models.TokenPayload{
		UserID:       user.ID,
		MobileNumber: user.MobileNumber,
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithField("user_id", user.ID).Info("OTP verified, session issued")

	return &VerifyResult{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user,
	}, nil
}

func (s *OTPService) normalize(mobileNumber string) (string, error) {
	phone := NormalizeMobileNumber(mobileNumber, s.cfg.DefaultCountryCode)
	if phone == "" {
		return "", validationError("mobile number is required")
	}
	if !IsValidMobileNumber(phone) {
		return "", validationError("invalid mobile number format")
	}
	return phone, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
