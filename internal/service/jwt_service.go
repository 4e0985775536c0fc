package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/qcom/mobileauth/internal/config"
	"github.com/qcom/mobileauth/internal/models"
	"github.com/sirupsen/logrus"
)

// MinSecretLength is the smallest accepted HMAC secret (256 bits).
const MinSecretLength = 32

// ErrInvalidSecret means the signing secret is configured but unusable.
var ErrInvalidSecret = errors.New("signing secret must be at least 32 bytes")

// SecretProvider supplies the process-wide signing secret.
type SecretProvider interface {
	Secret(ctx context.Context) ([]byte, error)
}

type JWTService struct {
	secrets SecretProvider
	expiry  time.Duration
	now     func() time.Time
	logger  *logrus.Logger
}

type JWTOption func(*JWTService)

// WithClock overrides the time source used for issuing and validating tokens.
func WithClock(now func() time.Time) JWTOption {
	return func(s *JWTService) {
		s.now = now
	}
}

func NewJWTService(secrets SecretProvider, cfg *config.JWTConfig, logger *logrus.Logger, opts ...JWTOption) (*JWTService, error) {
	if secrets == nil {
		return nil, fmt.Errorf("secret provider is required")
	}
	if cfg.Expiry <= 0 {
		return nil, fmt.Errorf("token expiry must be positive")
	}

	s := &JWTService{
		secrets: secrets,
		expiry:  cfg.Expiry,
		now:     time.Now,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

type Claims struct {
	UserID       int64  `json:"user_id"`
	MobileNumber string `json:"mobile_number"`
	jwt.RegisteredClaims
}

func (c *Claims) Payload() models.TokenPayload {
	return models.TokenPayload{UserID: c.UserID, MobileNumber: c.MobileNumber}
}

// Expiry is the validity window of issued tokens.
func (s *JWTService) Expiry() time.Duration {
	return s.expiry
}

// Issue signs payload. The result depends only on the secret, the payload and the issue time.
func (s *JWTService) Issue(ctx context.Context, payload models.TokenPayload) (string, time.Time, error) {
	key, err := s.signingKey(ctx)
	if err != nil {
		return "", time.Time{}, err
	}

	now := s.now()
	expiresAt := now.Add(s.expiry)
	claims := &Claims{
		UserID:       payload.UserID,
		MobileNumber: payload.MobileNumber,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(payload.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(key)
	if err != nil {
		s.logger.WithError(err).Error("Failed to sign session token")
		return "", time.Time{}, fmt.Errorf("failed to sign session token: %w", err)
	}

	return tokenString, claims.ExpiresAt.Time, nil
}

// Verify checks signature and expiry. Expired tokens with a good signature yield KindExpired,
// everything else KindMalformed.
func (s *JWTService) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	key, err := s.signingKey(ctx)
	if err != nil {
		return nil, err
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return key, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, expiredError("token has expired")
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, malformedError("invalid token signature", err)
		default:
			return nil, malformedError("malformed token", err)
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, malformedError("malformed token", nil)
	}

	return claims, nil
}

// Decode returns the claims without checking signature or expiry, or nil when tokenString
// is not a JWT. Never use the result for authorization.
func (s *JWTService) Decode(tokenString string) *Claims {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil
	}
	return claims
}

func (s *JWTService) signingKey(ctx context.Context) ([]byte, error) {
	key, err := s.secrets.Secret(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to load signing secret")
		return nil, unavailableError(err)
	}
	if len(key) < MinSecretLength {
		return nil, ErrInvalidSecret
	}
	return key, nil
}
