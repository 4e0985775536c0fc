package repository

import (
	"context"
	"fmt"
	"strconv"

	"github.com/qcom/mobileauth/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const otpSequenceKey = "otp:seq"

var deleteIfMatchScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], "otp") == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisOTPRepository keeps each user's challenge in a hash at otp:user:<id>.
type RedisOTPRepository struct {
	client redis.Cmdable
	logger *logrus.Logger
}

func NewRedisOTPRepository(client redis.Cmdable, logger *logrus.Logger) *RedisOTPRepository {
	return &RedisOTPRepository{
		client: client,
		logger: logger,
	}
}

func otpKey(userID int64) string {
	return "otp:user:" + strconv.FormatInt(userID, 10)
}

func (r *RedisOTPRepository) Upsert(ctx context.Context, otp *models.OTP) error {
	id, err := r.client.Incr(ctx, otpSequenceKey).Result()
	if err != nil {
		r.logger.WithError(err).Error("Failed to allocate OTP id in Redis")
		return fmt.Errorf("failed to store OTP: %w", err)
	}
	otp.ID = id

	key := otpKey(otp.UserID)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, map[string]interface{}{
			"id":            otp.ID,
			"user_id":       otp.UserID,
			"mobile_number": otp.MobileNumber,
			"otp":           otp.Code,
			"expiry_time":   toMillis(otp.ExpiresAt),
			"created_at":    toMillis(otp.CreatedAt),
		})
		pipe.ExpireAt(ctx, key, otp.ExpiresAt.Add(ChallengeRetention))
		return nil
	})
	if err != nil {
		r.logger.WithError(err).Error("Failed to store OTP in Redis")
		return fmt.Errorf("failed to store OTP: %w", err)
	}

	return nil
}

func (r *RedisOTPRepository) GetByUserID(ctx context.Context, userID int64) (*models.OTP, error) {
	fields, err := r.client.HGetAll(ctx, otpKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get OTP: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	otp, err := parseOTPHash(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to decode OTP: %w", err)
	}
	return otp, nil
}

func (r *RedisOTPRepository) DeleteIfMatch(ctx context.Context, userID int64, code string) (bool, error) {
	deleted, err := deleteIfMatchScript.Run(ctx, r.client, []string{otpKey(userID)}, code).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to delete OTP: %w", err)
	}
	return deleted > 0, nil
}

func parseOTPHash(fields map[string]string) (*models.OTP, error) {
	ints := make(map[string]int64, 4)
	for _, name := range []string{"id", "user_id", "expiry_time", "created_at"} {
		value, err := strconv.ParseInt(fields[name], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		ints[name] = value
	}

	return &models.OTP{
		ID:           ints["id"],
		UserID:       ints["user_id"],
		MobileNumber: fields["mobile_number"],
		Code:         fields["otp"],
		ExpiresAt:    fromMillis(ints["expiry_time"]),
		CreatedAt:    fromMillis(ints["created_at"]),
	}, nil
}
