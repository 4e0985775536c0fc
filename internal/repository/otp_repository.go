package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/qcom/mobileauth/internal/database"
	"github.com/qcom/mobileauth/internal/models"
	"github.com/sirupsen/logrus"
)

// OTPRepository keeps one row per user in the otps table (unique user_id).
type OTPRepository struct {
	db     *database.DB
	logger *logrus.Logger
}

func NewOTPRepository(db *database.DB, logger *logrus.Logger) *OTPRepository {
	return &OTPRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert inserts the challenge or overwrites the user's existing one in a single statement.
func (r *OTPRepository) Upsert(ctx context.Context, otp *models.OTP) error {
	err := r.db.QueryRowContext(ctx,
		r.db.Rebind(`INSERT INTO otps (user_id, mobile_number, otp, expiry_time, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (user_id) DO UPDATE SET
    mobile_number = excluded.mobile_number,
    otp = excluded.otp,
    expiry_time = excluded.expiry_time,
    created_at = excluded.created_at
RETURNING id`),
		otp.UserID, otp.MobileNumber, otp.Code, toMillis(otp.ExpiresAt), toMillis(otp.CreatedAt),
	).Scan(&otp.ID)

	if err != nil {
		r.logger.WithError(err).Error("Failed to store OTP in database")
		return fmt.Errorf("failed to store OTP: %w", err)
	}

	return nil
}

func (r *OTPRepository) GetByUserID(ctx context.Context, userID int64) (*models.OTP, error) {
	row := r.db.QueryRowContext(ctx,
		r.db.Rebind(`SELECT id, user_id, mobile_number, otp, expiry_time, created_at FROM otps WHERE user_id = ?`),
		userID,
	)

	var otp models.OTP
	var expiresAt, createdAt int64
	if err := row.Scan(&otp.ID, &otp.UserID, &otp.MobileNumber, &otp.Code, &expiresAt, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get OTP: %w", err)
	}
	otp.ExpiresAt = fromMillis(expiresAt)
	otp.CreatedAt = fromMillis(createdAt)

	return &otp, nil
}

func (r *OTPRepository) DeleteIfMatch(ctx context.Context, userID int64, code string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		r.db.Rebind(`DELETE FROM otps WHERE user_id = ? AND otp = ?`),
		userID, code,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete OTP: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete OTP: %w", err)
	}

	return affected > 0, nil
}
