package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/qcom/mobileauth/internal/database"
	"github.com/qcom/mobileauth/internal/models"
	"github.com/sirupsen/logrus"
)

// UserRepository stores identities in the users table. The unique index on mobile_number is
// the source of truth for identity uniqueness.
type UserRepository struct {
	db     *database.DB
	logger *logrus.Logger
}

func NewUserRepository(db *database.DB, logger *logrus.Logger) *UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

func (r *UserRepository) GetByMobileNumber(ctx context.Context, mobileNumber string) (*models.User, error) {
	row := r.db.QueryRowContext(ctx,
		r.db.Rebind(`SELECT id, mobile_number, created_at FROM users WHERE mobile_number = ?`),
		mobileNumber,
	)

	var user models.User
	var createdAt int64
	if err := row.Scan(&user.ID, &user.MobileNumber, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // User not found
		}
		r.logger.WithError(err).Error("Failed to get user from database")
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	user.CreatedAt = fromMillis(createdAt)

	return &user, nil
}

// GetOrCreate never fails on a uniqueness race: the insert is a no-op on conflict and the
// winner's row is read back.
func (r *UserRepository) GetOrCreate(ctx context.Context, mobileNumber string) (*models.User, bool, error) {
	user, err := r.GetByMobileNumber(ctx, mobileNumber)
	if err != nil {
		return nil, false, err
	}
	if user != nil {
		return user, false, nil
	}

	createdAt := toMillis(time.Now())
	var id int64
	err = r.db.QueryRowContext(ctx,
		r.db.Rebind(`INSERT INTO users (mobile_number, created_at) VALUES (?, ?)
ON CONFLICT (mobile_number) DO NOTHING
RETURNING id`),
		mobileNumber, createdAt,
	).Scan(&id)

	if errors.Is(err, sql.ErrNoRows) {
		user, err := r.GetByMobileNumber(ctx, mobileNumber)
		if err != nil {
			return nil, false, err
		}
		if user == nil {
			return nil, false, fmt.Errorf("user %s missing after insert conflict", mobileNumber)
		}
		return user, false, nil
	}
	if err != nil {
		r.logger.WithError(err).Error("Failed to create user in database")
		return nil, false, fmt.Errorf("failed to create user: %w", err)
	}

	return &models.User{
		ID:           id,
		MobileNumber: mobileNumber,
		CreatedAt:    fromMillis(createdAt),
	}, true, nil
}
