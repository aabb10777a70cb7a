package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"talkdrove/internal/models"
)

type IPTrackingRepository interface {
	WithTx(tx *sql.Tx) IPTrackingRepository

	Get(ctx context.Context, ip string) (*models.IPSignupTracking, error)
	Upsert(ctx context.Context, ip string, at, windowStart time.Time) error
}

type ipTrackingRepository struct {
	DB DBTX
}

func NewIPTrackingRepository(db DBTX) IPTrackingRepository {
	return &ipTrackingRepository{DB: db}
}

func (r *ipTrackingRepository) WithTx(tx *sql.Tx) IPTrackingRepository {
	return &ipTrackingRepository{DB: tx}
}

// Get returns nil, nil when the IP has never signed up.
func (r *ipTrackingRepository) Get(ctx context.Context, ip string) (*models.IPSignupTracking, error) {
	const q = `
		SELECT id, ip_address, account_count, last_signup
		FROM ip_account_tracking
		WHERE ip_address = $1
	`
	var t models.IPSignupTracking
	err := r.DB.QueryRowContext(ctx, q, ip).Scan(&t.ID, &t.IPAddress, &t.AccountCount, &t.LastSignup)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ip_tracking get: %w", err)
	}
	return &t, nil
}

// Upsert records a signup from ip at the given time. An existing row whose
// last signup is before windowStart restarts at 1, otherwise it counts up.
// A concurrent first signup from the same IP lands on the conflict branch.
func (r *ipTrackingRepository) Upsert(ctx context.Context, ip string, at, windowStart time.Time) error {
	const q = `
		INSERT INTO ip_account_tracking (ip_address, account_count, last_signup)
		VALUES ($1, 1, $2)
		ON CONFLICT (ip_address) DO UPDATE
		SET account_count = CASE
		        WHEN ip_account_tracking.last_signup >= $3 THEN ip_account_tracking.account_count + 1
		        ELSE 1
		    END,
		    last_signup = $2
	`
	if _, err := r.DB.ExecContext(ctx, q, ip, at, windowStart); err != nil {
		return fmt.Errorf("ip_tracking upsert: %w", err)
	}
	return nil
}
