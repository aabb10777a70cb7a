package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"talkdrove/internal/models"
)

// Both pool tables share the usage/health columns below. Table names are
// constants, never user input.
const (
	tableEmailSenders = "email_senders"
	tableHerokuKeys   = "heroku_api_keys"

	usageColumns = `is_active, usage_count, daily_limit, last_reset_date, failed_attempts,
		COALESCE(last_error, ''), last_checked, last_used, created_at`

	dayLayout = "2006-01-02"
)

type usageRow struct {
	lastReset   sql.NullTime
	lastChecked sql.NullTime
	lastUsed    sql.NullTime
}

func (r *usageRow) targets(u *models.CredentialUsage) []any {
	return []any{
		&u.IsActive, &u.UsageCount, &u.DailyLimit, &r.lastReset, &u.FailedAttempts,
		&u.LastError, &r.lastChecked, &r.lastUsed, &u.CreatedAt,
	}
}

func (r *usageRow) apply(u *models.CredentialUsage) {
	u.LastResetDate = timePtr(r.lastReset)
	u.LastChecked = timePtr(r.lastChecked)
	u.LastUsed = timePtr(r.lastUsed)
}

// usableWhere selects active rows that still have quota today. A row whose
// last_reset_date is not today counts as unused. Expects today as $1.
const usableWhere = `
	WHERE is_active = TRUE
	  AND daily_limit > 0
	  AND (last_reset_date IS NULL OR last_reset_date <> $1 OR usage_count < daily_limit)
	ORDER BY CASE WHEN last_reset_date = $1 THEN usage_count ELSE 0 END ASC, id ASC`

func recordCredentialSuccess(ctx context.Context, db DBTX, table string, id int64, now time.Time) error {
	q := `
		UPDATE ` + table + `
		SET usage_count = CASE WHEN last_reset_date = $1 THEN usage_count + 1 ELSE 1 END,
		    last_reset_date = $1,
		    last_used = $2,
		    last_checked = $2
		WHERE id = $3
	`
	res, err := db.ExecContext(ctx, q, now.Format(dayLayout), now, id)
	if err != nil {
		return fmt.Errorf("%s record success: %w", table, err)
	}
	return expectOneRow(res)
}

// deactivateCredential flips a credential inactive. When the row was checked
// within flapWindow, stillValid gets a chance to veto: a credential that
// still validates stays active. Reports whether the row was deactivated.
func deactivateCredential(
	ctx context.Context,
	db *sql.DB,
	table string,
	id int64,
	reason string,
	now time.Time,
	flapWindow time.Duration,
	stillValid func(context.Context) bool,
) (bool, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("%s deactivate begin: %w", table, err)
	}
	defer tx.Rollback()

	var lastChecked sql.NullTime
	err = tx.QueryRowContext(ctx, `SELECT last_checked FROM `+table+` WHERE id = $1`, id).Scan(&lastChecked)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("%s deactivate load: %w", table, err)
	}

	if lastChecked.Valid && now.Sub(lastChecked.Time) < flapWindow && stillValid != nil && stillValid(ctx) {
		return false, nil
	}

	const setInactive = `
		SET is_active = FALSE,
		    failed_attempts = failed_attempts + 1,
		    last_error = $1,
		    last_checked = $2
		WHERE id = $3
	`
	if _, err := tx.ExecContext(ctx, `UPDATE `+table+setInactive, reason, now, id); err != nil {
		return false, fmt.Errorf("%s deactivate update: %w", table, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("%s deactivate commit: %w", table, err)
	}
	return true, nil
}

// setCredentialActive is the admin toggle. Re-enabling clears the failure state.
func setCredentialActive(ctx context.Context, db DBTX, table string, id int64, active bool, now time.Time) error {
	q := `
		UPDATE ` + table + `
		SET is_active = $1,
		    failed_attempts = CASE WHEN $1 THEN 0 ELSE failed_attempts END,
		    last_error = CASE WHEN $1 THEN NULL ELSE last_error END,
		    last_checked = $2
		WHERE id = $3
	`
	res, err := db.ExecContext(ctx, q, active, now, id)
	if err != nil {
		return fmt.Errorf("%s set active: %w", table, err)
	}
	return expectOneRow(res)
}

func deleteCredential(ctx context.Context, db DBTX, table string, id int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s delete: %w", table, err)
	}
	return expectOneRow(res)
}
