package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"talkdrove/internal/models"
)

type HerokuKeyRepository interface {
	ListUsable(ctx context.Context, now time.Time) ([]models.HerokuAPIKey, error)
	RecordSuccess(ctx context.Context, id int64, now time.Time) error
	Deactivate(ctx context.Context, id int64, reason string, now time.Time, flapWindow time.Duration, stillValid func(context.Context) bool) (bool, error)

	Create(ctx context.Context, k *models.HerokuAPIKey) error
	ExistsByKey(ctx context.Context, apiKey string) (bool, error)
	GetByID(ctx context.Context, id int64) (*models.HerokuAPIKey, error)
	SetAppsCount(ctx context.Context, id int64, n int) error
	List(ctx context.Context) ([]models.HerokuAPIKey, error)
	SetActive(ctx context.Context, id int64, active bool, now time.Time) error
	Delete(ctx context.Context, id int64) error
}

type herokuKeyRepository struct {
	DB *sql.DB
}

func NewHerokuKeyRepository(db *sql.DB) HerokuKeyRepository {
	return &herokuKeyRepository{DB: db}
}

const herokuKeyColumns = `id, api_key, apps_count, ` + usageColumns

func scanHerokuKey(row interface{ Scan(...any) error }) (models.HerokuAPIKey, error) {
	var (
		k models.HerokuAPIKey
		u usageRow
	)
	dest := append([]any{&k.ID, &k.APIKey, &k.AppsCount}, u.targets(&k.CredentialUsage)...)
	if err := row.Scan(dest...); err != nil {
		return k, err
	}
	u.apply(&k.CredentialUsage)
	return k, nil
}

func (r *herokuKeyRepository) ListUsable(ctx context.Context, now time.Time) ([]models.HerokuAPIKey, error) {
	q := `SELECT ` + herokuKeyColumns + ` FROM ` + tableHerokuKeys + usableWhere
	return r.query(ctx, q, now.Format(dayLayout))
}

func (r *herokuKeyRepository) RecordSuccess(ctx context.Context, id int64, now time.Time) error {
	return recordCredentialSuccess(ctx, r.DB, tableHerokuKeys, id, now)
}

func (r *herokuKeyRepository) Deactivate(ctx context.Context, id int64, reason string, now time.Time, flapWindow time.Duration, stillValid func(context.Context) bool) (bool, error) {
	return deactivateCredential(ctx, r.DB, tableHerokuKeys, id, reason, now, flapWindow, stillValid)
}

func (r *herokuKeyRepository) Create(ctx context.Context, k *models.HerokuAPIKey) error {
	const q = `
		INSERT INTO heroku_api_keys (api_key, is_active, usage_count, daily_limit, failed_attempts, apps_count, created_at)
		VALUES ($1, TRUE, 0, $2, 0, 0, $3)
		RETURNING id
	`
	if k.DailyLimit <= 0 {
		k.DailyLimit = 1000
	}
	if k.CreatedAt.IsZero() {
		k.CreatedAt = time.Now().UTC()
	}
	k.IsActive = true
	if err := r.DB.QueryRowContext(ctx, q, k.APIKey, k.DailyLimit, k.CreatedAt).Scan(&k.ID); err != nil {
		return fmt.Errorf("heroku_key create: %w", err)
	}
	return nil
}

func (r *herokuKeyRepository) ExistsByKey(ctx context.Context, apiKey string) (bool, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `SELECT id FROM heroku_api_keys WHERE api_key = $1`, apiKey).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("heroku_key exists: %w", err)
	}
	return true, nil
}

func (r *herokuKeyRepository) GetByID(ctx context.Context, id int64) (*models.HerokuAPIKey, error) {
	q := `SELECT ` + herokuKeyColumns + ` FROM heroku_api_keys WHERE id = $1`
	k, err := scanHerokuKey(r.DB.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("heroku_key get: %w", err)
	}
	return &k, nil
}

func (r *herokuKeyRepository) SetAppsCount(ctx context.Context, id int64, n int) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE heroku_api_keys SET apps_count = $1 WHERE id = $2`, n, id)
	if err != nil {
		return fmt.Errorf("heroku_key set apps count: %w", err)
	}
	return expectOneRow(res)
}

func (r *herokuKeyRepository) List(ctx context.Context) ([]models.HerokuAPIKey, error) {
	q := `SELECT ` + herokuKeyColumns + ` FROM heroku_api_keys ORDER BY created_at DESC, id DESC`
	return r.query(ctx, q)
}

func (r *herokuKeyRepository) SetActive(ctx context.Context, id int64, active bool, now time.Time) error {
	return setCredentialActive(ctx, r.DB, tableHerokuKeys, id, active, now)
}

func (r *herokuKeyRepository) Delete(ctx context.Context, id int64) error {
	return deleteCredential(ctx, r.DB, tableHerokuKeys, id)
}

func (r *herokuKeyRepository) query(ctx context.Context, q string, args ...any) ([]models.HerokuAPIKey, error) {
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("heroku_key query: %w", err)
	}
	defer rows.Close()

	var out []models.HerokuAPIKey
	for rows.Next() {
		k, err := scanHerokuKey(rows)
		if err != nil {
			return nil, fmt.Errorf("heroku_key scan: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}
