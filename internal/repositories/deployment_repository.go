package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"talkdrove/internal/models"
)

type DeploymentRepository interface {
	Create(ctx context.Context, d *models.DeployedApp) error
	GetByName(ctx context.Context, appName string) (*models.DeployedApp, error)
	NameExists(ctx context.Context, appName string) (bool, error)
	ListByUser(ctx context.Context, userID int64) ([]models.DeployedApp, error)
	Delete(ctx context.Context, id int64) error
}

type deploymentRepository struct {
	DB DBTX
}

func NewDeploymentRepository(db DBTX) DeploymentRepository {
	return &deploymentRepository{DB: db}
}

const deployedAppColumns = `id, user_id, bot_id, app_name, heroku_app_name, status, created_at`

func scanDeployedApp(row interface{ Scan(...any) error }) (models.DeployedApp, error) {
	var d models.DeployedApp
	err := row.Scan(&d.ID, &d.UserID, &d.BotID, &d.AppName, &d.HerokuAppName, &d.Status, &d.CreatedAt)
	return d, err
}

func (r *deploymentRepository) Create(ctx context.Context, d *models.DeployedApp) error {
	const q = `
		INSERT INTO deployed_apps (user_id, bot_id, app_name, heroku_app_name, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	if err := r.DB.QueryRowContext(ctx, q, d.UserID, d.BotID, d.AppName, d.HerokuAppName, d.Status, d.CreatedAt).Scan(&d.ID); err != nil {
		return fmt.Errorf("deployed_app create: %w", err)
	}
	return nil
}

// GetByName matches either the local name or the provider-side name.
func (r *deploymentRepository) GetByName(ctx context.Context, appName string) (*models.DeployedApp, error) {
	q := `SELECT ` + deployedAppColumns + ` FROM deployed_apps WHERE heroku_app_name = $1 OR app_name = $1 LIMIT 1`
	d, err := scanDeployedApp(r.DB.QueryRowContext(ctx, q, appName))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("deployed_app get: %w", err)
	}
	return &d, nil
}

func (r *deploymentRepository) NameExists(ctx context.Context, appName string) (bool, error) {
	var n int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM deployed_apps WHERE app_name = $1`, appName).Scan(&n); err != nil {
		return false, fmt.Errorf("deployed_app name exists: %w", err)
	}
	return n > 0, nil
}

func (r *deploymentRepository) ListByUser(ctx context.Context, userID int64) ([]models.DeployedApp, error) {
	q := `SELECT ` + deployedAppColumns + ` FROM deployed_apps WHERE user_id = $1 ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("deployed_app list: %w", err)
	}
	defer rows.Close()

	var out []models.DeployedApp
	for rows.Next() {
		d, err := scanDeployedApp(rows)
		if err != nil {
			return nil, fmt.Errorf("deployed_app scan: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *deploymentRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM deployed_apps WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deployed_app delete: %w", err)
	}
	return expectOneRow(res)
}
