package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"talkdrove/internal/models"
)

type DeviceRepository interface {
	FindVerified(ctx context.Context, userID int64, fingerprint string) (*models.UserDevice, error)
	Create(ctx context.Context, d *models.UserDevice) error
	Touch(ctx context.Context, id, ip string, at time.Time) error
	MarkVerified(ctx context.Context, id string, at time.Time) error
	ListByUser(ctx context.Context, userID int64) ([]models.UserDevice, error)
	Delete(ctx context.Context, userID int64, id string) error
}

type deviceRepository struct {
	DB DBTX
}

func NewDeviceRepository(db DBTX) DeviceRepository {
	return &deviceRepository{DB: db}
}

// FindVerified returns nil, nil when the user has no verified device with this fingerprint.
func (r *deviceRepository) FindVerified(ctx context.Context, userID int64, fingerprint string) (*models.UserDevice, error) {
	const q = `
		SELECT id, user_id, COALESCE(ip_address, ''), fingerprint, device_info, COALESCE(location, ''), is_verified, last_used
		FROM user_devices
		WHERE user_id = $1 AND fingerprint = $2 AND is_verified = TRUE
		ORDER BY last_used DESC
		LIMIT 1
	`
	var d models.UserDevice
	err := r.DB.QueryRowContext(ctx, q, userID, fingerprint).Scan(
		&d.ID, &d.UserID, &d.IPAddress, &d.Fingerprint, &d.DeviceInfo, &d.Location, &d.IsVerified, &d.LastUsed,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("user_device find: %w", err)
	}
	return &d, nil
}

func (r *deviceRepository) Create(ctx context.Context, d *models.UserDevice) error {
	const q = `
		INSERT INTO user_devices (id, user_id, ip_address, fingerprint, device_info, location, last_used, is_verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.DB.ExecContext(ctx, q, d.ID, d.UserID, d.IPAddress, d.Fingerprint, d.DeviceInfo, d.Location, d.LastUsed, d.IsVerified)
	if err != nil {
		return fmt.Errorf("user_device create: %w", err)
	}
	return nil
}

func (r *deviceRepository) Touch(ctx context.Context, id, ip string, at time.Time) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE user_devices SET last_used = $1, ip_address = $2 WHERE id = $3`, at, ip, id)
	if err != nil {
		return fmt.Errorf("user_device touch: %w", err)
	}
	return expectOneRow(res)
}

func (r *deviceRepository) MarkVerified(ctx context.Context, id string, at time.Time) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE user_devices SET is_verified = TRUE, last_used = $1 WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("user_device mark verified: %w", err)
	}
	return expectOneRow(res)
}

func (r *deviceRepository) ListByUser(ctx context.Context, userID int64) ([]models.UserDevice, error) {
	const q = `
		SELECT id, user_id, COALESCE(ip_address, ''), fingerprint, device_info, COALESCE(location, ''), is_verified, last_used
		FROM user_devices
		WHERE user_id = $1
		ORDER BY last_used DESC
	`
	rows, err := r.DB.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("user_device list: %w", err)
	}
	defer rows.Close()

	var out []models.UserDevice
	for rows.Next() {
		var d models.UserDevice
		if err := rows.Scan(&d.ID, &d.UserID, &d.IPAddress, &d.Fingerprint, &d.DeviceInfo, &d.Location, &d.IsVerified, &d.LastUsed); err != nil {
			return nil, fmt.Errorf("user_device scan: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Delete only removes a device owned by userID; anything else is ErrNotFound.
func (r *deviceRepository) Delete(ctx context.Context, userID int64, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM user_devices WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		return fmt.Errorf("user_device delete: %w", err)
	}
	return expectOneRow(res)
}
