package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"talkdrove/internal/models"
)

type EmailSenderRepository interface {
	ListUsable(ctx context.Context, now time.Time) ([]models.EmailSender, error)
	RecordSuccess(ctx context.Context, id int64, now time.Time) error
	Deactivate(ctx context.Context, id int64, reason string, now time.Time, flapWindow time.Duration, stillValid func(context.Context) bool) (bool, error)

	Create(ctx context.Context, s *models.EmailSender) error
	GetByID(ctx context.Context, id int64) (*models.EmailSender, error)
	List(ctx context.Context) ([]models.EmailSender, error)
	SetActive(ctx context.Context, id int64, active bool, now time.Time) error
	Delete(ctx context.Context, id int64) error
}

type emailSenderRepository struct {
	DB *sql.DB
}

func NewEmailSenderRepository(db *sql.DB) EmailSenderRepository {
	return &emailSenderRepository{DB: db}
}

const emailSenderColumns = `id, email, password, host, port, ` + usageColumns

func scanEmailSender(row interface{ Scan(...any) error }) (models.EmailSender, error) {
	var (
		s models.EmailSender
		u usageRow
	)
	dest := append([]any{&s.ID, &s.Email, &s.Password, &s.Host, &s.Port}, u.targets(&s.CredentialUsage)...)
	if err := row.Scan(dest...); err != nil {
		return s, err
	}
	u.apply(&s.CredentialUsage)
	return s, nil
}

func (r *emailSenderRepository) ListUsable(ctx context.Context, now time.Time) ([]models.EmailSender, error) {
	q := `SELECT ` + emailSenderColumns + ` FROM ` + tableEmailSenders + usableWhere
	return r.query(ctx, q, now.Format(dayLayout))
}

func (r *emailSenderRepository) RecordSuccess(ctx context.Context, id int64, now time.Time) error {
	return recordCredentialSuccess(ctx, r.DB, tableEmailSenders, id, now)
}

func (r *emailSenderRepository) Deactivate(ctx context.Context, id int64, reason string, now time.Time, flapWindow time.Duration, stillValid func(context.Context) bool) (bool, error) {
	return deactivateCredential(ctx, r.DB, tableEmailSenders, id, reason, now, flapWindow, stillValid)
}

func (r *emailSenderRepository) Create(ctx context.Context, s *models.EmailSender) error {
	const q = `
		INSERT INTO email_senders (email, password, host, port, is_active, usage_count, daily_limit, failed_attempts, created_at)
		VALUES ($1, $2, $3, $4, TRUE, 0, $5, 0, $6)
		RETURNING id
	`
	if s.DailyLimit <= 0 {
		s.DailyLimit = 500
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	s.IsActive = true
	if err := r.DB.QueryRowContext(ctx, q, s.Email, s.Password, s.Host, s.Port, s.DailyLimit, s.CreatedAt).Scan(&s.ID); err != nil {
		return fmt.Errorf("email_sender create: %w", err)
	}
	return nil
}

func (r *emailSenderRepository) GetByID(ctx context.Context, id int64) (*models.EmailSender, error) {
	q := `SELECT ` + emailSenderColumns + ` FROM email_senders WHERE id = $1`
	s, err := scanEmailSender(r.DB.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("email_sender get: %w", err)
	}
	return &s, nil
}

func (r *emailSenderRepository) List(ctx context.Context) ([]models.EmailSender, error) {
	q := `SELECT ` + emailSenderColumns + ` FROM email_senders ORDER BY created_at DESC, id DESC`
	return r.query(ctx, q)
}

func (r *emailSenderRepository) SetActive(ctx context.Context, id int64, active bool, now time.Time) error {
	return setCredentialActive(ctx, r.DB, tableEmailSenders, id, active, now)
}

func (r *emailSenderRepository) Delete(ctx context.Context, id int64) error {
	return deleteCredential(ctx, r.DB, tableEmailSenders, id)
}

func (r *emailSenderRepository) query(ctx context.Context, q string, args ...any) ([]models.EmailSender, error) {
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("email_sender query: %w", err)
	}
	defer rows.Close()

	var out []models.EmailSender
	for rows.Next() {
		s, err := scanEmailSender(rows)
		if err != nil {
			return nil, fmt.Errorf("email_sender scan: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
