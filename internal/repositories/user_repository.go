package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"talkdrove/internal/models"
)

type UserRepository interface {
	WithTx(tx *sql.Tx) UserRepository

	Create(ctx context.Context, u *models.User) error
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	IDByReferralCode(ctx context.Context, code string) (*int64, error)
	AddCoins(ctx context.Context, userID int64, amount int) error
	SetCountry(ctx context.Context, userID int64, country string) error
	UpdateLastLogin(ctx context.Context, userID int64, at time.Time) error
	CountByEmail(ctx context.Context, email string) (int, error)
}

type userRepository struct {
	DB DBTX
}

func NewUserRepository(db DBTX) UserRepository {
	return &userRepository{DB: db}
}

func (r *userRepository) WithTx(tx *sql.Tx) UserRepository {
	return &userRepository{DB: tx}
}

// Create inserts a verified user. CreatedAt doubles as the first last_login.
func (r *userRepository) Create(ctx context.Context, u *models.User) error {
	const q = `
		INSERT INTO users (
			email, username, password, is_verified, referral_code, coins,
			status, is_banned, referred_by, created_at, last_login
		)
		VALUES ($1, $2, $3, TRUE, $4, 0, $5, $6, $7, $8, $8)
		RETURNING id
	`
	err := r.DB.QueryRowContext(ctx, q,
		u.Email,
		u.Username,
		u.PasswordHash,
		u.ReferralCode,
		u.Status,
		u.IsBanned,
		nullInt64(u.ReferredBy),
		u.CreatedAt,
	).Scan(&u.ID)
	if err != nil {
		return fmt.Errorf("user create: %w", err)
	}
	u.IsVerified = true
	last := u.CreatedAt
	u.LastLogin = &last
	return nil
}

const userColumns = `
	id, email, COALESCE(username, ''), password, is_verified, is_admin, is_banned,
	status, referral_code, referred_by, coins, created_at, last_login
`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var (
		u          models.User
		referredBy sql.NullInt64
		lastLogin  sql.NullTime
	)
	err := row.Scan(
		&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.IsVerified, &u.IsAdmin, &u.IsBanned,
		&u.Status, &u.ReferralCode, &referredBy, &u.Coins, &u.CreatedAt, &lastLogin,
	)
	if err != nil {
		return nil, err
	}
	if referredBy.Valid {
		id := referredBy.Int64
		u.ReferredBy = &id
	}
	u.LastLogin = timePtr(lastLogin)
	return &u, nil
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user get by id: %w", err)
	}
	return u, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user get by email: %w", err)
	}
	return u, nil
}

func (r *userRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	n, err := r.CountByEmail(ctx, email)
	return n > 0, err
}

func (r *userRepository) CountByEmail(ctx context.Context, email string) (int, error) {
	var n int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE email = $1`, email).Scan(&n); err != nil {
		return 0, fmt.Errorf("user count by email: %w", err)
	}
	return n, nil
}

func (r *userRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	var n int
	const q = `SELECT COUNT(*) FROM users WHERE LOWER(username) = LOWER($1)`
	if err := r.DB.QueryRowContext(ctx, q, username).Scan(&n); err != nil {
		return false, fmt.Errorf("user username exists: %w", err)
	}
	return n > 0, nil
}

// IDByReferralCode returns nil when no user owns the code.
func (r *userRepository) IDByReferralCode(ctx context.Context, code string) (*int64, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `SELECT id FROM users WHERE referral_code = $1`, code).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("user by referral code: %w", err)
	}
	return &id, nil
}

func (r *userRepository) AddCoins(ctx context.Context, userID int64, amount int) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE users SET coins = coins + $1 WHERE id = $2`, amount, userID)
	if err != nil {
		return fmt.Errorf("user add coins: %w", err)
	}
	return expectOneRow(res)
}

func (r *userRepository) SetCountry(ctx context.Context, userID int64, country string) error {
	if _, err := r.DB.ExecContext(ctx, `INSERT INTO user_country (user_id, country) VALUES ($1, $2)`, userID, country); err != nil {
		return fmt.Errorf("user country insert: %w", err)
	}
	return nil
}

func (r *userRepository) UpdateLastLogin(ctx context.Context, userID int64, at time.Time) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE users SET last_login = $1 WHERE id = $2`, at, userID)
	if err != nil {
		return fmt.Errorf("user update last login: %w", err)
	}
	return expectOneRow(res)
}
