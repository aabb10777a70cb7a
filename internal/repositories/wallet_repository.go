package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type WalletRepository interface {
	WithTx(tx *sql.Tx) WalletRepository

	Create(ctx context.Context, userID int64) error
	Balance(ctx context.Context, userID int64) (int64, error)
}

type walletRepository struct {
	DB DBTX
}

func NewWalletRepository(db DBTX) WalletRepository {
	return &walletRepository{DB: db}
}

func (r *walletRepository) WithTx(tx *sql.Tx) WalletRepository {
	return &walletRepository{DB: tx}
}

func (r *walletRepository) Create(ctx context.Context, userID int64) error {
	if _, err := r.DB.ExecContext(ctx, `INSERT INTO wallets (user_id, balance) VALUES ($1, 0)`, userID); err != nil {
		return fmt.Errorf("wallet create: %w", err)
	}
	return nil
}

func (r *walletRepository) Balance(ctx context.Context, userID int64) (int64, error) {
	var balance int64
	err := r.DB.QueryRowContext(ctx, `SELECT balance FROM wallets WHERE user_id = $1`, userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("wallet balance: %w", err)
	}
	return balance, nil
}
