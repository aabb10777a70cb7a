package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"talkdrove/internal/models"
	"talkdrove/internal/repositories"
	"talkdrove/internal/utils"
)

type RegistrationOptions struct {
	MaxAccountsPerIP int
	TrackingWindow   time.Duration
	ReferralBonus    int
	Clock            Clock
}

func (o RegistrationOptions) withDefaults() RegistrationOptions {
	if o.MaxAccountsPerIP <= 0 {
		o.MaxAccountsPerIP = 1
	}
	if o.TrackingWindow <= 0 {
		o.TrackingWindow = 30 * 24 * time.Hour
	}
	if o.ReferralBonus == 0 {
		o.ReferralBonus = 10
	}
	return o
}

// RegistrationService turns a verified signup into an account. Everything
// it writes happens in one transaction.
type RegistrationService struct {
	db         *sql.DB
	users      repositories.UserRepository
	ipTracking repositories.IPTrackingRepository
	wallets    repositories.WalletRepository
	opts       RegistrationOptions

	newReferralCode func() (string, error)
}

func NewRegistrationService(
	db *sql.DB,
	users repositories.UserRepository,
	ipTracking repositories.IPTrackingRepository,
	wallets repositories.WalletRepository,
	opts RegistrationOptions,
) *RegistrationService {
	return &RegistrationService{
		db:              db,
		users:           users,
		ipTracking:      ipTracking,
		wallets:         wallets,
		opts:            opts.withDefaults(),
		newReferralCode: utils.NewReferralCode,
	}
}

// Commit creates the user, updates per-IP tracking, credits the referrer and
// opens the wallet. Any failure rolls all of it back.
func (s *RegistrationService) Commit(ctx context.Context, email string, p models.VerificationPayload) (*models.User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		log.Printf("[signup][commit] begin tx email=%s: %v", email, err)
		return nil, fmt.Errorf("%w: %w", ErrTransactionFailed, err)
	}
	defer tx.Rollback()

	user, err := s.commit(ctx, tx, email, p)
	if err != nil {
		log.Printf("[signup][commit] email=%s ip=%s: %v", email, p.ClientIP, err)
		return nil, fmt.Errorf("%w: %w", ErrTransactionFailed, err)
	}
	if err := tx.Commit(); err != nil {
		log.Printf("[signup][commit] commit email=%s: %v", email, err)
		return nil, fmt.Errorf("%w: %w", ErrTransactionFailed, err)
	}

	log.Printf("[signup][commit] ok: user_id=%d status=%s ip=%s", user.ID, user.Status, p.ClientIP)
	return user, nil
}

func (s *RegistrationService) commit(ctx context.Context, tx *sql.Tx, email string, p models.VerificationPayload) (*models.User, error) {
	users := s.users.WithTx(tx)
	ipTracking := s.ipTracking.WithTx(tx)
	wallets := s.wallets.WithTx(tx)

	now := s.opts.Clock.now()
	ip := p.ClientIP
	if ip == "" {
		ip = "unknown"
	}

	track, err := ipTracking.Get(ctx, ip)
	if err != nil {
		return nil, err
	}
	withinWindow := track != nil && now.Sub(track.LastSignup) <= s.opts.TrackingWindow
	banned := withinWindow && track.AccountCount >= s.opts.MaxAccountsPerIP

	referralCode, err := s.newReferralCode()
	if err != nil {
		return nil, fmt.Errorf("referral code: %w", err)
	}

	user := &models.User{
		Email:        email,
		Username:     p.Username,
		PasswordHash: p.PasswordHash,
		ReferralCode: referralCode,
		ReferredBy:   p.ReferredBy,
		Status:       models.UserStatusActive,
		Country:      p.Country,
		CreatedAt:    now,
	}
	if banned {
		user.Status = models.UserStatusBanned
		user.IsBanned = true
	}
	if err := users.Create(ctx, user); err != nil {
		return nil, err
	}

	if err := ipTracking.Upsert(ctx, ip, now, now.Add(-s.opts.TrackingWindow)); err != nil {
		return nil, err
	}

	if p.ReferredBy != nil {
		if err := users.AddCoins(ctx, *p.ReferredBy, s.opts.ReferralBonus); err != nil {
			return nil, fmt.Errorf("referral bonus: %w", err)
		}
	}
	if err := users.SetCountry(ctx, user.ID, p.Country); err != nil {
		return nil, err
	}
	if err := wallets.Create(ctx, user.ID); err != nil {
		return nil, err
	}
	return user, nil
}
