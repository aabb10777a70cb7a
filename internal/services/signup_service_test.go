package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"talkdrove/internal/models"
	"talkdrove/internal/repositories"
	"talkdrove/internal/testutil"
)

type signupFixture struct {
	db       *sql.DB
	clk      *fakeClock
	users    repositories.UserRepository
	wallets  repositories.WalletRepository
	tracking repositories.IPTrackingRepository
	mailer   *fakeMailer
	store    *MemoryVerificationStore
	svc      *SignupService
}

func newSignupFixture(t *testing.T) *signupFixture {
	t.Helper()
	db := testutil.NewDB(t)
	clk := newFakeClock()

	senders := repositories.NewEmailSenderRepository(db)
	seedSender(t, senders, "noreply@talkdrove.com")
	mailer := &fakeMailer{}
	pool := NewEmailSenderPool(senders, mailer, NopNotifier{}, PoolOptions{Clock: clk.Now})
	email := NewEmailService(pool, mailer, time.Second)

	users := repositories.NewUserRepository(db)
	tracking := repositories.NewIPTrackingRepository(db)
	wallets := repositories.NewWalletRepository(db)
	reg := NewRegistrationService(db, users, tracking, wallets, RegistrationOptions{Clock: clk.Now})

	store := NewMemoryVerificationStore(VerificationOptions{
		MaxAttempts: SignupMaxAttempts,
		Clock:       clk.Now,
		Generate:    fixedCode("AB12CD"),
	})
	svc := NewSignupService(users, store, email, reg, []string{"gmail.com", "talkdrove.com"})

	return &signupFixture{db: db, clk: clk, users: users, wallets: wallets, tracking: tracking, mailer: mailer, store: store, svc: svc}
}

func signupReq(email, username string) models.SignupRequest {
	return models.SignupRequest{Email: email, Password: "password123", Username: username, Country: "PK"}
}

func countUsers(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		t.Fatalf("count users: %v", err)
	}
	return n
}

func TestSignupHappyPathWithReferral(t *testing.T) {
	ctx := context.Background()
	f := newSignupFixture(t)

	if err := f.svc.RequestSignup(ctx, signupReq("ref@gmail.com", "referrer"), "198.51.100.1"); err != nil {
		t.Fatalf("request referrer: %v", err)
	}
	referrer, err := f.svc.VerifySignup(ctx, "ref@gmail.com", "AB12CD")
	if err != nil {
		t.Fatalf("verify referrer: %v", err)
	}

	req := signupReq("New@Gmail.com", "newbie")
	req.ReferralCode = strings.ToLower(referrer.ReferralCode)
	if err := f.svc.RequestSignup(ctx, req, "198.51.100.2"); err != nil {
		t.Fatalf("request: %v", err)
	}
	sent := f.mailer.last()
	if sent.To != "new@gmail.com" || !strings.Contains(sent.Body, "AB12CD") {
		t.Fatalf("expected code mailed to normalised address, got %+v", sent)
	}
	if countUsers(t, f.db) != 1 {
		t.Fatalf("nothing may be written before verification")
	}

	user, err := f.svc.VerifySignup(ctx, "new@gmail.com", "AB12CD")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if user.IsBanned || user.Status != models.UserStatusActive {
		t.Fatalf("expected active user, got %+v", user)
	}
	if user.ReferredBy == nil || *user.ReferredBy != referrer.ID {
		t.Fatalf("expected referral link, got %v", user.ReferredBy)
	}

	got, err := f.users.GetByID(ctx, referrer.ID)
	if err != nil {
		t.Fatalf("get referrer: %v", err)
	}
	if got.Coins != 10 {
		t.Fatalf("expected referrer bonus of 10, got %d", got.Coins)
	}
	if _, err := f.wallets.Balance(ctx, user.ID); err != nil {
		t.Fatalf("expected wallet row: %v", err)
	}
	var country string
	if err := f.db.QueryRow(`SELECT country FROM user_country WHERE user_id = $1`, user.ID).Scan(&country); err != nil || country != "PK" {
		t.Fatalf("expected country row, got %q %v", country, err)
	}

	if _, err := f.svc.VerifySignup(ctx, "new@gmail.com", "AB12CD"); !errors.Is(err, ErrVerificationNotFound) {
		t.Fatalf("code must be single use, got %v", err)
	}
}

func TestSignupValidation(t *testing.T) {
	ctx := context.Background()
	f := newSignupFixture(t)

	cases := map[string]models.SignupRequest{
		"bad email":      signupReq("not-an-email", "valid_name"),
		"domain":         signupReq("a@yahoo.com", "valid_name"),
		"short username": signupReq("a@gmail.com", "ab"),
		"bad username":   signupReq("a@gmail.com", "bad-name!"),
		"short password": {Email: "a@gmail.com", Password: "short", Username: "valid_name"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			var verr *ValidationError
			if err := f.svc.RequestSignup(ctx, req, "198.51.100.3"); !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
	if len(f.mailer.sent) != 0 {
		t.Fatalf("no mail may be sent for invalid input")
	}
}

func TestSignupRejectsTakenUsernameCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	f := newSignupFixture(t)
	if err := f.svc.RequestSignup(ctx, signupReq("one@gmail.com", "Taken"), "198.51.100.4"); err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := f.svc.VerifySignup(ctx, "one@gmail.com", "AB12CD"); err != nil {
		t.Fatalf("verify: %v", err)
	}
	var verr *ValidationError
	if err := f.svc.RequestSignup(ctx, signupReq("two@gmail.com", "taken"), "198.51.100.5"); !errors.As(err, &verr) {
		t.Fatalf("expected username taken, got %v", err)
	}
	if err := f.svc.RequestSignup(ctx, signupReq("ONE@gmail.com", "other"), "198.51.100.5"); !errors.As(err, &verr) {
		t.Fatalf("expected email taken, got %v", err)
	}
}

func TestSignupSoftBanSecondAccountFromSameIP(t *testing.T) {
	ctx := context.Background()
	f := newSignupFixture(t)
	const ip = "203.0.113.5"

	if err := f.svc.RequestSignup(ctx, signupReq("first@gmail.com", "first"), ip); err != nil {
		t.Fatalf("request first: %v", err)
	}
	first, err := f.svc.VerifySignup(ctx, "first@gmail.com", "AB12CD")
	if err != nil {
		t.Fatalf("verify first: %v", err)
	}
	if first.IsBanned {
		t.Fatalf("first account must not be banned")
	}

	f.clk.Advance(24 * time.Hour)
	if err := f.svc.RequestSignup(ctx, signupReq("second@gmail.com", "second"), ip); err != nil {
		t.Fatalf("request second: %v", err)
	}
	second, err := f.svc.VerifySignup(ctx, "second@gmail.com", "AB12CD")
	if err != nil {
		t.Fatalf("verify second: %v", err)
	}
	if !second.IsBanned || second.Status != models.UserStatusBanned {
		t.Fatalf("expected second account soft-banned, got %+v", second)
	}

	track, err := f.tracking.Get(ctx, ip)
	if err != nil {
		t.Fatalf("tracking: %v", err)
	}
	if track.AccountCount != 2 {
		t.Fatalf("expected account_count 2, got %d", track.AccountCount)
	}

	// A signup after the window starts a fresh count.
	f.clk.Advance(31 * 24 * time.Hour)
	if err := f.svc.RequestSignup(ctx, signupReq("third@gmail.com", "third"), ip); err != nil {
		t.Fatalf("request third: %v", err)
	}
	third, err := f.svc.VerifySignup(ctx, "third@gmail.com", "AB12CD")
	if err != nil {
		t.Fatalf("verify third: %v", err)
	}
	if third.IsBanned {
		t.Fatalf("expected window to have reset")
	}
	track, _ = f.tracking.Get(ctx, ip)
	if track.AccountCount != 1 {
		t.Fatalf("expected count restarted at 1, got %d", track.AccountCount)
	}
}

func TestSignupCodeScenario(t *testing.T) {
	ctx := context.Background()
	f := newSignupFixture(t)

	if err := f.svc.RequestSignup(ctx, signupReq("x@gmail.com", "xuser"), "198.51.100.9"); err != nil {
		t.Fatalf("request: %v", err)
	}
	for i := 1; i <= 4; i++ {
		_, err := f.svc.VerifySignup(ctx, "x@gmail.com", "000000")
		var mm *MismatchError
		if !errors.As(err, &mm) || mm.AttemptsLeft != 5-i {
			t.Fatalf("attempt %d: expected mismatch with %d left, got %v", i, 5-i, err)
		}
	}
	if _, err := f.svc.VerifySignup(ctx, "x@gmail.com", "000000"); !errors.Is(err, ErrAttemptsExceeded) {
		t.Fatalf("expected attempts exceeded, got %v", err)
	}
	if _, err := f.svc.VerifySignup(ctx, "x@gmail.com", "AB12CD"); !errors.Is(err, ErrAttemptsExceeded) {
		t.Fatalf("correct code after lockout must stay rejected, got %v", err)
	}

	if err := f.svc.RequestSignup(ctx, signupReq("x@gmail.com", "xuser"), "198.51.100.9"); err != nil {
		t.Fatalf("re-request: %v", err)
	}
	if _, err := f.svc.VerifySignup(ctx, "x@gmail.com", "AB12CD"); err != nil {
		t.Fatalf("verify after re-request: %v", err)
	}
	if countUsers(t, f.db) != 1 {
		t.Fatalf("expected one user")
	}
}

func TestSignupExpiredCode(t *testing.T) {
	ctx := context.Background()
	f := newSignupFixture(t)
	if err := f.svc.RequestSignup(ctx, signupReq("late@gmail.com", "late"), "198.51.100.10"); err != nil {
		t.Fatalf("request: %v", err)
	}
	f.clk.Advance(31 * time.Minute)
	if _, err := f.svc.VerifySignup(ctx, "late@gmail.com", "AB12CD"); !errors.Is(err, ErrVerificationExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
}

func TestRegistrationRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	f := newSignupFixture(t)

	if err := f.svc.RequestSignup(ctx, signupReq("doomed@gmail.com", "doomed"), "198.51.100.11"); err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := f.db.Exec(`DROP TABLE wallets`); err != nil {
		t.Fatalf("drop wallets: %v", err)
	}

	_, err := f.svc.VerifySignup(ctx, "doomed@gmail.com", "AB12CD")
	if !errors.Is(err, ErrTransactionFailed) {
		t.Fatalf("expected ErrTransactionFailed, got %v", err)
	}
	if n := countUsers(t, f.db); n != 0 {
		t.Fatalf("expected rollback to leave no users, got %d", n)
	}
	track, err := f.tracking.Get(ctx, "198.51.100.11")
	if err != nil || track != nil {
		t.Fatalf("expected no tracking row after rollback, got %+v %v", track, err)
	}
	// the code was spent on the failed attempt
	if _, err := f.svc.VerifySignup(ctx, "doomed@gmail.com", "AB12CD"); !errors.Is(err, ErrVerificationNotFound) {
		t.Fatalf("expected ErrVerificationNotFound after a failed commit, got %v", err)
	}
}

// staleTracking hides existing rows from Get, the view a transaction has when
// another signup from the same IP commits after it read.
type staleTracking struct {
	repositories.IPTrackingRepository
}

func (s staleTracking) WithTx(tx *sql.Tx) repositories.IPTrackingRepository {
	return staleTracking{s.IPTrackingRepository.WithTx(tx)}
}

func (staleTracking) Get(context.Context, string) (*models.IPSignupTracking, error) {
	return nil, nil
}

func TestRegistrationCountsConcurrentFirstSignupFromSameIP(t *testing.T) {
	ctx := context.Background()
	f := newSignupFixture(t)
	const ip = "192.0.2.44"

	if err := f.tracking.Upsert(ctx, ip, f.clk.Now(), f.clk.Now().Add(-30*24*time.Hour)); err != nil {
		t.Fatalf("seed tracking: %v", err)
	}

	reg := NewRegistrationService(f.db, f.users, staleTracking{f.tracking}, f.wallets, RegistrationOptions{Clock: f.clk.Now})
	user, err := reg.Commit(ctx, "nat@gmail.com", models.VerificationPayload{
		Username: "natuser", PasswordHash: "h", Country: "PK", ClientIP: ip,
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if user.ID == 0 {
		t.Fatalf("expected user to be created")
	}
	track, err := f.tracking.Get(ctx, ip)
	if err != nil || track == nil {
		t.Fatalf("tracking: %+v %v", track, err)
	}
	if track.AccountCount != 2 {
		t.Fatalf("expected account_count 2, got %d", track.AccountCount)
	}
}

func TestSignupDeliveryFailureDropsPendingCode(t *testing.T) {
	ctx := context.Background()
	f := newSignupFixture(t)
	f.mailer.failFor = map[int64]error{1: errors.New("421 service not available")}

	err := f.svc.RequestSignup(ctx, signupReq("nomail@gmail.com", "nomail"), "198.51.100.12")
	if !errors.Is(err, ErrCredentialExhausted) {
		t.Fatalf("expected ErrCredentialExhausted, got %v", err)
	}
	if f.store.Len() != 0 {
		t.Fatalf("expected pending entry to be removed")
	}
}
