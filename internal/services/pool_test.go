package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"talkdrove/internal/models"
	"talkdrove/internal/repositories"
	"talkdrove/internal/testutil"
)

type testCred struct{ id int64 }

func (c testCred) CredentialID() int64 { return c.id }

type memPool struct {
	mu        sync.Mutex
	creds     []testCred
	successes []int64
	failures  map[int64]string
	exhausted int
}

func newMemPool(ids ...int64) *memPool {
	p := &memPool{failures: map[int64]string{}}
	for _, id := range ids {
		p.creds = append(p.creds, testCred{id: id})
	}
	return p
}

func (p *memPool) Name() string { return "test" }

func (p *memPool) ListUsable(context.Context) ([]testCred, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []testCred
	for _, c := range p.creds {
		if _, failed := p.failures[c.id]; !failed {
			out = append(out, c)
		}
	}
	return out, nil
}

func (p *memPool) RecordSuccess(_ context.Context, c testCred) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.successes = append(p.successes, c.id)
	return nil
}

func (p *memPool) MarkFailed(_ context.Context, c testCred, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[c.id] = reason
	return nil
}

func (p *memPool) ReportExhausted(context.Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exhausted++
}

func TestExecuteRotatesPastFailingCredential(t *testing.T) {
	pool := newMemPool(1, 2, 3)
	var tried []int64

	used, err := Execute(context.Background(), pool, time.Second, func(_ context.Context, c testCred) error {
		tried = append(tried, c.id)
		if c.id == 1 {
			return errors.New("535 auth failed")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if used.id != 2 {
		t.Fatalf("expected credential 2, got %d", used.id)
	}
	if len(tried) != 2 || tried[0] != 1 || tried[1] != 2 {
		t.Fatalf("expected sequential tries [1 2], got %v", tried)
	}
	if pool.failures[1] != "535 auth failed" {
		t.Fatalf("expected credential 1 marked failed, got %v", pool.failures)
	}
	if len(pool.successes) != 1 || pool.successes[0] != 2 {
		t.Fatalf("expected success recorded for 2, got %v", pool.successes)
	}
}

func TestExecuteExhaustedWrapsLastError(t *testing.T) {
	pool := newMemPool(1, 2)
	calls := 0
	_, err := Execute(context.Background(), pool, time.Second, func(_ context.Context, c testCred) error {
		calls++
		return errors.New("boom " + string(rune('0'+c.id)))
	})
	if !errors.Is(err, ErrCredentialExhausted) {
		t.Fatalf("expected ErrCredentialExhausted, got %v", err)
	}
	if !strings.Contains(err.Error(), "boom 2") {
		t.Fatalf("expected last error to be wrapped, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("each credential must be tried once, got %d calls", calls)
	}
	if pool.exhausted != 1 {
		t.Fatalf("expected one exhaustion report, got %d", pool.exhausted)
	}
}

func TestExecuteEmptyPool(t *testing.T) {
	_, err := Execute(context.Background(), newMemPool(), time.Second, func(context.Context, testCred) error {
		t.Fatalf("action must not run")
		return nil
	})
	if !errors.Is(err, ErrCredentialExhausted) {
		t.Fatalf("expected ErrCredentialExhausted, got %v", err)
	}
	if _, err := Acquire[testCred](context.Background(), newMemPool()); !errors.Is(err, ErrCredentialExhausted) {
		t.Fatalf("acquire: expected ErrCredentialExhausted, got %v", err)
	}
}

func TestExecuteTimeoutIsCredentialFailure(t *testing.T) {
	pool := newMemPool(1, 2)
	release := make(chan struct{})
	defer close(release)

	used, err := Execute(context.Background(), pool, 20*time.Millisecond, func(ctx context.Context, c testCred) error {
		if c.id == 1 {
			<-release // ignores ctx on purpose
			return nil
		}
		return nil
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if used.id != 2 {
		t.Fatalf("expected fallback to credential 2, got %d", used.id)
	}
	if !strings.Contains(pool.failures[1], "timed out") {
		t.Fatalf("expected timeout recorded for credential 1, got %q", pool.failures[1])
	}
}

func TestExecuteStopsWhenCallerCancels(t *testing.T) {
	pool := newMemPool(1, 2)
	ctx, cancel := context.WithCancel(context.Background())

	_, err := Execute(ctx, pool, time.Second, func(ctx context.Context, c testCred) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(pool.failures) != 0 {
		t.Fatalf("cancellation must not mark credentials failed, got %v", pool.failures)
	}
}

func TestAcquireReturnsLeastUsed(t *testing.T) {
	c, err := Acquire[testCred](context.Background(), newMemPool(7, 8))
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if c.id != 7 {
		t.Fatalf("expected first usable credential, got %d", c.id)
	}
}

func seedSender(t *testing.T, repo repositories.EmailSenderRepository, email string) models.EmailSender {
	t.Helper()
	s := &models.EmailSender{Email: email, Password: "pw", Host: "smtp.gmail.com", Port: 587}
	if err := repo.Create(context.Background(), s); err != nil {
		t.Fatalf("seed sender: %v", err)
	}
	return *s
}

func TestEmailPoolRotationAgainstDatabase(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	repo := repositories.NewEmailSenderRepository(testutil.NewDB(t))
	a := seedSender(t, repo, "a@gmail.com")
	b := seedSender(t, repo, "b@gmail.com")

	mailer := &fakeMailer{failFor: map[int64]error{a.ID: errors.New("535 bad credentials")}}
	notifier := &recordingNotifier{}
	pool := NewEmailSenderPool(repo, mailer, notifier, PoolOptions{Clock: clk.Now})

	used, err := Execute(ctx, pool, time.Second, func(ctx context.Context, s models.EmailSender) error {
		return mailer.Send(ctx, s, "user@gmail.com", "subject", "body")
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if used.ID != b.ID {
		t.Fatalf("expected sender B, got %d", used.ID)
	}

	gotA, _ := repo.GetByID(ctx, a.ID)
	if gotA.IsActive || gotA.FailedAttempts != 1 || !strings.Contains(gotA.LastError, "535") {
		t.Fatalf("expected A deactivated, got %+v", gotA.CredentialUsage)
	}
	gotB, _ := repo.GetByID(ctx, b.ID)
	if gotB.UsageCount != 1 || gotB.LastUsed == nil {
		t.Fatalf("expected B usage recorded, got %+v", gotB.CredentialUsage)
	}
	if len(notifier.msgs) != 1 || !strings.Contains(notifier.msgs[0], "deactivated") {
		t.Fatalf("expected deactivation alert, got %v", notifier.msgs)
	}
}

func TestEmailPoolSuppressesFlapping(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	repo := repositories.NewEmailSenderRepository(testutil.NewDB(t))
	a := seedSender(t, repo, "flaky@gmail.com")
	if err := repo.RecordSuccess(ctx, a.ID, clk.Now()); err != nil {
		t.Fatalf("record: %v", err)
	}
	clk.Advance(2 * time.Minute)

	mailer := &fakeMailer{
		failFor: map[int64]error{a.ID: errors.New("i/o timeout")},
		probeOK: map[int64]bool{a.ID: true},
	}
	pool := NewEmailSenderPool(repo, mailer, NopNotifier{}, PoolOptions{Clock: clk.Now})

	_, err := Execute(ctx, pool, time.Second, func(ctx context.Context, s models.EmailSender) error {
		return mailer.Send(ctx, s, "user@gmail.com", "subject", "body")
	})
	if !errors.Is(err, ErrCredentialExhausted) {
		t.Fatalf("expected exhaustion for a single failing sender, got %v", err)
	}
	got, _ := repo.GetByID(ctx, a.ID)
	if !got.IsActive || got.FailedAttempts != 0 {
		t.Fatalf("expected flap suppression to keep sender active, got %+v", got.CredentialUsage)
	}
}

func TestHerokuKeyValid(t *testing.T) {
	h := newFakeHeroku()
	h.badKeys["revoked"] = true
	ctx := context.Background()
	if !HerokuKeyValid(ctx, h, "good") {
		t.Fatalf("expected good key valid")
	}
	if HerokuKeyValid(ctx, h, "revoked") {
		t.Fatalf("expected revoked key invalid")
	}
}

func TestExecuteSkipAndPermanentDoNotBlameCredential(t *testing.T) {
	pool := newMemPool(1, 2, 3)
	notMine := errors.New("app not visible to this account")

	used, err := Execute(context.Background(), pool, time.Second, func(_ context.Context, c testCred) error {
		if c.id == 1 {
			return Skip(notMine)
		}
		return nil
	})
	if err != nil || used.id != 2 {
		t.Fatalf("expected skip to fall through to 2, got %d %v", used.id, err)
	}
	if len(pool.failures) != 0 {
		t.Fatalf("skip must not mark failures, got %v", pool.failures)
	}

	_, err = Execute(context.Background(), pool, time.Second, func(context.Context, testCred) error {
		return Skip(notMine)
	})
	if !errors.Is(err, notMine) || errors.Is(err, ErrCredentialExhausted) {
		t.Fatalf("expected the skip error itself when every credential skipped, got %v", err)
	}
	if pool.exhausted != 0 || len(pool.failures) != 0 {
		t.Fatalf("skips only must not report exhaustion, exhausted=%d failures=%v", pool.exhausted, pool.failures)
	}

	bad := errors.New("422 name taken")
	calls := 0
	_, err = Execute(context.Background(), pool, time.Second, func(context.Context, testCred) error {
		calls++
		return Permanent(bad)
	})
	if !errors.Is(err, bad) || errors.Is(err, ErrCredentialExhausted) {
		t.Fatalf("expected the permanent error itself, got %v", err)
	}
	if calls != 1 || len(pool.failures) != 0 {
		t.Fatalf("permanent error must stop rotation without blame, calls=%d failures=%v", calls, pool.failures)
	}
}
