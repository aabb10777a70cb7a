package services

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"talkdrove/internal/models"
	"talkdrove/internal/utils"
)

const (
	DefaultVerificationTTL = 30 * time.Minute
	DefaultSweepInterval   = 10 * time.Minute
	SignupMaxAttempts      = 5
	LoginMaxAttempts       = 3
)

type Outcome int

const (
	OutcomeValid Outcome = iota
	OutcomeNotFound
	OutcomeExpired
	OutcomeMismatch
	OutcomeAttemptsExceeded
)

func (o Outcome) String() string {
	switch o {
	case OutcomeValid:
		return "valid"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeExpired:
		return "expired"
	case OutcomeMismatch:
		return "mismatch"
	case OutcomeAttemptsExceeded:
		return "attempts_exceeded"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

type CheckResult struct {
	Outcome      Outcome
	Payload      models.VerificationPayload
	AttemptsLeft int
}

// Err maps a non-valid outcome onto the service error taxonomy.
func (r CheckResult) Err() error {
	switch r.Outcome {
	case OutcomeValid:
		return nil
	case OutcomeNotFound:
		return ErrVerificationNotFound
	case OutcomeExpired:
		return ErrVerificationExpired
	case OutcomeMismatch:
		return &MismatchError{AttemptsLeft: r.AttemptsLeft}
	default:
		return ErrAttemptsExceeded
	}
}

// VerificationStore holds one pending code per key (an email address).
type VerificationStore interface {
	Issue(ctx context.Context, key string, payload models.VerificationPayload) (string, error)
	Check(ctx context.Context, key, code string) (CheckResult, error)
	Delete(ctx context.Context, key string) error
	Sweep(ctx context.Context) (int, error)
}

type VerificationOptions struct {
	TTL         time.Duration
	MaxAttempts int
	Clock       Clock
	// Generate produces codes; defaults to utils.NewVerificationCode.
	Generate func() (string, error)
}

func (o VerificationOptions) withDefaults() VerificationOptions {
	if o.TTL <= 0 {
		o.TTL = DefaultVerificationTTL
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = SignupMaxAttempts
	}
	if o.Generate == nil {
		o.Generate = utils.NewVerificationCode
	}
	return o
}

func normalizeKey(key string) string { return strings.ToLower(strings.TrimSpace(key)) }

func normalizeCode(code string) string { return strings.ToUpper(strings.TrimSpace(code)) }

func codesEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// judge applies the check rules to one entry and reports what to persist.
// Expiry wins over the code; a mismatch that reaches the limit burns the entry.
func judge(e *models.PendingVerification, code string, now time.Time, opts VerificationOptions) (res CheckResult, keep bool, burned bool) {
	if now.Sub(e.CreatedAt) > opts.TTL {
		return CheckResult{Outcome: OutcomeExpired}, true, false
	}
	if !codesEqual(e.Code, normalizeCode(code)) {
		e.Attempts++
		if e.Attempts >= opts.MaxAttempts {
			return CheckResult{Outcome: OutcomeAttemptsExceeded}, false, true
		}
		return CheckResult{Outcome: OutcomeMismatch, AttemptsLeft: opts.MaxAttempts - e.Attempts}, true, false
	}
	return CheckResult{Outcome: OutcomeValid, Payload: e.Payload}, false, false
}

// MemoryVerificationStore keeps entries in process. One mutex serialises
// every operation so concurrent checks never lose an attempt.
type MemoryVerificationStore struct {
	mu       sync.Mutex
	entries  map[string]*models.PendingVerification
	exceeded map[string]time.Time
	opts     VerificationOptions
}

func NewMemoryVerificationStore(opts VerificationOptions) *MemoryVerificationStore {
	return &MemoryVerificationStore{
		entries:  make(map[string]*models.PendingVerification),
		exceeded: make(map[string]time.Time),
		opts:     opts.withDefaults(),
	}
}

func (s *MemoryVerificationStore) Issue(_ context.Context, key string, payload models.VerificationPayload) (string, error) {
	code, err := s.opts.Generate()
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	code = normalizeCode(code)
	key = normalizeKey(key)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = &models.PendingVerification{
		Code:      code,
		CreatedAt: s.opts.Clock.now(),
		Payload:   payload,
	}
	delete(s.exceeded, key)
	return code, nil
}

func (s *MemoryVerificationStore) Check(_ context.Context, key, code string) (CheckResult, error) {
	key = normalizeKey(key)
	now := s.opts.Clock.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if at, ok := s.exceeded[key]; ok {
		if now.Sub(at) <= s.opts.TTL {
			return CheckResult{Outcome: OutcomeAttemptsExceeded}, nil
		}
		delete(s.exceeded, key)
	}

	e, ok := s.entries[key]
	if !ok {
		return CheckResult{Outcome: OutcomeNotFound}, nil
	}
	res, keep, burned := judge(e, code, now, s.opts)
	if !keep {
		delete(s.entries, key)
	}
	if burned {
		s.exceeded[key] = now
	}
	return res, nil
}

func (s *MemoryVerificationStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, normalizeKey(key))
	return nil
}

// Sweep drops entries and attempts-exceeded markers older than the TTL.
func (s *MemoryVerificationStore) Sweep(_ context.Context) (int, error) {
	now := s.opts.Clock.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, e := range s.entries {
		if now.Sub(e.CreatedAt) > s.opts.TTL {
			delete(s.entries, k)
			n++
		}
	}
	for k, at := range s.exceeded {
		if now.Sub(at) > s.opts.TTL {
			delete(s.exceeded, k)
		}
	}
	return n, nil
}

func (s *MemoryVerificationStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// RunSweeper sweeps store every interval until ctx is done.
func RunSweeper(ctx context.Context, name string, store VerificationStore, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.Sweep(ctx)
			if err != nil {
				log.Printf("[verify][%s][sweep] %v", name, err)
				continue
			}
			if n > 0 {
				log.Printf("[verify][%s][sweep] removed %d expired entries", name, n)
			}
		}
	}
}
