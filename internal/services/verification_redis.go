package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"talkdrove/internal/models"
)

const redisCheckRetries = 10

// RedisVerificationStore shares pending codes between instances. Each check
// runs under WATCH on the entry and its attempts-exceeded marker, so
// concurrent checks on one key are serialised by optimistic retries.
type RedisVerificationStore struct {
	client *redis.Client
	prefix string
	opts   VerificationOptions
}

func NewRedisVerificationStore(client *redis.Client, namespace string, opts VerificationOptions) *RedisVerificationStore {
	return &RedisVerificationStore{
		client: client,
		prefix: "verify:" + namespace + ":",
		opts:   opts.withDefaults(),
	}
}

func (s *RedisVerificationStore) entryKey(key string) string { return s.prefix + normalizeKey(key) }

func (s *RedisVerificationStore) exceededKey(key string) string {
	return s.prefix + normalizeKey(key) + ":exceeded"
}

func (s *RedisVerificationStore) Issue(ctx context.Context, key string, payload models.VerificationPayload) (string, error) {
	code, err := s.opts.Generate()
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	code = normalizeCode(code)

	data, err := json.Marshal(models.PendingVerification{
		Code:      code,
		CreatedAt: s.opts.Clock.now(),
		Payload:   payload,
	})
	if err != nil {
		return "", err
	}

	// Entries outlive the TTL so a late check still reports Expired.
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.entryKey(key), data, 2*s.opts.TTL)
		p.Del(ctx, s.exceededKey(key))
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("redis issue: %w", err)
	}
	return code, nil
}

func (s *RedisVerificationStore) Check(ctx context.Context, key, code string) (CheckResult, error) {
	entryKey, exceededKey := s.entryKey(key), s.exceededKey(key)

	var res CheckResult
	txf := func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, exceededKey).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			res = CheckResult{Outcome: OutcomeAttemptsExceeded}
			return nil
		}

		raw, err := tx.Get(ctx, entryKey).Bytes()
		if errors.Is(err, redis.Nil) {
			res = CheckResult{Outcome: OutcomeNotFound}
			return nil
		}
		if err != nil {
			return err
		}
		var e models.PendingVerification
		if err := json.Unmarshal(raw, &e); err != nil {
			return fmt.Errorf("decode entry: %w", err)
		}

		now := s.opts.Clock.now()
		r, keep, burned := judge(&e, code, now, s.opts)
		if r.Outcome == OutcomeExpired {
			res = r
			return nil
		}

		updated, err := json.Marshal(e)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			if keep {
				p.Set(ctx, entryKey, updated, redis.KeepTTL)
			} else {
				p.Del(ctx, entryKey)
			}
			if burned {
				p.Set(ctx, exceededKey, now.Unix(), s.opts.TTL)
			}
			return nil
		})
		if err == nil {
			res = r
		}
		return err
	}

	for i := 0; i < redisCheckRetries; i++ {
		err := s.client.Watch(ctx, txf, entryKey, exceededKey)
		if err == nil {
			return res, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return CheckResult{}, fmt.Errorf("redis check: %w", err)
	}
	return CheckResult{}, fmt.Errorf("redis check: %w", redis.TxFailedErr)
}

func (s *RedisVerificationStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.entryKey(key)).Err()
}

// Sweep is a no-op: Redis expires entries and markers on its own.
func (s *RedisVerificationStore) Sweep(context.Context) (int, error) { return 0, nil }
