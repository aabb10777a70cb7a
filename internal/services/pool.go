package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

const DefaultCallTimeout = 10 * time.Second

// Credential is anything a pool hands out: an SMTP account, an API key.
type Credential interface {
	CredentialID() int64
}

// CredentialPool is the store behind rotation. ListUsable returns active
// credentials with quota left, least used first.
type CredentialPool[C Credential] interface {
	Name() string
	ListUsable(ctx context.Context) ([]C, error)
	RecordSuccess(ctx context.Context, c C) error
	MarkFailed(ctx context.Context, c C, reason string) error
}

type actionError struct {
	err       error
	permanent bool
}

func (e *actionError) Error() string { return e.err.Error() }
func (e *actionError) Unwrap() error { return e.err }

// Permanent stops rotation: no other credential would change the answer.
// The credential is not blamed.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &actionError{err: err, permanent: true}
}

// Skip moves on to the next credential without blaming this one.
func Skip(err error) error {
	if err == nil {
		return nil
	}
	return &actionError{err: err}
}

// exhaustionReporter is implemented by pools that alert operators.
type exhaustionReporter interface {
	ReportExhausted(ctx context.Context, lastErr error)
}

// Acquire returns the least used credential without consuming it.
func Acquire[C Credential](ctx context.Context, pool CredentialPool[C]) (C, error) {
	var zero C
	creds, err := pool.ListUsable(ctx)
	if err != nil {
		return zero, fmt.Errorf("%s list usable: %w", pool.Name(), err)
	}
	if len(creds) == 0 {
		reportExhausted(ctx, pool, nil)
		return zero, ErrCredentialExhausted
	}
	return creds[0], nil
}

// Execute runs action with each usable credential in turn until one
// succeeds. Every credential is tried at most once. A failed attempt marks
// the credential failed unless the action wrapped its error with Skip or
// Permanent; an exhausted pool yields ErrCredentialExhausted wrapping the
// last failure. When every attempt was skipped the last skip error comes
// back as-is. Cancelling ctx stops the loop with ctx.Err().
func Execute[C Credential](
	ctx context.Context,
	pool CredentialPool[C],
	timeout time.Duration,
	action func(context.Context, C) error,
) (C, error) {
	_, c, err := Call(ctx, pool, timeout, func(ctx context.Context, c C) (struct{}, error) {
		return struct{}{}, action(ctx, c)
	})
	return c, err
}

// Call is Execute for actions that produce a value. The value is handed
// back only from the attempt that succeeded.
func Call[C Credential, T any](
	ctx context.Context,
	pool CredentialPool[C],
	timeout time.Duration,
	action func(context.Context, C) (T, error),
) (T, C, error) {
	var (
		zeroT T
		zeroC C
	)
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}

	creds, err := pool.ListUsable(ctx)
	if err != nil {
		return zeroT, zeroC, fmt.Errorf("%s list usable: %w", pool.Name(), err)
	}

	var (
		lastErr error
		blamed  bool
	)
	for _, c := range creds {
		if err := ctx.Err(); err != nil {
			return zeroT, zeroC, err
		}

		v, err := attempt(ctx, timeout, c, action)
		if err == nil {
			if err := pool.RecordSuccess(ctx, c); err != nil {
				log.Printf("[pool][%s] record success id=%d: %v", pool.Name(), c.CredentialID(), err)
			}
			return v, c, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zeroT, zeroC, ctxErr
		}

		var ae *actionError
		if errors.As(err, &ae) {
			if ae.permanent {
				return zeroT, zeroC, ae.err
			}
			lastErr = ae.err
			continue
		}

		lastErr = err
		blamed = true
		log.Printf("[pool][%s] credential id=%d failed: %v", pool.Name(), c.CredentialID(), err)
		if err := pool.MarkFailed(ctx, c, err.Error()); err != nil {
			log.Printf("[pool][%s] mark failed id=%d: %v", pool.Name(), c.CredentialID(), err)
		}
	}

	// Every credential skipped: the pool is healthy and the answer is the action's.
	if lastErr != nil && !blamed {
		return zeroT, zeroC, lastErr
	}

	reportExhausted(ctx, pool, lastErr)
	if lastErr == nil {
		return zeroT, zeroC, ErrCredentialExhausted
	}
	return zeroT, zeroC, fmt.Errorf("%w: %w", ErrCredentialExhausted, lastErr)
}

type attemptResult[T any] struct {
	v   T
	err error
}

// attempt bounds one call by timeout even when the action ignores its context.
func attempt[C Credential, T any](ctx context.Context, timeout time.Duration, c C, action func(context.Context, C) (T, error)) (T, error) {
	var zero T
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan attemptResult[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- attemptResult[T]{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		v, err := action(actx, c)
		done <- attemptResult[T]{v: v, err: err}
	}()

	select {
	case r := <-done:
		if r.err == nil {
			return r.v, nil
		}
		if errors.Is(actx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return zero, fmt.Errorf("attempt timed out after %s: %w", timeout, r.err)
		}
		return zero, r.err
	case <-actx.Done():
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, fmt.Errorf("attempt timed out after %s: %w", timeout, context.DeadlineExceeded)
	}
}

func reportExhausted[C Credential](ctx context.Context, pool CredentialPool[C], lastErr error) {
	log.Printf("[pool][%s] exhausted: %v", pool.Name(), lastErr)
	if r, ok := pool.(exhaustionReporter); ok {
		r.ReportExhausted(ctx, lastErr)
	}
}
