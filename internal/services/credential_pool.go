package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"talkdrove/internal/models"
	"talkdrove/internal/repositories"
	"talkdrove/internal/utils"
)

const DefaultFlapWindow = 5 * time.Minute

// poolRepository is the slice of a credential table the rotating pool needs.
type poolRepository[C Credential] interface {
	ListUsable(ctx context.Context, now time.Time) ([]C, error)
	RecordSuccess(ctx context.Context, id int64, now time.Time) error
	Deactivate(ctx context.Context, id int64, reason string, now time.Time, flapWindow time.Duration, stillValid func(context.Context) bool) (bool, error)
}

type PoolOptions struct {
	FlapWindow   time.Duration
	ProbeTimeout time.Duration
	Clock        Clock
}

func (o PoolOptions) withDefaults() PoolOptions {
	if o.FlapWindow <= 0 {
		o.FlapWindow = DefaultFlapWindow
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = DefaultCallTimeout
	}
	return o
}

// RotatingPool adapts a credential table to CredentialPool. validate is the
// re-check consulted before deactivating a recently healthy credential.
type RotatingPool[C Credential] struct {
	name     string
	repo     poolRepository[C]
	validate func(context.Context, C) bool
	notifier Notifier
	opts     PoolOptions
}

func NewEmailSenderPool(repo repositories.EmailSenderRepository, mailer Mailer, notifier Notifier, opts PoolOptions) *RotatingPool[models.EmailSender] {
	return &RotatingPool[models.EmailSender]{
		name: "email_senders",
		repo: repo,
		validate: func(ctx context.Context, s models.EmailSender) bool {
			return mailer.Probe(ctx, s) == nil
		},
		notifier: notifier,
		opts:     opts.withDefaults(),
	}
}

func NewHerokuKeyPool(repo repositories.HerokuKeyRepository, heroku HerokuAPI, notifier Notifier, opts PoolOptions) *RotatingPool[models.HerokuAPIKey] {
	return &RotatingPool[models.HerokuAPIKey]{
		name: "heroku_api_keys",
		repo: repo,
		validate: func(ctx context.Context, k models.HerokuAPIKey) bool {
			return HerokuKeyValid(ctx, heroku, k.APIKey)
		},
		notifier: notifier,
		opts:     opts.withDefaults(),
	}
}

func (p *RotatingPool[C]) Name() string { return p.name }

func (p *RotatingPool[C]) ListUsable(ctx context.Context) ([]C, error) {
	return p.repo.ListUsable(ctx, p.opts.Clock.now())
}

func (p *RotatingPool[C]) RecordSuccess(ctx context.Context, c C) error {
	return p.repo.RecordSuccess(ctx, c.CredentialID(), p.opts.Clock.now())
}

func (p *RotatingPool[C]) MarkFailed(ctx context.Context, c C, reason string) error {
	stillValid := func(ctx context.Context) bool {
		pctx, cancel := context.WithTimeout(ctx, p.opts.ProbeTimeout)
		defer cancel()
		return p.validate(pctx, c)
	}
	deactivated, err := p.repo.Deactivate(ctx, c.CredentialID(), reason, p.opts.Clock.now(), p.opts.FlapWindow, stillValid)
	if err != nil {
		return err
	}
	if !deactivated {
		log.Printf("[pool][%s] id=%d still valid, deactivation suppressed", p.name, c.CredentialID())
		return nil
	}
	log.Printf("[pool][%s] id=%d deactivated", p.name, c.CredentialID())
	notify(ctx, p.notifier, fmt.Sprintf("Credential %d in %s deactivated: %s", c.CredentialID(), p.name, reason))
	return nil
}

func (p *RotatingPool[C]) ReportExhausted(ctx context.Context, lastErr error) {
	text := fmt.Sprintf("Credential pool %s exhausted", p.name)
	if lastErr != nil {
		text += ": " + lastErr.Error()
	}
	notify(ctx, p.notifier, text)
}

// HerokuKeyValid decides whether a key still works. A timeout says nothing
// about the key and counts as valid; 401/403 and any other API error do not.
func HerokuKeyValid(ctx context.Context, heroku HerokuAPI, apiKey string) bool {
	_, err := heroku.GetAccount(ctx, apiKey)
	if err == nil {
		return true
	}
	if errors.Is(err, utils.ErrUnauthorized) {
		return false
	}
	var apiErr *utils.APIError
	if errors.As(err, &apiErr) {
		return false
	}
	return isTimeout(err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
