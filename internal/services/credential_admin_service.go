package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"talkdrove/internal/models"
	"talkdrove/internal/repositories"
	"talkdrove/internal/utils"
)

// HerokuKeyView is what admins see of a key: never the full token.
type HerokuKeyView struct {
	ID        int64  `json:"id"`
	APIKey    string `json:"api_key"`
	AppsCount int    `json:"apps_count"`
	models.CredentialUsage
}

func viewKey(k models.HerokuAPIKey) HerokuKeyView {
	return HerokuKeyView{ID: k.ID, APIKey: k.MaskedKey(), AppsCount: k.AppsCount, CredentialUsage: k.CredentialUsage}
}

type EmailSenderInput struct {
	Email      string `json:"email" binding:"required"`
	Password   string `json:"password" binding:"required"`
	Host       string `json:"host" binding:"required"`
	Port       int    `json:"port" binding:"required"`
	DailyLimit int    `json:"daily_limit"`
}

// TestMailer sends a one-off message through a chosen sender.
type TestMailer interface {
	SendTestEmail(ctx context.Context, sender models.EmailSender, to string) error
}

// CredentialAdminService manages both credential pools for admins.
type CredentialAdminService struct {
	keys    repositories.HerokuKeyRepository
	senders repositories.EmailSenderRepository
	heroku  HerokuAPI
	mail    TestMailer
	timeout time.Duration
	clock   Clock
}

func NewCredentialAdminService(
	keys repositories.HerokuKeyRepository,
	senders repositories.EmailSenderRepository,
	heroku HerokuAPI,
	mail TestMailer,
	timeout time.Duration,
	clock Clock,
) *CredentialAdminService {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &CredentialAdminService{keys: keys, senders: senders, heroku: heroku, mail: mail, timeout: timeout, clock: clock}
}

func notFound(err error, what string, id int64) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return fmt.Errorf("%s %d: %w", what, id, ErrNotFound)
	}
	return err
}

func (s *CredentialAdminService) ListKeys(ctx context.Context) ([]HerokuKeyView, error) {
	keys, err := s.keys.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]HerokuKeyView, 0, len(keys))
	for _, k := range keys {
		out = append(out, viewKey(k))
	}
	return out, nil
}

// AddKey stores a key after the provider accepts it.
func (s *CredentialAdminService) AddKey(ctx context.Context, apiKey string) (*HerokuKeyView, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, invalid("API key is required")
	}
	exists, err := s.keys.ExistsByKey(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, invalid("API key already exists")
	}

	actx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.heroku.GetAccount(actx, apiKey); err != nil {
		log.Printf("[admin][api-keys] validation failed: %v", err)
		return nil, invalid("Invalid API key")
	}

	k := &models.HerokuAPIKey{APIKey: apiKey}
	k.CreatedAt = s.clock.now()
	if err := s.keys.Create(ctx, k); err != nil {
		return nil, err
	}
	log.Printf("[admin][api-keys] added id=%d key=%s", k.ID, k.MaskedKey())
	v := viewKey(*k)
	return &v, nil
}

func (s *CredentialAdminService) SetKeyActive(ctx context.Context, id int64, active bool) error {
	return notFound(s.keys.SetActive(ctx, id, active, s.clock.now()), "api key", id)
}

func (s *CredentialAdminService) DeleteKey(ctx context.Context, id int64) error {
	return notFound(s.keys.Delete(ctx, id), "api key", id)
}

// KeyApps lists the apps on the key's account and refreshes its app count.
func (s *CredentialAdminService) KeyApps(ctx context.Context, id int64) ([]utils.HerokuApp, error) {
	k, err := s.keys.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "api key", id)
	}
	actx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	apps, err := s.heroku.ListApps(actx, k.APIKey)
	if err != nil {
		return nil, err
	}
	if err := s.keys.SetAppsCount(ctx, id, len(apps)); err != nil {
		return nil, err
	}
	return apps, nil
}

func (s *CredentialAdminService) ListSenders(ctx context.Context) ([]models.EmailSender, error) {
	return s.senders.List(ctx)
}

func (s *CredentialAdminService) AddSender(ctx context.Context, in EmailSenderInput) (*models.EmailSender, error) {
	in.Email = normalizeEmail(in.Email)
	in.Host = strings.TrimSpace(in.Host)
	if !emailPattern.MatchString(in.Email) {
		return nil, invalid("Invalid sender email")
	}
	if in.Host == "" || in.Password == "" {
		return nil, invalid("Host and password are required")
	}
	if in.Port <= 0 || in.Port > 65535 {
		return nil, invalid("Invalid SMTP port")
	}

	sender := &models.EmailSender{Email: in.Email, Password: in.Password, Host: in.Host, Port: in.Port}
	sender.DailyLimit = in.DailyLimit
	sender.CreatedAt = s.clock.now()
	if err := s.senders.Create(ctx, sender); err != nil {
		return nil, err
	}
	log.Printf("[admin][email-senders] added id=%d email=%s", sender.ID, sender.Email)
	return sender, nil
}

func (s *CredentialAdminService) SetSenderActive(ctx context.Context, id int64, active bool) error {
	return notFound(s.senders.SetActive(ctx, id, active, s.clock.now()), "email sender", id)
}

func (s *CredentialAdminService) DeleteSender(ctx context.Context, id int64) error {
	return notFound(s.senders.Delete(ctx, id), "email sender", id)
}

// TestSender mails to through one specific sender. The pool is not touched.
func (s *CredentialAdminService) TestSender(ctx context.Context, id int64, to string) error {
	to = normalizeEmail(to)
	if !emailPattern.MatchString(to) {
		return invalid("Invalid recipient email")
	}
	sender, err := s.senders.GetByID(ctx, id)
	if err != nil {
		return notFound(err, "email sender", id)
	}
	if err := s.mail.SendTestEmail(ctx, *sender, to); err != nil {
		log.Printf("[admin][email-senders] test id=%d failed: %v", id, err)
		return invalid("Test email failed, check the sender settings")
	}
	return nil
}
