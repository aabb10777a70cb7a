package models

import "time"

// CredentialUsage is the bookkeeping shared by every credential pool table.
type CredentialUsage struct {
	IsActive       bool       `json:"is_active"`
	UsageCount     int        `json:"usage_count"`
	DailyLimit     int        `json:"daily_limit"`
	LastResetDate  *time.Time `json:"last_reset_date,omitempty"`
	FailedAttempts int        `json:"failed_attempts"`
	LastError      string     `json:"last_error,omitempty"`
	LastChecked    *time.Time `json:"last_checked,omitempty"`
	LastUsed       *time.Time `json:"last_used,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// EmailSender is an SMTP account from the email_senders pool.
type EmailSender struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	Password string `json:"-"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	CredentialUsage
}

func (s EmailSender) CredentialID() int64 { return s.ID }

// HerokuAPIKey is a Platform API token from the heroku_api_keys pool.
type HerokuAPIKey struct {
	ID        int64  `json:"id"`
	APIKey    string `json:"-"`
	AppsCount int    `json:"apps_count"`
	CredentialUsage
}

func (k HerokuAPIKey) CredentialID() int64 { return k.ID }

// MaskedKey keeps the first and last 8 characters.
func (k HerokuAPIKey) MaskedKey() string {
	if len(k.APIKey) <= 16 {
		return "****"
	}
	return k.APIKey[:8] + "..." + k.APIKey[len(k.APIKey)-8:]
}
