package models

import "time"

// VerificationPayload travels with a pending code until it is confirmed.
// Signup fills the account fields, device login fills the device fields.
type VerificationPayload struct {
	Username     string `json:"username,omitempty"`
	PasswordHash string `json:"password_hash,omitempty"`
	Country      string `json:"country,omitempty"`
	ReferredBy   *int64 `json:"referred_by,omitempty"`
	ClientIP     string `json:"client_ip,omitempty"`

	UserID   int64  `json:"user_id,omitempty"`
	DeviceID string `json:"device_id,omitempty"`
	Location string `json:"location,omitempty"`
}

// PendingVerification is one outstanding challenge, keyed by email.
type PendingVerification struct {
	Code      string              `json:"code"`
	CreatedAt time.Time           `json:"created_at"`
	Attempts  int                 `json:"attempts"`
	Payload   VerificationPayload `json:"payload"`
}
