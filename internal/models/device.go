package models

import "time"

type UserDevice struct {
	ID          string    `json:"id"`
	UserID      int64     `json:"user_id"`
	IPAddress   string    `json:"ip_address"`
	Fingerprint string    `json:"-"`
	DeviceInfo  string    `json:"device_info"`
	Location    string    `json:"location"`
	IsVerified  bool      `json:"is_verified"`
	LastUsed    time.Time `json:"last_used"`
}

// SessionUser is what the server-side session holds for a signed-in user.
type SessionUser struct {
	ID         int64  `json:"id"`
	Email      string `json:"email"`
	IsVerified bool   `json:"isVerified"`
	IsAdmin    bool   `json:"is_admin"`
	IsBanned   bool   `json:"is_banned"`
	DeviceID   string `json:"deviceId,omitempty"`
}
