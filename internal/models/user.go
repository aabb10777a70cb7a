package models

import "time"

const (
	UserStatusActive = "active"
	UserStatusBanned = "banned"
)

type User struct {
	ID           int64      `json:"id"`
	Email        string     `json:"email"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"` // не отдаём наружу
	IsVerified   bool       `json:"is_verified"`
	IsAdmin      bool       `json:"is_admin"`
	IsBanned     bool       `json:"is_banned"`
	Status       string     `json:"status"`
	ReferralCode string     `json:"referral_code"`
	ReferredBy   *int64     `json:"referred_by,omitempty"`
	Coins        int        `json:"coins"`
	Country      string     `json:"country,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
}

type SignupRequest struct {
	Email        string `json:"email" binding:"required"`
	Password     string `json:"password" binding:"required"`
	Username     string `json:"username" binding:"required"`
	Country      string `json:"country"`
	ReferralCode string `json:"referralCode"`
}

type LoginRequest struct {
	Email    string `json:"identifier" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type VerifyCodeRequest struct {
	Email string `json:"email" binding:"required"`
	Code  string `json:"code" binding:"required"`
}

// IPSignupTracking counts accounts created from one source IP.
type IPSignupTracking struct {
	ID           int64     `json:"id"`
	IPAddress    string    `json:"ip_address"`
	AccountCount int       `json:"account_count"`
	LastSignup   time.Time `json:"last_signup"`
}
