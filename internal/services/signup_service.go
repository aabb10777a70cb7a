package services

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"talkdrove/internal/models"
	"talkdrove/internal/repositories"
)

var (
	emailPattern    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,15}$`)
)

const minPasswordLength = 8

// CodeSender delivers verification codes.
type CodeSender interface {
	SendSignupCode(ctx context.Context, to, username, code string) error
	SendDeviceCode(ctx context.Context, to, code string, d DeviceDetails) error
}

type SignupService struct {
	users          repositories.UserRepository
	store          VerificationStore
	mail           CodeSender
	registration   *RegistrationService
	allowedDomains map[string]bool
}

func NewSignupService(
	users repositories.UserRepository,
	store VerificationStore,
	mail CodeSender,
	registration *RegistrationService,
	allowedDomains []string,
) *SignupService {
	domains := make(map[string]bool, len(allowedDomains))
	for _, d := range allowedDomains {
		domains[strings.ToLower(strings.TrimSpace(d))] = true
	}
	return &SignupService{
		users:          users,
		store:          store,
		mail:           mail,
		registration:   registration,
		allowedDomains: domains,
	}
}

func normalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

func (s *SignupService) validate(req *models.SignupRequest) error {
	if req.Email == "" || req.Password == "" || req.Username == "" {
		return invalid("All fields are required")
	}
	if !emailPattern.MatchString(req.Email) {
		return invalid("Invalid email format")
	}
	domain := req.Email[strings.LastIndex(req.Email, "@")+1:]
	if len(s.allowedDomains) > 0 && !s.allowedDomains[domain] {
		return invalid("Email domain %s is not allowed", domain)
	}
	if !usernamePattern.MatchString(req.Username) {
		return invalid("Username must be 3-15 characters: letters, numbers and underscores only")
	}
	if len(req.Password) < minPasswordLength {
		return invalid("Password must be at least %d characters long", minPasswordLength)
	}
	return nil
}

// RequestSignup validates the form, parks it under a fresh code and mails
// the code. Nothing is written to the database yet.
func (s *SignupService) RequestSignup(ctx context.Context, req models.SignupRequest, clientIP string) error {
	req.Email = normalizeEmail(req.Email)
	req.Username = strings.TrimSpace(req.Username)
	if err := s.validate(&req); err != nil {
		return err
	}

	exists, err := s.users.EmailExists(ctx, req.Email)
	if err != nil {
		return err
	}
	if exists {
		return invalid("Email already registered")
	}
	taken, err := s.users.UsernameExists(ctx, req.Username)
	if err != nil {
		return err
	}
	if taken {
		return invalid("Username already taken")
	}

	payload := models.VerificationPayload{
		Username: req.Username,
		Country:  strings.TrimSpace(req.Country),
		ClientIP: clientIP,
	}
	if code := strings.TrimSpace(req.ReferralCode); code != "" {
		referrer, err := s.users.IDByReferralCode(ctx, strings.ToUpper(code))
		if err != nil {
			return err
		}
		payload.ReferredBy = referrer
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("bcrypt generate: %w", err)
	}
	payload.PasswordHash = string(hash)

	code, err := s.store.Issue(ctx, req.Email, payload)
	if err != nil {
		return err
	}
	if err := s.mail.SendSignupCode(ctx, req.Email, req.Username, code); err != nil {
		if delErr := s.store.Delete(ctx, req.Email); delErr != nil {
			log.Printf("[signup][request] drop pending email=%s: %v", req.Email, delErr)
		}
		return err
	}

	log.Printf("[signup][request] code sent: email=%s ip=%s", req.Email, clientIP)
	return nil
}

// VerifySignup consumes the code and commits the account. A soft-banned
// account is still created and returned with IsBanned set.
func (s *SignupService) VerifySignup(ctx context.Context, email, code string) (*models.User, error) {
	email = normalizeEmail(email)
	if email == "" || strings.TrimSpace(code) == "" {
		return nil, invalid("Email and verification code are required")
	}

	res, err := s.store.Check(ctx, email, code)
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		log.Printf("[signup][verify] email=%s outcome=%s", email, res.Outcome)
		return nil, err
	}

	user, err := s.registration.Commit(ctx, email, res.Payload)
	if err != nil {
		return nil, err
	}
	return user, nil
}
