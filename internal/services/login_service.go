package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"talkdrove/internal/models"
	"talkdrove/internal/repositories"
)

type LoginResult struct {
	User                *models.SessionUser
	RequireVerification bool
	PendingDeviceID     string
}

// LoginService signs users in and challenges logins from unknown devices.
type LoginService struct {
	users   repositories.UserRepository
	devices repositories.DeviceRepository
	store   VerificationStore
	mail    CodeSender
	clock   Clock
	newID   func() string
}

func NewLoginService(
	users repositories.UserRepository,
	devices repositories.DeviceRepository,
	store VerificationStore,
	mail CodeSender,
	clock Clock,
) *LoginService {
	return &LoginService{
		users:   users,
		devices: devices,
		store:   store,
		mail:    mail,
		clock:   clock,
		newID:   uuid.NewString,
	}
}

// DeviceFingerprint identifies a browser by its user agent.
func DeviceFingerprint(userAgent string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(userAgent)))
	return hex.EncodeToString(sum[:])
}

// LocationForIP is a coarse label; no geo database is consulted.
func LocationForIP(ip string) string {
	parsed := net.ParseIP(ip)
	switch {
	case parsed == nil:
		return "Unknown"
	case parsed.IsLoopback(), parsed.IsPrivate():
		return "Local network"
	default:
		return "Unknown"
	}
}

func sessionUser(u *models.User, deviceID string) *models.SessionUser {
	return &models.SessionUser{
		ID:         u.ID,
		Email:      u.Email,
		IsVerified: true,
		IsAdmin:    u.IsAdmin,
		IsBanned:   u.IsBanned,
		DeviceID:   deviceID,
	}
}

func (s *LoginService) Login(ctx context.Context, identifier, password, userAgent, clientIP string) (*LoginResult, error) {
	email := normalizeEmail(identifier)
	if email == "" || password == "" {
		return nil, invalid("Email and password are required")
	}
	if !emailPattern.MatchString(email) {
		return nil, invalid("Invalid email format")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	now := s.clock.now()
	fingerprint := DeviceFingerprint(userAgent)

	known, err := s.devices.FindVerified(ctx, user.ID, fingerprint)
	if err != nil {
		return nil, err
	}
	if known != nil {
		if err := s.devices.Touch(ctx, known.ID, clientIP, now); err != nil {
			return nil, err
		}
		if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
			return nil, err
		}
		log.Printf("[login][known-device] user_id=%d device=%s", user.ID, known.ID)
		return &LoginResult{User: sessionUser(user, known.ID)}, nil
	}

	device := &models.UserDevice{
		ID:          s.newID(),
		UserID:      user.ID,
		IPAddress:   clientIP,
		Fingerprint: fingerprint,
		DeviceInfo:  userAgent,
		Location:    LocationForIP(clientIP),
		LastUsed:    now,
	}
	payload := models.VerificationPayload{
		UserID:   user.ID,
		DeviceID: device.ID,
		ClientIP: clientIP,
		Location: device.Location,
	}

	code, err := s.store.Issue(ctx, email, payload)
	if err != nil {
		return nil, err
	}
	details := DeviceDetails{IP: clientIP, Location: device.Location, UserAgent: userAgent}
	if err := s.mail.SendDeviceCode(ctx, email, code, details); err != nil {
		if delErr := s.store.Delete(ctx, email); delErr != nil {
			log.Printf("[login][new-device] drop pending email=%s: %v", email, delErr)
		}
		return nil, err
	}
	if err := s.devices.Create(ctx, device); err != nil {
		return nil, fmt.Errorf("register device: %w", err)
	}

	log.Printf("[login][new-device] challenge sent: user_id=%d device=%s", user.ID, device.ID)
	return &LoginResult{RequireVerification: true, PendingDeviceID: device.ID}, nil
}

func (s *LoginService) VerifyDeviceLogin(ctx context.Context, email, code string) (*models.SessionUser, error) {
	email = normalizeEmail(email)
	if email == "" || strings.TrimSpace(code) == "" {
		return nil, invalid("Email and verification code are required")
	}

	res, err := s.store.Check(ctx, email, code)
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		log.Printf("[login][verify] email=%s outcome=%s", email, res.Outcome)
		return nil, err
	}

	now := s.clock.now()
	if err := s.devices.MarkVerified(ctx, res.Payload.DeviceID, now); err != nil {
		return nil, fmt.Errorf("verify device: %w", err)
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, err
	}
	return sessionUser(user, res.Payload.DeviceID), nil
}

// SessionUserByID reloads the flags a session depends on.
func (s *LoginService) SessionUserByID(ctx context.Context, id int64, deviceID string) (*models.SessionUser, error) {
	user, err := s.users.GetByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return sessionUser(user, deviceID), nil
}

// Devices lists the user's devices, most recently used first.
func (s *LoginService) Devices(ctx context.Context, userID int64) ([]models.UserDevice, error) {
	return s.devices.ListByUser(ctx, userID)
}

// RemoveDevice forgets one of the user's devices, so the next login from it
// is challenged again. The device behind the current session cannot be removed.
func (s *LoginService) RemoveDevice(ctx context.Context, userID int64, currentDeviceID, deviceID string) error {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return invalid("Device id is required")
	}
	if deviceID == currentDeviceID {
		return invalid("Cannot remove the device you are using")
	}
	err := s.devices.Delete(ctx, userID, deviceID)
	if errors.Is(err, repositories.ErrNotFound) {
		return fmt.Errorf("device %s: %w", deviceID, ErrNotFound)
	}
	if err != nil {
		return err
	}
	log.Printf("[login][devices] removed: user_id=%d device=%s", userID, deviceID)
	return nil
}
