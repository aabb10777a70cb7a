package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"talkdrove/internal/models"
)

const DefaultSessionTTL = 5 * 24 * time.Hour

var ErrSessionNotFound = errors.New("session not found")

// SessionStore keeps session data server side, keyed by session id.
type SessionStore interface {
	Save(ctx context.Context, id string, u models.SessionUser, ttl time.Duration) error
	Load(ctx context.Context, id string) (*models.SessionUser, error)
	Delete(ctx context.Context, id string) error
}

type RedisSessionStore struct {
	client *redis.Client
}

func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

func sessionKey(id string) string { return "session:" + id }

func (s *RedisSessionStore) Save(ctx context.Context, id string, u models.SessionUser, ttl time.Duration) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, sessionKey(id), data, ttl).Err()
}

func (s *RedisSessionStore) Load(ctx context.Context, id string) (*models.SessionUser, error) {
	raw, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	var u models.SessionUser
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &u, nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, sessionKey(id)).Err()
}

type memorySession struct {
	user    models.SessionUser
	expires time.Time
}

// MemorySessionStore serves single-instance deployments and tests.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]memorySession
	clock    Clock
}

func NewMemorySessionStore(clock Clock) *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]memorySession), clock: clock}
}

func (s *MemorySessionStore) Save(_ context.Context, id string, u models.SessionUser, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = memorySession{user: u, expires: s.clock.now().Add(ttl)}
	return nil
}

func (s *MemorySessionStore) Load(_ context.Context, id string) (*models.SessionUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.clock.now().After(m.expires) {
		delete(s.sessions, id)
		return nil, ErrSessionNotFound
	}
	u := m.user
	return &u, nil
}

func (s *MemorySessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

type SessionClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// SessionService signs the cookie value: an HS256 JWT naming the session.
type SessionService struct {
	store  SessionStore
	secret []byte
	ttl    time.Duration
	clock  Clock
}

func NewSessionService(store SessionStore, secret string, ttl time.Duration, clock Clock) *SessionService {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionService{store: store, secret: []byte(secret), ttl: ttl, clock: clock}
}

func (s *SessionService) TTL() time.Duration { return s.ttl }

// Issue stores u under a new session id and returns the signed cookie value.
func (s *SessionService) Issue(ctx context.Context, u models.SessionUser) (string, error) {
	sid := uuid.NewString()
	if err := s.store.Save(ctx, sid, u, s.ttl); err != nil {
		return "", fmt.Errorf("save session: %w", err)
	}

	now := s.clock.now()
	claims := SessionClaims{
		SessionID: sid,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(u.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	return token, nil
}

func (s *SessionService) parse(token string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.clock.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid || claims.SessionID == "" {
		return nil, ErrSessionNotFound
	}
	return claims, nil
}

// Resolve returns the session user and id behind a cookie value.
func (s *SessionService) Resolve(ctx context.Context, token string) (*models.SessionUser, string, error) {
	claims, err := s.parse(token)
	if err != nil {
		return nil, "", err
	}
	u, err := s.store.Load(ctx, claims.SessionID)
	if err != nil {
		return nil, "", err
	}
	return u, claims.SessionID, nil
}

func (s *SessionService) Revoke(ctx context.Context, token string) error {
	claims, err := s.parse(token)
	if err != nil {
		return nil
	}
	return s.store.Delete(ctx, claims.SessionID)
}
