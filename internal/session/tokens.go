package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sakif/hackhub/internal/model"
)

// TokenStore keeps a client's session and pending PKCE verifier between
// requests. Keys are browser session ids.
type TokenStore interface {
	// Load returns (nil, nil) when the client has no stored session.
	Load(ctx context.Context, sid string) (*model.Session, error)
	Save(ctx context.Context, sid string, s *model.Session) error
	Delete(ctx context.Context, sid string) error

	SaveVerifier(ctx context.Context, sid, verifier string) error
	// TakeVerifier returns and forgets the verifier; "" when there is none.
	TakeVerifier(ctx context.Context, sid string) (string, error)
}

// MemoryTokenStore is a process-local TokenStore for development and tests.
type MemoryTokenStore struct {
	mu        sync.Mutex
	sessions  map[string]model.Session
	verifiers map[string]string
}

var (
	_ TokenStore = (*MemoryTokenStore)(nil)
	_ TokenStore = (*RedisTokenStore)(nil)
)

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{
		sessions:  make(map[string]model.Session),
		verifiers: make(map[string]string),
	}
}

func (m *MemoryTokenStore) Load(_ context.Context, sid string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sid]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *MemoryTokenStore) Save(_ context.Context, sid string, s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sid] = *s
	return nil
}

func (m *MemoryTokenStore) Delete(_ context.Context, sid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sid)
	return nil
}

func (m *MemoryTokenStore) SaveVerifier(_ context.Context, sid, verifier string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifiers[sid] = verifier
	return nil
}

func (m *MemoryTokenStore) TakeVerifier(_ context.Context, sid string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.verifiers[sid]
	delete(m.verifiers, sid)
	return v, nil
}

// RedisTokenStore keeps sessions in Redis so they survive restarts and are
// shared between instances.
//
// Keys:
//
//	hackhub:session:{sid}  JSON-encoded model.Session, TTL = sessionTTL
//	hackhub:pkce:{sid}     PKCE verifier, TTL = 10 minutes
type RedisTokenStore struct {
	client     *redis.Client
	sessionTTL time.Duration
}

const verifierTTL = 10 * time.Minute

// NewRedisTokenStore creates a store whose sessions expire after ttl of
// inactivity; every Save resets the clock.
func NewRedisTokenStore(client *redis.Client, ttl time.Duration) *RedisTokenStore {
	return &RedisTokenStore{client: client, sessionTTL: ttl}
}

func sessionKey(sid string) string  { return "hackhub:session:" + sid }
func verifierKey(sid string) string { return "hackhub:pkce:" + sid }

func (r *RedisTokenStore) Load(ctx context.Context, sid string) (*model.Session, error) {
	data, err := r.client.Get(ctx, sessionKey(sid)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: loading tokens: %w", err)
	}
	var s model.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("session: decoding tokens: %w", err)
	}
	return &s, nil
}

func (r *RedisTokenStore) Save(ctx context.Context, sid string, s *model.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: encoding tokens: %w", err)
	}
	if err := r.client.Set(ctx, sessionKey(sid), data, r.sessionTTL).Err(); err != nil {
		return fmt.Errorf("session: saving tokens: %w", err)
	}
	return nil
}

func (r *RedisTokenStore) Delete(ctx context.Context, sid string) error {
	if err := r.client.Del(ctx, sessionKey(sid)).Err(); err != nil {
		return fmt.Errorf("session: deleting tokens: %w", err)
	}
	return nil
}

func (r *RedisTokenStore) SaveVerifier(ctx context.Context, sid, verifier string) error {
	if err := r.client.Set(ctx, verifierKey(sid), verifier, verifierTTL).Err(); err != nil {
		return fmt.Errorf("session: saving verifier: %w", err)
	}
	return nil
}

func (r *RedisTokenStore) TakeVerifier(ctx context.Context, sid string) (string, error) {
	v, err := r.client.GetDel(ctx, verifierKey(sid)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("session: taking verifier: %w", err)
	}
	return v, nil
}
