package service

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// PendingMembership is a leader membership that could not be written when
// its team was created. The membership sweep keeps trying until it lands or
// the attempts run out.
type PendingMembership struct {
	ID        string    `json:"id"`
	TeamID    string    `json:"team_id"`
	UserID    string    `json:"user_id"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// MembershipOutbox stores pending memberships.
type MembershipOutbox interface {
	// Save inserts or replaces the entry with the same ID.
	Save(ctx context.Context, p PendingMembership) error
	// Pending returns every entry, oldest first.
	Pending(ctx context.Context) ([]PendingMembership, error)
	Remove(ctx context.Context, id string) error
}

var (
	_ MembershipOutbox = (*MemoryOutbox)(nil)
	_ MembershipOutbox = (*RedisOutbox)(nil)
)

func sortPending(ps []PendingMembership) {
	slices.SortFunc(ps, func(a, b PendingMembership) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// MemoryOutbox keeps entries in process memory; they are lost on restart.
type MemoryOutbox struct {
	mu      sync.Mutex
	entries map[string]PendingMembership
}

func NewMemoryOutbox() *MemoryOutbox {
	return &MemoryOutbox{entries: make(map[string]PendingMembership)}
}

func (o *MemoryOutbox) Save(_ context.Context, p PendingMembership) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entries[p.ID] = p
	return nil
}

func (o *MemoryOutbox) Pending(_ context.Context) ([]PendingMembership, error) {
	o.mu.Lock()
	out := make([]PendingMembership, 0, len(o.entries))
	for _, p := range o.entries {
		out = append(out, p)
	}
	o.mu.Unlock()
	sortPending(out)
	return out, nil
}

func (o *MemoryOutbox) Remove(_ context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.entries, id)
	return nil
}

// RedisOutbox keeps entries in one Redis hash, field = entry id, value =
// JSON entry.
type RedisOutbox struct {
	client *redis.Client
	key    string
}

const outboxKey = "hackhub:outbox:memberships"

func NewRedisOutbox(client *redis.Client) *RedisOutbox {
	return &RedisOutbox{client: client, key: outboxKey}
}

func (o *RedisOutbox) Save(ctx context.Context, p PendingMembership) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("outbox: encoding %s: %w", p.ID, err)
	}
	if err := o.client.HSet(ctx, o.key, p.ID, data).Err(); err != nil {
		return fmt.Errorf("outbox: saving %s: %w", p.ID, err)
	}
	return nil
}

func (o *RedisOutbox) Pending(ctx context.Context) ([]PendingMembership, error) {
	raw, err := o.client.HGetAll(ctx, o.key).Result()
	if err != nil {
		return nil, fmt.Errorf("outbox: listing: %w", err)
	}
	out := make([]PendingMembership, 0, len(raw))
	for id, v := range raw {
		var p PendingMembership
		if err := json.Unmarshal([]byte(v), &p); err != nil {
			return nil, fmt.Errorf("outbox: decoding %s: %w", id, err)
		}
		out = append(out, p)
	}
	sortPending(out)
	return out, nil
}

func (o *RedisOutbox) Remove(ctx context.Context, id string) error {
	if err := o.client.HDel(ctx, o.key, id).Err(); err != nil {
		return fmt.Errorf("outbox: removing %s: %w", id, err)
	}
	return nil
}
