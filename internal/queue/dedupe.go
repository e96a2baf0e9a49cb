package queue

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper records which event ids were already handled.
type Deduper interface {
	// Claim returns true only for the first caller of an id.
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

const dedupeTTL = 7 * 24 * time.Hour

type RedisDeduper struct {
	Client *redis.Client
	Prefix string
}

func (d RedisDeduper) key(id string) string { return d.Prefix + ":evt:" + id }

func (d RedisDeduper) Claim(ctx context.Context, eventID string) (bool, error) {
	return d.Client.SetNX(ctx, d.key(eventID), 1, dedupeTTL).Result()
}

func (d RedisDeduper) Release(ctx context.Context, eventID string) error {
	return d.Client.Del(ctx, d.key(eventID)).Err()
}

// MemoryDeduper is the single-process fallback used without Redis.
type MemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

func NewMemoryDeduper() *MemoryDeduper { return &MemoryDeduper{seen: map[string]time.Time{}} }

func (d *MemoryDeduper) Claim(_ context.Context, eventID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now()
	for id, at := range d.seen {
		if now.Sub(at) > dedupeTTL {
			delete(d.seen, id)
		}
	}
	if _, ok := d.seen[eventID]; ok {
		return false, nil
	}
	d.seen[eventID] = now
	return true, nil
}

func (d *MemoryDeduper) Release(_ context.Context, eventID string) error {
	d.mu.Lock()
	delete(d.seen, eventID)
	d.mu.Unlock()
	return nil
}
