package storage

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Deduper remembers which message a (sender, conversation, client message id)
// triple produced.
// It is a cache in front of the store's unique index, so a miss is never an error.
type Deduper interface {
	Lookup(ctx context.Context, senderID, conversationID, clientMessageID string) (string, bool, error)
	Remember(ctx context.Context, senderID, conversationID, clientMessageID, messageID string) error
}

func idempotencyKey(senderID, conversationID, clientMessageID string) string {
	return "dm:idem:" + senderID + ":" + conversationID + ":" + clientMessageID
}

// RedisDeduper keeps the mapping in Redis with a TTL.
type RedisDeduper struct {
	Redis *redis.Client
	TTL   time.Duration
}

func NewRedisDeduper(rdb *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{Redis: rdb, TTL: ttl}
}

func (d *RedisDeduper) Lookup(ctx context.Context, senderID, conversationID, clientMessageID string) (string, bool, error) {
	id, err := d.Redis.Get(ctx, idempotencyKey(senderID, conversationID, clientMessageID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "idempotency lookup")
	}
	return id, true, nil
}

// Remember binds the key with SETNX so the first message for a key wins.
func (d *RedisDeduper) Remember(ctx context.Context, senderID, conversationID, clientMessageID, messageID string) error {
	err := d.Redis.SetNX(ctx, idempotencyKey(senderID, conversationID, clientMessageID), messageID, d.TTL).Err()
	return errors.Wrap(err, "idempotency remember")
}

type memoryEntry struct {
	messageID string
	expires   time.Time
}

// MemoryDeduper is the single-process fallback used when Redis is not configured.
type MemoryDeduper struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	return &MemoryDeduper{ttl: ttl, entries: make(map[string]memoryEntry), now: time.Now}
}

func (d *MemoryDeduper) Lookup(_ context.Context, senderID, conversationID, clientMessageID string) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := idempotencyKey(senderID, conversationID, clientMessageID)
	e, ok := d.entries[key]
	if !ok {
		return "", false, nil
	}
	if d.now().After(e.expires) {
		delete(d.entries, key)
		return "", false, nil
	}
	return e.messageID, true, nil
}

func (d *MemoryDeduper) Remember(_ context.Context, senderID, conversationID, clientMessageID, messageID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	key := idempotencyKey(senderID, conversationID, clientMessageID)
	if e, ok := d.entries[key]; ok && now.Before(e.expires) {
		return nil
	}
	d.entries[key] = memoryEntry{messageID: messageID, expires: now.Add(d.ttl)}

	// opportunistic sweep so the map does not grow without bound
	if len(d.entries) > 4096 {
		for k, e := range d.entries {
			if now.After(e.expires) {
				delete(d.entries, k)
			}
		}
	}
	return nil
}
