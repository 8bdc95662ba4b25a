// Package chat keeps per-conversation message history so the assistant
// endpoints can carry context across requests.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/blogify-ai/blogify/provider"
)

// History persists ordered conversation messages keyed by conversation id.
type History interface {
	Load(ctx context.Context, conversationID string) ([]provider.Message, error)
	Append(ctx context.Context, conversationID string, msgs ...provider.Message) error
	Clear(ctx context.Context, conversationID string) error
}

const (
	defaultTTL  = 24 * time.Hour
	maxMessages = 40
)

// RedisHistory stores conversations as JSON blobs in Redis with a TTL, so
// idle conversations expire on their own.
type RedisHistory struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisHistory(client *redis.Client) *RedisHistory {
	return &RedisHistory{client: client, ttl: defaultTTL}
}

func convKey(id string) string { return "chat:conv:" + id }

func (h *RedisHistory) Load(ctx context.Context, conversationID string) ([]provider.Message, error) {
	raw, err := h.client.Get(ctx, convKey(conversationID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("chat history get: %w", err)
	}
	var msgs []provider.Message
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil, fmt.Errorf("chat history decode: %w", err)
	}
	return msgs, nil
}

func (h *RedisHistory) Append(ctx context.Context, conversationID string, msgs ...provider.Message) error {
	existing, err := h.Load(ctx, conversationID)
	if err != nil {
		return err
	}
	existing = append(existing, msgs...)
	existing = trim(existing)
	raw, err := json.Marshal(existing)
	if err != nil {
		return fmt.Errorf("chat history encode: %w", err)
	}
	if err := h.client.Set(ctx, convKey(conversationID), raw, h.ttl).Err(); err != nil {
		return fmt.Errorf("chat history set: %w", err)
	}
	return nil
}

func (h *RedisHistory) Clear(ctx context.Context, conversationID string) error {
	if err := h.client.Del(ctx, convKey(conversationID)).Err(); err != nil {
		return fmt.Errorf("chat history del: %w", err)
	}
	return nil
}

// MemoryHistory is a process-local fallback used when Redis is not
// configured, and in tests.
type MemoryHistory struct {
	mu    sync.Mutex
	convs map[string][]provider.Message
}

func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{convs: make(map[string][]provider.Message)}
}

func (h *MemoryHistory) Load(_ context.Context, conversationID string) ([]provider.Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	msgs := h.convs[conversationID]
	out := make([]provider.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (h *MemoryHistory) Append(_ context.Context, conversationID string, msgs ...provider.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.convs[conversationID] = trim(append(h.convs[conversationID], msgs...))
	return nil
}

func (h *MemoryHistory) Clear(_ context.Context, conversationID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.convs, conversationID)
	return nil
}

// trim keeps the most recent messages so prompts stay bounded.
func trim(msgs []provider.Message) []provider.Message {
	if len(msgs) <= maxMessages {
		return msgs
	}
	return msgs[len(msgs)-maxMessages:]
}
