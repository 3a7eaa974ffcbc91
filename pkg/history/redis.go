package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each conversation as a Redis list of JSON entries.
// RPUSH preserves append order; reads are a single LRANGE.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a store on an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// conversationKey returns the list key for a conversation's message log.
func conversationKey(conversationID string) string {
	return "conversation:" + conversationID + ":messages"
}

// Append implements ConversationStore.
func (s *RedisStore) Append(ctx context.Context, conversationID string, entry Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal history entry: %w", err)
	}
	if err := s.client.RPush(ctx, conversationKey(conversationID), payload).Err(); err != nil {
		return fmt.Errorf("failed to append history entry: %w", err)
	}
	return nil
}

// Entries implements ConversationStore.
func (s *RedisStore) Entries(ctx context.Context, conversationID string) ([]Entry, error) {
	raw, err := s.client.LRange(ctx, conversationKey(conversationID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation log: %w", err)
	}
	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var entry Entry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, fmt.Errorf("corrupt history entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// LastResponseID implements ConversationStore.
func (s *RedisStore) LastResponseID(ctx context.Context, conversationID string) (string, error) {
	entries, err := s.Entries(ctx, conversationID)
	if err != nil {
		return "", err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Role == RoleAssistant && entries[i].ResponseID != "" {
			return entries[i].ResponseID, nil
		}
	}
	return "", nil
}

// Ping verifies connectivity, for health checks.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
