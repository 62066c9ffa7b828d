package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/medix/medix-server/pkg/models"
)

// ChatCache keeps the recent turns of active chat sessions hot so the
// conversation context does not have to be rebuilt from SQLite on every
// message. Implemented by RedisCache and MemoryCache.
type ChatCache interface {
	AppendMessage(ctx context.Context, sessionID string, msg *models.ChatMessage) error
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]*models.ChatMessage, error)
	DropSession(ctx context.Context, sessionID string) error
	Close() error
}

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(addr, password string, db int, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &RedisCache{client: client, ttl: ttl}, nil
}

func (c *RedisCache) AppendMessage(ctx context.Context, sessionID string, msg *models.ChatMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal chat message: %w", err)
	}

	key := "chat:" + sessionID
	pipe := c.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append chat message to Redis: %w", err)
	}
	return nil
}

func (c *RedisCache) RecentMessages(ctx context.Context, sessionID string, limit int) ([]*models.ChatMessage, error) {
	entries, err := c.client.LRange(ctx, "chat:"+sessionID, int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read chat messages from Redis: %w", err)
	}

	messages := make([]*models.ChatMessage, 0, len(entries))
	for _, entry := range entries {
		var msg models.ChatMessage
		if err := json.Unmarshal([]byte(entry), &msg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal chat message: %w", err)
		}
		messages = append(messages, &msg)
	}
	return messages, nil
}

func (c *RedisCache) DropSession(ctx context.Context, sessionID string) error {
	if err := c.client.Del(ctx, "chat:"+sessionID).Err(); err != nil {
		return fmt.Errorf("failed to drop chat session from Redis: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
