package repository

import (
	"context"
	"sync"
	"time"

	"github.com/medix/medix-server/pkg/models"
)

// MemoryCache is the in-process fallback used when Redis is disabled.
// Entries expire lazily on read.
type MemoryCache struct {
	mu       sync.RWMutex
	sessions map[string]*memorySession
	ttl      time.Duration
}

type memorySession struct {
	messages []*models.ChatMessage
	touched  time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		sessions: make(map[string]*memorySession),
		ttl:      ttl,
	}
}

func (c *MemoryCache) AppendMessage(ctx context.Context, sessionID string, msg *models.ChatMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	session, ok := c.sessions[sessionID]
	if !ok {
		session = &memorySession{}
		c.sessions[sessionID] = session
	}
	session.messages = append(session.messages, msg)
	session.touched = time.Now()
	return nil
}

func (c *MemoryCache) RecentMessages(ctx context.Context, sessionID string, limit int) ([]*models.ChatMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	session, ok := c.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	if time.Since(session.touched) > c.ttl {
		delete(c.sessions, sessionID)
		return nil, nil
	}

	messages := session.messages
	if len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}

	out := make([]*models.ChatMessage, len(messages))
	copy(out, messages)
	return out, nil
}

func (c *MemoryCache) DropSession(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.sessions, sessionID)
	return nil
}

func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sessions = make(map[string]*memorySession)
	return nil
}
