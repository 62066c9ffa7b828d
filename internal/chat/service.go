package chat

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/medix/medix-server/internal/repository"
	"github.com/medix/medix-server/pkg/models"
)

// contextTurns caps how much history is replayed into the assistant prompt.
const contextTurns = 10

// Responder produces the assistant side of the conversation.
type Responder interface {
	ChatReply(ctx context.Context, history []models.ChatMessage, message string, user *models.User) (string, error)
}

// Store persists full chat transcripts.
type Store interface {
	SaveChatMessage(ctx context.Context, msg *models.ChatMessage) error
	ListChatMessages(ctx context.Context, userID int64, sessionID string, limit int) ([]*models.ChatMessage, error)
	ListChatSessions(ctx context.Context, userID int64) ([]*repository.ChatSessionSummary, error)
}

// Service runs chat sessions: every turn is written through to the store,
// while the cache keeps the recent context hot for prompt assembly.
type Service struct {
	responder Responder
	store     Store
	cache     repository.ChatCache
}

func NewService(responder Responder, store Store, cache repository.ChatCache) *Service {
	return &Service{
		responder: responder,
		store:     store,
		cache:     cache,
	}
}

// Reply holds one assistant answer together with its session id.
type Reply struct {
	SessionID string    `json:"session_id"`
	Response  string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}

// Send appends the user's message to the session and returns the
// assistant's answer. An empty sessionID starts a new session.
func (s *Service) Send(ctx context.Context, user *models.User, sessionID, message, contextType string) (*Reply, error) {
	if message == "" {
		return nil, models.E(models.KindValidation, "message is required")
	}
	if s.responder == nil {
		return nil, models.E(models.KindUpstream, "assistant is not configured")
	}
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	history, err := s.recentContext(ctx, user.ID, sessionID)
	if err != nil {
		log.Printf("[WARN] Failed to load chat context for session %s: %v", sessionID, err)
		history = nil
	}

	answer, err := s.responder.ChatReply(ctx, history, message, user)
	if err != nil {
		return nil, models.Wrap(models.KindUpstream, err, "assistant is unavailable")
	}

	// Both turns are committed together so a failed reply leaves the
	// transcript untouched.
	userMsg := &models.ChatMessage{
		SessionID:   sessionID,
		UserID:      user.ID,
		MessageType: "user",
		Content:     message,
		ContextType: contextType,
		Timestamp:   time.Now().UTC(),
	}
	if err := s.record(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("failed to record user message: %w", err)
	}

	assistantMsg := &models.ChatMessage{
		SessionID:   sessionID,
		UserID:      user.ID,
		MessageType: "assistant",
		Content:     answer,
		ContextType: contextType,
		Timestamp:   time.Now().UTC(),
	}
	if err := s.record(ctx, assistantMsg); err != nil {
		log.Printf("[WARN] Failed to record assistant message for session %s: %v", sessionID, err)
	}

	return &Reply{
		SessionID: sessionID,
		Response:  answer,
		Timestamp: assistantMsg.Timestamp,
	}, nil
}

// History returns the stored transcript of one session, oldest first.
func (s *Service) History(ctx context.Context, userID int64, sessionID string) ([]*models.ChatMessage, error) {
	messages, err := s.store.ListChatMessages(ctx, userID, sessionID, 200)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat history: %w", err)
	}
	if len(messages) == 0 {
		return nil, models.ErrNotFound
	}
	return messages, nil
}

// Sessions lists the user's sessions, most recently active first.
func (s *Service) Sessions(ctx context.Context, userID int64) ([]*repository.ChatSessionSummary, error) {
	return s.store.ListChatSessions(ctx, userID)
}

func (s *Service) record(ctx context.Context, msg *models.ChatMessage) error {
	if err := s.store.SaveChatMessage(ctx, msg); err != nil {
		return err
	}
	if err := s.cache.AppendMessage(ctx, msg.SessionID, msg); err != nil {
		log.Printf("[WARN] Failed to cache chat message for session %s: %v", msg.SessionID, err)
	}
	return nil
}

// recentContext reads the last turns from the cache, falling back to the
// store when the cache has nothing for the session.
func (s *Service) recentContext(ctx context.Context, userID int64, sessionID string) ([]models.ChatMessage, error) {
	cached, err := s.cache.RecentMessages(ctx, sessionID, contextTurns)
	if err != nil {
		log.Printf("[WARN] Chat cache read failed for session %s: %v", sessionID, err)
	}
	if len(cached) > 0 {
		return dereference(cached), nil
	}

	stored, err := s.store.ListChatMessages(ctx, userID, sessionID, contextTurns)
	if err != nil {
		return nil, err
	}
	return dereference(stored), nil
}

func dereference(messages []*models.ChatMessage) []models.ChatMessage {
	out := make([]models.ChatMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, *m)
	}
	return out
}
