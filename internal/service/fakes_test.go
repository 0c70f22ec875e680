package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"houmetna-service/internal/model"
	"houmetna-service/internal/push"

	"github.com/google/uuid"
)

// memoryTokenStore is a TokenStore keeping per-user token sets in memory.
type memoryTokenStore struct {
	mu     sync.Mutex
	tokens map[uuid.UUID]map[string]struct{}
	err    error
}

func newMemoryTokenStore() *memoryTokenStore {
	return &memoryTokenStore{tokens: make(map[uuid.UUID]map[string]struct{})}
}

func (s *memoryTokenStore) AddToken(ctx context.Context, userID uuid.UUID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.tokens[userID] == nil {
		s.tokens[userID] = make(map[string]struct{})
	}
	s.tokens[userID][token] = struct{}{}
	return nil
}

func (s *memoryTokenStore) RemoveToken(ctx context.Context, userID uuid.UUID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	delete(s.tokens[userID], token)
	return nil
}

func (s *memoryTokenStore) ListTokens(ctx context.Context, userID uuid.UUID) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var tokens []string
	for token := range s.tokens[userID] {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return tokens, nil
}

// memoryNotificationStore implements create-if-absent keyed by notification ID.
type memoryNotificationStore struct {
	mu            sync.Mutex
	notifications map[uuid.UUID]model.Notification
	err           error
}

func newMemoryNotificationStore() *memoryNotificationStore {
	return &memoryNotificationStore{notifications: make(map[uuid.UUID]model.Notification)}
}

func (s *memoryNotificationStore) CreateIfAbsent(ctx context.Context, n *model.Notification) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	if existing, ok := s.notifications[n.ID]; ok {
		n.CreatedAt = existing.CreatedAt
		return false, nil
	}
	n.CreatedAt = time.Now().UTC()
	s.notifications[n.ID] = *n
	return true, nil
}

func (s *memoryNotificationStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.notifications)
}

func (s *memoryNotificationStore) all() []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Notification
	for _, n := range s.notifications {
		out = append(out, n)
	}
	return out
}

// scriptedProvider is a push.Provider whose outcome per token is scripted.
type scriptedProvider struct {
	mu       sync.Mutex
	sent     []string
	outcomes map[string]func(ctx context.Context) error
}

func newScriptedProvider() *scriptedProvider {
	return &scriptedProvider{outcomes: make(map[string]func(ctx context.Context) error)}
}

func (p *scriptedProvider) Send(ctx context.Context, token string, msg push.Message) error {
	p.mu.Lock()
	p.sent = append(p.sent, token)
	outcome := p.outcomes[token]
	p.mu.Unlock()
	if outcome == nil {
		return nil
	}
	return outcome(ctx)
}

func (p *scriptedProvider) sendCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

// recordingNotifier captures live notifications.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []*model.Notification
}

func (n *recordingNotifier) SendToUser(notification *model.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}
