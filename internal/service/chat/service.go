package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zhouzirui/critter-studio/backend/internal/model/chat"
)

var ErrSessionNotFound = errors.New("session not found")

// entry 中 writer 串行化状态迁移，snapMu 只保护已提交的快照，读取不会等待进行中的迁移。
type entry struct {
	writer sync.Mutex

	snapMu    sync.RWMutex
	session   chat.Session
	updatedAt time.Time
}

func (e *entry) snapshot() (chat.Session, time.Time) {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	return e.session.Clone(), e.updatedAt
}

func (e *entry) commit(session chat.Session, at time.Time) {
	e.snapMu.Lock()
	defer e.snapMu.Unlock()
	e.session = session
	e.updatedAt = at
}

// Service keeps studio sessions in memory, keyed by an opaque identifier.
// Updates to one session are serialized; different sessions proceed in parallel.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	now      func() time.Time
}

// NewService bootstraps the in-memory session registry.
func NewService() *Service {
	return &Service{
		sessions: make(map[string]*entry),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateSession provisions a new session in its initial state.
func (s *Service) CreateSession(_ context.Context) (string, chat.Session) {
	id := uuid.NewString()
	session := chat.NewSession()

	s.mu.Lock()
	s.sessions[id] = &entry{session: session, updatedAt: s.now()}
	s.mu.Unlock()

	return id, session
}

// GetSession returns the last committed snapshot of a session. It does not wait for an in-flight Update.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	e, ok := s.lookup(sessionID)
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}

	session, _ := e.snapshot()
	return session, nil
}

// Update runs fn against the stored session and commits whatever it returns, even alongside an error.
// Updates of one session are serialized for the whole duration of fn, so collaborator calls never overlap.
func (s *Service) Update(ctx context.Context, sessionID string, fn func(context.Context, chat.Session) (chat.Session, error)) (chat.Session, error) {
	e, ok := s.lookup(sessionID)
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}

	e.writer.Lock()
	defer e.writer.Unlock()

	current, _ := e.snapshot()
	next, err := fn(ctx, current)
	e.commit(next.Clone(), s.now())
	return next, err
}

// DeleteSession drops a session.
func (s *Service) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	return nil
}

// PruneIdle removes sessions untouched for longer than maxIdle and returns how many were dropped.
func (s *Service) PruneIdle(maxIdle time.Duration) int {
	cutoff := s.now().Add(-maxIdle)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.sessions {
		if !e.writer.TryLock() {
			// 正在处理中的会话不清理。
			continue
		}
		_, updatedAt := e.snapshot()
		idle := updatedAt.Before(cutoff)
		e.writer.Unlock()

		if idle {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Len reports how many sessions are held.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Service) lookup(sessionID string) (*entry, bool) {
	if sessionID == "" {
		return nil, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[sessionID]
	return e, ok
}
