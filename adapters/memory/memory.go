// Package memory is an in-process storage adapter. It backs local development
// when no DATABASE_URL is configured, and the test suites.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lborres/bhvr/core"
)

type Storage struct {
	mu       sync.RWMutex
	users    map[string]*core.User
	accounts map[string]*core.Account
	sessions map[string]*core.Session // keyed by token hash
	now      func() time.Time
}

var _ core.AuthStorage = (*Storage)(nil)

func New() *Storage {
	return &Storage{
		users:    make(map[string]*core.User),
		accounts: make(map[string]*core.Account),
		sessions: make(map[string]*core.Session),
		now:      time.Now,
	}
}

func (s *Storage) Close() error { return nil }

// ============================================
// USERS
// ============================================

func (s *Storage) CreateUser(_ context.Context, u *core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return core.ErrUserExists
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if _, exists := s.users[u.ID]; exists {
		return core.ErrUserExists
	}

	now := s.now()
	u.CreatedAt, u.UpdatedAt = now, now
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *Storage) GetUserByID(_ context.Context, id string) (*core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, core.ErrUserNotFound
}

func (s *Storage) GetUserByEmail(_ context.Context, email string) (*core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, core.ErrUserNotFound
}

func (s *Storage) UpdateUser(_ context.Context, u *core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.users[u.ID]
	if !ok {
		return core.ErrUserNotFound
	}
	u.CreatedAt = existing.CreatedAt
	u.UpdatedAt = s.now()
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

// DeleteUser removes the user with its accounts and sessions.
func (s *Storage) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return core.ErrUserNotFound
	}
	delete(s.users, id)
	for k, a := range s.accounts {
		if a.UserID == id {
			delete(s.accounts, k)
		}
	}
	for k, sess := range s.sessions {
		if sess.UserID == id {
			delete(s.sessions, k)
		}
	}
	return nil
}

// ============================================
// ACCOUNTS
// ============================================

func (s *Storage) CreateAccount(_ context.Context, a *core.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[a.UserID]; !ok {
		return core.ErrUserNotFound
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := s.now()
	a.CreatedAt, a.UpdatedAt = now, now
	cp := *a
	s.accounts[a.ID] = &cp
	return nil
}

func (s *Storage) GetAccountByID(_ context.Context, id string) (*core.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if a, ok := s.accounts[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, core.ErrAccountNotFound
}

func (s *Storage) GetAccountByUserAndProvider(_ context.Context, userID, providerID string) ([]*core.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var accounts []*core.Account
	for _, a := range s.accounts {
		if a.UserID == userID && a.ProviderID == providerID {
			cp := *a
			accounts = append(accounts, &cp)
		}
	}
	return accounts, nil
}

func (s *Storage) UpdateAccount(_ context.Context, a *core.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.accounts[a.ID]
	if !ok {
		return core.ErrAccountNotFound
	}
	a.CreatedAt = existing.CreatedAt
	a.UpdatedAt = s.now()
	cp := *a
	s.accounts[a.ID] = &cp
	return nil
}

func (s *Storage) DeleteAccount(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[id]; !ok {
		return core.ErrAccountNotFound
	}
	delete(s.accounts, id)
	return nil
}

// ============================================
// SESSIONS
// ============================================

func (s *Storage) CreateSession(_ context.Context, session *core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	cp := *session
	s.sessions[session.TokenHash] = &cp
	return nil
}

func (s *Storage) GetSessionByHash(_ context.Context, tokenHash string) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sess, ok := s.sessions[tokenHash]; ok {
		cp := *sess
		return &cp, nil
	}
	return nil, core.ErrSessionNotFound
}

func (s *Storage) GetSessionByID(_ context.Context, id string) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sess := range s.sessions {
		if sess.ID == id {
			cp := *sess
			return &cp, nil
		}
	}
	return nil, core.ErrSessionNotFound
}

func (s *Storage) GetUserSessions(_ context.Context, userID string) ([]*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var sessions []*core.Session
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			cp := *sess
			sessions = append(sessions, &cp)
		}
	}
	return sessions, nil
}

func (s *Storage) UpdateSession(_ context.Context, session *core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, sess := range s.sessions {
		if sess.ID == session.ID {
			cp := *session
			delete(s.sessions, k)
			s.sessions[session.TokenHash] = &cp
			return nil
		}
	}
	return core.ErrSessionNotFound
}

func (s *Storage) DeleteSessionByID(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, sess := range s.sessions {
		if sess.ID == id {
			delete(s.sessions, k)
			return nil
		}
	}
	return core.ErrSessionNotFound
}

func (s *Storage) DeleteSessionByHash(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[tokenHash]; !ok {
		return core.ErrSessionNotFound
	}
	delete(s.sessions, tokenHash)
	return nil
}

func (s *Storage) DeleteUserSessions(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for k, sess := range s.sessions {
		if sess.UserID == userID {
			delete(s.sessions, k)
			count++
		}
	}
	return count, nil
}

func (s *Storage) DeleteExpiredSessions(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	count := 0
	for k, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, k)
			count++
		}
	}
	return count, nil
}
