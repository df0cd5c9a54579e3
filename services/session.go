package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lborres/bhvr/core"
	"github.com/lborres/bhvr/pkg/crypto"
)

type SessionManager struct {
	config  core.SessionConfig
	storage core.SessionStorage
	cache   core.Cache // optional, can be nil if caching is disabled
	now     func() time.Time
}

func NewSessionManager(config core.SessionConfig, storage core.SessionStorage, cache core.Cache) *SessionManager {
	if config.MaxAge <= 0 {
		config.MaxAge = core.DefaultSessionConfig().MaxAge
	}
	return &SessionManager{config: config, storage: storage, cache: cache, now: time.Now}
}

func (sm *SessionManager) Create(ctx context.Context, userID, ip, userAgent string) (*core.CreateSessionResult, error) {
	pair, err := crypto.GenerateHashedToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	now := sm.now()
	session := &core.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: pair.Hash,
		IPAddress: ip,
		UserAgent: userAgent,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(sm.config.MaxAge),
	}

	if err := sm.storage.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if sm.cache != nil {
		// We don't fail the request if caching fails
		_ = sm.cache.Set(pair.Hash, session)
	}

	return &core.CreateSessionResult{Session: session, Token: pair.Token}, nil
}

// Verify resolves a raw token to a live session, extending it when it is
// older than the configured update age.
func (sm *SessionManager) Verify(ctx context.Context, token string) (*core.Session, error) {
	if token == "" {
		return nil, core.ErrInvalidToken
	}

	tokenHash := crypto.HashToken(token)
	now := sm.now()

	if sm.cache != nil {
		if session, err := sm.cache.Get(tokenHash); err == nil {
			if session.Expired(now) {
				_ = sm.cache.Delete(tokenHash)
				return nil, core.ErrSessionExpired
			}
			return sm.extend(ctx, tokenHash, session)
		}
	}

	session, err := sm.storage.GetSessionByHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, core.ErrSessionNotFound) {
			return nil, core.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if session.Expired(now) {
		_ = sm.storage.DeleteSessionByID(ctx, session.ID)
		return nil, core.ErrSessionExpired
	}

	if sm.cache != nil {
		_ = sm.cache.Set(tokenHash, session)
	}

	return sm.extend(ctx, tokenHash, session)
}

func (sm *SessionManager) extend(ctx context.Context, tokenHash string, session *core.Session) (*core.Session, error) {
	if sm.config.UpdateAge <= 0 {
		return session, nil
	}

	now := sm.now()
	if now.Sub(session.UpdatedAt) < sm.config.UpdateAge {
		return session, nil
	}

	extended := *session
	extended.ExpiresAt = now.Add(sm.config.MaxAge)
	extended.UpdatedAt = now
	if err := sm.storage.UpdateSession(ctx, &extended); err != nil {
		// The session is still valid; a failed extension only shortens its life.
		return session, nil
	}

	if sm.cache != nil {
		_ = sm.cache.Set(tokenHash, &extended)
	}
	return &extended, nil
}

func (sm *SessionManager) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return core.ErrInvalidToken
	}

	tokenHash := crypto.HashToken(token)

	if sm.cache != nil {
		_ = sm.cache.Delete(tokenHash)
	}

	if err := sm.storage.DeleteSessionByHash(ctx, tokenHash); err != nil {
		return err
	}
	return nil
}

func (sm *SessionManager) DestroyBySessionID(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return core.ErrSessionNotFound
	}

	// Get session first to obtain tokenHash for cache invalidation
	if sm.cache != nil {
		session, err := sm.storage.GetSessionByID(ctx, sessionID)
		if err == nil && session != nil {
			_ = sm.cache.Delete(session.TokenHash)
		}
	}

	return sm.storage.DeleteSessionByID(ctx, sessionID)
}

func (sm *SessionManager) DestroyAllUserSessions(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, core.ErrUserNotFound
	}

	if sm.cache != nil {
		sessions, err := sm.storage.GetUserSessions(ctx, userID)
		if err == nil {
			for _, s := range sessions {
				_ = sm.cache.Delete(s.TokenHash)
			}
		}
	}

	count, err := sm.storage.DeleteUserSessions(ctx, userID)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// PurgeExpired deletes expired sessions from storage.
func (sm *SessionManager) PurgeExpired(ctx context.Context) (int, error) {
	n, err := sm.storage.DeleteExpiredSessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired sessions: %w", err)
	}
	return n, nil
}

// RunJanitor purges expired sessions every interval until ctx is done.
func (sm *SessionManager) RunJanitor(ctx context.Context, interval time.Duration, onPurge func(int, error)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sm.PurgeExpired(ctx)
			if onPurge != nil {
				onPurge(n, err)
			}
		}
	}
}
