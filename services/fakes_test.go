package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lborres/bhvr/adapters/memory"
	"github.com/lborres/bhvr/core"
	"github.com/lborres/bhvr/pkg/crypto"
)

// FakeStorage wraps the in-memory adapter and exposes error fields for
// behavior injection.
type FakeStorage struct {
	*memory.Storage

	mu               sync.Mutex
	createSessionErr error
	getSessionErr    error
	updateSessionErr error
	deleteSessionErr error
	getUserErr       error
	updates          int
}

func NewFakeStorage() *FakeStorage {
	return &FakeStorage{Storage: memory.New()}
}

func (f *FakeStorage) CreateSession(ctx context.Context, s *core.Session) error {
	if f.createSessionErr != nil {
		return f.createSessionErr
	}
	return f.Storage.CreateSession(ctx, s)
}

func (f *FakeStorage) GetSessionByHash(ctx context.Context, tokenHash string) (*core.Session, error) {
	if f.getSessionErr != nil {
		return nil, f.getSessionErr
	}
	return f.Storage.GetSessionByHash(ctx, tokenHash)
}

func (f *FakeStorage) UpdateSession(ctx context.Context, s *core.Session) error {
	f.mu.Lock()
	f.updates++
	f.mu.Unlock()
	if f.updateSessionErr != nil {
		return f.updateSessionErr
	}
	return f.Storage.UpdateSession(ctx, s)
}

func (f *FakeStorage) DeleteSessionByHash(ctx context.Context, tokenHash string) error {
	if f.deleteSessionErr != nil {
		return f.deleteSessionErr
	}
	return f.Storage.DeleteSessionByHash(ctx, tokenHash)
}

func (f *FakeStorage) GetUserByID(ctx context.Context, id string) (*core.User, error) {
	if f.getUserErr != nil {
		return nil, f.getUserErr
	}
	return f.Storage.GetUserByID(ctx, id)
}

func (f *FakeStorage) Updates() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updates
}

// seedUser stores a user with a credential account for password.
func (f *FakeStorage) seedUser(email, password string, hasher crypto.PasswordHandler) *core.User {
	ctx := context.Background()
	user := &core.User{Email: email}
	if err := f.CreateUser(ctx, user); err != nil {
		panic(err)
	}
	hashed, err := hasher.Hash(password)
	if err != nil {
		panic(err)
	}
	if err := f.CreateAccount(ctx, &core.Account{
		UserID:     user.ID,
		ProviderID: core.ProviderCredential,
		AccountID:  user.ID,
		Password:   &hashed,
	}); err != nil {
		panic(err)
	}
	return user
}

// FakeCache is a test-only fake implementing core.Cache.
// It stores sessions in a map and exposes error fields for behavior injection.
type FakeCache struct {
	cache  map[string]*core.Session
	mu     sync.RWMutex
	getErr error
	setErr error
	hits   int
	misses int
}

var _ core.Cache = (*FakeCache)(nil)

func NewFakeCache() *FakeCache {
	return &FakeCache{
		cache: make(map[string]*core.Session),
	}
}

func (f *FakeCache) Get(tokenHash string) (*core.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.getErr != nil {
		return nil, f.getErr
	}

	s, ok := f.cache[tokenHash]
	if !ok {
		f.misses++
		return nil, core.ErrCacheNotFound
	}

	f.hits++
	return s, nil
}

func (f *FakeCache) Set(tokenHash string, session *core.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.setErr != nil {
		return f.setErr
	}

	f.cache[tokenHash] = session
	return nil
}

func (f *FakeCache) Delete(tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.cache, tokenHash)
	return nil
}

func (f *FakeCache) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cache = make(map[string]*core.Session)
	return nil
}

func (f *FakeCache) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.cache)
}

func (f *FakeCache) Has(tokenHash string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.cache[tokenHash]
	return ok
}

// recordingObserver collects ObserveAuth calls.
type recordingObserver struct {
	mu    sync.Mutex
	calls []observed
}

type observed struct {
	op  string
	err error
}

func (r *recordingObserver) ObserveAuth(op string, err error, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, observed{op: op, err: err})
}

var errStorageDown = errors.New("storage unavailable")

// cheap argon2 parameters keep the suite fast.
func testHasher() *crypto.Argon2 {
	return &crypto.Argon2{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}

// fakeClock is a controllable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
