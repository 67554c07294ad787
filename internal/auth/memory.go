package auth

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"orgdesk.org/internal/obs"
)

var (
	_ UserStore       = (*MemoryUserStore)(nil)
	_ RevocationStore = (*MemoryRevocationStore)(nil)
)

// MemoryUserStore is a process-local UserStore for tests and local runs.
type MemoryUserStore struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]User
	byName map[string]int64
	now    func() time.Time
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		byID:   make(map[int64]User),
		byName: make(map[string]int64),
		now:    time.Now,
	}
}

func (s *MemoryUserStore) Create(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byName[u.Username]; ok {
		return ErrAlreadyExists
	}
	s.nextID++
	now := s.now().UTC()
	u.ID = s.nextID
	u.CreatedAt = now
	u.UpdatedAt = now
	s.byID[u.ID] = *u
	s.byName[u.Username] = u.ID
	return nil
}

func (s *MemoryUserStore) Find(_ context.Context, id int64) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (s *MemoryUserStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	s.mu.RLock()
	id, ok := s.byName[username]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s.Find(ctx, id)
}

// Delete removes a user; used to exercise tokens of vanished accounts.
func (s *MemoryUserStore) Delete(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.byID[id]; ok {
		delete(s.byName, u.Username)
		delete(s.byID, id)
	}
}

// MemoryRevocationStore is a process-local RevocationStore. It does not
// share revocations across instances.
type MemoryRevocationStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
	decoder TokenDecoder
	now     func() time.Time
	log     *zerolog.Logger
}

func NewMemoryRevocationStore(decoder TokenDecoder, opts ...RevocationOption) *MemoryRevocationStore {
	cfg := newRevocationConfig(opts)
	return &MemoryRevocationStore{
		entries: make(map[string]time.Time),
		decoder: decoder,
		now:     cfg.now,
		log:     obs.Component("revocation"),
	}
}

func (s *MemoryRevocationStore) Add(_ context.Context, token string) error {
	expiresAt, ok := expiryOf(s.decoder, token, s.now())
	if !ok {
		s.log.Debug().Msg("token expiry unreadable, not blacklisted")
		obs.RevocationsSkipped.Inc()
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[token]; !exists {
		s.entries[token] = expiresAt
	}
	return nil
}

func (s *MemoryRevocationStore) IsRevoked(_ context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[token]
	return ok, nil
}

func (s *MemoryRevocationStore) PurgeExpired(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var n int64
	for token, exp := range s.entries {
		if exp.Before(now) {
			delete(s.entries, token)
			n++
		}
	}
	return n, nil
}

// Len returns the number of blacklisted tokens.
func (s *MemoryRevocationStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
