package auth

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/retailpoint/pos/internal/domain"
)

// Store holds the current token pair for the whole process. Get, Replace
// and Clear are safe for concurrent use; a Get racing a Replace observes
// either the old or the new pair, never a torn value.
//
// The pair is mutated only by login and by a successful refresh, and
// cleared on logout or terminal auth failure. When constructed with a
// Storage, the pair is loaded once at startup and written through on every
// change; storage write failures are logged but never fail the in-memory
// transition.
type Store struct {
	mu      sync.RWMutex
	pair    domain.TokenPair
	present bool

	storage Storage
	log     *zap.Logger
}

// NewStore creates a token store. storage and log may be nil.
func NewStore(storage Storage, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{storage: storage, log: log}
	if storage != nil {
		pair, err := storage.Load()
		switch {
		case err == nil:
			s.pair = pair
			s.present = true
		case !errors.Is(err, ErrNoSavedSession):
			log.Warn("loading saved session", zap.Error(err))
		}
	}
	return s
}

// Get returns the current pair and whether one is held.
func (s *Store) Get() (domain.TokenPair, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair, s.present
}

// Replace installs a new pair, overwriting any previous one.
func (s *Store) Replace(pair domain.TokenPair) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = pair
	s.present = true
	if s.storage != nil {
		if err := s.storage.Save(pair); err != nil {
			s.log.Warn("persisting session", zap.Error(err))
		}
	}
}

// Clear drops the pair. Safe to call when nothing is held.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = domain.TokenPair{}
	s.present = false
	if s.storage != nil {
		if err := s.storage.Clear(); err != nil {
			s.log.Warn("clearing persisted session", zap.Error(err))
		}
	}
}
