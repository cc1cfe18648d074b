package auth

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailpoint/pos/internal/domain"
)

// mockStorage implements Storage for testing
type mockStorage struct {
	mu      sync.Mutex
	pair    domain.TokenPair
	present bool

	loadErr  error
	saveErr  error
	saves    int
	clears   int
}

func (m *mockStorage) Load() (domain.TokenPair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return domain.TokenPair{}, m.loadErr
	}
	if !m.present {
		return domain.TokenPair{}, ErrNoSavedSession
	}
	return m.pair, nil
}

func (m *mockStorage) Save(pair domain.TokenPair) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.pair = pair
	m.present = true
	return nil
}

func (m *mockStorage) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clears++
	m.pair = domain.TokenPair{}
	m.present = false
	return nil
}

func TestStore_EmptyByDefault(t *testing.T) {
	s := NewStore(nil, nil)
	_, ok := s.Get()
	assert.False(t, ok)
}

func TestStore_ReplaceAndClear(t *testing.T) {
	s := NewStore(nil, nil)
	pair := domain.TokenPair{AccessToken: "a", RefreshToken: "r"}

	s.Replace(pair)
	got, ok := s.Get()
	require.True(t, ok)
	assert.Equal(t, pair, got)

	s.Clear()
	_, ok = s.Get()
	assert.False(t, ok)
}

func TestStore_LoadsPersistedSessionOnConstruction(t *testing.T) {
	storage := &mockStorage{
		pair:    domain.TokenPair{AccessToken: "saved", RefreshToken: "saved-r"},
		present: true,
	}
	s := NewStore(storage, nil)

	got, ok := s.Get()
	require.True(t, ok)
	assert.Equal(t, "saved", got.AccessToken)
}

func TestStore_CorruptPersistedSessionIgnored(t *testing.T) {
	storage := &mockStorage{loadErr: errors.New("corrupt token file")}
	s := NewStore(storage, nil)

	_, ok := s.Get()
	assert.False(t, ok)
}

func TestStore_WritesThroughToStorage(t *testing.T) {
	storage := &mockStorage{}
	s := NewStore(storage, nil)

	s.Replace(domain.TokenPair{AccessToken: "a", RefreshToken: "r"})
	assert.Equal(t, 1, storage.saves)

	s.Clear()
	assert.Equal(t, 1, storage.clears)
}

func TestStore_StorageFailureDoesNotBlockTransition(t *testing.T) {
	storage := &mockStorage{saveErr: errors.New("disk full")}
	s := NewStore(storage, nil)

	s.Replace(domain.TokenPair{AccessToken: "a", RefreshToken: "r"})
	got, ok := s.Get()
	require.True(t, ok)
	assert.Equal(t, "a", got.AccessToken)
}

func TestStore_NeverObservesTornPair(t *testing.T) {
	s := NewStore(nil, nil)
	pairA := domain.TokenPair{AccessToken: "access-a", RefreshToken: "refresh-a"}
	pairB := domain.TokenPair{AccessToken: "access-b", RefreshToken: "refresh-b"}
	s.Replace(pairA)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			s.Replace(pairA)
			s.Replace(pairB)
		}
	}()
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			pair, ok := s.Get()
			if !ok {
				continue
			}
			// Either pair is fine; mixing fields across pairs is not.
			if pair != pairA && pair != pairB {
				t.Errorf("observed torn pair: %+v", pair)
				return
			}
		}
	}()

	time.Sleep(50 * time.Millisecond)
	close(done)
	wg.Wait()
}

func TestFileStorage_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session", "token.json")
	storage := NewFileStorage(path)

	_, err := storage.Load()
	assert.ErrorIs(t, err, ErrNoSavedSession)

	pair := domain.TokenPair{
		AccessToken:  "a",
		RefreshToken: "r",
		ExpiresAt:    time.Now().Add(time.Hour).UTC().Truncate(time.Second),
	}
	require.NoError(t, storage.Save(pair))

	got, err := storage.Load()
	require.NoError(t, err)
	assert.Equal(t, pair, got)

	require.NoError(t, storage.Clear())
	_, err = storage.Load()
	assert.ErrorIs(t, err, ErrNoSavedSession)

	// Clearing an already-empty storage is fine.
	require.NoError(t, storage.Clear())
}
