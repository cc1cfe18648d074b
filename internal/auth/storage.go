package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/retailpoint/pos/internal/domain"
)

// Storage persists the token pair across process restarts. Implementations
// only need to hold a single pair; Load returns ErrNoSavedSession when
// nothing has been saved yet.
type Storage interface {
	Load() (domain.TokenPair, error)
	Save(domain.TokenPair) error
	Clear() error
}

// FileStorage keeps the token pair in a JSON file, 0600, under a directory
// created on first save.
type FileStorage struct {
	path string
}

func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

// DefaultTokenPath returns the conventional token file location under the
// user config dir, honoring XDG_CONFIG_HOME.
func DefaultTokenPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "retailpoint", "token.json")
}

func (f *FileStorage) Load() (domain.TokenPair, error) {
	b, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return domain.TokenPair{}, ErrNoSavedSession
	}
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("read token file: %w", err)
	}
	var pair domain.TokenPair
	if err := json.Unmarshal(b, &pair); err != nil {
		return domain.TokenPair{}, fmt.Errorf("parse token file: %w", err)
	}
	if pair.Empty() {
		return domain.TokenPair{}, ErrNoSavedSession
	}
	return pair, nil
}

func (f *FileStorage) Save(pair domain.TokenPair) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	b, err := json.MarshalIndent(pair, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal token pair: %w", err)
	}
	if err := os.WriteFile(f.path, b, 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	return nil
}

func (f *FileStorage) Clear() error {
	err := os.Remove(f.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}
