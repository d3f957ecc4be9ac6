package credential

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/99designs/keyring"
)

const serviceName = "taskpulse"

// ErrNotFound is returned by Get when no value is stored under a key.
var ErrNotFound = keyring.ErrKeyNotFound

// Store reads and writes secrets in a keyring.
type Store struct {
	ring keyring.Keyring
}

// NewStore wraps an already opened keyring.
func NewStore(ring keyring.Keyring) *Store {
	return &Store{ring: ring}
}

// NewMemoryStore returns a Store backed by an in-process keyring.
func NewMemoryStore() *Store {
	return &Store{ring: keyring.NewArrayKeyring(nil)}
}

// Open returns a Store on the system keyring, falling back to an
// encrypted file under ~/.config/taskpulse/credentials.
func Open() (*Store, error) {
	dir := "~/.config/taskpulse/credentials"
	if home, err := os.UserHomeDir(); err == nil {
		dir = filepath.Join(home, ".config", "taskpulse", "credentials")
	}

	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  dir,
		FilePasswordFunc:         keyring.FixedStringPrompt("taskpulse-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return &Store{ring: ring}, nil
}

// Get retrieves a value by key.
func (s *Store) Get(key string) ([]byte, error) {
	item, err := s.ring.Get(key)
	if err != nil {
		return nil, fmt.Errorf("getting credential %q: %w", key, err)
	}
	return item.Data, nil
}

// Set stores a value by key.
func (s *Store) Set(key string, value []byte) error {
	err := s.ring.Set(keyring.Item{
		Key:   key,
		Data:  value,
		Label: serviceName + " " + key,
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}

// Delete removes a value by key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	err := s.ring.Remove(key)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}
	return nil
}

// IsNotFound reports whether err means the key was absent.
func IsNotFound(err error) bool {
	return errors.Is(err, keyring.ErrKeyNotFound)
}
