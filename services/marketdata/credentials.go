package marketdata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// CredentialStore holds the upstream session credentials. The scraping
// session uses browser cookies that an operator refreshes out of band, so
// the store is read on every fetch and writable at runtime.
type CredentialStore interface {
	Get() (string, error)
	Set(cookie string) error
}

// FileCredentialStore persists the cookie string as JSON on disk
type FileCredentialStore struct {
	path string
	mu   sync.RWMutex
}

type credentialFile struct {
	Cookie    string `json:"cookie"`
	UpdatedAt string `json:"updated_at"`
}

// NewFileCredentialStore creates a store backed by the given file path
func NewFileCredentialStore(path string) *FileCredentialStore {
	return &FileCredentialStore{path: path}
}

// Get returns the current cookie string, empty when none has been set
func (s *FileCredentialStore) Get() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read credential file: %w", err)
	}

	var cf credentialFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return "", fmt.Errorf("failed to parse credential file: %w", err)
	}
	return cf.Cookie, nil
}

// Set replaces the stored cookie string
func (s *FileCredentialStore) Set(cookie string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}

	cf := credentialFile{
		Cookie:    cookie,
		UpdatedAt: time.Now().Format(time.RFC3339),
	}
	data, err := json.MarshalIndent(cf, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0600)
}

// StaticCredentialStore serves a fixed cookie string, used in tests
type StaticCredentialStore struct {
	mu     sync.RWMutex
	cookie string
}

// NewStaticCredentialStore creates a store with the given cookie
func NewStaticCredentialStore(cookie string) *StaticCredentialStore {
	return &StaticCredentialStore{cookie: cookie}
}

func (s *StaticCredentialStore) Get() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cookie, nil
}

func (s *StaticCredentialStore) Set(cookie string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cookie = cookie
	return nil
}
