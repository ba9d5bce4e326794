package credential

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"

	"tradingtot/internal/interfaces"
	"tradingtot/internal/logger"
	"tradingtot/internal/types"
)

// FileCache is the single-slot credential cache kept in one JSON file.
// A stored credential is a hint to skip the login driver, never proof of a
// valid session.
type FileCache struct {
	path string
	mu   sync.Mutex
}

var _ interfaces.CredentialStore = (*FileCache)(nil)

func NewFileCache(path string) *FileCache {
	return &FileCache{path: path}
}

// Read returns ok=false when the file is missing, unreadable as JSON or
// lacks a required field.
func (c *FileCache) Read() (types.Credential, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return types.Credential{}, false, nil
	}
	if err != nil {
		return types.Credential{}, false, fmt.Errorf("read credential cache: %w", err)
	}

	var cred types.Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		logger.Warn(context.Background(), "Ignoring unreadable credential cache", "path", c.path, "error", err)
		return types.Credential{}, false, nil
	}
	if !cred.Complete() {
		logger.Warn(context.Background(), "Ignoring incomplete credential cache", "path", c.path)
		return types.Credential{}, false, nil
	}
	if cred.UserAgent == "" {
		cred.UserAgent = types.DefaultUserAgent
	}
	return cred, true, nil
}

// Write replaces the stored credential. The file is written next to the
// target and renamed so a reader never sees a partial record.
func (c *FileCache) Write(cred types.Credential) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.Marshal(cred)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("create credential dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(c.path), ".auth-*.json")
	if err != nil {
		return fmt.Errorf("write credential cache: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write credential cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write credential cache: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("write credential cache: %w", err)
	}
	return os.Rename(tmp.Name(), c.path)
}

// Delete is idempotent.
func (c *FileCache) Delete() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete credential cache: %w", err)
	}
	return nil
}
