package invoice

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Storage defines the interface for storing original uploads
type Storage interface {
	// Save stores data under name and returns the key to retrieve it by
	Save(ctx context.Context, name string, data []byte, contentType string) (string, error)

	// Get retrieves a stored file
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes a stored file
	Delete(ctx context.Context, key string) error
}

// LocalStorage implements the Storage interface using the local filesystem
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a LocalStorage rooted at basePath
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// Save writes data to basePath/name
func (l *LocalStorage) Save(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	if err := os.WriteFile(l.path(name), data, 0644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return name, nil
}

// Get reads a file from local storage
func (l *LocalStorage) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(l.path(key))
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// Delete removes a file from local storage
func (l *LocalStorage) Delete(ctx context.Context, key string) error {
	if err := os.Remove(l.path(key)); err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}

// path confines key to basePath
func (l *LocalStorage) path(key string) string {
	return filepath.Join(l.basePath, filepath.Base(key))
}
