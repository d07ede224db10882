package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/straye-as/indicator-api/internal/config"
	"go.uber.org/zap"
)

// ErrNotFound is returned by Get when the named object does not exist
var ErrNotFound = errors.New("storage: object not found")

// Storage is a flat namespace of named binary objects (workbooks, exports)
type Storage interface {
	Get(ctx context.Context, name string) (io.ReadCloser, error)
	Put(ctx context.Context, name string, contentType string, data io.Reader) (int64, error)
	Delete(ctx context.Context, name string) error
}

// NewStorage creates a storage backend based on configuration.
// Local mode keeps objects on the filesystem; cloud/azure mode uses Azure Blob Storage.
func NewStorage(cfg *config.StorageConfig, logger *zap.Logger) (Storage, error) {
	switch cfg.Mode {
	case "local":
		return NewLocalStorage(cfg.LocalBasePath)
	case "cloud", "azure":
		if cfg.CloudConnectionString == "" {
			return nil, fmt.Errorf("cloud connection string required for azure storage")
		}
		return NewAzureBlobStorage(cfg.CloudConnectionString, cfg.CloudContainer, logger)
	default:
		return nil, fmt.Errorf("unsupported storage mode: %s", cfg.Mode)
	}
}

// LocalStorage implements Storage on the local filesystem
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new local storage instance
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &LocalStorage{
		basePath: basePath,
	}, nil
}

// resolve maps an object name to a path inside basePath, rejecting traversal
func (s *LocalStorage) resolve(name string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(name))
	if clean == string(filepath.Separator) {
		return "", fmt.Errorf("invalid object name: %q", name)
	}
	full := filepath.Join(s.basePath, clean)
	rel, err := filepath.Rel(s.basePath, full)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("invalid object name: %q", name)
	}
	return full, nil
}

// Get opens a stored object
func (s *LocalStorage) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	fullPath, err := s.resolve(name)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return file, nil
}

// Put writes an object, replacing any previous content.
// The content is written to a temporary file and renamed so readers never see a partial object.
func (s *LocalStorage) Put(ctx context.Context, name string, contentType string, data io.Reader) (int64, error) {
	fullPath, err := s.resolve(name)
	if err != nil {
		return 0, err
	}

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	size, err := io.Copy(tmp, data)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("failed to write file: %w", err)
	}

	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		return 0, fmt.Errorf("failed to store file: %w", err)
	}

	return size, nil
}

// Delete removes an object; deleting a missing object is not an error
func (s *LocalStorage) Delete(ctx context.Context, name string) error {
	fullPath, err := s.resolve(name)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}

	return nil
}
