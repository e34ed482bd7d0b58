// Package blob stores uploaded receipt files. Paths are always
// "<userID>/<uuid><ext>" so one user can never address another user's
// files, and retrieval links are HMAC-signed with an expiry.
package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"bilancio/internal/core"
)

// Store persists raw receipt bytes under opaque per-user paths.
type Store interface {
	Save(ctx context.Context, userID, filename string, data []byte) (string, error)
	Open(ctx context.Context, path string) ([]byte, error)
	Delete(ctx context.Context, path string) error
}

// FS is a Store over a local directory.
type FS struct {
	root string
}

func NewFS(root string) (*FS, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &FS{root: root}, nil
}

// Save writes data under a fresh uuid, keeping only the extension of
// the uploaded filename.
func (f *FS) Save(_ context.Context, userID, filename string, data []byte) (string, error) {
	if userID == "" {
		return "", core.ErrNotAuthenticated
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		ext = ".bin"
	}
	rel := filepath.Join(userID, uuid.NewString()+ext)

	dir := filepath.Join(f.root, userID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create user dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(f.root, rel), data, 0o644); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	return filepath.ToSlash(rel), nil
}

func (f *FS) Open(_ context.Context, path string) ([]byte, error) {
	abs, err := f.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return data, nil
}

func (f *FS) Delete(_ context.Context, path string) error {
	abs, err := f.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		if os.IsNotExist(err) {
			return core.ErrNotFound
		}
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

// resolve rejects any path that would escape the root.
func (f *FS) resolve(path string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(path))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", core.ErrNotFound
	}
	return filepath.Join(f.root, clean), nil
}
