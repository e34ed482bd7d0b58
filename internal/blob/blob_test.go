package blob

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"bilancio/internal/core"
)

func TestFSSaveAndOpen(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("new fs: %v", err)
	}

	data := []byte("receipt bytes")
	path, err := fs.Save(ctx, "user-1", "scan.JPG", data)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.HasPrefix(path, "user-1/") || !strings.HasSuffix(path, ".jpg") {
		t.Fatalf("unexpected path %q", path)
	}

	got, err := fs.Open(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("round trip mismatch: %q", got)
	}

	if err := fs.Delete(ctx, path); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := fs.Open(ctx, path); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestFSExtensionFallback(t *testing.T) {
	ctx := context.Background()
	fs, _ := NewFS(t.TempDir())

	path, err := fs.Save(ctx, "user-1", "noext", []byte("x"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.HasSuffix(path, ".bin") {
		t.Fatalf("expected .bin fallback, got %q", path)
	}
}

func TestFSRejectsEscapingPaths(t *testing.T) {
	ctx := context.Background()
	fs, _ := NewFS(t.TempDir())

	for _, path := range []string{"../etc/passwd", "..", "/etc/passwd", "."} {
		if _, err := fs.Open(ctx, path); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("path %q: expected ErrNotFound, got %v", path, err)
		}
	}
}

func TestSigner(t *testing.T) {
	s := NewSigner([]byte("secret"))

	exp, sig := s.Sign("user-1/abc.jpg", time.Hour)
	if err := s.Check("user-1/abc.jpg", exp, sig); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}

	if err := s.Check("user-2/abc.jpg", exp, sig); !errors.Is(err, core.ErrInvalidToken) {
		t.Fatal("signature must not transfer to another path")
	}
	if err := s.Check("user-1/abc.jpg", exp+60, sig); !errors.Is(err, core.ErrInvalidToken) {
		t.Fatal("expiry must be covered by the signature")
	}

	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if err := s.Check("user-1/abc.jpg", exp, sig); !errors.Is(err, core.ErrInvalidToken) {
		t.Fatal("expired signature must be rejected")
	}
}
