// Package uploads implements local media storage under the forum's uploads
// directory. Files written here are served statically at /uploads/<name> by
// the HTTP layer.
package uploads

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// PublicPrefix is the URL prefix under which stored files are served.
const PublicPrefix = "/uploads"

// Provider stores media files in a flat local directory.
type Provider struct {
	root string
}

// New creates an uploads provider rooted at dir, creating it when absent.
func New(dir string) (*Provider, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve uploads dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads dir: %w", err)
	}
	return &Provider{root: abs}, nil
}

// Root returns the absolute uploads directory path.
func (p *Provider) Root() string {
	return p.root
}

// Put streams reader into the file named by key. On a write error the
// partially written file is removed.
func (p *Provider) Put(_ context.Context, key string, reader io.Reader) error {
	dest, err := p.hostPath(key)
	if err != nil {
		return err
	}
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(f, reader); err != nil {
		_ = f.Close()
		_ = os.Remove(dest)
		return fmt.Errorf("write file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(dest)
		return fmt.Errorf("close file: %w", err)
	}
	return nil
}

// Open returns a reader for the stored file named by key.
func (p *Provider) Open(_ context.Context, key string) (io.ReadCloser, error) {
	dest, err := p.hostPath(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(dest)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

// Delete removes the stored file named by key. A missing file is not an error.
func (p *Provider) Delete(_ context.Context, key string) error {
	dest, err := p.hostPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

// AccessPath returns the public-relative path under which the key is served.
func (p *Provider) AccessPath(key string) string {
	return path.Join(PublicPrefix, key)
}

// hostPath resolves key into an absolute path inside the uploads root.
// Keys are flat file names; separators and traversal are forbidden.
func (p *Provider) hostPath(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("storage key is required")
	}
	if strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", fmt.Errorf("invalid storage key: %s", key)
	}
	joined := filepath.Join(p.root, key)
	if !strings.HasPrefix(joined, p.root+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes uploads root: %s", key)
	}
	return joined, nil
}
