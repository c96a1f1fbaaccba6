package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Dir is a capture session stored on the local filesystem
type Dir struct {
	root string
}

// NewDir opens a session directory
func NewDir(root string) (*Dir, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to open source directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("failed to open source directory: %s is not a directory", root)
	}
	return &Dir{root: root}, nil
}

// Root returns the session directory
func (d *Dir) Root() string {
	return d.root
}

// List reads the session manifest
func (d *Dir) List(ctx context.Context) (*Manifest, error) {
	data, err := d.Fetch(ctx, ManifestName)
	if err != nil {
		return nil, err
	}
	return decodeManifest(data)
}

// Fetch reads a file below the session directory
func (d *Dir) Fetch(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := d.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}

// Put writes a file below the session directory, creating parents
func (d *Dir) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := d.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", key, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func (d *Dir) path(key string) (string, error) {
	local := filepath.FromSlash(key)
	if !filepath.IsLocal(local) {
		return "", fmt.Errorf("invalid key %q: escapes source directory", key)
	}
	return filepath.Join(d.root, local), nil
}
