package io

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/OFFIS-RIT/crosscheck/pkg/common"
	"github.com/OFFIS-RIT/crosscheck/pkg/loader"
)

// IOFileLoader loads files directly from the local filesystem with caching.
// A rooted loader only reads files below its root directory.
type IOFileLoader struct {
	// dir is the root as configured, root the same directory with symlinks
	// resolved.
	dir   string
	root  string
	cache *loader.Cache
}

// NewIOFileLoader creates a filesystem loader that reads any path.
func NewIOFileLoader(opts ...loader.Option) *IOFileLoader {
	return &IOFileLoader{
		cache: loader.ApplyOptions(opts...).Cache,
	}
}

// NewRootedIOFileLoader creates a filesystem loader confined to root.
// Relative sources are resolved against root; symlinks pointing out of it
// are rejected.
func NewRootedIOFileLoader(root string, opts ...loader.Option) (*IOFileLoader, error) {
	if strings.TrimSpace(root) == "" {
		return nil, common.InvalidConfiguration("local root must not be empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, common.InvalidConfiguration("local root %q: %v", root, err)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, common.InvalidConfiguration("local root %q: %v", root, err)
	}
	return &IOFileLoader{
		dir:   abs,
		root:  real,
		cache: loader.ApplyOptions(opts...).Cache,
	}, nil
}

// GetFileText reads the file content from the filesystem. Results are cached.
// Both plain paths and file:// URLs are accepted.
func (l *IOFileLoader) GetFileText(ctx context.Context, source string) ([]byte, error) {
	p, err := l.resolve(localPath(loader.CacheKey(source)))
	if err != nil {
		return nil, err
	}

	return l.cache.Load(p, func() ([]byte, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := os.ReadFile(p)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", common.ErrSourceNotFound, source)
			}
			return nil, err
		}
		return result, nil
	})
}

func (l *IOFileLoader) resolve(p string) (string, error) {
	if l.root == "" {
		return p, nil
	}

	if !filepath.IsAbs(p) {
		p = filepath.Join(l.root, p)
	}
	p = filepath.Clean(p)
	if !within(l.root, p) && !within(l.dir, p) {
		return "", fmt.Errorf("%w: %s is outside the local root", common.ErrSourceForbidden, p)
	}

	real, err := filepath.EvalSymlinks(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", common.ErrSourceNotFound, p)
		}
		return "", err
	}
	if !within(l.root, real) {
		return "", fmt.Errorf("%w: %s links outside the local root", common.ErrSourceForbidden, p)
	}
	return real, nil
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func localPath(source string) string {
	if strings.HasPrefix(source, "file://") {
		if u, err := url.Parse(source); err == nil {
			return u.Path
		}
	}
	return source
}
