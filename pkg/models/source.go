package models

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/teslashibe/go-moodcam/internal/httpc"
)

// Source retrieves a model's files and reports where they live.
type Source interface {
	// Load makes every file of spec available locally.
	Load(ctx context.Context, spec Spec) (*Asset, error)
}

// Prober is implemented by sources that can cheaply check that assets exist
// before a full load is attempted.
type Prober interface {
	Probe(ctx context.Context, spec Spec) error
}

// HTTPSource downloads model files from a static URL prefix into a local
// cache directory. Files already in the cache are not downloaded again.
type HTTPSource struct {
	// BaseURL is the prefix each file name is appended to.
	BaseURL string

	// CacheDir is where downloaded files are stored.
	CacheDir string

	// Client is the HTTP client to use (default: httpc.Client).
	Client *http.Client

	// Refresh forces a download even when the file is cached.
	Refresh bool
}

// NewHTTPSource creates an HTTP source with the shared client.
func NewHTTPSource(baseURL, cacheDir string) *HTTPSource {
	return &HTTPSource{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		CacheDir: cacheDir,
		Client:   httpc.Client,
	}
}

// Load downloads every file of spec that is not already cached.
func (s *HTTPSource) Load(ctx context.Context, spec Spec) (*Asset, error) {
	if err := os.MkdirAll(s.CacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	for _, file := range spec.Files {
		dst := filepath.Join(s.CacheDir, filepath.FromSlash(file))
		if !s.Refresh {
			if info, err := os.Stat(dst); err == nil && info.Size() > 0 {
				continue
			}
		}

		data, err := httpc.Fetch(ctx, s.Client, s.url(file))
		if err != nil {
			var se *httpc.StatusError
			if errors.As(err, &se) && se.NotFound() {
				return nil, fmt.Errorf("%w: %s", ErrAssetsMissing, file)
			}
			return nil, fmt.Errorf("fetch %s: %w", file, err)
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("fetch %s: empty body", file)
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
		if err := writeAtomic(dst, data); err != nil {
			return nil, err
		}
	}

	return &Asset{Name: spec.Name, Dir: s.CacheDir, Files: spec.Files}, nil
}

// Probe checks that the first file of spec is reachable.
func (s *HTTPSource) Probe(ctx context.Context, spec Spec) error {
	if len(spec.Files) == 0 {
		return nil
	}
	file := spec.Files[0]
	if _, err := os.Stat(filepath.Join(s.CacheDir, filepath.FromSlash(file))); err == nil && !s.Refresh {
		return nil
	}
	if err := httpc.Probe(ctx, s.Client, s.url(file)); err != nil {
		var se *httpc.StatusError
		if errors.As(err, &se) && se.NotFound() {
			return fmt.Errorf("%w: %s", ErrAssetsMissing, file)
		}
		return err
	}
	return nil
}

func (s *HTTPSource) url(file string) string {
	return strings.TrimRight(s.BaseURL, "/") + "/" + file
}

// writeAtomic writes data to a temp file and renames it into place so a
// partially written shard is never mistaken for a cached one.
func writeAtomic(dst string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".download-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(dst), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filepath.Base(dst), err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(dst), err)
	}
	return nil
}

// DirSource serves models already present in a local directory.
type DirSource struct {
	Dir string
}

// Load verifies that every file of spec exists and is non-empty.
func (s *DirSource) Load(ctx context.Context, spec Spec) (*Asset, error) {
	for _, file := range spec.Files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, err := os.Stat(filepath.Join(s.Dir, filepath.FromSlash(file)))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrAssetsMissing, file)
			}
			return nil, err
		}
		if info.Size() == 0 {
			return nil, fmt.Errorf("model file %s is empty", file)
		}
	}
	return &Asset{Name: spec.Name, Dir: s.Dir, Files: spec.Files}, nil
}

// Probe checks that the first file of spec exists.
func (s *DirSource) Probe(ctx context.Context, spec Spec) error {
	if len(spec.Files) == 0 {
		return nil
	}
	if _, err := os.Stat(filepath.Join(s.Dir, filepath.FromSlash(spec.Files[0]))); err != nil {
		return fmt.Errorf("%w: %s", ErrAssetsMissing, spec.Files[0])
	}
	return nil
}
