// Package cache keeps fetched pages on disk so repeated runs against the
// same URL revalidate instead of downloading again.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrMiss reports that no entry is stored for a URL.
var ErrMiss = errors.New("cache miss")

// Entry is the metadata stored next to a page body.
type Entry struct {
	URL          string    `json:"url"`
	ContentType  string    `json:"content_type"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	SavedAt      time.Time `json:"saved_at"`
}

// Validators reports whether the entry can be revalidated with a
// conditional request.
func (e Entry) Validators() bool { return e.ETag != "" || e.LastModified != "" }

// PageCache stores each page as <sha256(url)>.json plus <sha256(url)>.html.
type PageCache struct {
	Dir string
	// MaxAge makes older entries invisible to Lookup. Zero keeps them forever.
	MaxAge time.Duration
	// StrictPerms writes the directory as 0700 and files as 0600.
	StrictPerms bool
	// Now defaults to time.Now.
	Now func() time.Time
}

func (c *PageCache) now() time.Time {
	if c.Now != nil {
		return c.Now().UTC()
	}
	return time.Now().UTC()
}

func (c *PageCache) dirMode() fs.FileMode {
	if c.StrictPerms {
		return 0o700
	}
	return 0o755
}

func (c *PageCache) fileMode() fs.FileMode {
	if c.StrictPerms {
		return 0o600
	}
	return 0o644
}

func (c *PageCache) ensureDir() error {
	if c == nil || strings.TrimSpace(c.Dir) == "" {
		return errors.New("cache dir not configured")
	}
	if err := os.MkdirAll(c.Dir, c.dirMode()); err != nil {
		return err
	}
	if c.StrictPerms {
		return os.Chmod(c.Dir, 0o700)
	}
	return nil
}

// Key returns the file stem used for url.
func Key(url string) string {
	h := sha256.Sum256([]byte(url))
	return hex.EncodeToString(h[:])
}

func (c *PageCache) metaPath(key string) string { return filepath.Join(c.Dir, key+".json") }
func (c *PageCache) bodyPath(key string) string { return filepath.Join(c.Dir, key+".html") }

// Lookup returns the stored entry and body for url. Expired or partial
// entries are reported as ErrMiss.
func (c *PageCache) Lookup(_ context.Context, url string) (Entry, []byte, error) {
	if err := c.ensureDir(); err != nil {
		return Entry{}, nil, err
	}
	key := Key(url)
	raw, err := os.ReadFile(c.metaPath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return Entry{}, nil, ErrMiss
	}
	if err != nil {
		return Entry{}, nil, err
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, nil, fmt.Errorf("decode %s: %w", key, err)
	}
	if c.MaxAge > 0 && c.now().Sub(e.SavedAt) > c.MaxAge {
		return Entry{}, nil, ErrMiss
	}
	body, err := os.ReadFile(c.bodyPath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return Entry{}, nil, ErrMiss
	}
	if err != nil {
		return Entry{}, nil, err
	}
	return e, body, nil
}

// Save writes body first and then the metadata through a rename, so a
// reader never sees metadata without its body.
func (c *PageCache) Save(_ context.Context, e Entry, body []byte) error {
	if err := c.ensureDir(); err != nil {
		return err
	}
	key := Key(e.URL)
	if err := os.WriteFile(c.bodyPath(key), body, c.fileMode()); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	e.SavedAt = c.now()
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}
	tmp := c.metaPath(key) + ".tmp"
	if err := os.WriteFile(tmp, raw, c.fileMode()); err != nil {
		return fmt.Errorf("write meta: %w", err)
	}
	return os.Rename(tmp, c.metaPath(key))
}

// Touch refreshes SavedAt after a 304 revalidation.
func (c *PageCache) Touch(ctx context.Context, url string) error {
	key := Key(url)
	raw, err := os.ReadFile(c.metaPath(key))
	if err != nil {
		return err
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return err
	}
	body, err := os.ReadFile(c.bodyPath(key))
	if err != nil {
		return err
	}
	return c.Save(ctx, e, body)
}

// Clear removes every entry and leaves an empty directory behind.
func Clear(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return errors.New("empty dir")
	}
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

// Purge deletes entries saved more than maxAge before now and returns how
// many were removed. Unreadable metadata is left alone.
func Purge(dir string, maxAge time.Duration, now time.Time) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, d := range entries {
		name := d.Name()
		if d.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		path := filepath.Join(dir, name)
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var e Entry
		if json.Unmarshal(raw, &e) != nil {
			continue
		}
		if now.Sub(e.SavedAt) <= maxAge {
			continue
		}
		removed++
		_ = os.Remove(path)
		_ = os.Remove(strings.TrimSuffix(path, ".json") + ".html")
	}
	return removed, nil
}
