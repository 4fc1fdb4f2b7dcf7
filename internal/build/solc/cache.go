package solc

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pendergraft/shipyard/internal/build"
)

// Cache stores compiled artifacts on disk, keyed by a digest of the full
// standard JSON input. Since the input embeds source contents, compiler
// settings and the source set, any change to them produces a new key.
type Cache struct {
	dir string
}

// NewCache creates a cache rooted at dir, creating it if needed
func NewCache(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return &Cache{dir: dir}, nil
}

// Key computes the cache key for a standard JSON input
func (c *Cache) Key(input []byte) string {
	sum := sha256.Sum256(input)
	return hex.EncodeToString(sum[:])
}

// Get returns cached artifacts for the input, if present
func (c *Cache) Get(input []byte) ([]*build.Artifact, bool) {
	data, err := os.ReadFile(c.entryPath(c.Key(input)))
	if err != nil {
		return nil, false
	}

	var artifacts []*build.Artifact
	if err := json.Unmarshal(data, &artifacts); err != nil {
		// Corrupt entry, treat as a miss
		return nil, false
	}
	return artifacts, true
}

// Put stores artifacts for the input
func (c *Cache) Put(input []byte, artifacts []*build.Artifact) error {
	data, err := json.Marshal(artifacts)
	if err != nil {
		return err
	}

	// Write-then-rename so a partial write never becomes a valid entry
	tmp, err := os.CreateTemp(c.dir, "entry-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), c.entryPath(c.Key(input)))
}

// Clear removes all cache entries
func (c *Cache) Clear() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cache) entryPath(key string) string {
	return filepath.Join(c.dir, key+".json")
}
