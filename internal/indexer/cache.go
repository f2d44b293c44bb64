package indexer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/robert-at-pretension-io/dtoc/internal/extractor"
)

const cacheIndexVersion = 3

// scanRecord is the cached scan of one driver source, stored inline
// in the index
type scanRecord struct {
	ContentHash string              `json:"content_hash"`
	Scanner     string              `json:"scanner"`
	Facts       extractor.FileFacts `json:"facts"`
}

type scanIndex struct {
	Version int                   `json:"version"`
	Files   map[string]scanRecord `json:"files"`
}

// factsCache keeps per-file driver scan results keyed by content hash.
// Files not looked up during a run are dropped on Save.
type factsCache struct {
	dir     string
	scanner string

	mu    sync.Mutex
	files map[string]scanRecord
	seen  map[string]bool
}

func newFactsCache(dir, parserVersion, extractorVersion string) *factsCache {
	return &factsCache{
		dir:     dir,
		scanner: parserVersion + "+" + extractorVersion,
		files:   make(map[string]scanRecord),
		seen:    make(map[string]bool),
	}
}

func (c *factsCache) indexPath() string {
	return filepath.Join(c.dir, "drivers.json")
}

func (c *factsCache) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("cache mkdir: %w", err)
	}
	data, err := os.ReadFile(c.indexPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read scan cache: %w", err)
	}
	var idx scanIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return fmt.Errorf("parse scan cache: %w", err)
	}
	if idx.Version == cacheIndexVersion && idx.Files != nil {
		c.files = idx.Files
	}
	return nil
}

func (c *factsCache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := scanIndex{Version: cacheIndexVersion, Files: make(map[string]scanRecord, len(c.seen))}
	for path := range c.seen {
		if rec, ok := c.files[path]; ok {
			idx.Files[path] = rec
		}
	}
	return writeJSONAtomic(c.indexPath(), idx)
}

// Get returns the cached facts of filePath if they were produced from the
// same content by the same scanner
func (c *factsCache) Get(filePath, contentHash string) (extractor.FileFacts, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen[filePath] = true
	rec, ok := c.files[filePath]
	if !ok || rec.ContentHash != contentHash || rec.Scanner != c.scanner {
		return extractor.FileFacts{}, false
	}
	return rec.Facts, true
}

func (c *factsCache) Put(filePath, contentHash string, facts extractor.FileFacts) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen[filePath] = true
	c.files[filePath] = scanRecord{ContentHash: contentHash, Scanner: c.scanner, Facts: facts}
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache json: %w", err)
	}
	return WriteFileAtomic(path, data)
}

// WriteFileAtomic writes data to a temporary file next to path and
// renames it into place, so readers never see a partial file
func WriteFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("output dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
