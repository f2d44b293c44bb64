package policy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"

	"github.com/robert-at-pretension-io/dtoc/internal/facts"
	"github.com/robert-at-pretension-io/dtoc/internal/indexer"
)

const cacheVersion = 1

type cacheEntry struct {
	Version   int    `json:"version"`
	InputHash string `json:"input_hash"`
	Result    Result `json:"result"`
}

func cachePath(dir string) string {
	return filepath.Join(dir, "lint_cache.json")
}

func loadCache(dir string) (*cacheEntry, error) {
	data, err := os.ReadFile(cachePath(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("parse lint cache: %w", err)
	}
	return &entry, nil
}

func saveCache(dir string, entry cacheEntry) error {
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal lint cache: %w", err)
	}
	if err := indexer.WriteFileAtomic(cachePath(dir), data); err != nil {
		return fmt.Errorf("write lint cache: %w", err)
	}
	return nil
}

// inputHash keys a result to both the rules and the tables
func (e *Engine) inputHash(tables facts.Tables) (string, error) {
	data, err := json.Marshal(tables)
	if err != nil {
		return "", fmt.Errorf("marshal lint input hash: %w", err)
	}
	sum := sha256.New()
	sum.Write([]byte(e.rulesHash))
	sum.Write([]byte{0})
	sum.Write(data)
	return hex.EncodeToString(sum.Sum(nil)), nil
}

// EvaluateCached returns the stored result when neither the rules nor the
// tables changed since the last run in dir; otherwise it evaluates and
// stores the new result. The bool reports a cache hit.
func (e *Engine) EvaluateCached(ctx context.Context, dir string, tables facts.Tables) (*Result, bool, error) {
	hash, err := e.inputHash(tables)
	if err != nil {
		return nil, false, err
	}
	entry, err := loadCache(dir)
	if err != nil {
		return nil, false, err
	}
	if entry != nil && entry.Version == cacheVersion && entry.InputHash == hash {
		result := entry.Result
		return &result, true, nil
	}

	result, err := e.Evaluate(ctx, tables)
	if err != nil {
		return nil, false, err
	}
	if err := saveCache(dir, cacheEntry{Version: cacheVersion, InputHash: hash, Result: *result}); err != nil {
		return nil, false, err
	}
	return result, false, nil
}

// ClearCache removes the stored lint result in dir
func ClearCache(dir string) error {
	if err := os.Remove(cachePath(dir)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lint cache: %w", err)
	}
	return nil
}
