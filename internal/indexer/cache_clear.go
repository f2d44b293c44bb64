package indexer

import (
	"fmt"
	"os"

	"github.com/robert-at-pretension-io/dtoc/internal/config"
)

// ClearCache removes the cache directory used for rootPath: scanned driver
// facts plus any snapshots stored next to them. Returns the directory that
// was targeted.
func ClearCache(rootPath string, cfg *config.Config) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("clear cache: config is nil")
	}
	cacheDir := CacheDir(rootPath, cfg)
	if err := os.RemoveAll(cacheDir); err != nil {
		return cacheDir, fmt.Errorf("remove cache: %w", err)
	}
	return cacheDir, nil
}
