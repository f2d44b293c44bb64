package indexer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/robert-at-pretension-io/dtoc/internal/config"
	"github.com/robert-at-pretension-io/dtoc/internal/extractor"
)

func cacheEnabled(cfg *config.Config) bool {
	if cfg == nil {
		return false
	}
	if cfg.Analysis.Cache.Enabled == nil {
		return false
	}
	return *cfg.Analysis.Cache.Enabled
}

// CacheDir resolves the configured cache directory against rootPath
func CacheDir(rootPath string, cfg *config.Config) string {
	baseDir := rootPath
	if info, err := os.Stat(rootPath); err == nil && !info.IsDir() {
		baseDir = filepath.Dir(rootPath)
	}
	cacheDir := cfg.Analysis.Cache.Dir
	if cacheDir == "" {
		cacheDir = ".dtoc_cache"
	}
	if !filepath.IsAbs(cacheDir) {
		cacheDir = filepath.Join(baseDir, cacheDir)
	}
	return cacheDir
}

// computeCacheVersions keys cached facts to the scanner revision and to
// whether comments were masked, since both change what a file yields
func computeCacheVersions(maskComments bool) cacheVersions {
	parser := "lines"
	if maskComments {
		parser = "tree-sitter-c"
	}
	return cacheVersions{
		parser:    parser,
		extractor: fmt.Sprintf("%s/%d", extractor.Version, cacheIndexVersion),
	}
}
