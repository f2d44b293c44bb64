package config

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ResolveSources expands the source patterns under rootPath, removes
// excluded files and appends ExtraFiles. The result is sorted and free
// of duplicates so scans are deterministic.
func (c *Config) ResolveSources(rootPath string) ([]string, error) {
	fileSet := make(map[string]bool)
	for _, pattern := range c.Sources {
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(rootPath, pattern)
		}
		matches, err := expandGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("expanding %s: %w", pattern, err)
		}
		for _, match := range matches {
			fileSet[filepath.Clean(match)] = true
		}
	}

	for _, pattern := range c.Exclude {
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(rootPath, pattern)
		}
		matches, err := expandGlob(pattern)
		if err != nil {
			continue
		}
		for _, match := range matches {
			delete(fileSet, filepath.Clean(match))
		}
	}

	for _, extra := range c.ExtraFiles {
		if extra == "" {
			continue
		}
		if !filepath.IsAbs(extra) {
			extra = filepath.Join(rootPath, extra)
		}
		if _, err := os.Stat(extra); err != nil {
			return nil, fmt.Errorf("extra driver file: %w", err)
		}
		fileSet[filepath.Clean(extra)] = true
	}

	files := make([]string, 0, len(fileSet))
	for f := range fileSet {
		files = append(files, f)
	}
	sort.Strings(files)
	return files, nil
}

// expandGlob expands a glob pattern, handling ** for recursive matching
func expandGlob(pattern string) ([]string, error) {
	if strings.Contains(pattern, "**") {
		return expandDoubleStarGlob(pattern)
	}
	return filepath.Glob(pattern)
}

// expandDoubleStarGlob walks everything below the part of the pattern
// before ** and matches the rest against each relative path
func expandDoubleStarGlob(pattern string) ([]string, error) {
	parts := strings.SplitN(pattern, "**", 2)
	baseDir := filepath.Clean(parts[0])
	if baseDir == "" {
		baseDir = "."
	}
	suffix := strings.TrimPrefix(parts[1], string(filepath.Separator))

	var results []string
	err := filepath.WalkDir(baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != baseDir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if suffix == "" {
			results = append(results, path)
			return nil
		}
		rel, err := filepath.Rel(baseDir, path)
		if err != nil {
			return nil
		}
		if matchSuffix(rel, suffix) {
			results = append(results, path)
		}
		return nil
	})
	return results, err
}

// matchSuffix checks if a relative path matches the pattern after **
func matchSuffix(path, pattern string) bool {
	sep := string(filepath.Separator)
	if !strings.Contains(pattern, sep) {
		matched, _ := filepath.Match(pattern, filepath.Base(path))
		return matched
	}
	// Try the pattern against every tail of the path
	segs := strings.Split(path, sep)
	for i := range segs {
		if matched, _ := filepath.Match(pattern, strings.Join(segs[i:], sep)); matched {
			return true
		}
	}
	return false
}
