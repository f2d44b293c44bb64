package config

import (
	"fmt"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"
)

// Config is the top-level configuration for dtoc
type Config struct {
	// Sources is a list of glob patterns for driver C files, relative to the source root
	Sources []string `json:"sources,omitempty"`

	// Exclude is a list of glob patterns removed from Sources
	Exclude []string `json:"exclude,omitempty"`

	// ExtraFiles are scanned in addition to Sources
	ExtraFiles []string `json:"extraFiles,omitempty"`

	// Phase is the build phase ("spl", "tpl", ...) used to pick between
	// drivers declared more than once
	Phase string `json:"phase,omitempty"`

	// IncludeDisabled selects nodes whose status is "disabled"
	IncludeDisabled bool `json:"includeDisabled,omitempty"`

	// WarningDisabled suppresses missing-driver warnings
	WarningDisabled bool `json:"warningDisabled,omitempty"`

	// Instantiate emits fully linked device and uclass instances
	Instantiate bool `json:"instantiate,omitempty"`

	// PhandleProps maps phandle-bearing properties to the cell-count
	// properties of the referenced node, in priority order
	PhandleProps map[string][]string `json:"phandleProps,omitempty"`

	// IgnoreProps are left out of generated structs in addition to the
	// built-in list
	IgnoreProps []string `json:"ignoreProps,omitempty"`

	// MaskComments masks C comments before scanning
	MaskComments *bool `json:"maskComments,omitempty"`

	// Analysis contains scanning options
	Analysis AnalysisConfig `json:"analysis,omitempty"`

	// Timing writes per-stage timings to timing.jsonl in the source root
	Timing bool `json:"timing,omitempty"`
}

// CacheConfig controls the driver scan cache
type CacheConfig struct {
	// Enabled turns on cache usage
	Enabled *bool `json:"enabled,omitempty"`

	// Dir is the cache directory (relative to the source root if not absolute)
	Dir string `json:"dir,omitempty"`
}

// AnalysisConfig contains scanning options
type AnalysisConfig struct {
	// MaxParallelFiles limits concurrent file processing (0 = auto)
	MaxParallelFiles int `json:"maxParallelFiles,omitempty"`

	// Cache controls the driver scan cache
	Cache CacheConfig `json:"cache,omitempty"`
}

const defaultCacheDir = ".dtoc_cache"

// DefaultPhandleProps is the phandle allow-list used when none is configured
func DefaultPhandleProps() map[string][]string {
	return map[string][]string{
		"clocks":   {"#clock-cells"},
		"cd-gpios": {"#gpio-cells"},
	}
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Sources:      []string{"**/*.c"},
		Exclude:      []string{},
		PhandleProps: DefaultPhandleProps(),
		IgnoreProps:  []string{},
		MaskComments: boolPtr(true),
		Analysis: AnalysisConfig{
			MaxParallelFiles: 0, // auto
			Cache: CacheConfig{
				Enabled: boolPtr(true),
				Dir:     defaultCacheDir,
			},
		},
	}
}

func boolPtr(v bool) *bool {
	return &v
}

// Load finds and loads the configuration file
// Search order:
//  1. ./dtoc.json (current working directory)
//  2. ./.dtoc.json (current working directory)
//  3. <rootPath>/dtoc.json (if different from cwd)
//  4. ~/.config/dtoc/config.json
//
// Returns DefaultConfig if no config file is found
func Load(rootPath string) (*Config, error) {
	cwd, _ := os.Getwd()

	searchPaths := []string{
		filepath.Join(cwd, "dtoc.json"),
		filepath.Join(cwd, ".dtoc.json"),
	}

	if info, err := os.Stat(rootPath); err == nil && info.IsDir() {
		absRoot, _ := filepath.Abs(rootPath)
		if absRoot != cwd {
			searchPaths = append(searchPaths,
				filepath.Join(rootPath, "dtoc.json"),
				filepath.Join(rootPath, ".dtoc.json"),
			)
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(home, ".config", "dtoc", "config.json"))
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}

	return DefaultConfig(), nil
}

// LoadFile loads configuration from a specific file
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults fills in missing configuration with defaults
func (c *Config) applyDefaults() {
	if len(c.Sources) == 0 {
		c.Sources = []string{"**/*.c"}
	}
	if c.PhandleProps == nil {
		c.PhandleProps = DefaultPhandleProps()
	}
	if c.MaskComments == nil {
		c.MaskComments = boolPtr(true)
	}
	if c.Analysis.Cache.Dir == "" {
		c.Analysis.Cache.Dir = defaultCacheDir
	}
	if c.Analysis.Cache.Enabled == nil {
		c.Analysis.Cache.Enabled = boolPtr(true)
	}
}

// Save writes the configuration to a file
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// CommentMasking reports whether sources are parsed to mask comments
func (c *Config) CommentMasking() bool {
	return c.MaskComments == nil || *c.MaskComments
}
