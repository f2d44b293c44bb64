package indexer

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/robert-at-pretension-io/dtoc/internal/config"
	"github.com/robert-at-pretension-io/dtoc/internal/extractor"
)

// Indexer scans driver sources and builds the symbol table the
// devicetree compiler resolves nodes against.
type Indexer struct {
	// Configuration loaded from dtoc.json
	Config *config.Config

	// Log receives progress and cache diagnostics
	Log logrus.FieldLogger

	// Symbols is populated by Run
	Symbols *SymbolTable

	// Facts are the per-file scan results in sorted file order
	Facts []extractor.FileFacts

	// Timing receives stage and per-file events; nil disables timing
	Timing *TimingRecorder

	// Optional extractor factory (for tests)
	extractorFactory func() FactsExtractor

	// Optional cache version override (for tests)
	cacheVersionOverride *cacheVersions
}

// FactsExtractor abstracts extraction for caching tests
type FactsExtractor interface {
	Extract(path string) (extractor.FileFacts, error)
}

type cacheVersions struct {
	parser    string
	extractor string
}

// New creates a new Indexer with default configuration
func New() *Indexer {
	return NewWithConfig(config.DefaultConfig())
}

// NewWithConfig creates a new Indexer with the given configuration
func NewWithConfig(cfg *config.Config) *Indexer {
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	return &Indexer{
		Config:  cfg,
		Log:     log,
		Symbols: NewSymbolTable(cfg.Phase),
	}
}

func (idx *Indexer) newExtractor() FactsExtractor {
	if idx.extractorFactory != nil {
		return idx.extractorFactory()
	}
	if idx.Config.CommentMasking() {
		return extractor.NewC()
	}
	return extractor.New()
}

func (idx *Indexer) cacheVersions() cacheVersions {
	if idx.cacheVersionOverride != nil {
		return *idx.cacheVersionOverride
	}
	return computeCacheVersions(idx.Config.CommentMasking())
}

type scanResult struct {
	facts  extractor.FileFacts
	status string
	err    error
}

// Run resolves the source list under rootPath, scans every file and
// merges the results into a fresh symbol table. Files are scanned in
// parallel but merged in sorted order, so the table does not depend on
// scheduling.
func (idx *Indexer) Run(rootPath string) error {
	timing := idx.Timing
	runStart := time.Now()

	if idx.Config == nil {
		cfg, err := config.Load(rootPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		idx.Config = cfg
	}
	idx.Symbols = NewSymbolTable(idx.Config.Phase)
	idx.Facts = nil

	// 1. Resolve source files
	stepStart := time.Now()
	files, err := idx.Config.ResolveSources(rootPath)
	if err != nil {
		return fmt.Errorf("resolve sources: %w", err)
	}
	idx.Log.WithField("files", len(files)).Debug("driver sources resolved")
	timing.RecordStage("resolve", stepStart, time.Since(stepStart), "")

	// 2. Parallel extraction (with optional cache)
	stepStart = time.Now()
	var cache *factsCache
	if cacheEnabled(idx.Config) {
		versions := idx.cacheVersions()
		cache = newFactsCache(CacheDir(rootPath, idx.Config), versions.parser, versions.extractor)
		if err := cache.Load(); err != nil {
			idx.Log.WithError(err).Warn("scan cache disabled")
			cache = nil
		}
	}

	workers := idx.Config.Analysis.MaxParallelFiles
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(files) {
		workers = len(files)
	}

	results := make([]scanResult, len(files))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ext := idx.newExtractor()
			for i := range jobs {
				fileStart := time.Now()
				results[i] = idx.scanFile(ext, cache, files[i])
				timing.RecordFile("extract", files[i], results[i].status, fileStart, time.Since(fileStart))
			}
		}()
	}
	for i := range files {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	var errs []error
	for _, r := range results {
		if r.err != nil {
			errs = append(errs, r.err)
		}
	}
	if len(errs) > 0 {
		timing.RecordStage("extract", stepStart, time.Since(stepStart), "error")
		return errors.Join(errs...)
	}
	timing.RecordStage("extract", stepStart, time.Since(stepStart), "")

	// 3. Merge into the symbol table
	stepStart = time.Now()
	for _, r := range results {
		idx.Facts = append(idx.Facts, r.facts)
		idx.Symbols.AddFacts(r.facts)
	}
	idx.Symbols.Resolve()
	timing.RecordStage("merge", stepStart, time.Since(stepStart), "")

	if cache != nil {
		if err := cache.Save(); err != nil {
			idx.Log.WithError(err).Warn("scan cache not saved")
		}
	}

	idx.Log.WithFields(logrus.Fields{
		"drivers":  len(idx.Symbols.Drivers()),
		"uclasses": len(idx.Symbols.Uclasses()),
	}).Debug("driver scan complete")
	timing.RecordStage("scan", runStart, time.Since(runStart), "")
	return nil
}

func (idx *Indexer) scanFile(ext FactsExtractor, cache *factsCache, path string) scanResult {
	var contentHash string
	if cache != nil {
		h, err := hashFile(path)
		if err != nil {
			return scanResult{status: "error", err: fmt.Errorf("%s: %w", path, err)}
		}
		contentHash = h
		if facts, ok := cache.Get(path, contentHash); ok {
			return scanResult{facts: facts, status: "cache_hit"}
		}
	}

	facts, err := ext.Extract(path)
	if err != nil {
		return scanResult{status: "error", err: err}
	}
	if cache != nil {
		cache.Put(path, contentHash, facts)
	}
	return scanResult{facts: facts, status: "parsed"}
}
