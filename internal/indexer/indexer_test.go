package indexer

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/robert-at-pretension-io/dtoc/internal/config"
	"github.com/robert-at-pretension-io/dtoc/internal/extractor"
)

type countingExtractor struct {
	inner FactsExtractor
	count *int32
}

func (c *countingExtractor) Extract(path string) (extractor.FileFacts, error) {
	atomic.AddInt32(c.count, 1)
	return c.inner.Extract(path)
}

func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	return path
}

func defaultTestConfig(cacheDir string, cacheEnabled bool) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Analysis.Cache.Dir = cacheDir
	enabled := cacheEnabled
	cfg.Analysis.Cache.Enabled = &enabled
	return cfg
}

const gpioSource = `
static const struct udevice_id sandbox_gpio_ids[] = {
	{ .compatible = "sandbox,gpio" },
	{ }
};

U_BOOT_DRIVER(sandbox_gpio) = {
	.name	= "sandbox_gpio",
	.id	= UCLASS_GPIO,
	.of_match = sandbox_gpio_ids,
};
`

const gpioUclassSource = `
UCLASS_DRIVER(gpio) = {
	.id		= UCLASS_GPIO,
	.name		= "gpio",
};
`

func TestRunBuildsSymbolTable(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "drivers/gpio/sandbox.c", gpioSource)
	writeSource(t, dir, "drivers/gpio/gpio-uclass.c", gpioUclassSource)
	writeSource(t, dir, "drivers/gpio/readme.txt", "U_BOOT_DRIVER(ignored) = {")

	idx := NewWithConfig(defaultTestConfig(filepath.Join(dir, ".cache"), false))
	if err := idx.Run(dir); err != nil {
		t.Fatal(err)
	}
	d, ok := idx.Symbols.Driver("sandbox_gpio")
	if !ok || d.UclassID != "UCLASS_GPIO" {
		t.Fatalf("driver = %+v", d)
	}
	if _, ok := idx.Symbols.Uclass("UCLASS_GPIO"); !ok {
		t.Fatal("uclass missing")
	}
	if len(idx.Facts) != 2 {
		t.Fatalf("facts = %d", len(idx.Facts))
	}
	if filepath.Base(idx.Facts[0].File) != "gpio-uclass.c" {
		t.Fatalf("facts not in sorted order: %s", idx.Facts[0].File)
	}
}

func TestRunParseErrorAborts(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "bad.c", "U_BOOT_DRIVER(x) = {\n\t.id = UCLASS_MISC,\n")

	idx := NewWithConfig(defaultTestConfig(filepath.Join(dir, ".cache"), false))
	err := idx.Run(dir)
	if !errors.Is(err, extractor.ErrParse) {
		t.Fatalf("err = %v", err)
	}
}

func TestRunUsesCache(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "gpio.c", gpioSource)
	cacheDir := filepath.Join(dir, ".cache")

	var count int32
	run := func() *Indexer {
		idx := NewWithConfig(defaultTestConfig(cacheDir, true))
		idx.extractorFactory = func() FactsExtractor {
			return &countingExtractor{inner: extractor.New(), count: &count}
		}
		idx.cacheVersionOverride = &cacheVersions{parser: "test", extractor: "test"}
		if err := idx.Run(dir); err != nil {
			t.Fatal(err)
		}
		return idx
	}

	run()
	if count != 1 {
		t.Fatalf("first run extracted %d files", count)
	}
	idx := run()
	if count != 1 {
		t.Fatalf("second run should hit the cache, extracted %d", count)
	}
	if _, ok := idx.Symbols.Driver("sandbox_gpio"); !ok {
		t.Fatal("cached facts not merged")
	}

	writeSource(t, dir, "gpio.c", gpioSource+"\n")
	run()
	if count != 2 {
		t.Fatalf("changed file should be rescanned, extracted %d", count)
	}

	writeSource(t, dir, "other.c", "/* nothing */\n")
	run()
	if err := os.Remove(filepath.Join(dir, "other.c")); err != nil {
		t.Fatal(err)
	}
	run()
	cache := newFactsCache(cacheDir, "test", "test")
	if err := cache.Load(); err != nil {
		t.Fatal(err)
	}
	if len(cache.files) != 1 {
		t.Fatalf("removed source still cached: %v", cache.files)
	}
}

func TestTimingJSONLWritten(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "gpio.c", gpioSource)
	timingPath := filepath.Join(dir, "timing.jsonl")

	idx := NewWithConfig(defaultTestConfig(filepath.Join(dir, ".cache"), false))
	idx.Timing = NewTimingRecorder(time.Now(), timingPath)
	if err := idx.Run(dir); err != nil {
		t.Fatal(err)
	}
	idx.Timing.RecordArtifact("platdata", time.Now(), time.Millisecond, 42, "")
	idx.Timing.Close()

	raw, err := os.ReadFile(timingPath)
	if err != nil {
		t.Fatalf("read timing file: %v", err)
	}
	var foundExtract, foundFile, foundArtifact bool
	for _, line := range bytes.Split(bytes.TrimSpace(raw), []byte("\n")) {
		var ev timingEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			t.Fatalf("parse timing event: %v", err)
		}
		if ev.Kind == "stage" && ev.Phase == "extract" {
			foundExtract = true
		}
		if ev.Kind == "file" && ev.Status == "parsed" {
			foundFile = true
		}
		if ev.Kind == "artifact" && ev.Phase == "platdata" && ev.Bytes == 42 {
			foundArtifact = true
		}
	}
	if !foundExtract || !foundFile || !foundArtifact {
		t.Fatalf("expected extract stage, file and artifact events in %s", raw)
	}
}

func TestDisabledTimingRecordsNothing(t *testing.T) {
	var nilRecorder *TimingRecorder
	nilRecorder.RecordStage("select", time.Now(), 0, "")
	nilRecorder.Close()

	tr := NewTimingRecorder(time.Now(), "")
	if tr.Enabled() || tr.Err() != nil {
		t.Fatalf("empty path: enabled=%v err=%v", tr.Enabled(), tr.Err())
	}
	tr.RecordArtifact("struct", time.Now(), 0, 10, "")

	bad := NewTimingRecorder(time.Now(), filepath.Join(t.TempDir(), "missing", "t.jsonl"))
	if bad.Enabled() || bad.Err() == nil {
		t.Fatal("unwritable path should disable timing with an error")
	}
}

func TestResolveTimingPath(t *testing.T) {
	t.Setenv("DTOC_TIMING_JSONL", "")
	t.Setenv("DTOC_TIMING", "")
	if got := ResolveTimingPath("/src", false); got != "" {
		t.Fatalf("disabled path = %q", got)
	}
	if got := ResolveTimingPath("/src", true); got != filepath.Join("/src", "timing.jsonl") {
		t.Fatalf("enabled path = %q", got)
	}
	t.Setenv("DTOC_TIMING_JSONL", "/tmp/t.jsonl")
	if got := ResolveTimingPath("/src", false); got != "/tmp/t.jsonl" {
		t.Fatalf("env path = %q", got)
	}
}

func TestClearCache(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "drivers/gpio.c", gpioSource)
	cfg := defaultTestConfig(".cache", true)

	idx := NewWithConfig(cfg)
	if err := idx.Run(root); err != nil {
		t.Fatalf("run: %v", err)
	}
	dir := filepath.Join(root, ".cache")
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("cache dir not written: %v", err)
	}

	got, err := ClearCache(root, cfg)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if got != dir {
		t.Fatalf("cleared %s, want %s", got, dir)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("cache dir still present: %v", err)
	}
	if _, err := ClearCache(root, nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}
