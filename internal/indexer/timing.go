package indexer

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

// timingEvent is one JSONL record. Kind is "stage" for a pipeline step,
// "file" for one scanned driver source and "artifact" for one emitted
// C output (struct or platdata).
type timingEvent struct {
	Phase      string  `json:"phase"`
	Kind       string  `json:"kind"`
	File       string  `json:"file,omitempty"`
	Status     string  `json:"status,omitempty"`
	Bytes      int     `json:"bytes,omitempty"`
	StartMS    float64 `json:"start_ms"`
	DurationMS float64 `json:"duration_ms"`
}

// TimingRecorder appends stage, file and artifact timings as JSON lines.
// A nil or disabled recorder records nothing.
type TimingRecorder struct {
	origin time.Time

	mu  sync.Mutex
	out *os.File
	enc *json.Encoder
	err error
}

// NewTimingRecorder writes to path; an empty path keeps the recorder disabled
func NewTimingRecorder(origin time.Time, path string) *TimingRecorder {
	tr := &TimingRecorder{origin: origin}
	if path == "" {
		return tr
	}
	f, err := os.Create(path)
	if err != nil {
		tr.err = err
		return tr
	}
	tr.out = f
	tr.enc = json.NewEncoder(f)
	return tr
}

func (tr *TimingRecorder) Enabled() bool {
	return tr != nil && tr.enc != nil
}

func (tr *TimingRecorder) Err() error {
	if tr == nil {
		return nil
	}
	return tr.err
}

func (tr *TimingRecorder) Close() {
	if tr == nil || tr.out == nil {
		return
	}
	_ = tr.out.Close()
}

func (tr *TimingRecorder) write(ev timingEvent, start time.Time, duration time.Duration) {
	if !tr.Enabled() {
		return
	}
	ev.StartMS = millis(start.Sub(tr.origin))
	ev.DurationMS = millis(duration)
	tr.mu.Lock()
	_ = tr.enc.Encode(ev)
	tr.mu.Unlock()
}

// RecordStage records a pipeline stage
func (tr *TimingRecorder) RecordStage(phase string, start time.Time, duration time.Duration, status string) {
	tr.write(timingEvent{Phase: phase, Kind: "stage", Status: status}, start, duration)
}

// RecordFile records the scan of a single driver source
func (tr *TimingRecorder) RecordFile(phase, file, status string, start time.Time, duration time.Duration) {
	tr.write(timingEvent{Phase: phase, Kind: "file", File: file, Status: status}, start, duration)
}

// RecordArtifact records one rendered C artifact and its size
func (tr *TimingRecorder) RecordArtifact(command string, start time.Time, duration time.Duration, size int, status string) {
	tr.write(timingEvent{Phase: command, Kind: "artifact", Bytes: size, Status: status}, start, duration)
}

func millis(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1e6
}

// ResolveTimingPath picks the JSONL destination. DTOC_TIMING_JSONL wins,
// then the enabled flag writes timing.jsonl in rootPath.
func ResolveTimingPath(rootPath string, enabled bool) string {
	if envPath := os.Getenv("DTOC_TIMING_JSONL"); envPath != "" {
		return envPath
	}
	if !enabled && !envBool("DTOC_TIMING") {
		return ""
	}
	if rootPath == "" {
		return "timing.jsonl"
	}
	return filepath.Join(rootPath, "timing.jsonl")
}

func envBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
