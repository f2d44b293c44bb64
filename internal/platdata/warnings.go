package platdata

import "fmt"

// Warnings collects non-fatal diagnostics in first-seen order, dropping
// repeats. They are reported once the run has succeeded.
type Warnings struct {
	seen map[string]bool
	list []string
}

// Addf formats and records a warning unless the same text was seen before
func (w *Warnings) Addf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if w.seen == nil {
		w.seen = make(map[string]bool)
	}
	if w.seen[msg] {
		return
	}
	w.seen[msg] = true
	w.list = append(w.list, msg)
}

// List returns the collected messages
func (w *Warnings) List() []string {
	return append([]string(nil), w.list...)
}

// Len is the number of distinct warnings
func (w *Warnings) Len() int {
	return len(w.list)
}
