package facts

import (
	"fmt"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"

	"github.com/robert-at-pretension-io/dtoc/internal/indexer"
)

const snapshotVersion = 1

type snapshot struct {
	Version int    `json:"version"`
	Tables  Tables `json:"tables"`
}

func snapshotPath(dir string) string {
	return filepath.Join(dir, "fact_tables.json")
}

// LoadSnapshot reads the tables saved by the previous run. The bool is
// false when there is none or it was written by another version.
func LoadSnapshot(dir string) (Tables, bool, error) {
	data, err := os.ReadFile(snapshotPath(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return Tables{}, false, nil
		}
		return Tables{}, false, fmt.Errorf("read fact tables snapshot: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Tables{}, false, fmt.Errorf("parse fact tables snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return Tables{}, false, nil
	}
	return snap.Tables, true, nil
}

// SaveSnapshot stores tables for the next run's delta
func SaveSnapshot(dir string, tables Tables) error {
	data, err := json.MarshalIndent(snapshot{Version: snapshotVersion, Tables: tables}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fact tables snapshot: %w", err)
	}
	if err := indexer.WriteFileAtomic(snapshotPath(dir), data); err != nil {
		return fmt.Errorf("write fact tables snapshot: %w", err)
	}
	return nil
}
