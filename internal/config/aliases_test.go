package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAliases(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aliases.yaml")
	content := "serial0: /soc/serial@1000\n# pinned\ni2c2: \"/soc/i2c@3000\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	aliases, err := LoadAliases(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(aliases) != 2 || aliases["serial0"] != "/soc/serial@1000" || aliases["i2c2"] != "/soc/i2c@3000" {
		t.Fatalf("aliases = %v", aliases)
	}
}

func TestLoadAliasesErrors(t *testing.T) {
	dir := t.TempDir()
	tests := map[string]string{
		"relative.yaml": "serial0: soc/serial@1000\n",
		"list.yaml":     "- serial0\n- /soc\n",
	}
	for name, content := range tests {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadAliases(path); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
	if _, err := LoadAliases(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("missing file: expected error")
	}
}
