package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadAliases reads an alias override file: a YAML mapping of alias name
// to node path, e.g.
//
//	serial0: /soc/serial@1000
//	i2c2: /soc/i2c@3000
func LoadAliases(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading alias file: %w", err)
	}
	aliases := map[string]string{}
	if err := yaml.Unmarshal(data, &aliases); err != nil {
		return nil, fmt.Errorf("parsing alias file: %w", err)
	}
	for name, target := range aliases {
		if !strings.HasPrefix(target, "/") {
			return nil, fmt.Errorf("alias %s: %q is not an absolute node path", name, target)
		}
	}
	return aliases, nil
}
