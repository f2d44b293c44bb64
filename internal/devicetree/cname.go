package devicetree

import "strings"

var cNameReplacer = strings.NewReplacer("@", "_at_", "-", "_", ",", "_", ".", "_")

// CName converts a devicetree name into a C identifier fragment
func CName(name string) string {
	return cNameReplacer.Replace(name)
}
