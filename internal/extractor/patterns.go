package extractor

import (
	"regexp"
	"strings"
)

var (
	// Pattern: U_BOOT_DRIVER(<name>)
	driverPattern = regexp.MustCompile(`\bU_BOOT_DRIVER\(\s*(\w+)\s*\)`)

	// Pattern: UCLASS_DRIVER(<name>)
	uclassPattern = regexp.MustCompile(`\bUCLASS_DRIVER\(\s*(\w+)\s*\)`)

	// Pattern: struct udevice_id <name>[] =
	idTablePattern = regexp.MustCompile(`\bstruct\s+udevice_id\s+(\w+)\s*\[\s*\]\s*=`)

	// Pattern: { .compatible = "<compat>" [, .data = <data>] }
	compatiblePattern = regexp.MustCompile(`\{\s*\.compatible\s*=\s*"([^"]*)"\s*(?:,\s*\.data\s*=\s*([^\s}]+)\s*)?\}`)

	// Pattern: .id = UCLASS_<X>
	uclassIDPattern = regexp.MustCompile(`^\s*\.id\s*=\s*(UCLASS_\w+)`)

	// Pattern: .of_match = <table> or .of_match = of_match_ptr(<table>)
	ofMatchPattern = regexp.MustCompile(`^\s*\.of_match\s*=\s*(?:of_match_ptr\(\s*)?(\w+)`)

	// Pattern: .<member> = sizeof(struct <type>)
	autoSizePattern = regexp.MustCompile(`^\s*\.(\w+)\s*=\s*sizeof\(\s*((?:struct\s+)?\w+)\s*\)`)

	// Pattern: DM_<MACRO>(<args>)
	dmMacroPattern = regexp.MustCompile(`^\s*(DM_[A-Z_]+)\((.*)\)\s*[;,]?\s*$`)

	// Pattern: U_BOOT_DRIVER_ALIAS(<driver>, <alias>) or DM_DRIVER_ALIAS(...)
	driverAliasPattern = regexp.MustCompile(`\b(?:U_BOOT|DM)_DRIVER_ALIAS\(\s*(\w+)\s*,\s*(\w+)\s*\)`)
)

// matchDriver returns [name] if line opens a driver declaration
func matchDriver(line string) []string {
	if m := driverPattern.FindStringSubmatch(line); m != nil {
		return []string{m[1]}
	}
	return nil
}

// matchUclass returns [name] if line opens a uclass declaration
func matchUclass(line string) []string {
	if m := uclassPattern.FindStringSubmatch(line); m != nil {
		return []string{m[1]}
	}
	return nil
}

// matchIDTable returns [name, rest] if line opens a compatible-string table.
// rest is the text after the '=' so single-line tables can be scanned.
func matchIDTable(line string) []string {
	loc := idTablePattern.FindStringSubmatchIndex(line)
	if loc == nil {
		return nil
	}
	return []string{line[loc[2]:loc[3]], line[loc[1]:]}
}

// matchCompatibles returns every compatible entry on the line
func matchCompatibles(line string) []Compatible {
	var out []Compatible
	for _, m := range compatiblePattern.FindAllStringSubmatch(line, -1) {
		out = append(out, Compatible{Name: m[1], Data: m[2]})
	}
	return out
}

// matchUclassID returns [id] for a .id member
func matchUclassID(line string) []string {
	if m := uclassIDPattern.FindStringSubmatch(line); m != nil {
		return []string{m[1]}
	}
	return nil
}

// matchOfMatch returns [table] for an .of_match member
func matchOfMatch(line string) []string {
	if m := ofMatchPattern.FindStringSubmatch(line); m != nil {
		return []string{m[1]}
	}
	return nil
}

// matchAutoSize returns [member, type] for a sizeof() member
func matchAutoSize(line string) []string {
	if m := autoSizePattern.FindStringSubmatch(line); m != nil {
		return []string{m[1], normalizeSpace(m[2])}
	}
	return nil
}

// matchDMMacro returns [macro, args] for a DM_*() declaration line
func matchDMMacro(line string) []string {
	if m := dmMacroPattern.FindStringSubmatch(line); m != nil {
		return []string{m[1], strings.TrimSpace(m[2])}
	}
	return nil
}

// matchDriverAliases returns [driver, alias] pairs found on the line
func matchDriverAliases(line string) [][2]string {
	var out [][2]string
	for _, m := range driverAliasPattern.FindAllStringSubmatch(line, -1) {
		out = append(out, [2]string{m[1], m[2]})
	}
	return out
}

// closesBlock reports whether line ends an initializer block
func closesBlock(line string) bool {
	return strings.Contains(line, "};")
}

// parseTypeRef splits "header, struct x" macro arguments
func parseTypeRef(args string) TypeRef {
	parts := strings.SplitN(args, ",", 2)
	if len(parts) == 2 {
		return TypeRef{
			Header: strings.TrimSpace(parts[0]),
			Type:   normalizeSpace(parts[1]),
		}
	}
	return TypeRef{Type: normalizeSpace(args)}
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
