package facts

import "strings"

// FilterTablesBySubtree returns the rows that concern the devicetree
// subtree rooted at path: its nodes, the phandle edges leaving them, and
// the drivers, uclasses and struct fields those nodes use.
func FilterTablesBySubtree(tables Tables, path string) Tables {
	if path == "" || path == "/" {
		return tables
	}
	prefix := strings.TrimSuffix(path, "/")
	inside := func(p string) bool {
		return p == prefix || strings.HasPrefix(p, prefix+"/")
	}

	out := emptyTables()
	drivers := make(map[string]bool)
	uclasses := make(map[string]bool)
	structs := make(map[string]bool)

	for _, row := range tables.Nodes {
		if !inside(row.Path) {
			continue
		}
		out.Nodes = append(out.Nodes, row)
		drivers[row.Driver] = true
		uclasses[row.Uclass] = true
		structs[row.Struct] = true
	}
	for _, row := range tables.Phandles {
		if inside(row.Node) {
			out.Phandles = append(out.Phandles, row)
		}
	}
	for _, row := range tables.Drivers {
		if drivers[row.Name] {
			out.Drivers = append(out.Drivers, row)
		}
	}
	for _, row := range tables.Uclasses {
		if uclasses[row.ID] {
			out.Uclasses = append(out.Uclasses, row)
		}
	}
	for _, row := range tables.Fields {
		if structs[row.Struct] {
			out.Fields = append(out.Fields, row)
		}
	}
	return out
}
