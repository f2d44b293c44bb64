package facts

import (
	"sort"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/robert-at-pretension-io/dtoc/internal/platdata"
)

// Tables is the relational fact model of one compiled run.
// Each slice is a relation (table) with flat rows.
type Tables struct {
	Drivers  []DriverRow  `json:"drivers"`
	Uclasses []UclassRow  `json:"uclasses"`
	Nodes    []NodeRow    `json:"nodes"`
	Fields   []FieldRow   `json:"fields"`
	Phandles []PhandleRow `json:"phandles"`
}

type DriverRow struct {
	Name        string   `json:"name"`
	UclassID    string   `json:"uclass_id"`
	Compatibles []string `json:"compatibles"`
	Phase       string   `json:"phase"`
	File        string   `json:"file"`
	Line        int      `json:"line"`
	Duplicates  int      `json:"duplicates"`
	Used        bool     `json:"used"`
}

type UclassRow struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	File       string `json:"file"`
	Line       int    `json:"line"`
	Duplicates int    `json:"duplicates"`
}

type NodeRow struct {
	Path       string   `json:"path"`
	VarName    string   `json:"var_name"`
	Index      int      `json:"index"`
	Compatible []string `json:"compatible"`
	Match      string   `json:"match"`
	Driver     string   `json:"driver"`
	Struct     string   `json:"struct"`
	Uclass     string   `json:"uclass"`
	Seq        int      `json:"seq"`
}

type FieldRow struct {
	Struct  string `json:"struct"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Length  int    `json:"length"`
	Phandle bool   `json:"phandle"`
}

type PhandleRow struct {
	Node   string `json:"node"`
	Prop   string `json:"prop"`
	Target string `json:"target"`
	Args   int    `json:"args"`
}

// BuildTables converts a scanned compiler into the relational model.
// Rows are sorted so that two runs over the same inputs compare equal.
func BuildTables(c *platdata.Compiler) Tables {
	tables := emptyTables()
	st := c.Symbols()

	used := make(map[string]bool)
	for _, n := range c.Nodes() {
		row := NodeRow{
			Path:       n.Path,
			VarName:    n.VarName,
			Index:      n.Idx,
			Compatible: append([]string{}, n.Compat...),
			Match:      n.Match.String(),
			Struct:     n.StructName,
			Seq:        n.Seq,
		}
		if n.Driver != nil {
			row.Driver = n.Driver.Name
			row.Uclass = n.Driver.UclassID
			used[n.Driver.Name] = true
		}
		tables.Nodes = append(tables.Nodes, row)

		for _, prop := range sortedKeys(n.Phandles) {
			for _, ref := range n.Phandles[prop].Refs {
				tables.Phandles = append(tables.Phandles, PhandleRow{
					Node:   n.Path,
					Prop:   prop,
					Target: ref.Target.Path,
					Args:   len(ref.Args),
				})
			}
		}
	}

	for _, d := range st.Drivers() {
		compats := []string{}
		for _, cm := range d.Compat {
			compats = append(compats, cm.Name)
		}
		tables.Drivers = append(tables.Drivers, DriverRow{
			Name:        d.Name,
			UclassID:    d.UclassID,
			Compatibles: compats,
			Phase:       d.Phase,
			File:        d.File,
			Line:        d.Line,
			Duplicates:  len(d.Dups),
			Used:        used[d.Name],
		})
	}

	for _, uc := range st.Uclasses() {
		tables.Uclasses = append(tables.Uclasses, UclassRow{
			ID:         uc.ID,
			Name:       uc.Name,
			File:       uc.File,
			Line:       uc.Line,
			Duplicates: len(st.UclassDups(uc.ID)),
		})
	}

	structs := c.Structs()
	for _, name := range sortedKeys(structs) {
		s := structs[name]
		for _, fname := range s.FieldNames() {
			f := s.Fields[fname]
			row := FieldRow{Struct: name, Name: fname, Type: f.Prop.Type.String()}
			switch {
			case f.Phandle:
				row.Phandle = true
				row.Length = f.Count
			case f.Prop.List:
				row.Length = f.Prop.Len()
			}
			tables.Fields = append(tables.Fields, row)
		}
	}

	sort.Slice(tables.Nodes, func(i, j int) bool { return tables.Nodes[i].Index < tables.Nodes[j].Index })
	return tables
}

func emptyTables() Tables {
	return Tables{
		Drivers:  []DriverRow{},
		Uclasses: []UclassRow{},
		Nodes:    []NodeRow{},
		Fields:   []FieldRow{},
		Phandles: []PhandleRow{},
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := maps.Keys(m)
	slices.Sort(keys)
	return keys
}
