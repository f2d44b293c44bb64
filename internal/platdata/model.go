package platdata

import (
	"sort"

	"github.com/robert-at-pretension-io/dtoc/internal/devicetree"
	"github.com/robert-at-pretension-io/dtoc/internal/extractor"
	"github.com/robert-at-pretension-io/dtoc/internal/indexer"
)

// Node is a selected devicetree node with compiler state attached
type Node struct {
	DT   *devicetree.Node
	Path string

	// VarName is the C identifier used for dtv_ and device symbols
	VarName string

	// Idx is the position in the sorted candidate list
	Idx int

	Compat     []string
	StructName string

	// Aliases are the C forms of compatible strings other than StructName
	Aliases []string

	Match  indexer.MatchKind
	Driver *indexer.Driver
	Uclass *extractor.Uclass

	// Parent is the nearest selected ancestor's node when the devicetree
	// parent itself is selected, nil otherwise
	Parent   *Node
	Children []*Node

	// Props are private copies of the node's properties, widened to the
	// struct schema during Scan
	Props map[string]*devicetree.Prop

	// Phandles holds the resolved references per phandle-bearing property
	Phandles map[string]*PhandleInfo

	// Deps are the selected nodes this node references, by Idx
	Deps []*Node

	// Seq is assigned in instantiated mode, -1 otherwise
	Seq int

	IsRoot bool
	order  int
}

// PhandleRef is one (target, arguments) entry of a phandle list
type PhandleRef struct {
	Target *Node
	Args   []uint64
}

// PhandleInfo describes the references held by one property
type PhandleInfo struct {
	MaxArgs int
	Refs    []PhandleRef
}

// Field is one member of a struct schema
type Field struct {
	Name string

	// Prop carries the unified type, list flag and length
	Prop *devicetree.Prop

	// Phandle fields are emitted as struct phandle_<MaxArgs>_arg arrays
	// of Count entries
	Phandle bool
	MaxArgs int
	Count   int
}

// Struct is the unified layout for one driver name
type Struct struct {
	Name   string
	Fields map[string]*Field
}

// FieldNames returns member names in emission order
func (s *Struct) FieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for name := range s.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// propNames returns the node's emitted property names in sorted order
func (n *Node) propNames(c *Compiler) []string {
	var names []string
	for name := range n.Props {
		if !c.ignored(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
