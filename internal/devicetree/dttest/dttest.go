// Package dttest builds small in-memory devicetrees for tests.
package dttest

import (
	"encoding/binary"

	"github.com/u-root/u-root/pkg/dt"
)

// U32 encodes cells big-endian
func U32(cells ...uint32) []byte {
	var out []byte
	for _, c := range cells {
		out = binary.BigEndian.AppendUint32(out, c)
	}
	return out
}

// Str encodes a NUL-separated string list
func Str(vals ...string) []byte {
	var out []byte
	for _, v := range vals {
		out = append(out, v...)
		out = append(out, 0)
	}
	return out
}

// Prop is a name/value pair for Node
type Prop = dt.Property

// P is shorthand for a property literal
func P(name string, value []byte) dt.Property {
	return dt.Property{Name: name, Value: value}
}

// Bool is an empty property
func Bool(name string) dt.Property {
	return dt.Property{Name: name}
}

// Node builds a node with properties and children
func Node(name string, props []dt.Property, children ...*dt.Node) *dt.Node {
	return &dt.Node{Name: name, Properties: props, Children: children}
}

// Props collects properties for Node
func Props(props ...dt.Property) []dt.Property {
	return props
}
