package devicetree

import (
	"encoding/binary"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/u-root/u-root/pkg/dt"
)

// Node is a devicetree node with typed properties
type Node struct {
	Name     string
	Path     string
	Parent   *Node
	Children []*Node

	// Props holds every property of the node keyed by name
	Props map[string]*Prop

	// Phandle is zero when the node carries no phandle property
	Phandle uint32
}

// Tree is a loaded devicetree with a phandle index
type Tree struct {
	Root     *Node
	phandles map[uint32]*Node
	paths    map[string]*Node
}

// Load reads a flattened devicetree blob from disk
func Load(path string) (*Tree, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening devicetree: %w", err)
	}
	defer f.Close()

	fdt, err := dt.ReadFDT(f)
	if err != nil {
		return nil, fmt.Errorf("reading devicetree %s: %w", path, err)
	}
	return FromFDT(fdt)
}

// FromFDT wraps a decoded blob
func FromFDT(fdt *dt.FDT) (*Tree, error) {
	if fdt == nil || fdt.RootNode == nil {
		return nil, fmt.Errorf("devicetree has no root node")
	}
	return FromNode(fdt.RootNode)
}

// FromNode builds a tree from an in-memory dt.Node hierarchy.
// The node passed in becomes the root regardless of its name.
func FromNode(root *dt.Node) (*Tree, error) {
	t := &Tree{
		phandles: make(map[uint32]*Node),
		paths:    make(map[string]*Node),
	}
	r, err := t.wrap(root, nil)
	if err != nil {
		return nil, err
	}
	t.Root = r
	return t, nil
}

func (t *Tree) wrap(src *dt.Node, parent *Node) (*Node, error) {
	n := &Node{
		Name:   src.Name,
		Parent: parent,
		Props:  make(map[string]*Prop, len(src.Properties)),
	}
	if parent == nil {
		n.Name = "/"
		n.Path = "/"
	} else if parent.Path == "/" {
		n.Path = "/" + src.Name
	} else {
		n.Path = parent.Path + "/" + src.Name
	}
	if _, dup := t.paths[n.Path]; dup {
		return nil, fmt.Errorf("duplicate node path %s", n.Path)
	}
	t.paths[n.Path] = n

	for _, p := range src.Properties {
		n.Props[p.Name] = NewProp(p.Name, p.Value)
	}
	for _, name := range []string{"phandle", "linux,phandle"} {
		raw, ok := rawValue(src, name)
		if !ok {
			continue
		}
		if len(raw) != 4 {
			return nil, fmt.Errorf("node %s: %s must be a single cell", n.Path, name)
		}
		ph := binary.BigEndian.Uint32(raw)
		if other, dup := t.phandles[ph]; dup && other != n {
			return nil, fmt.Errorf("phandle %#x used by both %s and %s", ph, other.Path, n.Path)
		}
		t.phandles[ph] = n
		n.Phandle = ph
		break
	}

	for _, child := range src.Children {
		c, err := t.wrap(child, n)
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, c)
	}
	return n, nil
}

func rawValue(n *dt.Node, name string) ([]byte, bool) {
	for _, p := range n.Properties {
		if p.Name == name {
			return p.Value, true
		}
	}
	return nil, false
}

// Lookup returns the node carrying the given phandle
func (t *Tree) Lookup(phandle uint32) (*Node, bool) {
	n, ok := t.phandles[phandle]
	return n, ok
}

// Find returns the node at an absolute path
func (t *Tree) Find(path string) (*Node, bool) {
	if path != "/" {
		path = strings.TrimSuffix(path, "/")
	}
	n, ok := t.paths[path]
	return n, ok
}

// Aliases returns the string properties of the /aliases node
func (t *Tree) Aliases() map[string]string {
	out := make(map[string]string)
	n, ok := t.Find("/aliases")
	if !ok {
		return out
	}
	for name, p := range n.Props {
		if p.Type != TypeString || p.List {
			continue
		}
		out[name] = p.Strs[0]
	}
	return out
}

// Walk visits n and its descendants depth-first, parents before children
func (n *Node) Walk(fn func(*Node) error) error {
	if err := fn(n); err != nil {
		return err
	}
	for _, c := range n.Children {
		if err := c.Walk(fn); err != nil {
			return err
		}
	}
	return nil
}

// Prop returns a property by name
func (n *Node) Prop(name string) (*Prop, bool) {
	p, ok := n.Props[name]
	return p, ok
}

// PropNames returns property names in sorted order
func (n *Node) PropNames() []string {
	names := make([]string, 0, len(n.Props))
	for name := range n.Props {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Compatible returns the compatible strings of the node, if any
func (n *Node) Compatible() []string {
	p, ok := n.Props["compatible"]
	if !ok || p.Type != TypeString {
		return nil
	}
	return append([]string(nil), p.Strs...)
}

// Status returns the status string, or "" when absent
func (n *Node) Status() string {
	p, ok := n.Props["status"]
	if !ok || p.Type != TypeString || len(p.Strs) == 0 {
		return ""
	}
	return p.Strs[0]
}

// Cells reads a single-cell property such as #address-cells
func (n *Node) Cells(name string) (int, bool) {
	p, ok := n.Props[name]
	if !ok || p.Type != TypeInt || len(p.Ints) != 1 {
		return 0, false
	}
	return int(p.Ints[0]), true
}
