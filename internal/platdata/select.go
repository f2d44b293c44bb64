package platdata

import (
	"sort"

	"github.com/robert-at-pretension-io/dtoc/internal/devicetree"
	"github.com/robert-at-pretension-io/dtoc/internal/extractor"
	"github.com/robert-at-pretension-io/dtoc/internal/indexer"
)

func (c *Compiler) candidate(n *devicetree.Node) bool {
	if _, ok := n.Prop("compatible"); !ok {
		return false
	}
	return c.opts.IncludeDisabled || n.Status() != "disabled"
}

// selectNodes collects candidates depth-first and orders them by C name,
// keeping traversal order between equal names
func (c *Compiler) selectNodes() error {
	var nodes []*Node
	add := func(dn *devicetree.Node, root bool) {
		n := &Node{
			DT:       dn,
			Path:     dn.Path,
			VarName:  devicetree.CName(dn.Name),
			Compat:   dn.Compatible(),
			Props:    make(map[string]*devicetree.Prop, len(dn.Props)),
			Phandles: make(map[string]*PhandleInfo),
			Seq:      -1,
			IsRoot:   root,
			order:    len(nodes),
		}
		if root {
			n.VarName = "root"
		}
		for _, name := range dn.PropNames() {
			n.Props[name] = dn.Props[name].Clone()
		}
		nodes = append(nodes, n)
	}

	if c.opts.Instantiate {
		add(c.tree.Root, true)
	}
	_ = c.tree.Root.Walk(func(dn *devicetree.Node) error {
		if dn != c.tree.Root && c.candidate(dn) {
			add(dn, false)
		}
		return nil
	})

	sortKey := func(n *Node) string {
		if n.IsRoot {
			return "/"
		}
		return n.VarName
	}
	sort.SliceStable(nodes, func(i, j int) bool {
		return sortKey(nodes[i]) < sortKey(nodes[j])
	})

	c.nodes = nodes
	c.byPath = make(map[string]*Node, len(nodes))
	c.byDT = make(map[*devicetree.Node]*Node, len(nodes))
	for i, n := range nodes {
		n.Idx = i
		c.byPath[n.Path] = n
		c.byDT[n.DT] = n
	}
	for _, n := range nodes {
		if n.IsRoot || n.DT.Parent == nil {
			continue
		}
		if p, ok := c.byDT[n.DT.Parent]; ok {
			n.Parent = p
			p.Children = append(p.Children, n)
		}
	}
	for _, n := range nodes {
		sort.Slice(n.Children, func(i, j int) bool { return n.Children[i].Idx < n.Children[j].Idx })
	}
	return nil
}

// lookupDrivers binds each node to a struct name and, when one exists,
// a driver. A miss is a warning here; emitting data for it fails later.
func (c *Compiler) lookupDrivers() error {
	c.structAliases = make(map[string]string)
	for _, n := range c.nodes {
		if n.IsRoot {
			n.StructName = extractor.RootDriver
			n.Match = indexer.MatchDriverName
			n.Driver, _ = c.symbols.Driver(extractor.RootDriver)
			continue
		}
		if len(n.Compat) == 0 {
			return resolutionErr(n.Path, "compatible", "compatible is not a string list")
		}
		m := c.symbols.Lookup(n.Compat)
		n.Match = m.Kind
		n.Driver = m.Driver
		n.StructName = m.Name
		n.Aliases = m.Others
		if m.Kind == indexer.MatchNone && !c.opts.WarningDisabled {
			c.warnings.Addf("WARNING: the driver %s was not found in the driver list", m.Name)
		}
		if n.Driver != nil && n.Driver.Ambiguous(c.symbols.Phase) && !c.opts.WarningDisabled {
			c.warnings.Addf("WARNING: driver %s is declared %d times; using %s:%d",
				n.Driver.Name, len(n.Driver.Dups)+1, n.Driver.File, n.Driver.Line)
		}
	}
	return nil
}
