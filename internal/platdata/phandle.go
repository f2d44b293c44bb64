package platdata

import (
	"sort"
	"strings"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/robert-at-pretension-io/dtoc/internal/devicetree"
)

// resolvePhandles walks every allow-listed property as packed
// (phandle, args...) groups and records the referenced nodes
func (c *Compiler) resolvePhandles() error {
	for _, n := range c.nodes {
		deps := make(map[*Node]bool)
		for _, name := range n.propNames(c) {
			cellNames, ok := c.opts.PhandleProps[name]
			if !ok {
				continue
			}
			info, err := c.phandleArgs(n, n.Props[name], cellNames)
			if err != nil {
				return err
			}
			n.Phandles[name] = info
			for _, ref := range info.Refs {
				if ref.Target != n {
					deps[ref.Target] = true
				}
			}
		}
		for d := range deps {
			n.Deps = append(n.Deps, d)
		}
		sort.Slice(n.Deps, func(i, j int) bool { return n.Deps[i].Idx < n.Deps[j].Idx })
	}
	return nil
}

func (c *Compiler) phandleArgs(n *Node, prop *devicetree.Prop, cellNames []string) (*PhandleInfo, error) {
	if prop.Type != devicetree.TypeInt {
		return nil, resolutionErr(n.Path, prop.Name, "cannot parse %s phandle list", prop.Type)
	}
	vals := prop.Ints
	info := &PhandleInfo{}
	for i := 0; i < len(vals); {
		phandle := uint32(vals[i])
		if phandle == 0 {
			break
		}
		target, ok := c.tree.Lookup(phandle)
		if !ok {
			return nil, resolutionErr(n.Path, prop.Name, "cannot parse: no node has phandle %#x", phandle)
		}
		cells := -1
		for _, cn := range cellNames {
			if v, ok := target.Cells(cn); ok {
				cells = v
				break
			}
		}
		if cells < 0 {
			return nil, resolutionErr(n.Path, prop.Name, "referenced node %s has no cells property (%s)",
				target.Path, strings.Join(cellNames, ", "))
		}
		if i+1+cells > len(vals) {
			return nil, resolutionErr(n.Path, prop.Name, "phandle %#x needs %d argument cells but only %d remain",
				phandle, cells, len(vals)-i-1)
		}
		sel, ok := c.byDT[target]
		if !ok {
			return nil, resolutionErr(n.Path, prop.Name, "referenced node %s is not selected", target.Path)
		}
		info.Refs = append(info.Refs, PhandleRef{
			Target: sel,
			Args:   append([]uint64(nil), vals[i+1:i+1+cells]...),
		})
		info.MaxArgs = max(info.MaxArgs, cells)
		i += 1 + cells
	}
	return info, nil
}

// reportCycles warns about phandle reference cycles. Emission still
// succeeds: every node is declared before any table is defined.
func (c *Compiler) reportCycles() error {
	g := simple.NewDirectedGraph()
	for _, n := range c.nodes {
		g.AddNode(simple.Node(n.Idx))
	}
	for _, n := range c.nodes {
		for _, d := range n.Deps {
			g.SetEdge(g.NewEdge(simple.Node(d.Idx), simple.Node(n.Idx)))
		}
	}
	_, err := topo.Sort(g)
	if err == nil {
		return nil
	}
	unorderable, ok := err.(topo.Unorderable)
	if !ok {
		return nil
	}
	for _, component := range unorderable {
		c.warnings.Addf("WARNING: phandle reference cycle between %s", c.describeComponent(component))
	}
	return nil
}

func (c *Compiler) describeComponent(component []graph.Node) string {
	idxs := make([]int, 0, len(component))
	for _, gn := range component {
		idxs = append(idxs, int(gn.ID()))
	}
	sort.Ints(idxs)
	paths := make([]string, 0, len(idxs))
	for _, i := range idxs {
		paths = append(paths, c.nodes[i].Path)
	}
	return strings.Join(paths, ", ")
}
