package platdata

import (
	"bytes"
	"sort"

	"github.com/robert-at-pretension-io/dtoc/internal/extractor"
	"github.com/robert-at-pretension-io/dtoc/internal/indexer"
)

// prepare binds every node to its driver and uclass and, in
// instantiated mode, assigns sequence numbers. Every node becomes a C
// symbol here, so two nodes with the same C name are rejected. It runs
// once, before any table is written.
func (c *Compiler) prepare() error {
	if c.prepared {
		return nil
	}
	vars := make(map[string]*Node, len(c.nodes))
	for _, n := range c.nodes {
		if other, dup := vars[n.VarName]; dup {
			return resolutionErr(n.Path, "", "C name %s is also used by %s", n.VarName, other.Path)
		}
		vars[n.VarName] = n
	}

	used := make(map[string]*extractor.Uclass)
	for _, n := range c.nodes {
		if n.Driver == nil {
			return resolutionErr(n.Path, "compatible", "cannot find driver %s", n.StructName)
		}
		uc, ok := c.symbols.Uclass(n.Driver.UclassID)
		if !ok {
			return resolutionErr(n.Path, "", "cannot find uclass %s for driver %s", n.Driver.UclassID, n.Driver.Name)
		}
		n.Uclass = uc
		used[uc.ID] = uc
	}

	c.uclasses = c.uclasses[:0]
	for _, uc := range used {
		c.uclasses = append(c.uclasses, uc)
	}
	sort.Slice(c.uclasses, func(i, j int) bool { return c.uclasses[i].ID < c.uclasses[j].ID })

	if c.opts.Instantiate {
		if err := c.checkParents(); err != nil {
			return err
		}
		if err := c.assignSeqs(); err != nil {
			return err
		}
	}
	c.prepared = true
	return nil
}

// emitOrder returns nodes in index order, except that each node's
// phandle targets are placed before it
func (c *Compiler) emitOrder() []*Node {
	done := make(map[*Node]bool, len(c.nodes))
	order := make([]*Node, 0, len(c.nodes))
	var visit func(n *Node)
	visit = func(n *Node) {
		if done[n] {
			return
		}
		done[n] = true
		for _, d := range n.Deps {
			visit(d)
		}
		order = append(order, n)
	}
	for _, n := range c.nodes {
		visit(n)
	}
	return order
}

// generateTables writes the value tables and device records
func (c *Compiler) generateTables(buf *bytes.Buffer) error {
	if err := c.prepare(); err != nil {
		return err
	}
	e := emitter{buf}
	e.header(tablesComment)
	e.out("/* Allow use of U_BOOT_DEVICE() in this file */\n")
	e.out("#define DT_PLATDATA_C\n")
	e.out("\n")
	e.out("#include <common.h>\n")
	e.out("#include <dm.h>\n")
	e.out("#include <dt-structs.h>\n")
	e.out("\n")

	for _, n := range c.nodes {
		e.outf("U_BOOT_DEVICE_DECL(%s);\n", n.VarName)
	}
	e.out("\n")

	includes := make(map[string]bool)
	if c.opts.Instantiate {
		c.outputUclasses(e)
	}
	for _, n := range c.emitOrder() {
		c.outputNode(e, n, includes)
	}

	e.out("void dm_populate_phandle_data(void) {\n")
	e.out("}\n")
	return nil
}

func (c *Compiler) outputNode(e emitter, n *Node, includes map[string]bool) {
	parentDriver := "None"
	if n.Parent != nil {
		parentDriver = n.Parent.Driver.Name
	}
	e.out("/*\n")
	e.outf(" * Node %s index %d\n", n.Path, n.Idx)
	e.outf(" * driver %s parent %s\n", n.Driver.Name, parentDriver)
	e.out(" */\n")

	if !c.opts.Instantiate || n.Driver.Plat.IsZero() {
		c.outputValues(e, n)
	}
	if c.opts.Instantiate {
		c.declareDeviceInst(e, n, includes)
		return
	}
	c.declareDevice(e, n)
}

func (c *Compiler) outputValues(e emitter, n *Node) {
	e.outf("static struct %s%s %s%s = {\n", structPrefix, n.StructName, valuePrefix, n.VarName)
	for _, name := range n.propNames(c) {
		c.member(e, n, name, 1)
	}
	e.out("};\n")
}

func (c *Compiler) declareDevice(e emitter, n *Node) {
	e.outf("U_BOOT_DEVICE(%s) = {\n", n.VarName)
	e.outf("\t.name\t\t= \"%s\",\n", n.StructName)
	e.outf("\t.platdata\t= &%s%s,\n", valuePrefix, n.VarName)
	e.outf("\t.platdata_size\t= sizeof(%s%s),\n", valuePrefix, n.VarName)
	parentIdx := -1
	if n.Parent != nil {
		parentIdx = n.Parent.Idx
	}
	e.outf("\t.parent_idx\t= %d,\n", parentIdx)
	e.out("};\n")
	e.out("\n")
}

// driverData returns the .data of the first compatible string of n that
// the driver's table gives one
func driverData(n *Node, d *indexer.Driver) (string, bool) {
	for _, compat := range n.Compat {
		if data, ok := d.Data(compat); ok {
			return data, true
		}
	}
	return "", false
}
