package platdata

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"github.com/robert-at-pretension-io/dtoc/internal/extractor"
)

const privSection = `__attribute__ ((section (".priv_data")))`

var aliasPattern = regexp.MustCompile(`^([a-z0-9-]*[a-z])([0-9]+)$`)

func deviceRef(n *Node) string {
	return fmt.Sprintf("U_BOOT_DEVICE_REF(%s)", n.VarName)
}

func uclassRef(uc *extractor.Uclass) string {
	return fmt.Sprintf("DM_REF_UCLASS_INST(%s)", uc.Name)
}

// linkList computes the prev/next pointers a circular doubly-linked list
// holds after its entries have been appended in order to an empty head
type linkList struct {
	head    string
	entries []string
}

func (l linkList) first() string {
	if len(l.entries) == 0 {
		return l.head
	}
	return l.entries[0]
}

func (l linkList) last() string {
	if len(l.entries) == 0 {
		return l.head
	}
	return l.entries[len(l.entries)-1]
}

func (l linkList) prev(i int) string {
	if i == 0 {
		return l.head
	}
	return l.entries[i-1]
}

func (l linkList) next(i int) string {
	if i == len(l.entries)-1 {
		return l.head
	}
	return l.entries[i+1]
}

func listNode(e emitter, member, prev, next string) {
	e.outf("\t.%s\t= {\n", member)
	e.outf("\t\t.prev = %s,\n", prev)
	e.outf("\t\t.next = %s,\n", next)
	e.out("\t},\n")
}

// checkParents rejects nodes whose devicetree parent is a device that
// was not selected
func (c *Compiler) checkParents() error {
	for _, n := range c.nodes {
		if n.IsRoot {
			continue
		}
		dp := n.DT.Parent
		if dp == nil || dp == c.tree.Root {
			continue
		}
		if _, ok := c.byDT[dp]; !ok {
			return resolutionErr(n.Path, "", "requires parent node %s which is not in the valid list", dp.Path)
		}
	}
	return nil
}

// childList is the child_head list of n in index order
func childList(n *Node) linkList {
	l := linkList{head: "&" + deviceRef(n) + "->child_head"}
	for _, ch := range n.Children {
		l.entries = append(l.entries, "&"+deviceRef(ch)+"->sibling_node")
	}
	return l
}

// uclassList is the dev_head list of a uclass, ordered by sequence number
func (c *Compiler) uclassList(uc *extractor.Uclass) linkList {
	l := linkList{head: "&" + uclassRef(uc) + "->dev_head"}
	for _, n := range c.uclassDevs[uc.ID] {
		l.entries = append(l.entries, "&"+deviceRef(n)+"->uclass_node")
	}
	return l
}

// assignSeqs gives every node a sequence number within its uclass.
// Aliases claim numbers first; the remaining nodes take the smallest
// free number in index order.
func (c *Compiler) assignSeqs() error {
	aliases := c.tree.Aliases()
	for name, path := range c.opts.Aliases {
		aliases[name] = path
	}
	names := make([]string, 0, len(aliases))
	for name := range aliases {
		names = append(names, name)
	}
	sort.Strings(names)

	stems := make(map[string]*extractor.Uclass)
	for _, uc := range c.symbols.Uclasses() {
		stems[uc.ShortName()] = uc
		if _, ok := stems[uc.Name]; !ok {
			stems[uc.Name] = uc
		}
	}

	claimed := make(map[string]map[int]*Node)
	claim := func(id string, seq int, n *Node) {
		if claimed[id] == nil {
			claimed[id] = make(map[int]*Node)
		}
		claimed[id][seq] = n
	}

	for _, name := range names {
		m := aliasPattern.FindStringSubmatch(name)
		if m == nil {
			if !c.opts.WarningDisabled {
				c.warnings.Addf("WARNING: cannot decode alias '%s'", name)
			}
			continue
		}
		uc, ok := stems[m[1]]
		if !ok {
			continue
		}
		num, err := strconv.Atoi(m[2])
		if err != nil {
			return resolutionErr("/aliases", name, "invalid alias number: %v", err)
		}
		path := aliases[name]
		n, ok := c.byPath[path]
		if !ok {
			return resolutionErr("/aliases", name, "alias target %s is not a selected node", path)
		}
		if n.Uclass.ID != uc.ID {
			return resolutionErr("/aliases", name, "alias target %s is in %s, not %s", path, n.Uclass.ID, uc.ID)
		}
		if other, dup := claimed[uc.ID][num]; dup && other != n {
			return resolutionErr("/aliases", name, "%s %d is already claimed by %s", uc.ShortName(), num, other.Path)
		}
		claim(uc.ID, num, n)
		if n.Seq < 0 || num < n.Seq {
			n.Seq = num
		}
	}

	for _, n := range c.nodes {
		if n.Seq >= 0 {
			continue
		}
		seq := 0
		for claimed[n.Uclass.ID][seq] != nil {
			seq++
		}
		n.Seq = seq
		claim(n.Uclass.ID, seq, n)
	}

	c.uclassDevs = make(map[string][]*Node)
	for _, n := range c.nodes {
		c.uclassDevs[n.Uclass.ID] = append(c.uclassDevs[n.Uclass.ID], n)
	}
	for _, devs := range c.uclassDevs {
		sort.SliceStable(devs, func(i, j int) bool { return devs[i].Seq < devs[j].Seq })
	}
	return nil
}

func (c *Compiler) outputUclasses(e emitter) {
	e.out("/* uclass declarations */\n")
	for _, uc := range c.uclasses {
		e.outf("DM_DECL_UCLASS_DRIVER(%s);\n", uc.Name)
		e.outf("DM_DECL_UCLASS_INST(%s);\n", uc.Name)
	}
	e.out("\n")

	head := linkList{head: "&uclass_head"}
	for _, uc := range c.uclasses {
		head.entries = append(head.entries, "&"+uclassRef(uc)+"->sibling_node")
	}
	e.out("struct list_head uclass_head = {\n")
	e.outf("\t.prev = %s,\n", head.last())
	e.outf("\t.next = %s,\n", head.first())
	e.out("};\n")
	e.out("\n")

	for i, uc := range c.uclasses {
		priv := ""
		if !uc.Priv.IsZero() {
			priv = fmt.Sprintf("_%s_uclass_priv", uc.Name)
			e.outf("u8 %s[sizeof(%s)]\n\t%s;\n", priv, uc.Priv.Type, privSection)
			e.out("\n")
		}
		e.outf("UCLASS_INST(%s) = {\n", uc.Name)
		if priv != "" {
			e.outf("\t.priv\t\t= %s,\n", priv)
		}
		e.outf("\t.uc_drv\t\t= DM_REF_UCLASS_DRIVER(%s),\n", uc.Name)
		listNode(e, "sibling_node", head.prev(i), head.next(i))
		devs := c.uclassList(uc)
		e.out("\t.dev_head\t= {\n")
		e.outf("\t\t.prev = %s,\n", devs.last())
		e.outf("\t\t.next = %s,\n", devs.first())
		e.out("\t},\n")
		e.out("};\n")
		e.out("\n")
	}
}

// storage is one auto-allocated block of a device
type storage struct {
	field string
	sym   string
}

func (c *Compiler) declareDeviceInst(e emitter, n *Node, includes map[string]bool) {
	d := n.Driver
	uc := n.Uclass

	var parentPlat, parentPriv extractor.TypeRef
	if p := n.Parent; p != nil {
		parentPlat, parentPriv = p.Driver.ChildPlat, p.Driver.ChildPriv
		if parentPlat.IsZero() && p.Uclass != nil {
			parentPlat = p.Uclass.PerChildPlat
		}
		if parentPriv.IsZero() && p.Uclass != nil {
			parentPriv = p.Uclass.PerChildPriv
		}
	}

	headers := append([]string(nil), d.Headers...)
	for _, ref := range []extractor.TypeRef{d.Plat, d.Priv, parentPlat, parentPriv, uc.PerDevPlat, uc.PerDevPriv} {
		if ref.Header != "" {
			headers = append(headers, ref.Header)
		}
	}
	for _, h := range headers {
		if !includes[h] {
			includes[h] = true
			e.outf("#include %s\n", h)
		}
	}
	e.outf("DM_DECL_DRIVER(%s);\n", d.Name)
	e.out("\n")

	slots := make(map[string]string)
	alloc := func(field, suffix string, ref extractor.TypeRef) {
		if ref.IsZero() {
			return
		}
		sym := fmt.Sprintf("_%s_%s", n.VarName, suffix)
		e.outf("u8 %s[sizeof(%s)]\n\t%s;\n", sym, ref.Type, privSection)
		slots[field] = sym
	}
	if !d.Plat.IsZero() {
		sym := fmt.Sprintf("_%s_plat", n.VarName)
		e.outf("%s %s = {\n", d.Plat.Type, sym)
		e.out("\t.dtplat = {\n")
		for _, name := range n.propNames(c) {
			c.member(e, n, name, 2)
		}
		e.out("\t},\n")
		e.outf("} %s;\n", privSection)
		slots["plat"] = "&" + sym
	}
	alloc("parent_plat", "parent_plat", parentPlat)
	alloc("uc_plat", "uc_plat", uc.PerDevPlat)
	alloc("priv", "priv", d.Priv)
	alloc("parent_priv", "parent_priv", parentPriv)
	alloc("uc_priv", "uc_priv", uc.PerDevPriv)
	if len(slots) > 0 {
		e.out("\n")
	}

	e.outf("U_BOOT_DEVICE_INST(%s) = {\n", n.VarName)
	e.outf("\t.driver\t\t= DM_REF_DRIVER(%s),\n", d.Name)
	e.outf("\t.name\t\t= \"%s\",\n", n.StructName)
	if sym, ok := slots["plat"]; ok {
		e.outf("\t.platdata\t= %s,\n", sym)
	} else {
		e.outf("\t.platdata\t= &%s%s,\n", valuePrefix, n.VarName)
	}
	if sym, ok := slots["parent_plat"]; ok {
		e.outf("\t.parent_platdata = %s,\n", sym)
	}
	if sym, ok := slots["uc_plat"]; ok {
		e.outf("\t.uclass_platdata = %s,\n", sym)
	}
	if data, ok := driverData(n, d); ok {
		e.outf("\t.driver_data\t= %s,\n", data)
	}
	if n.Parent != nil && !n.Parent.IsRoot {
		e.outf("\t.parent\t\t= %s,\n", deviceRef(n.Parent))
	}
	if sym, ok := slots["priv"]; ok {
		e.outf("\t.priv\t\t= %s,\n", sym)
	}
	e.outf("\t.uclass\t= %s,\n", uclassRef(uc))
	if sym, ok := slots["uc_priv"]; ok {
		e.outf("\t.uclass_priv = %s,\n", sym)
	}
	if sym, ok := slots["parent_priv"]; ok {
		e.outf("\t.parent_priv\t= %s,\n", sym)
	}

	devs := c.uclassList(uc)
	pos := indexOf(c.uclassDevs[uc.ID], n)
	listNode(e, "uclass_node", devs.prev(pos), devs.next(pos))

	children := childList(n)
	listNode(e, "child_head", children.last(), children.first())

	if p := n.Parent; p != nil {
		siblings := childList(p)
		pos := indexOf(p.Children, n)
		listNode(e, "sibling_node", siblings.prev(pos), siblings.next(pos))
	}
	e.outf("\t.seq\t\t= %d,\n", n.Seq)
	e.out("};\n")
	e.out("\n")
}

func indexOf(nodes []*Node, n *Node) int {
	for i, m := range nodes {
		if m == n {
			return i
		}
	}
	return -1
}
