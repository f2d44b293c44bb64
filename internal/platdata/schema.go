package platdata

import (
	"github.com/robert-at-pretension-io/dtoc/internal/devicetree"
)

// scanReg regroups reg values to 64-bit (address, size) pairs when the
// parent's cell counts are not 1/1. Missing counts default to 2/2.
func (c *Compiler) scanReg() error {
	for _, n := range c.nodes {
		reg, ok := n.Props["reg"]
		if !ok {
			continue
		}
		na, ns := 2, 2
		if parent := n.DT.Parent; parent != nil {
			if v, ok := parent.Cells("#address-cells"); ok {
				na = v
			}
			if v, ok := parent.Cells("#size-cells"); ok {
				ns = v
			}
		}
		if reg.Type != devicetree.TypeInt {
			return resolutionErr(n.Path, "reg", "expected cells, found %s", reg.Type)
		}
		if err := reg.GroupCells(na, ns); err != nil {
			return resolutionErr(n.Path, "reg", "%v", err)
		}
	}
	return nil
}

// unify folds every node's properties into its struct, then widens each
// node's values to the final struct so emission never sees a narrower
// value. Either every node unifies or the run fails.
func (c *Compiler) unify() error {
	structs := make(map[string]*Struct)
	for _, n := range c.nodes {
		s, ok := structs[n.StructName]
		if !ok {
			s = &Struct{Name: n.StructName, Fields: make(map[string]*Field)}
			structs[n.StructName] = s
		}
		for _, name := range n.propNames(c) {
			prop := n.Props[name]
			f, ok := s.Fields[name]
			if !ok {
				s.Fields[name] = &Field{Name: name, Prop: prop.Clone()}
				continue
			}
			if err := f.Prop.Widen(prop); err != nil {
				return &SchemaError{Struct: s.Name, Node: n.Path, Prop: name, Err: err}
			}
		}
		for name, info := range n.Phandles {
			f := s.Fields[name]
			f.Phandle = true
			f.MaxArgs = max(f.MaxArgs, info.MaxArgs)
			f.Count = max(f.Count, len(info.Refs))
		}
	}

	for _, n := range c.nodes {
		s := structs[n.StructName]
		for _, name := range n.propNames(c) {
			if err := n.Props[name].Widen(s.Fields[name].Prop); err != nil {
				return &SchemaError{Struct: s.Name, Node: n.Path, Prop: name, Err: err}
			}
		}
	}

	c.structs = structs
	for _, n := range c.nodes {
		for _, alias := range n.Aliases {
			if _, isStruct := structs[alias]; isStruct {
				continue
			}
			if _, taken := c.structAliases[alias]; !taken {
				c.structAliases[alias] = n.StructName
			}
		}
	}
	return nil
}
