package devicetree

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
)

// Type is the value type of a property. Lower values are wider: any
// type can be widened to a lower one, subject to the conversions in
// convert.
type Type int

const (
	TypeByte Type = iota
	TypeInt64
	TypeInt
	TypeString
	TypeBool
)

func (t Type) String() string {
	switch t {
	case TypeByte:
		return "byte"
	case TypeInt64:
		return "int64"
	case TypeInt:
		return "int"
	case TypeString:
		return "string"
	case TypeBool:
		return "bool"
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// NeedsWidening reports whether a value of type t must change type to
// also hold a value of type other.
func (t Type) NeedsWidening(other Type) bool {
	return t > other
}

// Prop is a typed property value. Exactly one of Bytes, Ints or Strs
// holds the elements, chosen by Type; a bool carries none.
type Prop struct {
	Name string
	Type Type
	List bool

	// Raw is the value as it appeared in the blob
	Raw []byte

	Bytes []byte
	Ints  []uint64
	Strs  []string
}

// NewProp infers the type of a raw property value
func NewProp(name string, data []byte) *Prop {
	p := &Prop{Name: name, Raw: bytes.Clone(data)}
	switch {
	case len(data) == 0:
		p.Type = TypeBool
	case isStringList(data):
		p.Type = TypeString
		p.Strs = strings.Split(string(data[:len(data)-1]), "\x00")
		p.List = len(p.Strs) > 1
	case len(data)%4 != 0:
		p.Type = TypeByte
		p.Bytes = bytes.Clone(data)
		p.List = len(data) > 1
	default:
		p.Type = TypeInt
		for i := 0; i < len(data); i += 4 {
			p.Ints = append(p.Ints, uint64(binary.BigEndian.Uint32(data[i:])))
		}
		p.List = len(p.Ints) > 1
	}
	return p
}

// isStringList reports whether data is one or more non-empty printable
// strings, each NUL-terminated.
func isStringList(data []byte) bool {
	if data[len(data)-1] != 0 {
		return false
	}
	for _, s := range bytes.Split(data[:len(data)-1], []byte{0}) {
		if len(s) == 0 {
			return false
		}
		for _, ch := range s {
			if ch < 32 || ch > 127 {
				return false
			}
		}
	}
	return true
}

// Len returns the number of elements held
func (p *Prop) Len() int {
	switch p.Type {
	case TypeByte:
		return len(p.Bytes)
	case TypeInt, TypeInt64:
		return len(p.Ints)
	case TypeString:
		return len(p.Strs)
	}
	return 1
}

// Clone returns a deep copy
func (p *Prop) Clone() *Prop {
	c := *p
	c.Raw = bytes.Clone(p.Raw)
	c.Bytes = bytes.Clone(p.Bytes)
	if p.Ints != nil {
		c.Ints = append([]uint64(nil), p.Ints...)
	}
	if p.Strs != nil {
		c.Strs = append([]string(nil), p.Strs...)
	}
	return &c
}

func (p *Prop) appendEmpty() {
	switch p.Type {
	case TypeByte:
		p.Bytes = append(p.Bytes, 0)
	case TypeInt, TypeInt64:
		p.Ints = append(p.Ints, 0)
	case TypeString:
		p.Strs = append(p.Strs, "")
	}
}

// Widen adjusts p so that it can also represent other: p takes the wider
// of the two types, becomes a list if other is one, and is padded with
// empty elements up to other's length. Widening is idempotent.
func (p *Prop) Widen(other *Prop) error {
	if p.Type.NeedsWidening(other.Type) {
		if err := p.convert(other.Type); err != nil {
			return err
		}
	}
	o := other
	if o.Type != p.Type {
		o = other.Clone()
		if err := o.convert(p.Type); err != nil {
			return err
		}
	}
	if o.List {
		p.List = true
	}
	if p.List {
		for p.Len() < o.Len() {
			p.appendEmpty()
		}
	}
	return nil
}

// convert changes the representation of p to type to
func (p *Prop) convert(to Type) error {
	if p.Type == to {
		return nil
	}
	switch {
	case p.Type == TypeBool:
		p.Type = to
		p.List = false
		p.appendEmpty()
		return nil
	case p.Type == TypeInt && to == TypeInt64:
		p.Type = TypeInt64
		return nil
	case to == TypeByte:
		var out []byte
		switch p.Type {
		case TypeInt:
			for _, v := range p.Ints {
				out = binary.BigEndian.AppendUint32(out, uint32(v))
			}
		case TypeInt64:
			for _, v := range p.Ints {
				out = binary.BigEndian.AppendUint64(out, v)
			}
		case TypeString:
			for _, s := range p.Strs {
				out = append(out, s...)
				out = append(out, 0)
			}
		}
		p.Type = TypeByte
		p.Bytes = out
		p.Ints = nil
		p.Strs = nil
		p.List = len(out) > 1
		return nil
	}
	return fmt.Errorf("property %q: cannot widen %s to %s", p.Name, p.Type, to)
}

// GroupCells rewrites an int list of address/size tuples, each na+ns
// cells long, into 64-bit (address, size) pairs. A 1/1 layout is left
// unchanged.
func (p *Prop) GroupCells(na, ns int) error {
	if p.Type != TypeInt {
		return fmt.Errorf("property %q is %s, not int", p.Name, p.Type)
	}
	total := na + ns
	if total <= 0 || len(p.Ints)%total != 0 {
		return fmt.Errorf("property %q has %d cells, not a multiple of %d (#address-cells=%d, #size-cells=%d)",
			p.Name, len(p.Ints), total, na, ns)
	}
	if na == 1 && ns == 1 {
		return nil
	}
	var out []uint64
	for i := 0; i < len(p.Ints); i += total {
		out = append(out, JoinCells(p.Ints[i:i+na]), JoinCells(p.Ints[i+na:i+total]))
	}
	p.Type = TypeInt64
	p.Ints = out
	p.List = true
	return nil
}

// JoinCells combines big-endian 32-bit cells into one value
func JoinCells(cells []uint64) uint64 {
	var v uint64
	for _, c := range cells {
		v = v<<32 | (c & 0xffffffff)
	}
	return v
}
