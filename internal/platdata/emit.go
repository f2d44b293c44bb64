package platdata

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/robert-at-pretension-io/dtoc/internal/devicetree"
)

const (
	structPrefix = "dtd_"
	valuePrefix  = "dtv_"
)

var cTypeNames = map[devicetree.Type]string{
	devicetree.TypeInt:    "fdt32_t",
	devicetree.TypeByte:   "unsigned char",
	devicetree.TypeString: "const char *",
	devicetree.TypeBool:   "bool",
	devicetree.TypeInt64:  "fdt64_t",
}

const (
	structsComment = "Defines the structs used to hold devicetree data"
	tablesComment  = "Declares the U_BOOT_DEVICE() records and platform data"
)

// emitter accumulates generated C
type emitter struct {
	buf *bytes.Buffer
}

func (e emitter) out(s string) {
	e.buf.WriteString(s)
}

func (e emitter) outf(format string, args ...any) {
	fmt.Fprintf(e.buf, format, args...)
}

func (e emitter) header(comment string) {
	e.outf("/*\n * DO NOT MODIFY\n *\n * %s.\n * This was generated by dtoc from a .dtb (device tree binary) file.\n */\n\n", comment)
}

// tabTo pads s with tabs to reach column n*8, or a single space if it
// is already past that column
func tabTo(n int, s string) string {
	if len(s) >= n*8 {
		return s + " "
	}
	return s + strings.Repeat("\t", n-len(s)/8)
}

// cValue formats element i of p as a C literal
func cValue(p *devicetree.Prop, i int) string {
	switch p.Type {
	case devicetree.TypeInt, devicetree.TypeInt64:
		return fmt.Sprintf("%#x", p.Ints[i])
	case devicetree.TypeByte:
		return fmt.Sprintf("%#x", p.Bytes[i])
	case devicetree.TypeString:
		return `"` + strings.ReplaceAll(p.Strs[i], `\`, `\\`) + `"`
	}
	return "true"
}

// propValue renders a whole member value: a scalar, a brace list of at
// most eight values per line, or a phandle reference list
func propValue(p *devicetree.Prop, info *PhandleInfo, field *Field) string {
	if field != nil && field.Phandle {
		var b strings.Builder
		b.WriteString("{")
		for _, ref := range refsOrNone(info) {
			args := make([]string, len(ref.Args))
			for i, a := range ref.Args {
				args[i] = fmt.Sprintf("%d", a)
			}
			fmt.Fprintf(&b, "\n\t\t\t{%d, {%s}},", ref.Target.Idx, strings.Join(args, ", "))
		}
		b.WriteString("}")
		return b.String()
	}
	if !p.List {
		return cValue(p, 0)
	}
	vals := make([]string, p.Len())
	for i := range vals {
		vals[i] = cValue(p, i)
	}
	var b strings.Builder
	b.WriteString("{")
	for i := 0; i < len(vals); i += 8 {
		if i > 0 {
			b.WriteString(",\n\t\t")
		}
		b.WriteString(strings.Join(vals[i:min(i+8, len(vals))], ", "))
	}
	b.WriteString("}")
	return b.String()
}

func refsOrNone(info *PhandleInfo) []PhandleRef {
	if info == nil {
		return nil
	}
	return info.Refs
}

// member writes one designated initializer line
func (c *Compiler) member(e emitter, n *Node, name string, tabs int) {
	field := c.structs[n.StructName].Fields[name]
	e.outf("%s%s= %s,\n", strings.Repeat("\t", tabs), tabTo(3, "."+devicetree.CName(name)),
		propValue(n.Props[name], n.Phandles[name], field))
}

// generateStructs writes one struct per driver name plus #defines for
// secondary compatible names
func (c *Compiler) generateStructs(buf *bytes.Buffer) error {
	e := emitter{buf}
	e.header(structsComment)
	e.out("#include <stdbool.h>\n")
	e.out("#include <linux/libfdt.h>\n")

	names := make([]string, 0, len(c.structs))
	for name := range c.structs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s := c.structs[name]
		e.outf("struct %s%s {\n", structPrefix, name)
		for _, fname := range s.FieldNames() {
			f := s.Fields[fname]
			member := devicetree.CName(fname)
			if f.Phandle {
				e.outf("\t%s%s[%d];\n", tabTo(2, fmt.Sprintf("struct phandle_%d_arg", f.MaxArgs)), member, f.Count)
				continue
			}
			e.outf("\t%s%s", tabTo(2, cTypeNames[f.Prop.Type]), member)
			if f.Prop.List {
				e.outf("[%d]", f.Prop.Len())
			}
			e.out(";\n")
		}
		e.out("};\n")
	}

	aliases := make([]string, 0, len(c.structAliases))
	for alias := range c.structAliases {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	for _, alias := range aliases {
		e.outf("#define %s%s %s%s\n", structPrefix, alias, structPrefix, c.structAliases[alias])
	}
	return nil
}
