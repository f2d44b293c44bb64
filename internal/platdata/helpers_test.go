package platdata

import (
	"errors"
	"strings"
	"testing"

	"github.com/u-root/u-root/pkg/dt"

	"github.com/robert-at-pretension-io/dtoc/internal/devicetree"
	"github.com/robert-at-pretension-io/dtoc/internal/devicetree/dttest"
	"github.com/robert-at-pretension-io/dtoc/internal/extractor"
	"github.com/robert-at-pretension-io/dtoc/internal/indexer"
)

func driver(name, uclassID string, compats ...string) extractor.Driver {
	d := extractor.Driver{Name: name, UclassID: uclassID, File: "drivers/" + name + ".c", Line: 10}
	for _, c := range compats {
		d.Compat = append(d.Compat, extractor.Compatible{Name: c})
	}
	return d
}

func uclass(name, id string) extractor.Uclass {
	return extractor.Uclass{Name: name, ID: id, File: "uclass.c", Line: 1}
}

// corpus is a small driver tree shared by most tests
func corpus() []extractor.FileFacts {
	return []extractor.FileFacts{
		{File: "drivers/core.c",
			Drivers:  []extractor.Driver{driver(extractor.RootDriver, "UCLASS_ROOT")},
			Uclasses: []extractor.Uclass{uclass("root", "UCLASS_ROOT"), uclass("misc", "UCLASS_MISC")},
		},
		{File: "drivers/clk.c",
			Drivers:  []extractor.Driver{driver("clk", "UCLASS_CLK", "v,clk")},
			Uclasses: []extractor.Uclass{uclass("clk", "UCLASS_CLK")},
		},
		{File: "drivers/foo.c",
			Drivers: []extractor.Driver{driver("foo", "UCLASS_MISC", "v,foo")},
		},
		{File: "drivers/serial.c",
			Drivers:  []extractor.Driver{driver("ns16550_serial", "UCLASS_SERIAL", "ns16550")},
			Uclasses: []extractor.Uclass{uclass("serial", "UCLASS_SERIAL")},
		},
	}
}

func symbolsFrom(facts []extractor.FileFacts) *indexer.SymbolTable {
	st := indexer.NewSymbolTable("")
	for _, f := range facts {
		st.AddFacts(f)
	}
	st.Resolve()
	return st
}

func compat(c string) dt.Property {
	return dttest.P("compatible", dttest.Str(c))
}

func compile(t *testing.T, root *dt.Node, st *indexer.SymbolTable, opts Options, cmds ...Command) (*Compiler, string, error) {
	t.Helper()
	tree, err := devicetree.FromNode(root)
	if err != nil {
		t.Fatalf("FromNode: %v", err)
	}
	c := New(tree, st, opts)
	out, err := c.Generate(cmds)
	return c, string(out), err
}

func mustCompile(t *testing.T, root *dt.Node, st *indexer.SymbolTable, opts Options, cmds ...Command) (*Compiler, string) {
	t.Helper()
	c, out, err := compile(t, root, st, opts, cmds...)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return c, out
}

func mustContain(t *testing.T, out string, want ...string) {
	t.Helper()
	for _, w := range want {
		if !strings.Contains(out, w) {
			t.Errorf("output missing %q\n--- output ---\n%s", w, out)
		}
	}
}

// block returns the text from start up to and including the next "};"
func block(t *testing.T, out, start string) string {
	t.Helper()
	i := strings.Index(out, start)
	if i < 0 {
		t.Fatalf("output missing %q\n--- output ---\n%s", start, out)
	}
	j := strings.Index(out[i:], "};\n")
	if j < 0 {
		t.Fatalf("unterminated block %q", start)
	}
	return out[i : i+j+3]
}

func wantResolution(t *testing.T, err error, node string) {
	t.Helper()
	if !errors.Is(err, ErrResolution) {
		t.Fatalf("err = %v, want resolution error", err)
	}
	var re *ResolutionError
	if !errors.As(err, &re) {
		t.Fatalf("err = %T", err)
	}
	if node != "" && re.Node != node {
		t.Fatalf("error names node %s, want %s", re.Node, node)
	}
}
