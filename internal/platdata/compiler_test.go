package platdata

import (
	"errors"
	"reflect"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/robert-at-pretension-io/dtoc/internal/devicetree/dttest"
	"github.com/robert-at-pretension-io/dtoc/internal/extractor"
	"github.com/robert-at-pretension-io/dtoc/internal/indexer"
)

func TestParseCommands(t *testing.T) {
	cmds, err := ParseCommands("struct, platdata,struct")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(cmds, []Command{CommandStruct, CommandPlatdata}) {
		t.Fatalf("cmds = %v", cmds)
	}
	for _, bad := range []string{"", "  ", "data", "struct,decl"} {
		if _, err := ParseCommands(bad); !errors.Is(err, ErrCommand) {
			t.Errorf("ParseCommands(%q) err = %v", bad, err)
		}
	}
}

func TestArrayWidening(t *testing.T) {
	root := dttest.Node("", nil,
		dttest.Node("foo@1", dttest.Props(compat("v,foo"), dttest.P("val", dttest.U32(1)))),
		dttest.Node("foo@2", dttest.Props(compat("v,foo"), dttest.P("val", dttest.U32(4, 5, 6)))),
	)
	_, out := mustCompile(t, root, symbolsFrom(corpus()), Options{}, CommandStruct, CommandPlatdata)

	mustContain(t, out,
		"struct dtd_foo {\n\tfdt32_t\t\tval[3];\n};\n",
		"static struct dtd_foo dtv_foo_at_1 = {\n\t.val\t\t\t= {0x1, 0x0, 0x0},\n};\n",
		"static struct dtd_foo dtv_foo_at_2 = {\n\t.val\t\t\t= {0x4, 0x5, 0x6},\n};\n",
		"U_BOOT_DEVICE_DECL(foo_at_1);\nU_BOOT_DEVICE_DECL(foo_at_2);\n\n",
		"U_BOOT_DEVICE(foo_at_1) = {\n\t.name\t\t= \"foo\",\n\t.platdata\t= &dtv_foo_at_1,\n"+
			"\t.platdata_size\t= sizeof(dtv_foo_at_1),\n\t.parent_idx\t= -1,\n};\n",
		"void dm_populate_phandle_data(void) {\n}\n",
	)
	if !strings.HasPrefix(out, "/*\n * DO NOT MODIFY\n") {
		t.Fatalf("missing header:\n%s", out)
	}
}

func TestSchemaConflict(t *testing.T) {
	root := dttest.Node("", nil,
		dttest.Node("foo@1", dttest.Props(compat("v,foo"), dttest.P("label", dttest.Str("abc")))),
		dttest.Node("foo@2", dttest.Props(compat("v,foo"), dttest.P("label", dttest.U32(7)))),
	)
	_, _, err := compile(t, root, symbolsFrom(corpus()), Options{}, CommandStruct)
	if !errors.Is(err, ErrSchema) {
		t.Fatalf("err = %v, want schema error", err)
	}
	var se *SchemaError
	if !errors.As(err, &se) || se.Struct != "foo" || se.Prop != "label" {
		t.Fatalf("err = %#v", err)
	}
}

func TestRegGrouping(t *testing.T) {
	root := dttest.Node("", nil,
		dttest.Node("foo@1000", dttest.Props(compat("v,foo"), dttest.P("reg", dttest.U32(0, 0x1000, 0, 0x100)))),
		dttest.Node("bus", dttest.Props(
			dttest.P("#address-cells", dttest.U32(1)),
			dttest.P("#size-cells", dttest.U32(1)),
		),
			dttest.Node("clk@20", dttest.Props(compat("v,clk"), dttest.P("reg", dttest.U32(0x20, 0x4)))),
		),
	)
	_, out := mustCompile(t, root, symbolsFrom(corpus()), Options{}, CommandStruct, CommandPlatdata)
	mustContain(t, out,
		"struct dtd_foo {\n\tfdt64_t\t\treg[2];\n};\n",
		"struct dtd_clk {\n\tfdt32_t\t\treg[2];\n};\n",
		"\t.reg\t\t\t= {0x1000, 0x100},\n",
		"\t.reg\t\t\t= {0x20, 0x4},\n",
	)
}

func TestPhandleArgsWidened(t *testing.T) {
	root := dttest.Node("", nil,
		dttest.Node("a-dev", dttest.Props(compat("v,foo"), dttest.P("clocks", dttest.U32(1, 5, 2, 6, 7)))),
		dttest.Node("clk1", dttest.Props(compat("v,clk"),
			dttest.P("phandle", dttest.U32(1)), dttest.P("#clock-cells", dttest.U32(1)))),
		dttest.Node("clk2", dttest.Props(compat("v,clk"),
			dttest.P("phandle", dttest.U32(2)), dttest.P("#clock-cells", dttest.U32(2)))),
	)
	c, out := mustCompile(t, root, symbolsFrom(corpus()), Options{}, CommandStruct, CommandPlatdata)

	mustContain(t, out,
		"struct dtd_foo {\n\tstruct phandle_2_arg clocks[2];\n};\n",
		"struct dtd_clk {\n};\n",
		"\t.clocks\t\t\t= {\n\t\t\t{1, {5}},\n\t\t\t{2, {6, 7}},},\n",
	)
	dev := c.Nodes()[0]
	if dev.Path != "/a-dev" || len(dev.Deps) != 2 || dev.Deps[0].Path != "/clk1" {
		t.Fatalf("deps of %s = %v", dev.Path, dev.Deps)
	}

	// referenced nodes are defined before their first use
	use := strings.Index(out, "static struct dtd_foo dtv_a_dev")
	for _, target := range []string{"dtv_clk1 = {", "dtv_clk2 = {"} {
		if def := strings.Index(out, target); def < 0 || def > use {
			t.Errorf("%s defined at %d, used at %d", target, def, use)
		}
	}
}

func TestPhandleErrors(t *testing.T) {
	tests := []struct {
		name   string
		clocks []uint32
		cells  bool
	}{
		{"unknown phandle", []uint32{9, 0}, true},
		{"no cells property", []uint32{1}, false},
		{"overrun", []uint32{1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			props := dttest.Props(compat("v,clk"), dttest.P("phandle", dttest.U32(1)))
			if tt.cells {
				props = append(props, dttest.P("#clock-cells", dttest.U32(1)))
			}
			root := dttest.Node("", nil,
				dttest.Node("dev", dttest.Props(compat("v,foo"), dttest.P("clocks", dttest.U32(tt.clocks...)))),
				dttest.Node("osc", props),
			)
			_, _, err := compile(t, root, symbolsFrom(corpus()), Options{}, CommandStruct)
			wantResolution(t, err, "/dev")
			var re *ResolutionError
			errors.As(err, &re)
			if re.Prop != "clocks" {
				t.Fatalf("prop = %q", re.Prop)
			}
		})
	}
}

func TestPhandleZeroTerminates(t *testing.T) {
	root := dttest.Node("", nil,
		dttest.Node("dev", dttest.Props(compat("v,foo"), dttest.P("clocks", dttest.U32(1, 3, 0, 0)))),
		dttest.Node("osc", dttest.Props(compat("v,clk"),
			dttest.P("phandle", dttest.U32(1)), dttest.P("#clock-cells", dttest.U32(1)))),
	)
	_, out := mustCompile(t, root, symbolsFrom(corpus()), Options{}, CommandStruct, CommandPlatdata)
	mustContain(t, out,
		"\tstruct phandle_1_arg clocks[1];\n",
		"\t.clocks\t\t\t= {\n\t\t\t{1, {3}},},\n",
	)
}

func TestPhandleCycleWarns(t *testing.T) {
	root := dttest.Node("", nil,
		dttest.Node("a", dttest.Props(compat("v,clk"), dttest.P("phandle", dttest.U32(1)),
			dttest.P("#clock-cells", dttest.U32(0)), dttest.P("clocks", dttest.U32(2)))),
		dttest.Node("b", dttest.Props(compat("v,clk"), dttest.P("phandle", dttest.U32(2)),
			dttest.P("#clock-cells", dttest.U32(0)), dttest.P("clocks", dttest.U32(1)))),
	)
	c, out := mustCompile(t, root, symbolsFrom(corpus()), Options{}, CommandPlatdata)
	if !slices.Contains(c.Warnings(), "WARNING: phandle reference cycle between /a, /b") {
		t.Fatalf("warnings = %v", c.Warnings())
	}
	if strings.Count(out, "static struct dtd_clk") != 2 {
		t.Fatalf("each node is emitted once:\n%s", out)
	}
}

func TestMissingDriverStructs(t *testing.T) {
	root := dttest.Node("", nil,
		dttest.Node("mystery", dttest.Props(compat("v,mystery"), dttest.P("val", dttest.U32(3)))),
	)
	c, warned := mustCompile(t, root, symbolsFrom(corpus()), Options{}, CommandStruct)
	mustContain(t, warned, "struct dtd_v_mystery {\n\tfdt32_t\t\tval;\n};\n")
	if !reflect.DeepEqual(c.Warnings(), []string{"WARNING: the driver v_mystery was not found in the driver list"}) {
		t.Fatalf("warnings = %v", c.Warnings())
	}

	quiet, silent := mustCompile(t, root, symbolsFrom(corpus()), Options{WarningDisabled: true}, CommandStruct)
	if len(quiet.Warnings()) != 0 {
		t.Fatalf("warnings = %v", quiet.Warnings())
	}
	if silent != warned {
		t.Fatal("suppressing warnings changed the output")
	}
}

func TestMissingDriverData(t *testing.T) {
	root := dttest.Node("", nil,
		dttest.Node("mystery", dttest.Props(compat("v,mystery"))),
	)
	for _, opts := range []Options{{}, {WarningDisabled: true}, {Instantiate: true}} {
		_, _, err := compile(t, root, symbolsFrom(corpus()), opts, CommandPlatdata)
		wantResolution(t, err, "/mystery")
	}
}

func TestMissingUclass(t *testing.T) {
	facts := append(corpus(), extractor.FileFacts{
		File:    "drivers/bad.c",
		Drivers: []extractor.Driver{driver("bad", "UCLASS_NOPE", "v,bad")},
	})
	root := dttest.Node("", nil, dttest.Node("bad", dttest.Props(compat("v,bad"))))
	_, _, err := compile(t, root, symbolsFrom(facts), Options{}, CommandPlatdata)
	wantResolution(t, err, "/bad")
}

func TestSecondaryCompatibleAlias(t *testing.T) {
	root := dttest.Node("", nil,
		dttest.Node("uart", dttest.Props(dttest.P("compatible", dttest.Str("vendor,uart", "ns16550")))),
	)
	_, out := mustCompile(t, root, symbolsFrom(corpus()), Options{}, CommandStruct)
	mustContain(t, out, "#define dtd_vendor_uart dtd_ns16550_serial\n")
}

func TestDisabledNodes(t *testing.T) {
	root := dttest.Node("", nil,
		dttest.Node("foo@1", dttest.Props(compat("v,foo"), dttest.P("status", dttest.Str("disabled")))),
		dttest.Node("foo@2", dttest.Props(compat("v,foo"))),
	)
	c, _ := mustCompile(t, root, symbolsFrom(corpus()), Options{}, CommandStruct)
	if len(c.Nodes()) != 1 || c.Nodes()[0].Path != "/foo@2" {
		t.Fatalf("nodes = %v", c.Nodes())
	}
	c, _ = mustCompile(t, root, symbolsFrom(corpus()), Options{IncludeDisabled: true}, CommandStruct)
	if len(c.Nodes()) != 2 {
		t.Fatalf("nodes = %d", len(c.Nodes()))
	}
}

func TestDeterministicOutput(t *testing.T) {
	root := dttest.Node("", dttest.Props(compat("v,board")),
		dttest.Node("serial@2", dttest.Props(compat("ns16550"), dttest.P("clocks", dttest.U32(1, 0)))),
		dttest.Node("serial@1", dttest.Props(compat("ns16550"))),
		dttest.Node("osc", dttest.Props(compat("v,clk"),
			dttest.P("phandle", dttest.U32(1)), dttest.P("#clock-cells", dttest.U32(1)))),
	)
	facts := corpus()
	reversed := slices.Clone(facts)
	slices.Reverse(reversed)

	opts := Options{Instantiate: true}
	_, a := mustCompile(t, root, symbolsFrom(facts), opts, CommandStruct, CommandPlatdata)
	_, b := mustCompile(t, root, symbolsFrom(reversed), opts, CommandStruct, CommandPlatdata)
	if a != b {
		t.Fatalf("output depends on source order:\n%s\n---\n%s", a, b)
	}
}

func TestEqualCNamesKeepTraversalOrder(t *testing.T) {
	root := dttest.Node("", nil,
		dttest.Node("bus@1", nil, dttest.Node("clock", dttest.Props(compat("v,clk"), dttest.P("rate", dttest.U32(1))))),
		dttest.Node("bus@2", nil, dttest.Node("clock", dttest.Props(compat("v,clk"), dttest.P("rate", dttest.U32(2, 3))))),
	)
	c, out := mustCompile(t, root, symbolsFrom(corpus()), Options{}, CommandStruct)
	mustContain(t, out, "struct dtd_clk {\n\tfdt32_t\t\trate[2];\n};\n")
	nodes := c.Nodes()
	if len(nodes) != 2 {
		t.Fatalf("nodes = %d", len(nodes))
	}
	for i, want := range []string{"/bus@1/clock", "/bus@2/clock"} {
		if nodes[i].Path != want || nodes[i].Idx != i {
			t.Fatalf("node %d = %s idx %d, want %s", i, nodes[i].Path, nodes[i].Idx, want)
		}
	}

	_, _, err := compile(t, root, symbolsFrom(corpus()), Options{}, CommandPlatdata)
	wantResolution(t, err, "/bus@2/clock")
}

func TestNonStringCompatible(t *testing.T) {
	root := dttest.Node("", nil,
		dttest.Node("odd", dttest.Props(dttest.P("compatible", []byte{0}))),
	)
	_, out, err := compile(t, root, symbolsFrom(corpus()), Options{}, CommandStruct)
	wantResolution(t, err, "/odd")
	var re *ResolutionError
	if errors.As(err, &re) && re.Prop != "compatible" {
		t.Fatalf("error names property %q", re.Prop)
	}
	if out != "" {
		t.Fatalf("output written on failure:\n%s", out)
	}
}

// phaseCorpus declares driver dup twice, once for every phase and once
// for SPL only
func phaseCorpus(phase string) *indexer.SymbolTable {
	generic := driver("dup", "UCLASS_MISC", "v,dup")
	spl := driver("dup", "UCLASS_MISC", "v,dup")
	spl.File = "drivers/dup_spl.c"
	spl.Phase = "spl"
	st := indexer.NewSymbolTable(phase)
	for _, f := range append(corpus(),
		extractor.FileFacts{File: generic.File, Drivers: []extractor.Driver{generic}},
		extractor.FileFacts{File: spl.File, Drivers: []extractor.Driver{spl}},
	) {
		st.AddFacts(f)
	}
	st.Resolve()
	return st
}

func TestAmbiguousDriverWarning(t *testing.T) {
	root := dttest.Node("", nil,
		dttest.Node("dup", dttest.Props(compat("v,dup"))),
	)
	const warning = "WARNING: driver dup is declared 2 times; using drivers/dup.c:10"

	c, _ := mustCompile(t, root, phaseCorpus("spl"), Options{}, CommandStruct)
	if got := c.Nodes()[0].Driver; got.File != "drivers/dup_spl.c" {
		t.Fatalf("spl build bound %s", got.File)
	}
	if len(c.Warnings()) != 0 {
		t.Fatalf("phase match still warned: %v", c.Warnings())
	}

	c, warned := mustCompile(t, root, phaseCorpus(""), Options{}, CommandStruct)
	if got := c.Nodes()[0].Driver; got.File != "drivers/dup.c" {
		t.Fatalf("default build bound %s", got.File)
	}
	if !reflect.DeepEqual(c.Warnings(), []string{warning}) {
		t.Fatalf("warnings = %v", c.Warnings())
	}

	quiet, silent := mustCompile(t, root, phaseCorpus(""), Options{WarningDisabled: true}, CommandStruct)
	if len(quiet.Warnings()) != 0 {
		t.Fatalf("warnings = %v", quiet.Warnings())
	}
	if quiet.Nodes()[0].Driver.File != "drivers/dup.c" || silent != warned {
		t.Fatal("suppressing warnings changed the binding or output")
	}
}

type artifactRecorder struct {
	stages []string
	sizes  map[string]int
}

func (r *artifactRecorder) RecordStage(phase string, start time.Time, duration time.Duration, status string) {
	r.stages = append(r.stages, phase)
}

func (r *artifactRecorder) RecordArtifact(command string, start time.Time, duration time.Duration, size int, status string) {
	r.sizes[command] = size
}

func TestArtifactTimings(t *testing.T) {
	root := dttest.Node("", nil,
		dttest.Node("uart", dttest.Props(compat("ns16550"), dttest.P("clock-frequency", dttest.U32(24000000)))),
	)
	rec := &artifactRecorder{sizes: map[string]int{}}
	_, out := mustCompile(t, root, symbolsFrom(corpus()), Options{Timing: rec}, CommandStruct, CommandPlatdata)
	if !slices.Contains(rec.stages, "select") || !slices.Contains(rec.stages, "unify") {
		t.Fatalf("stages = %v", rec.stages)
	}
	structs, tables := rec.sizes[string(CommandStruct)], rec.sizes[string(CommandPlatdata)]
	if structs == 0 || tables == 0 || structs+tables != len(out) {
		t.Fatalf("artifact sizes %d + %d, output %d bytes", structs, tables, len(out))
	}
}
