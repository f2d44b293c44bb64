package platdata

import (
	"bytes"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/robert-at-pretension-io/dtoc/internal/config"
	"github.com/robert-at-pretension-io/dtoc/internal/devicetree"
	"github.com/robert-at-pretension-io/dtoc/internal/extractor"
	"github.com/robert-at-pretension-io/dtoc/internal/indexer"
)

// Command selects an output artifact
type Command string

const (
	CommandStruct   Command = "struct"
	CommandPlatdata Command = "platdata"
)

var validCommands = []Command{CommandStruct, CommandPlatdata}

// ParseCommands splits a comma-separated command list. Repeats are
// dropped; any unknown name is an error.
func ParseCommands(arg string) ([]Command, error) {
	if strings.TrimSpace(arg) == "" {
		return nil, fmt.Errorf("%w: please specify a command (use: struct, platdata)", ErrCommand)
	}
	var out []Command
	for _, part := range strings.Split(arg, ",") {
		cmd := Command(strings.TrimSpace(part))
		if !slices.Contains(validCommands, cmd) {
			return nil, fmt.Errorf("%w: unknown command '%s' (use: struct, platdata)", ErrCommand, part)
		}
		if !slices.Contains(out, cmd) {
			out = append(out, cmd)
		}
	}
	return out, nil
}

// StageRecorder receives per-stage timings
type StageRecorder interface {
	RecordStage(phase string, start time.Time, duration time.Duration, status string)
	RecordArtifact(command string, start time.Time, duration time.Duration, size int, status string)
}

// Options control node selection and emission
type Options struct {
	IncludeDisabled bool
	WarningDisabled bool
	Instantiate     bool

	// PhandleProps maps phandle-bearing property names to cell-count
	// property names tried in order on the referenced node
	PhandleProps map[string][]string

	// IgnoreProps extends the built-in ignore list
	IgnoreProps []string

	// Aliases override the devicetree /aliases node: alias name to path
	Aliases map[string]string

	Log    logrus.FieldLogger
	Timing StageRecorder
}

// OptionsFromConfig copies the compile settings of a loaded config
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		IncludeDisabled: cfg.IncludeDisabled,
		WarningDisabled: cfg.WarningDisabled,
		Instantiate:     cfg.Instantiate,
		PhandleProps:    cfg.PhandleProps,
		IgnoreProps:     cfg.IgnoreProps,
	}
}

// ignoredProps never appear in generated structs
var ignoredProps = []string{
	"#address-cells",
	"#gpio-cells",
	"#size-cells",
	"compatible",
	"linux,phandle",
	"status",
	"phandle",
	"u-boot,dm-pre-reloc",
	"u-boot,dm-tpl",
	"u-boot,dm-spl",
	"u-boot,dm-vpl",
	"bootph-all",
	"bootph-pre-ram",
	"bootph-pre-sram",
	"bootph-some-ram",
}

// Compiler turns a devicetree and a driver symbol table into C sources.
// Scan runs once; the artifacts can then be rendered any number of times.
type Compiler struct {
	tree    *devicetree.Tree
	symbols *indexer.SymbolTable
	opts    Options
	log     logrus.FieldLogger

	ignore map[string]bool

	nodes  []*Node
	byPath map[string]*Node
	byDT   map[*devicetree.Node]*Node

	structs       map[string]*Struct
	structAliases map[string]string

	warnings Warnings
	scanned  bool

	prepared   bool
	uclasses   []*extractor.Uclass
	uclassDevs map[string][]*Node
}

// New creates a compiler over a loaded tree and a resolved symbol table
func New(tree *devicetree.Tree, symbols *indexer.SymbolTable, opts Options) *Compiler {
	if opts.PhandleProps == nil {
		opts.PhandleProps = config.DefaultPhandleProps()
	}
	log := opts.Log
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	c := &Compiler{
		tree:    tree,
		symbols: symbols,
		opts:    opts,
		log:     log,
		ignore:  make(map[string]bool),
	}
	for _, name := range ignoredProps {
		c.ignore[name] = true
	}
	for _, name := range opts.IgnoreProps {
		c.ignore[name] = true
	}
	return c
}

func (c *Compiler) ignored(name string) bool {
	return c.ignore[name] || strings.HasPrefix(name, "#")
}

func (c *Compiler) stage(name string, start time.Time, err error) {
	status := ""
	if err != nil {
		status = "error"
	}
	if c.opts.Timing != nil {
		c.opts.Timing.RecordStage(name, start, time.Since(start), status)
	}
	c.log.WithField("stage", name).WithField("duration", time.Since(start)).Debug("stage complete")
}

func (c *Compiler) artifact(cmd Command, start time.Time, size int, err error) {
	status := ""
	if err != nil {
		status = "error"
		size = 0
	}
	if c.opts.Timing != nil {
		c.opts.Timing.RecordArtifact(string(cmd), start, time.Since(start), size, status)
	}
	c.log.WithField("command", cmd).WithField("bytes", size).Debug("artifact rendered")
}

// Scan selects nodes, resolves their drivers and phandles, and unifies
// the struct schemas. Nothing is emitted if Scan fails.
func (c *Compiler) Scan() error {
	if c.scanned {
		return nil
	}
	steps := []struct {
		name string
		run  func() error
	}{
		{"select", c.selectNodes},
		{"drivers", c.lookupDrivers},
		{"reg", c.scanReg},
		{"phandles", c.resolvePhandles},
		{"unify", c.unify},
		{"cycles", c.reportCycles},
	}
	for _, step := range steps {
		start := time.Now()
		err := step.run()
		c.stage(step.name, start, err)
		if err != nil {
			return err
		}
	}
	c.scanned = true
	c.log.WithField("nodes", len(c.nodes)).WithField("warnings", c.warnings.Len()).Debug("scan complete")
	return nil
}

// Generate renders the requested artifacts in order into one buffer
func (c *Compiler) Generate(cmds []Command) ([]byte, error) {
	if err := c.Scan(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	for _, cmd := range cmds {
		start := time.Now()
		before := buf.Len()
		var err error
		switch cmd {
		case CommandStruct:
			err = c.generateStructs(&buf)
		case CommandPlatdata:
			err = c.generateTables(&buf)
		default:
			err = fmt.Errorf("%w: unknown command '%s' (use: struct, platdata)", ErrCommand, cmd)
		}
		c.artifact(cmd, start, buf.Len()-before, err)
		if err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// Run compiles and writes the artifacts to w in one call
func Run(tree *devicetree.Tree, symbols *indexer.SymbolTable, opts Options, cmds []Command, w io.Writer) (*Compiler, error) {
	c := New(tree, symbols, opts)
	out, err := c.Generate(cmds)
	if err != nil {
		return c, err
	}
	if _, err := w.Write(out); err != nil {
		return c, fmt.Errorf("writing output: %w", err)
	}
	return c, nil
}

// Nodes returns the selected nodes in index order
func (c *Compiler) Nodes() []*Node {
	return c.nodes
}

// Structs returns the unified schemas keyed by struct name
func (c *Compiler) Structs() map[string]*Struct {
	return c.structs
}

// Symbols returns the driver symbol table the compiler resolves against
func (c *Compiler) Symbols() *indexer.SymbolTable {
	return c.symbols
}

// Warnings returns the non-fatal diagnostics gathered so far
func (c *Compiler) Warnings() []string {
	return c.warnings.List()
}
