package extractor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
)

// Version identifies the fact format produced by this package. Cached
// facts from a different version are discarded.
const Version = "dm-scan-3"

// RootDriver is accepted without a compatible table
const RootDriver = "root_driver"

// Extractor scans C sources for driver-model declarations. When a
// language is set, comments are masked with a Tree-sitter parse before
// the line scanners run.
type Extractor struct {
	parser *sitter.Parser
	lang   *sitter.Language
}

// TypeRef names a C type used for auto-allocated storage, plus the
// header needed to see its definition
type TypeRef struct {
	Type   string `json:"type"`
	Header string `json:"header,omitempty"`
}

// IsZero reports whether no type is referenced
func (r TypeRef) IsZero() bool {
	return r.Type == ""
}

// Compatible is one entry of a udevice_id table
type Compatible struct {
	Name string `json:"name"`
	Data string `json:"data,omitempty"`
}

// Driver is a U_BOOT_DRIVER declaration
type Driver struct {
	Name      string       `json:"name"`
	UclassID  string       `json:"uclass_id"`
	Compat    []Compatible `json:"compat,omitempty"`
	Priv      TypeRef      `json:"priv"`
	Plat      TypeRef      `json:"plat"`
	ChildPriv TypeRef      `json:"child_priv"`
	ChildPlat TypeRef      `json:"child_plat"`
	Phase     string       `json:"phase,omitempty"`
	Headers   []string     `json:"headers,omitempty"`
	File      string       `json:"file"`
	Line      int          `json:"line"`
}

// Data returns the .data value recorded for a compatible string
func (d *Driver) Data(compat string) (string, bool) {
	for _, c := range d.Compat {
		if c.Name == compat {
			return c.Data, c.Data != ""
		}
	}
	return "", false
}

// Uclass is a UCLASS_DRIVER declaration
type Uclass struct {
	Name         string  `json:"name"`
	ID           string  `json:"id"`
	Priv         TypeRef `json:"priv"`
	PerDevPriv   TypeRef `json:"per_dev_priv"`
	PerDevPlat   TypeRef `json:"per_dev_plat"`
	PerChildPriv TypeRef `json:"per_child_priv"`
	PerChildPlat TypeRef `json:"per_child_plat"`
	File         string  `json:"file"`
	Line         int     `json:"line"`
}

// ShortName is the lowercased uclass ID without its UCLASS_ prefix
func (u *Uclass) ShortName() string {
	return UclassName(u.ID)
}

// UclassName converts UCLASS_SERIAL to serial
func UclassName(id string) string {
	return strings.ToLower(strings.TrimPrefix(id, "UCLASS_"))
}

// DriverAlias maps an alternative driver name onto a declared driver
type DriverAlias struct {
	Driver string `json:"driver"`
	Alias  string `json:"alias"`
	Line   int    `json:"line"`
}

// FileFacts contains everything extracted from a single C file
type FileFacts struct {
	File     string        `json:"file"`
	Drivers  []Driver      `json:"drivers,omitempty"`
	Uclasses []Uclass      `json:"uclasses,omitempty"`
	Aliases  []DriverAlias `json:"aliases,omitempty"`
}

// New creates an Extractor without comment masking
func New() *Extractor {
	return &Extractor{
		parser: sitter.NewParser(),
	}
}

// NewC creates an Extractor that masks comments using the C grammar
func NewC() *Extractor {
	e := New()
	e.SetLanguage(c.GetLanguage())
	return e
}

// SetLanguage sets the Tree-sitter language used for comment masking
func (e *Extractor) SetLanguage(lang *sitter.Language) {
	e.lang = lang
	e.parser.SetLanguage(lang)
}

// Extract reads and scans a C file
func (e *Extractor) Extract(filePath string) (FileFacts, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return FileFacts{File: filePath}, fmt.Errorf("reading file: %w", err)
	}
	return e.ExtractSource(filePath, content)
}

// ExtractSource scans C source text attributed to filePath
func (e *Extractor) ExtractSource(filePath string, content []byte) (FileFacts, error) {
	if e.lang != nil {
		masked, err := e.maskComments(content)
		if err != nil {
			return FileFacts{File: filePath}, fmt.Errorf("parsing %s: %w", filePath, err)
		}
		content = masked
	}
	return scanSource(filePath, string(content))
}

// maskComments blanks every comment node, keeping newlines so line
// numbers stay put
func (e *Extractor) maskComments(content []byte) ([]byte, error) {
	tree, err := e.parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	out := bytes.Clone(content)
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n.Type() == "comment" {
			for i := n.StartByte(); i < n.EndByte() && int(i) < len(out); i++ {
				if out[i] != '\n' {
					out[i] = ' '
				}
			}
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(tree.RootNode())
	return out, nil
}

// logicalLine is a source line after joining backslash continuations
type logicalLine struct {
	Text string
	Line int
}

func splitLogicalLines(s string) []logicalLine {
	var out []logicalLine
	var cur strings.Builder
	start := 0
	joining := false
	for i, raw := range strings.Split(s, "\n") {
		raw = strings.TrimSuffix(raw, "\r")
		if !joining {
			start = i + 1
		}
		if strings.HasSuffix(raw, "\\") {
			cur.WriteString(strings.TrimSuffix(raw, "\\"))
			joining = true
			continue
		}
		cur.WriteString(raw)
		out = append(out, logicalLine{Text: cur.String(), Line: start})
		cur.Reset()
		joining = false
	}
	if joining {
		out = append(out, logicalLine{Text: cur.String(), Line: start})
	}
	return out
}
