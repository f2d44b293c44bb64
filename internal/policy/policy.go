package policy

import (
	"context"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	json "github.com/goccy/go-json"
	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/robert-at-pretension-io/dtoc/internal/facts"
)

//go:embed lint.rego
var builtinFS embed.FS

const (
	violationsQuery = "data.dtoc.lint.all_violations"
	summaryQuery    = "data.dtoc.lint.summary"
)

// Engine evaluates Rego lint rules against compiled fact tables
type Engine struct {
	queries map[string]rego.PreparedEvalQuery

	// rulesHash identifies the loaded modules for result caching
	rulesHash string
}

// Violation represents a policy violation
type Violation struct {
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	Subject  string `json:"subject"`
	File     string `json:"file"`
	Line     int    `json:"line"`
	Message  string `json:"message"`
}

// Result contains the evaluation results
type Result struct {
	Violations []Violation `json:"violations"`
	Summary    Summary     `json:"summary"`
}

// Summary provides aggregate counts
type Summary struct {
	TotalViolations int `json:"total_violations"`
	Errors          int `json:"errors"`
	Warnings        int `json:"warnings"`
	Info            int `json:"info"`
}

type module struct {
	name   string
	source string
}

// New creates an engine over the built-in rules
func New() (*Engine, error) {
	src, err := builtinFS.ReadFile("lint.rego")
	if err != nil {
		return nil, fmt.Errorf("loading built-in policy: %w", err)
	}
	return newEngine([]module{{name: "lint.rego", source: string(src)}})
}

// NewFromDir creates an engine from every .rego file in policyDir. The
// modules must define data.dtoc.lint.all_violations and summary.
func NewFromDir(policyDir string) (*Engine, error) {
	files, err := filepath.Glob(filepath.Join(policyDir, "*.rego"))
	if err != nil {
		return nil, fmt.Errorf("finding policy files: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no policy files found in %s", policyDir)
	}
	sort.Strings(files)

	var modules []module
	for _, f := range files {
		content, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", f, err)
		}
		modules = append(modules, module{name: filepath.Base(f), source: string(content)})
	}
	return newEngine(modules)
}

func newEngine(modules []module) (*Engine, error) {
	engine := &Engine{
		queries: make(map[string]rego.PreparedEvalQuery),
	}

	hasher := sha256.New()
	var opts []func(*rego.Rego)
	for _, m := range modules {
		opts = append(opts, rego.Module(m.name, m.source))
		hasher.Write([]byte(m.name))
		hasher.Write([]byte{0})
		hasher.Write([]byte(m.source))
		hasher.Write([]byte{0})
	}
	engine.rulesHash = hex.EncodeToString(hasher.Sum(nil))

	ctx := context.Background()
	for name, q := range map[string]string{"violations": violationsQuery, "summary": summaryQuery} {
		query, err := rego.New(append(opts, rego.Query(q))...).PrepareForEval(ctx)
		if err != nil {
			return nil, fmt.Errorf("preparing %s query: %w", name, err)
		}
		engine.queries[name] = query
	}
	return engine, nil
}

// Evaluate runs the policies against the fact tables
func (e *Engine) Evaluate(ctx context.Context, tables facts.Tables) (*Result, error) {
	inputMap, err := structToMap(tables)
	if err != nil {
		return nil, fmt.Errorf("converting input: %w", err)
	}

	result := &Result{Violations: []Violation{}}

	rs, err := e.queries["violations"].Eval(ctx, rego.EvalInput(inputMap))
	if err != nil {
		return nil, fmt.Errorf("evaluating violations: %w", err)
	}
	if len(rs) > 0 && len(rs[0].Expressions) > 0 {
		violations, ok := rs[0].Expressions[0].Value.([]interface{})
		if ok {
			for _, v := range violations {
				vmap, ok := v.(map[string]interface{})
				if !ok {
					continue
				}
				result.Violations = append(result.Violations, Violation{
					Rule:     getString(vmap, "rule"),
					Severity: getString(vmap, "severity"),
					Subject:  getString(vmap, "subject"),
					File:     getString(vmap, "file"),
					Line:     getInt(vmap, "line"),
					Message:  getString(vmap, "message"),
				})
			}
		}
	}
	sortViolations(result.Violations)

	rs, err = e.queries["summary"].Eval(ctx, rego.EvalInput(inputMap))
	if err != nil {
		return nil, fmt.Errorf("evaluating summary: %w", err)
	}
	if len(rs) > 0 && len(rs[0].Expressions) > 0 {
		smap, ok := rs[0].Expressions[0].Value.(map[string]interface{})
		if ok {
			result.Summary = Summary{
				TotalViolations: getInt(smap, "total_violations"),
				Errors:          getInt(smap, "errors"),
				Warnings:        getInt(smap, "warnings"),
				Info:            getInt(smap, "info"),
			}
		}
	}

	return result, nil
}

var severityRank = map[string]int{"error": 0, "warning": 1, "info": 2}

func sortViolations(vs []Violation) {
	sort.SliceStable(vs, func(i, j int) bool {
		a, b := vs[i], vs[j]
		if severityRank[a.Severity] != severityRank[b.Severity] {
			return severityRank[a.Severity] < severityRank[b.Severity]
		}
		if a.Rule != b.Rule {
			return a.Rule < b.Rule
		}
		return a.Subject < b.Subject
	})
}

// Helper functions
func structToMap(v interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var result map[string]interface{}
	err = json.Unmarshal(data, &result)
	return result, err
}

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func getInt(m map[string]interface{}, key string) int {
	if v, ok := m[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case float64:
			return int(n)
		case interface{ Int64() (int64, error) }:
			i, _ := n.Int64()
			return int(i)
		}
	}
	return 0
}
