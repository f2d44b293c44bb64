package main

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/robert-at-pretension-io/dtoc/internal/indexer"
	"github.com/robert-at-pretension-io/dtoc/internal/policy"
	"github.com/robert-at-pretension-io/dtoc/internal/validator"
)

var (
	lintOpts = struct {
		policyDir string
		json      bool
		refresh   bool
	}{}

	lintCmd = &cobra.Command{
		Use:   "lint",
		Short: "Check the compiled devicetree against the lint rules",
		Long: `lint compiles the devicetree, validates the fact tables against their
schema and evaluates the Rego lint rules over them. It exits non-zero when
any rule reports an error.`,
		Args: cobra.NoArgs,
		RunE: runLint,
	}
)

func init() {
	lintCmd.Flags().StringVar(&lintOpts.policyDir, "policy-dir", "", "directory of .rego rules replacing the built-in ones")
	lintCmd.Flags().BoolVar(&lintOpts.json, "json", false, "print the result as JSON")
	lintCmd.Flags().BoolVar(&lintOpts.refresh, "refresh", false, "drop the cached lint result before evaluating")
}

func newEngine() (*policy.Engine, error) {
	if lintOpts.policyDir != "" {
		return policy.NewFromDir(lintOpts.policyDir)
	}
	return policy.New()
}

func runLint(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	tables, err := scanTables(s)
	if err != nil {
		return err
	}
	reportWarnings(s.compiler)

	v, err := validator.NewFactsValidator()
	if err != nil {
		return err
	}
	if err := v.Validate(tables); err != nil {
		for _, msg := range v.ValidationErrors(tables) {
			logger.Error(msg)
		}
		return fmt.Errorf("fact tables failed validation: %w", err)
	}

	engine, err := newEngine()
	if err != nil {
		return err
	}

	var result *policy.Result
	if cacheEnabled(s.cfg) {
		dir := indexer.CacheDir(rootOpts.srcDir, s.cfg)
		if lintOpts.refresh {
			if err := policy.ClearCache(dir); err != nil {
				return err
			}
		}
		var hit bool
		result, hit, err = engine.EvaluateCached(cmd.Context(), dir, tables)
		if hit {
			logger.Debug("lint result served from cache")
		}
	} else {
		result, err = engine.Evaluate(cmd.Context(), tables)
	}
	if err != nil {
		return err
	}

	if lintOpts.json {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		if err := writeOutput(rootOpts.output, append(data, '\n')); err != nil {
			return err
		}
	} else if err := writeOutput(rootOpts.output, []byte(formatResult(result))); err != nil {
		return err
	}

	if result.Summary.Errors > 0 {
		return fmt.Errorf("%d lint error(s)", result.Summary.Errors)
	}
	return nil
}

func formatResult(result *policy.Result) string {
	var sb strings.Builder
	for _, v := range result.Violations {
		loc := v.Subject
		if v.File != "" {
			loc = fmt.Sprintf("%s:%d", v.File, v.Line)
		}
		fmt.Fprintf(&sb, "%s: %s [%s] %s\n", loc, v.Severity, v.Rule, v.Message)
	}
	fmt.Fprintf(&sb, "%d error(s), %d warning(s)\n", result.Summary.Errors, result.Summary.Warnings)
	return sb.String()
}
