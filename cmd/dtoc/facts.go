package main

import (
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/robert-at-pretension-io/dtoc/internal/config"
	"github.com/robert-at-pretension-io/dtoc/internal/facts"
	"github.com/robert-at-pretension-io/dtoc/internal/indexer"
)

var (
	factsOpts = struct {
		subtree string
		delta   bool
	}{}

	factsCmd = &cobra.Command{
		Use:   "facts",
		Short: "Export the compiled drivers, nodes and structs as JSON tables",
		Long: `facts compiles the devicetree without emitting C and prints the resulting
relations (drivers, uclasses, nodes, fields, phandles) as JSON.

With --delta the tables are compared against the snapshot left by the
previous run in the cache directory and only added and removed rows are
printed.`,
		Args: cobra.NoArgs,
		RunE: runFacts,
	}
)

func init() {
	factsCmd.Flags().StringVar(&factsOpts.subtree, "subtree", "", "only report nodes under this devicetree path")
	factsCmd.Flags().BoolVar(&factsOpts.delta, "delta", false, "print changes since the previous snapshot")
}

func cacheEnabled(cfg *config.Config) bool {
	return cfg.Analysis.Cache.Enabled != nil && *cfg.Analysis.Cache.Enabled
}

// scanTables compiles the session and builds its fact tables
func scanTables(s *session) (facts.Tables, error) {
	if err := s.compiler.Scan(); err != nil {
		return facts.Tables{}, err
	}
	tables := facts.BuildTables(s.compiler)
	if factsOpts.subtree != "" {
		tables = facts.FilterTablesBySubtree(tables, factsOpts.subtree)
	}
	return tables, nil
}

func runFacts(cmd *cobra.Command, args []string) error {
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

	var out any = tables
	if factsOpts.delta {
		dir := indexer.CacheDir(rootOpts.srcDir, s.cfg)
		prev, ok, err := facts.LoadSnapshot(dir)
		if err != nil {
			logger.WithError(err).Warn("ignoring unreadable snapshot")
		}
		if !ok {
			logger.Debug("no previous snapshot, reporting all rows as added")
		}
		out = facts.ComputeDelta(prev, tables)
		if err := facts.SaveSnapshot(dir, tables); err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	return writeOutput(rootOpts.output, append(data, '\n'))
}
