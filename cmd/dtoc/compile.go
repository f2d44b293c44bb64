package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/robert-at-pretension-io/dtoc/internal/config"
	"github.com/robert-at-pretension-io/dtoc/internal/devicetree"
	"github.com/robert-at-pretension-io/dtoc/internal/indexer"
	"github.com/robert-at-pretension-io/dtoc/internal/platdata"
)

// loadConfig reads the config file and applies the flags the user set
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if rootOpts.configPath != "" {
		cfg, err = config.LoadFile(rootOpts.configPath)
	} else {
		cfg, err = config.Load(rootOpts.srcDir)
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	applyFlags(cmd.Flags(), cfg)
	return cfg, nil
}

// applyFlags overrides config values with the flags given on the command line
func applyFlags(flags *pflag.FlagSet, cfg *config.Config) {
	if flags.Changed("phase") {
		cfg.Phase = rootOpts.phase
	}
	if flags.Changed("include-disabled") {
		cfg.IncludeDisabled = rootOpts.includeDisabled
	}
	if flags.Changed("no-warn") {
		cfg.WarningDisabled = rootOpts.noWarn
	}
	if flags.Changed("instantiate") {
		cfg.Instantiate = rootOpts.instantiate
	}
	if flags.Changed("timing") {
		cfg.Timing = rootOpts.timing
	}
	cfg.ExtraFiles = append(cfg.ExtraFiles, rootOpts.extra...)
}

// session is one loaded devicetree with its driver symbol table
type session struct {
	cfg      *config.Config
	compiler *platdata.Compiler
	timing   *indexer.TimingRecorder
}

func (s *session) close() {
	s.timing.Close()
}

func newSession(cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if rootOpts.dtbFile == "" {
		return nil, errors.New("no devicetree given (use --dtb-file)")
	}

	timing := indexer.NewTimingRecorder(time.Now(), indexer.ResolveTimingPath(rootOpts.srcDir, cfg.Timing))
	if err := timing.Err(); err != nil {
		logger.WithError(err).Warn("timing disabled")
	}

	stepStart := time.Now()
	tree, err := devicetree.Load(rootOpts.dtbFile)
	if err != nil {
		timing.Close()
		return nil, fmt.Errorf("load devicetree: %w", err)
	}
	timing.RecordStage("load", stepStart, time.Since(stepStart), "")

	idx := indexer.NewWithConfig(cfg)
	idx.Log = logger
	idx.Timing = timing
	if err := idx.Run(rootOpts.srcDir); err != nil {
		timing.Close()
		return nil, fmt.Errorf("scan drivers: %w", err)
	}
	logger.WithField("files", len(idx.Facts)).Debug("scanned driver files")

	opts := platdata.OptionsFromConfig(cfg)
	opts.Log = logger
	opts.Timing = timing
	if rootOpts.aliases != "" {
		aliases, err := config.LoadAliases(rootOpts.aliases)
		if err != nil {
			timing.Close()
			return nil, err
		}
		opts.Aliases = aliases
	}

	return &session{
		cfg:      cfg,
		compiler: platdata.New(tree, idx.Symbols, opts),
		timing:   timing,
	}, nil
}

// reportWarnings logs the warnings gathered by a successful run
func reportWarnings(c *platdata.Compiler) {
	for _, w := range c.Warnings() {
		logger.Warn(w)
	}
}

// writeOutput writes to stdout for "-", otherwise replaces path atomically
func writeOutput(path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return indexer.WriteFileAtomic(path, data)
}

func runCompile(cmd *cobra.Command, args []string) error {
	cmds, err := platdata.ParseCommands(args[0])
	if err != nil {
		return err
	}
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	out, err := s.compiler.Generate(cmds)
	if err != nil {
		return err
	}
	if err := writeOutput(rootOpts.output, out); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	reportWarnings(s.compiler)
	return nil
}
