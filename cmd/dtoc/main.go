// =============================================================================
// dtoc - devicetree to C platform data
// =============================================================================
//
// dtoc turns a compiled devicetree (.dtb) into C sources for firmware that
// cannot afford a runtime devicetree parser.
//
// THE PIPELINE:
//   1. The devicetree is loaded and every property typed (devicetree)
//   2. Driver sources are scanned for U_BOOT_DRIVER / UCLASS_DRIVER
//      declarations and merged into one symbol table (extractor, indexer)
//   3. Nodes are selected, bound to drivers, phandles resolved and one
//      struct schema unified per driver (platdata)
//   4. The requested artifacts are rendered in memory and written at once
//
// `dtoc facts` and `dtoc lint` stop after step 3 and export or check the
// compiled state instead of emitting C.
// =============================================================================

package main

import (
	"errors"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/robert-at-pretension-io/dtoc/internal/extractor"
	"github.com/robert-at-pretension-io/dtoc/internal/platdata"
)

var (
	rootOpts = struct {
		dtbFile         string
		output          string
		srcDir          string
		configPath      string
		phase           string
		includeDisabled bool
		noWarn          bool
		instantiate     bool
		extra           []string
		aliases         string
		verbose         bool
		quiet           bool
		timing          bool
	}{}

	logger = logrus.New()

	rootCmd = &cobra.Command{
		Use:   "dtoc [flags] <struct,platdata>",
		Short: "Compile a devicetree blob into C platform data",
		Long: `dtoc reads a .dtb file and the driver sources under --srcdir and writes
C declarations for the devicetree. Commands are comma-separated:

  struct     struct declarations, one per driver
  platdata   value tables and device records`,
		Args:              cobra.ExactArgs(1),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setupLogging,
		RunE:              runCompile,
	}
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&rootOpts.dtbFile, "dtb-file", "d", "", "devicetree blob to compile")
	flags.StringVarP(&rootOpts.output, "output", "o", "-", "output file, - for stdout")
	flags.StringVarP(&rootOpts.srcDir, "srcdir", "S", ".", "root of the driver sources")
	flags.StringVarP(&rootOpts.configPath, "config", "c", "", "config file (default: search dtoc.json)")
	flags.StringVarP(&rootOpts.phase, "phase", "p", "", "build phase used to pick among duplicate drivers (spl, tpl, vpl)")
	flags.BoolVar(&rootOpts.includeDisabled, "include-disabled", false, "also compile nodes with status \"disabled\"")
	flags.BoolVar(&rootOpts.noWarn, "no-warn", false, "suppress warnings about unknown and ambiguous drivers")
	flags.BoolVarP(&rootOpts.instantiate, "instantiate", "s", false, "emit fully instantiated devices, uclasses and sequence numbers")
	flags.StringSliceVarP(&rootOpts.extra, "extra", "e", nil, "extra driver source files to scan")
	flags.StringVar(&rootOpts.aliases, "aliases", "", "YAML file of alias -> node path overriding /aliases")
	flags.BoolVarP(&rootOpts.verbose, "verbose", "v", false, "log progress")
	flags.BoolVarP(&rootOpts.quiet, "quiet", "q", false, "log errors only")
	flags.BoolVar(&rootOpts.timing, "timing", false, "write per-stage timings to timing.jsonl")

	rootCmd.AddCommand(factsCmd, lintCmd, initCmd, cleanCmd)
}

func setupLogging(cmd *cobra.Command, args []string) error {
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	switch {
	case rootOpts.quiet:
		logger.SetLevel(logrus.ErrorLevel)
	case rootOpts.verbose:
		logger.SetLevel(logrus.DebugLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}
	return nil
}

// errorKind names the failure class for the final log line
func errorKind(err error) string {
	switch {
	case errors.Is(err, extractor.ErrParse):
		return "parse error"
	case errors.Is(err, platdata.ErrResolution):
		return "resolution error"
	case errors.Is(err, platdata.ErrSchema):
		return "schema error"
	case errors.Is(err, platdata.ErrCommand):
		return "usage error"
	}
	return "error"
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.WithField("kind", errorKind(err)).Error(err)
		if errors.Is(err, platdata.ErrCommand) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
