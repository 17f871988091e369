// Command treez renders demo workloads with the treez layer, to try
// rendering options out in a terminal.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/zoobzio/treez"
)

// flags holds the rendering options set on the command line. Only flags that
// were explicitly set override the config file.
type flags struct {
	config      string
	timer       string
	elapsed     string
	minLevel    string
	indent      int
	wraparound  int
	ansi        bool
	indentLines bool
	targets     bool
	threadIDs   bool
	threadNames bool
	entry       bool
	exit        bool
	bracketed   bool
	deferred    bool
	spanModes   bool
	retrace     bool
	verboseRetr bool
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var f flags

	root := &cobra.Command{
		Use:   "treez",
		Short: "Render demo span trees",
		Long: `treez runs small instrumented workloads and renders their spans and
events as a tree, using the options given as flags or in a TOML file.`,
		Example: `  # Box-drawing tree of a server handling two connections
  treez basic --indent-lines

  # Goroutines interleaving their spans
  treez concurrent --indent-lines --retrace --thread-names

  # Options from a file, flags win
  treez wraparound --config treez.toml --wraparound 4`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.config, "config", "", "TOML file with rendering options")
	pf.StringVar(&f.timer, "timer", "", "time prefix: none, utc, local or uptime")
	pf.StringVar(&f.elapsed, "elapsed", "", "elapsed time format: none, short or precise")
	pf.StringVar(&f.minLevel, "min-level", "", "drop events below this level")
	pf.IntVar(&f.indent, "indent", 2, "columns per indentation level")
	pf.IntVar(&f.wraparound, "wraparound", 0, "reset indentation every N levels (0: never)")
	pf.BoolVar(&f.ansi, "ansi", false, "colored output")
	pf.BoolVar(&f.indentLines, "indent-lines", false, "draw the tree with box-drawing characters")
	pf.BoolVar(&f.targets, "targets", false, "print span and event targets")
	pf.BoolVar(&f.threadIDs, "thread-ids", false, "prefix lines with the goroutine id")
	pf.BoolVar(&f.threadNames, "thread-names", false, "prefix lines with the goroutine name")
	pf.BoolVar(&f.entry, "verbose-entry", false, "print the parent again when a child is entered")
	pf.BoolVar(&f.exit, "verbose-exit", false, "print the parent again when a child is closed")
	pf.BoolVar(&f.bracketed, "bracketed-fields", false, "print span fields as name{k=v}")
	pf.BoolVar(&f.deferred, "deferred", false, "print spans only once they contain an event")
	pf.BoolVar(&f.spanModes, "span-modes", false, "label span banners with why they are printed")
	pf.BoolVar(&f.retrace, "retrace", false, "re-print ancestors when focus moves between spans")
	pf.BoolVar(&f.verboseRetr, "verbose-retrace", false, "print the parent of retraced spans")

	root.AddCommand(
		basicCmd(&f),
		concurrentCmd(&f),
		deferredCmd(&f),
		wraparoundCmd(&f),
		recursiveCmd(&f),
	)
	return root
}

// load merges defaults, the config file, environment and explicit flags.
func (f *flags) load(cmd *cobra.Command) (treez.Config, error) {
	cfg, err := treez.LoadConfig(f.config)
	if err != nil {
		return cfg, err
	}
	cfg.MakeWriter = func() io.Writer { return cmd.OutOrStdout() }

	set := cmd.Flags().Changed
	if set("timer") {
		if cfg.Timer, err = parseTimeFormat(f.timer, cfg); err != nil {
			return cfg, err
		}
	}
	if set("elapsed") {
		if cfg.Elapsed, err = parseTimeFormat(f.elapsed, cfg); err != nil {
			return cfg, err
		}
	}
	if set("min-level") {
		if cfg.MinLevel, err = treez.ParseLevel(f.minLevel); err != nil {
			return cfg, err
		}
	}
	for _, o := range []struct {
		name string
		dst  *bool
		val  bool
	}{
		{"ansi", &cfg.ANSI, f.ansi},
		{"indent-lines", &cfg.IndentLines, f.indentLines},
		{"targets", &cfg.Targets, f.targets},
		{"thread-ids", &cfg.ThreadIDs, f.threadIDs},
		{"thread-names", &cfg.ThreadNames, f.threadNames},
		{"verbose-entry", &cfg.VerboseEntry, f.entry},
		{"verbose-exit", &cfg.VerboseExit, f.exit},
		{"bracketed-fields", &cfg.BracketedFields, f.bracketed},
		{"deferred", &cfg.DeferredSpans, f.deferred},
		{"span-modes", &cfg.SpanModes, f.spanModes},
		{"retrace", &cfg.SpanRetrace, f.retrace},
		{"verbose-retrace", &cfg.VerboseRetrace, f.verboseRetr},
	} {
		if set(o.name) {
			*o.dst = o.val
		}
	}
	if set("indent") {
		cfg.IndentAmount = f.indent
	}
	if set("wraparound") {
		cfg.Wraparound = f.wraparound
	}
	return cfg, cfg.Validate()
}

func parseTimeFormat(name string, cfg treez.Config) (treez.TimeFormat, error) {
	tf, err := treez.ParseTimeFormat(name, cfg.Clock)
	if err != nil {
		return nil, err
	}
	if tf == nil {
		return nil, errors.Newf("empty time format")
	}
	return tf, nil
}

// newTracer builds a tracer rendering with the merged options.
func (f *flags) newTracer(cmd *cobra.Command, adjust func(*treez.Config)) (*treez.Tracer, error) {
	cfg, err := f.load(cmd)
	if err != nil {
		return nil, err
	}
	if adjust != nil {
		adjust(&cfg)
	}
	layer, err := treez.NewLayer(cfg)
	if err != nil {
		return nil, err
	}
	tracer := treez.New().WithClock(cfg.Clock)
	tracer.AddLayer(layer)
	return tracer, nil
}
