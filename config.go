package treez

import (
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"github.com/mattn/go-isatty"
	"github.com/zoobzio/clockz"
)

// Config controls how a HierarchicalLayer renders. It is copied into the
// layer and never changes afterwards.
//
//nolint:govet // Field order groups related options
type Config struct {
	// MakeWriter returns the destination of one rendered unit. It is called
	// once per unit. Defaults to os.Stdout.
	MakeWriter func() io.Writer
	// Timer renders a time prefix on event lines. Defaults to NoTime.
	Timer TimeFormat
	// Elapsed renders the time since the event's span opened. Defaults to
	// ShortElapsed.
	Elapsed TimeFormat
	// Clock stamps the start of spans. Defaults to the real clock.
	Clock clockz.Clock
	// Metrics, when set, counts rendered lines and failures.
	Metrics *Metrics
	// OnError receives sink write failures. Defaults to panicking: losing
	// diagnostics silently is worse than failing loudly.
	OnError func(error)

	// IndentAmount is the width of one indentation level.
	IndentAmount int
	// Wraparound resets the indentation to zero every Wraparound levels.
	// Zero is unbounded.
	Wraparound int
	// MinLevel drops events below it.
	MinLevel Level

	// ANSI enables colors, boldness and dimming.
	ANSI bool
	// IndentLines draws a box-drawing tree instead of whitespace.
	IndentLines bool
	// Targets renders the target of spans and events.
	Targets bool
	// ThreadIDs prefixes every line with the goroutine id.
	ThreadIDs bool
	// ThreadNames prefixes every line with the name set by WithThreadName.
	ThreadNames bool
	// VerboseEntry prints the parent again before a child is entered.
	VerboseEntry bool
	// VerboseExit prints the parent again after a child closed.
	VerboseExit bool
	// BracketedFields prints span fields as name{k=v} instead of name k=v.
	BracketedFields bool
	// DeferredSpans prints a span only once an event happens inside it.
	DeferredSpans bool
	// SpanModes labels banners with why they are printed (open, retrace...).
	SpanModes bool
	// SpanRetrace re-prints ancestors when focus moves between spans.
	SpanRetrace bool
	// VerboseRetrace also prints the parent of the first re-printed span when
	// a retrace is triggered by an event.
	VerboseRetrace bool
}

// DefaultConfig returns the defaults: two-column whitespace indentation,
// short elapsed times, output to stdout, colors when stdout is a terminal.
func DefaultConfig() Config {
	return Config{
		MakeWriter:   stdout,
		Timer:        NoTime{},
		Elapsed:      ShortElapsed{},
		Clock:        clockz.RealClock,
		IndentAmount: 2,
		ANSI:         isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()),
	}
}

func stdout() io.Writer { return os.Stdout }

func stderr() io.Writer { return os.Stderr }

// Validate reports options that cannot be rendered.
func (c Config) Validate() error {
	if c.IndentAmount <= 0 {
		return errors.Newf("indent amount must be positive, got %d", c.IndentAmount)
	}
	if c.Wraparound < 0 {
		return errors.Newf("wraparound must not be negative, got %d", c.Wraparound)
	}
	return nil
}

// withDefaults fills unset collaborators.
func (c Config) withDefaults() Config {
	if c.MakeWriter == nil {
		c.MakeWriter = stdout
	}
	if c.Timer == nil {
		c.Timer = NoTime{}
	}
	if c.Elapsed == nil {
		c.Elapsed = ShortElapsed{}
	}
	if c.Clock == nil {
		c.Clock = clockz.RealClock
	}
	if c.OnError == nil {
		c.OnError = func(err error) { panic(err) }
	}
	return c
}

// FileConfig is the TOML form of Config.
type FileConfig struct {
	Output          string `toml:"output"`
	Timer           string `toml:"timer"`
	Elapsed         string `toml:"elapsed"`
	MinLevel        string `toml:"min_level"`
	IndentAmount    int    `toml:"indent_amount"`
	Wraparound      int    `toml:"wraparound"`
	ANSI            *bool  `toml:"ansi"`
	IndentLines     bool   `toml:"indent_lines"`
	Targets         bool   `toml:"targets"`
	ThreadIDs       bool   `toml:"thread_ids"`
	ThreadNames     bool   `toml:"thread_names"`
	VerboseEntry    bool   `toml:"verbose_entry"`
	VerboseExit     bool   `toml:"verbose_exit"`
	BracketedFields bool   `toml:"bracketed_fields"`
	DeferredSpans   bool   `toml:"deferred_spans"`
	SpanModes       bool   `toml:"span_modes"`
	SpanRetrace     bool   `toml:"span_retrace"`
	VerboseRetrace  bool   `toml:"verbose_retrace"`
}

// LoadConfig reads config: defaults -> TOML file -> env vars (env wins).
// An empty path skips the file.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		var fc FileConfig
		if _, err := toml.DecodeFile(path, &fc); err != nil {
			return cfg, errors.Wrapf(err, "loading config %s", path)
		}
		if err := fc.apply(&cfg); err != nil {
			return cfg, errors.Wrapf(err, "loading config %s", path)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// ParseConfig decodes TOML text over the defaults.
func ParseConfig(data string) (Config, error) {
	cfg := DefaultConfig()
	var fc FileConfig
	if _, err := toml.Decode(data, &fc); err != nil {
		return cfg, errors.Wrap(err, "parsing config")
	}
	if err := fc.apply(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (fc FileConfig) apply(cfg *Config) error {
	switch strings.ToLower(fc.Output) {
	case "", "stdout":
	case "stderr":
		cfg.MakeWriter = stderr
	default:
		return errors.Newf("unknown output %q", fc.Output)
	}

	timer, err := ParseTimeFormat(fc.Timer, cfg.Clock)
	if err != nil {
		return err
	}
	if timer != nil {
		cfg.Timer = timer
	}
	elapsed, err := ParseTimeFormat(fc.Elapsed, cfg.Clock)
	if err != nil {
		return err
	}
	if elapsed != nil {
		cfg.Elapsed = elapsed
	}

	if fc.MinLevel != "" {
		level, err := ParseLevel(fc.MinLevel)
		if err != nil {
			return err
		}
		cfg.MinLevel = level
	}
	if fc.IndentAmount != 0 {
		cfg.IndentAmount = fc.IndentAmount
	}
	if fc.ANSI != nil {
		cfg.ANSI = *fc.ANSI
	}
	cfg.Wraparound = fc.Wraparound
	cfg.IndentLines = fc.IndentLines
	cfg.Targets = fc.Targets
	cfg.ThreadIDs = fc.ThreadIDs
	cfg.ThreadNames = fc.ThreadNames
	cfg.VerboseEntry = fc.VerboseEntry
	cfg.VerboseExit = fc.VerboseExit
	cfg.BracketedFields = fc.BracketedFields
	cfg.DeferredSpans = fc.DeferredSpans
	cfg.SpanModes = fc.SpanModes
	cfg.SpanRetrace = fc.SpanRetrace
	cfg.VerboseRetrace = fc.VerboseRetrace
	return nil
}

// Env overrides
func applyEnv(cfg *Config) error {
	for _, b := range []struct {
		dst *bool
		key string
	}{
		{&cfg.ANSI, "TREEZ_ANSI"},
		{&cfg.IndentLines, "TREEZ_INDENT_LINES"},
	} {
		v := os.Getenv(b.key)
		if v == "" {
			continue
		}
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrapf(err, "parsing %s", b.key)
		}
		*b.dst = parsed
	}
	if v := os.Getenv("TREEZ_WRAPAROUND"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "parsing TREEZ_WRAPAROUND")
		}
		cfg.Wraparound = n
	}
	return nil
}

// ParseTimeFormat maps a name to a bundled TimeFormat: none, utc, local,
// uptime, short or precise. The empty name returns nil.
func ParseTimeFormat(name string, clock clockz.Clock) (TimeFormat, error) {
	switch strings.ToLower(name) {
	case "":
		return nil, nil
	case "none":
		return NoTime{}, nil
	case "utc":
		return UTCDateTime{}, nil
	case "local":
		return LocalDateTime{}, nil
	case "uptime":
		return NewUptime(clock), nil
	case "short":
		return ShortElapsed{}, nil
	case "precise":
		return PreciseElapsed{}, nil
	default:
		return nil, errors.Newf("unknown time format %q", name)
	}
}

// ParseLevel parses a level name, case-insensitively.
func ParseLevel(name string) (Level, error) {
	for l := LevelTrace; l <= LevelError; l++ {
		if strings.EqualFold(name, l.String()) {
			return l, nil
		}
	}
	return LevelTrace, errors.Newf("unknown level %q", name)
}
