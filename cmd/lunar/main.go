// Command lunar loads a precompiled Lua 5.1 chunk (luac.out by default),
// runs its main function and prints the returned values.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/muesli/termenv"
	"github.com/rs/zerolog"

	lunar "github.com/xirelogy/go-lunar"
	"github.com/xirelogy/go-lunar/internal/config"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	configPath string
	disasm     bool
	globals    bool
	decompile  bool
	format     string
	trace      bool
	limit      int
	maxFrames  int
	debugInfo  bool
	logLevel   string
	noColor    bool
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("lunar", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var opts options
	fs.StringVar(&opts.configPath, "config", "", "path to lunar.toml (default: search upwards from the working directory)")
	fs.BoolVar(&opts.disasm, "disasm", false, "print a disassembly of the chunk before running")
	fs.BoolVar(&opts.globals, "globals", false, "print a disassembly of function globals after running")
	fs.BoolVar(&opts.decompile, "decompile", false, "print reconstructed source instead of running")
	fs.StringVar(&opts.format, "format", "", "output format: text runs the chunk; json, yaml or cbor export it")
	fs.BoolVar(&opts.trace, "trace", false, "log every dispatched instruction")
	fs.IntVar(&opts.limit, "limit", 0, "instruction limit (0 for unlimited)")
	fs.IntVar(&opts.maxFrames, "max-frames", 0, "maximum call depth")
	fs.BoolVar(&opts.debugInfo, "debug-info", false, "parse debug sections instead of skipping them")
	fs.StringVar(&opts.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	fs.BoolVar(&opts.noColor, "no-color", false, "disable terminal colors")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: lunar [flags] [chunk]\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := loadConfig(fs, opts)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if err := execute(cfg, opts, stdout, stderr); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// loadConfig reads the configuration file and applies flags set on the command line.
func loadConfig(fs *flag.FlagSet, opts options) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if opts.configPath != "" {
		cfg, err = config.Load(opts.configPath)
	} else {
		cfg, err = config.FindAndLoad(".")
	}
	if err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		cfg.Chunk = fs.Arg(0)
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "format":
			cfg.Output.Format = opts.format
		case "trace":
			cfg.VM.Trace = opts.trace
		case "limit":
			cfg.VM.InstructionLimit = opts.limit
		case "max-frames":
			cfg.VM.MaxFrames = opts.maxFrames
		case "debug-info":
			cfg.Decode.DebugInfo = opts.debugInfo
		case "log-level":
			cfg.Log.Level = opts.logLevel
		case "no-color":
			cfg.Output.Color = !opts.noColor
		}
	})
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, stderr io.Writer) (zerolog.Logger, error) {
	level, err := cfg.LogLevel()
	if err != nil {
		return zerolog.Nop(), err
	}
	var logger zerolog.Logger
	if cfg.Log.Pretty {
		logger = zerolog.New(zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
			w.Out = stderr
			w.NoColor = !cfg.Output.Color
			w.TimeFormat = time.TimeOnly
		}))
	} else {
		logger = zerolog.New(stderr)
	}
	return logger.Level(level).With().Timestamp().Logger(), nil
}

func newOutput(cfg *config.Config, stdout io.Writer) *termenv.Output {
	if !cfg.Output.Color {
		return termenv.NewOutput(stdout, termenv.WithProfile(termenv.Ascii))
	}
	return termenv.NewOutput(stdout)
}

func execute(cfg *config.Config, opts options, stdout, stderr io.Writer) error {
	logger, err := newLogger(cfg, stderr)
	if err != nil {
		return err
	}
	out := newOutput(cfg, stdout)

	machine := lunar.NewVM()
	machine.SetLogger(logger)
	machine.SetDebugInfo(cfg.Decode.DebugInfo)
	machine.SetInstructionLimit(cfg.VM.InstructionLimit)
	machine.SetMaxFrames(cfg.VM.MaxFrames)
	if cfg.VM.Trace {
		machine.SetTraceHook(func(info lunar.TraceInfo) {
			logger.Debug().
				Str("op", info.Op).
				Str("func", info.Function).
				Int("pc", info.PC).
				Int("line", info.Line).
				Int("depth", info.Depth).
				Msg("step")
		})
	}
	if err := machine.LoadFile(cfg.Chunk); err != nil {
		return err
	}

	if cfg.Output.Format != "text" {
		return machine.Export(stdout, cfg.Output.Format)
	}
	if opts.decompile {
		src, err := machine.Decompile()
		if err != nil {
			return err
		}
		_, err = io.WriteString(stdout, src)
		return err
	}
	machine.SetOpcodeStyle(opcodeStyle(out))
	if opts.disasm {
		if err := machine.Disassemble(stdout); err != nil {
			return err
		}
	}

	values, err := machine.RunAsync(context.Background()).Await(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s %s\n",
		out.String("Output:").Bold(),
		out.String(lunar.FormatValues(values)).Foreground(termenv.ANSIBrightGreen))

	if opts.globals {
		return machine.DisassembleGlobals(stdout)
	}
	return nil
}

// opcodeStyle colors opcode names by category.
func opcodeStyle(out *termenv.Output) lunar.OpcodeStyle {
	return func(op, padded string) string {
		var color termenv.Color
		switch op {
		case "CALL", "TAILCALL", "RETURN", "CLOSURE":
			color = termenv.ANSIBrightMagenta
		case "ADD", "SUB", "MUL", "DIV", "MOD", "POW":
			color = termenv.ANSIBrightCyan
		case "LOADK", "GETGLOBAL", "SETGLOBAL":
			color = termenv.ANSIBlue
		default:
			return padded
		}
		return out.String(padded).Foreground(color).String()
	}
}
