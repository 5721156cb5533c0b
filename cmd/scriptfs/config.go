package main

import (
	"flag"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/yaml.v3"

	"github.com/desertwitch/scriptfs/internal/procedure"
)

func (prog *program) parseArgs(cliArgs []string) error {
	var (
		yamlFile string
		yamlOpts programOptions
	)

	prog.flags = flag.NewFlagSet("scriptfs", flag.ExitOnError)
	prog.flags.SetOutput(prog.stderr)
	prog.flags.Usage = func() {
		fmt.Fprintf(prog.stderr, "usage: %q [-p PROCEDURE]... [-o KEY[=VAL]]... MIRROR MOUNTPOINT\n", cliArgs[0])
		fmt.Fprintf(prog.stderr, "\t[--config FILE] [--log-level=debug|info|warn|error] [--json]\n")
		fmt.Fprintf(prog.stderr, "\t[--allow-other] [--foreground] [--debug-fuse]\n\n")
		prog.flags.PrintDefaults()
	}

	prog.flags.StringVar(&yamlFile, "config", "", "path to a yaml configuration file")
	prog.flags.Var(&prog.opts.Procedures, "p", "a procedure (\"program[;test]\"); can be repeated, consulted in order")
	prog.flags.Var(&prog.opts.MountOpts, "o", "a raw mount option; can be repeated")
	prog.flags.StringVar(&prog.opts.LogLevel, "log-level", "info", "decides the verbosity of emitted logs; debug, info, warn, error")
	prog.flags.BoolVar(&prog.opts.JSON, "json", false, "output all emitted logs in the JSON format; results can be read from stderr")
	prog.flags.BoolVar(&prog.opts.AllowOther, "allow-other", false, "request the FUSE allow_other mount option")
	prog.flags.BoolVar(&prog.opts.Foreground, "foreground", false, "print a mounted banner and stay attached to the terminal")
	prog.flags.BoolVar(&prog.opts.DebugFuse, "debug-fuse", false, "enable the raw FUSE protocol trace")

	if err := prog.flags.Parse(cliArgs[1:]); err != nil {
		return fmt.Errorf("failed parsing flags: %w", err)
	}

	setFlags := make(map[string]bool)
	prog.flags.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	if args := prog.flags.Args(); len(args) > 0 {
		prog.opts.MirrorRoot = args[0]
		if len(args) > 1 {
			prog.opts.Mountpoint = args[1]
		}
	}

	if yamlFile != "" {
		f, err := prog.fsys.Open(yamlFile)
		if err != nil {
			return fmt.Errorf("%w: %w", errArgConfigMissing, err)
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)

		if err := dec.Decode(&yamlOpts); err != nil {
			return fmt.Errorf("%w: %w", errArgConfigMalformed, err)
		}
	}

	if prog.opts.MirrorRoot == "" {
		prog.opts.MirrorRoot = yamlOpts.MirrorRoot
	}
	if prog.opts.Mountpoint == "" {
		prog.opts.Mountpoint = yamlOpts.Mountpoint
	}
	if !setFlags["p"] {
		prog.opts.Procedures = append(excludeArg(nil), yamlOpts.Procedures...)
	}
	if !setFlags["o"] {
		prog.opts.MountOpts = append(excludeArg(nil), yamlOpts.MountOpts...)
	}
	if !setFlags["log-level"] {
		prog.opts.LogLevel = yamlOpts.LogLevel
	}
	if !setFlags["json"] {
		prog.opts.JSON = yamlOpts.JSON
	}
	if !setFlags["allow-other"] {
		prog.opts.AllowOther = yamlOpts.AllowOther
	}
	if !setFlags["foreground"] {
		prog.opts.Foreground = yamlOpts.Foreground
	}
	if !setFlags["debug-fuse"] {
		prog.opts.DebugFuse = yamlOpts.DebugFuse
	}

	return prog.validateOpts()
}

func (prog *program) validateOpts() error {
	if prog.opts.MirrorRoot == "" || prog.opts.Mountpoint == "" {
		return errArgMissingPositional
	}

	prog.opts.MirrorRoot = filepath.Clean(strings.TrimSpace(prog.opts.MirrorRoot))
	prog.opts.Mountpoint = filepath.Clean(strings.TrimSpace(prog.opts.Mountpoint))

	if prog.opts.LogLevel != "" {
		if _, err := parseLogLevel(prog.opts.LogLevel); err != nil {
			return fmt.Errorf("%w: %q", err, prog.opts.LogLevel)
		}
	} else {
		prog.opts.LogLevel = strings.ToLower(defaultLogLevel.String())
	}

	return nil
}

func (prog *program) printOpts() error {
	out, err := yaml.Marshal(prog.opts)
	if err != nil {
		return fmt.Errorf("failed printing configuration: %w", err)
	}

	fmt.Fprintf(prog.stdout, "configuration:\n")

	lines := strings.SplitSeq(string(out), "\n")
	for line := range lines {
		if line != "" {
			fmt.Fprintf(prog.stdout, "\t%s\n", line)
		}
	}

	fmt.Fprintln(prog.stdout)

	return nil
}

func (prog *program) logHandler() slog.Handler {
	var logHandler slog.Handler

	logLevel, _ := parseLogLevel(prog.opts.LogLevel)

	if prog.opts.JSON {
		logHandler = slog.NewJSONHandler(prog.stderr, &slog.HandlerOptions{
			Level: logLevel,
		})
	} else {
		logHandler = tint.NewHandler(prog.stderr,
			&tint.Options{
				Level:      logLevel,
				TimeFormat: time.TimeOnly,
			})
	}

	return logHandler
}

// parseProcedures parses the configured -p procedure strings, dropping (and
// logging) any that fail to parse, and falls back to the default procedure
// when none were given at all.
func (prog *program) parseProcedures() procedure.List {
	if len(prog.opts.Procedures) == 0 {
		return procedure.List{procedure.DefaultProcedure()}
	}

	var list procedure.List

	for _, s := range prog.opts.Procedures {
		proc, err := procedure.ParseProcedure(s)
		if err != nil {
			prog.log.Warn("dropping invalid procedure", "procedure", s, "error", err)

			continue
		}

		list = append(list, proc)
	}

	if len(list) == 0 {
		return procedure.List{procedure.DefaultProcedure()}
	}

	return list
}
