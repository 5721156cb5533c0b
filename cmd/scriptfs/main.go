/*
scriptfs is a FUSE filesystem that mirrors a directory tree as a
pass-through view and, for files matched by operator-supplied rules,
replaces their content on read with the captured stdout of a spawned
program instead of their raw bytes. Such matched files are read-only
through the mount; all other operations go straight to the mirror.

A rule (a "procedure") pairs a test with a program:

  - the test decides whether a given mirrored path should be treated as a
    script (always, never, executable-bit, shebang, a pattern, or the exit
    status of another program);
  - the program decides what to run when a matched file is opened (the file
    itself, interpreted by its own shebang, or a fixed external command,
    optionally fed the file's content or a temporary copy of it).

Procedures are consulted in command-line order; the first one whose test
matches a given path wins. When no `-p` procedure is given at all, ScriptFS
falls back to treating every shebang or executable file in the mirror as a
shell script run through its own interpreter.

# USAGE

	scriptfs [-p PROCEDURE]... [-o KEY[=VAL]]... [--config FILE]
	         [--log-level debug|info|warn|error] [--json]
	         [--allow-other] [--foreground] [--debug-fuse]
	         MIRROR MOUNTPOINT

# ARGUMENTS

	MIRROR
		Required. Absolute path to the directory tree being mirrored.

	MOUNTPOINT
		Required. Absolute path where the mirrored (and script-substituted)
		view of MIRROR is mounted. Must not itself live inside MIRROR.

	-p PROCEDURE
		Optional. Can be repeated; each occurrence appends a procedure,
		consulted in the order given. A procedure has the form
		"program[;test]"; when the test half is omitted, a default is
		inferred from the program half.

		Default, when no -p is given at all: every shebang or already
		executable file is run through its own interpreter (equivalent to
		"AUTO").

	-o KEY[=VAL]
		Optional. Can be repeated; passed through as a raw libfuse/go-fuse
		mount option.

	--config string
		Optional. Path to a YAML configuration file. Direct CLI flags always
		override values set via the configuration file.

	--log-level [debug|info|warn|error]
		Optional. Controls verbosity of the operational logs that are
		emitted.

		Default: info

	--json
		Optional. Outputs operational logs in JSON format on stderr.

		Default: false

	--allow-other
		Optional. Requests the FUSE "allow_other" mount option.

		Default: false

	--foreground
		Optional. Prints a "mounted, ctrl-c to exit" banner and stays
		attached to the terminal; go-fuse never double-forks, so this flag
		only controls that banner.

		Default: false

	--debug-fuse
		Optional. Enables the raw FUSE protocol trace, independent of
		--log-level.

		Default: false

# YAML CONFIGURATION EXAMPLE

	mirror: /srv/scripts
	mountpoint: /mnt/scripts
	procedures:
	  - "/usr/bin/php !;&\\.php$"
	options:
	  - ro
	log-level: info
	json: false
	allow-other: false

# RETURN CODES

  - `0`: success (clean unmount or signal-driven shutdown)
  - `2`: unparseable flags (the flag package exits by itself; -h exits
    with 0)
  - `64`: bad CLI usage (missing MIRROR or MOUNTPOINT, unrecognized
    --log-level); also returned when mounting fails, when an internal
    panic is recovered, and when unmounting after a signal times out
  - `77`: mirror directory does not exist, is not a directory, or could
    not be opened
  - `78`: missing or malformed --config YAML, or any other validation
    failure

Errors from the FUSE library are not passed on as exit codes of their own.

# SECURITY, CONTRIBUTIONS AND LICENSING

Please report any issues via the GitHub Issues tracker. Contributions
should be submitted through GitHub and, if possible, should pass the test
suite and comply with the project's linting rules. All code is licensed
under the GPLv2 license.
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/spf13/afero"

	"github.com/desertwitch/scriptfs/internal/mirror"
	"github.com/desertwitch/scriptfs/internal/scriptfs"
)

const (
	exitCodeSuccess = 0
	exitCodeUsage   = 64
	exitCodeNoPerm  = 77
	exitCodeConfig  = 78

	defaultLogLevel = slog.LevelInfo

	exitTimeout = 10 * time.Second
)

var (
	// Version is the application's version (filled in during compilation).
	Version string

	errArgConfigMalformed     = errors.New("--config yaml file is malformed")
	errArgConfigMissing       = errors.New("--config yaml file does not exist")
	errArgMissingPositional   = errors.New("MIRROR and MOUNTPOINT arguments must both be given")
	errArgInvalidLogLevel     = errors.New("--log-level has a not recognized value")
	errMirrorNotExist         = errors.New("mirror directory does not exist")
	errMirrorNotDir           = errors.New("mirror path is not a directory")
	errMountpointNotExist     = errors.New("mountpoint does not exist")
	errMountpointNotDir       = errors.New("mountpoint path is not a directory")
	errMountpointInsideMirror = errors.New("mountpoint cannot be inside the mirror directory")
	errMirrorMountpointSame   = errors.New("mirror and mountpoint paths cannot be the same")
)

type program struct {
	fsys   afero.Fs
	stdout io.Writer
	stderr io.Writer

	opts *programOptions

	log   *slog.Logger
	flags *flag.FlagSet

	server *fuse.Server
}

type programOptions struct {
	MirrorRoot string     `yaml:"mirror"`
	Mountpoint string     `yaml:"mountpoint"`
	Procedures excludeArg `yaml:"procedures"`
	MountOpts  excludeArg `yaml:"options"`
	LogLevel   string     `yaml:"log-level"`
	JSON       bool       `yaml:"json"`
	AllowOther bool       `yaml:"allow-other"`
	Foreground bool       `yaml:"foreground"`
	DebugFuse  bool       `yaml:"debug-fuse"`
}

func main() {
	var prog *program
	var exitCode int

	defer func() {
		if prog != nil {
			prog.log.Info("program exited", "code", exitCode)
		}
		os.Exit(exitCode)
	}()

	fmt.Fprintf(os.Stdout, "ScriptFS (v%s) - serve script output through a mirrored filesystem.\n", Version)
	fmt.Fprintf(os.Stdout, "(c) 2026 - desertwitch (Rysz) / License: GNU General Public License v2\n\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	doneChan := make(chan int, 1)

	prog, err := newProgram(os.Args, afero.NewOsFs(), os.Stdout, os.Stderr)
	if prog == nil || err != nil {
		switch {
		case errors.Is(err, errArgMissingPositional), errors.Is(err, errArgInvalidLogLevel):
			exitCode = exitCodeUsage
		case errors.Is(err, errMirrorNotExist), errors.Is(err, errMirrorNotDir):
			exitCode = exitCodeNoPerm
		default:
			exitCode = exitCodeConfig
		}

		return
	}

	go func() {
		exitCode, _ := prog.run(ctx)
		doneChan <- exitCode
	}()

	select {
	case code := <-doneChan:
		exitCode = code

		return

	case <-sigChan:
		prog.log.Warn("received interrupt signal; unmounting (waiting up to 10s)...")

		if prog.server != nil {
			_ = prog.server.Unmount()
		}

		cancel()

		select {
		case code := <-doneChan:
			exitCode = code

			return

		case <-time.After(exitTimeout):
			prog.log.Error("timed out while waiting for unmount; exiting...", "error-type", "fatal")
			exitCode = exitCodeUsage

			return
		}
	}
}

func newProgram(cliArgs []string, fsys afero.Fs, stdout io.Writer, stderr io.Writer) (*program, error) {
	prog := &program{
		fsys:   fsys,
		stdout: stdout,
		stderr: stderr,
		opts:   &programOptions{},
	}

	if err := prog.parseArgs(cliArgs); err != nil {
		fmt.Fprintf(prog.stderr, "fatal: failed to parse configuration: %v\n\n", err)
		prog.flags.Usage()

		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := prog.printOpts(); err != nil {
		fmt.Fprintf(prog.stderr, "fatal: failed to print configuration: %v\n\n", err)

		return nil, fmt.Errorf("failed to print configuration: %w", err)
	}

	prog.log = slog.New(prog.logHandler())

	if err := prog.preflight(); err != nil {
		prog.log.Error("pre-flight validation failed", "error", err, "error-type", "fatal")

		return nil, fmt.Errorf("pre-flight validation failed: %w", err)
	}

	return prog, nil
}

func (prog *program) run(ctx context.Context) (retExitCode int, retError error) {
	defer func() {
		if r := recover(); r != nil {
			prog.log.Error("internal panic recovered", "error", r, "error-type", "fatal")
			debug.PrintStack()
			retExitCode = exitCodeUsage
		}
	}()

	mr, err := mirror.NewRoot(prog.opts.MirrorRoot)
	if err != nil {
		prog.log.Error("failed opening mirror root", "error", err, "error-type", "fatal")

		return exitCodeNoPerm, fmt.Errorf("failed opening mirror root: %w", err)
	}

	procs := prog.parseProcedures()

	fsys := scriptfs.New(mr, procs, prog.log)

	rawFS := fs.NewNodeFS(fsys.Root(), &fs.Options{})

	mOpts := &fuse.MountOptions{
		AllowOther: prog.opts.AllowOther,
		Debug:      prog.opts.DebugFuse,
		Options:    prog.opts.MountOpts,
	}

	server, err := fuse.NewServer(rawFS, prog.opts.Mountpoint, mOpts)
	if err != nil {
		prog.log.Error("failed mounting filesystem", "error", err, "error-type", "fatal")

		return exitCodeUsage, fmt.Errorf("failed mounting filesystem: %w", err)
	}

	prog.server = server

	go server.Serve()

	if err := server.WaitMount(); err != nil {
		prog.log.Error("failed waiting for mount", "error", err, "error-type", "fatal")

		return exitCodeUsage, fmt.Errorf("failed waiting for mount: %w", err)
	}

	if prog.opts.Foreground {
		fmt.Fprintf(prog.stdout, "mounted %q at %q; ctrl-c to exit\n", prog.opts.MirrorRoot, prog.opts.Mountpoint)
	}

	prog.log.Info("mounted filesystem",
		"mirror", prog.opts.MirrorRoot,
		"mountpoint", prog.opts.Mountpoint,
		"procedures", len(procs),
	)

	go func() {
		<-ctx.Done()
		_ = server.Unmount()
	}()

	server.Wait()

	prog.log.Info("unmounted; exiting...")

	return exitCodeSuccess, nil
}
