package procedure

import (
	"fmt"
	"io"
	"os"

	"github.com/desertwitch/scriptfs/internal/mirror"
	"github.com/desertwitch/scriptfs/internal/runner"
)

// Program synthesizes the content that is served when a script file is read:
// it executes a command and writes its output to out.
type Program interface {
	Run(mr *mirror.Root, relPath string, out *os.File) error
}

// command is the shared machinery behind ExternalProgram and ProgramTest:
// both run an external executable against a mirror-relative path, optionally
// substituting a temporary copy of the file into the argument vector, or
// piping the file's content to the program's standard input.
type command struct {
	Path   string
	Argv   ArgvTemplate
	Filter bool
}

// run executes the command and returns the child's exit code. out may be
// nil, in which case the child's standard output is discarded.
func (c command) run(mr *mirror.Root, relPath string, out io.Writer) (int, error) {
	args := append([]string(nil), c.Argv.Args...)

	var stdin io.Reader

	if c.Argv.FileSlot >= 0 {
		abs, err := mr.Resolve(relPath)
		if err != nil {
			return -1, err
		}

		tmp, err := runner.CopyTemp(abs)
		if err != nil {
			return -1, err
		}
		defer os.Remove(tmp)

		args[c.Argv.FileSlot] = tmp
	} else if c.Filter {
		if f, err := mr.Open(relPath); err == nil {
			defer f.Close()

			stdin = f
		}
		// Open failure silently skips the piping step; the child still
		// runs, reading an empty stdin.
	}

	return runner.Run(runner.Request{
		Path:   c.Path,
		Args:   args,
		Stdin:  stdin,
		Stdout: out,
	})
}

// ShellProgram runs the script file itself as the interpreted program: the
// file is copied to a temporary, owner-executable location (since the
// mirror copy need not carry the execute bit) and executed directly,
// letting the kernel interpret any "#!" line the normal way.
type ShellProgram struct{}

// Run implements Program.
func (ShellProgram) Run(mr *mirror.Root, relPath string, out *os.File) error {
	abs, err := mr.Resolve(relPath)
	if err != nil {
		return err
	}

	tmp, err := runner.CopyTemp(abs)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)

	if _, err := runner.Run(runner.Request{
		Path:   tmp,
		Args:   []string{tmp},
		Stdout: out,
	}); err != nil {
		return fmt.Errorf("failed running shell program for %q: %w", relPath, err)
	}

	return nil
}

// ExternalProgram runs a fixed external command against the file, per the
// argument-vector and filter rules parsed from its command-line string.
type ExternalProgram struct {
	cmd command
}

// Run implements Program.
func (p *ExternalProgram) Run(mr *mirror.Root, relPath string, out *os.File) error {
	if _, err := p.cmd.run(mr, relPath, out); err != nil {
		return fmt.Errorf("failed running external program for %q: %w", relPath, err)
	}

	return nil
}
