package procedure

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/desertwitch/scriptfs/internal/mirror"
)

var (
	errEmptyProgram   = errors.New("program string is empty")
	errEmptyTest      = errors.New("test string is empty")
	errEmptyProcedure = errors.New("procedure string is empty")
	errNotExecutable  = errors.New("path can not be found or executed")
)

// Procedure pairs a Test with the Program run on files it matches.
type Procedure struct {
	Program Program
	Test    Test
}

// List is an ordered set of procedures, consulted in command-line order.
type List []*Procedure

// Find returns the first procedure in the list whose test matches relPath,
// or nil if none do.
func (l List) Find(mr *mirror.Root, relPath string) *Procedure {
	for _, p := range l {
		if p.Test != nil && p.Test.Match(mr, relPath) {
			return p
		}
	}

	return nil
}

// DefaultProcedure is used when no "-p" procedures were given on the
// command line: every shell-shebang or already-executable file is treated
// as a script and run through its own interpreter.
func DefaultProcedure() *Procedure {
	return &Procedure{
		Program: ShellProgram{},
		Test:    ShebangOrExecutableTest{},
	}
}

// ParseProgram parses the program half of a "-p" command-line argument.
func ParseProgram(s string) (Program, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "AUTO") {
		return ShellProgram{}, nil
	}

	path, argv, ok := tokenizeCommand(s)
	if !ok {
		return nil, errEmptyProgram
	}

	if err := checkExecutable(path); err != nil {
		return nil, fmt.Errorf("program %q: %w", path, err)
	}

	return &ExternalProgram{cmd: command{Path: path, Argv: argv, Filter: true}}, nil
}

// ParseTest parses the test half of a "-p" command-line argument.
func ParseTest(s string) (Test, error) {
	s = strings.TrimSpace(s)

	switch {
	case s == "" || strings.EqualFold(s, "ALWAYS"):
		return AlwaysTest{}, nil

	case strings.EqualFold(s, "EXECUTABLE"):
		return ExecutableTest{}, nil

	case strings.HasPrefix(s, "&"):
		re, err := regexp.CompilePOSIX(s[1:])
		if err != nil {
			// An invalid pattern never matches, rather than aborting startup.
			return NeverTest{}, nil
		}

		return &PatternTest{Regexp: re}, nil

	default:
		path, argv, ok := tokenizeCommand(s)
		if !ok {
			return nil, errEmptyTest
		}

		if err := checkExecutable(path); err != nil {
			return nil, fmt.Errorf("test %q: %w", path, err)
		}

		return &ProgramTest{cmd: command{Path: path, Argv: argv, Filter: true}}, nil
	}
}

// ParseProcedure parses a full "-p program[;test]" command-line argument.
// When no test half is given, the test defaults to whatever naturally
// pairs with the parsed program: the same external command for an external
// program, or ShebangOrExecutableTest for a shell program.
func ParseProcedure(s string) (*Procedure, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errEmptyProcedure
	}

	progPart, testPart, hasTest := strings.Cut(s, ";")

	prog, err := ParseProgram(progPart)
	if err != nil {
		return nil, err
	}

	var test Test

	if hasTest {
		test, err = ParseTest(testPart)
		if err != nil {
			return nil, err
		}
	} else {
		switch prog.(type) {
		case *ExternalProgram:
			test, err = ParseTest(progPart)
			if err != nil {
				return nil, err
			}
		case ShellProgram:
			test = ShebangOrExecutableTest{}
		}
	}

	return &Procedure{Program: prog, Test: test}, nil
}

func checkExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %w", errNotExecutable, err)
	}

	if !info.Mode().IsRegular() {
		return errNotExecutable
	}

	if unix.Access(path, unix.X_OK) != nil {
		return errNotExecutable
	}

	return nil
}
