package procedure

import (
	"io"
	"regexp"

	"golang.org/x/sys/unix"

	"github.com/desertwitch/scriptfs/internal/mirror"
)

// Test decides whether the file at a mirror-relative path should be treated
// as a script.
type Test interface {
	Match(mr *mirror.Root, relPath string) bool
}

// AlwaysTest matches every file.
type AlwaysTest struct{}

// Match implements Test.
func (AlwaysTest) Match(*mirror.Root, string) bool { return true }

// NeverTest matches no file. It is used when a pattern test was given an
// invalid regular expression, the same fail-closed behavior the original
// implementation falls back to.
type NeverTest struct{}

// Match implements Test.
func (NeverTest) Match(*mirror.Root, string) bool { return false }

// ExecutableTest matches files that carry the execute bit in the mirror.
type ExecutableTest struct{}

// Match implements Test.
func (ExecutableTest) Match(mr *mirror.Root, relPath string) bool {
	abs, err := mr.Resolve(relPath)
	if err != nil {
		return false
	}

	return unix.Access(abs, unix.X_OK) == nil
}

// ShebangTest matches files whose first two bytes are "#!".
type ShebangTest struct{}

// Match implements Test.
func (ShebangTest) Match(mr *mirror.Root, relPath string) bool {
	f, err := mr.Open(relPath)
	if err != nil {
		return false
	}
	defer f.Close()

	var magic [2]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		return false
	}

	return magic[0] == '#' && magic[1] == '!'
}

// ShebangOrExecutableTest matches files that are either shell scripts (per
// ShebangTest) or already executable (per ExecutableTest). It is the default
// test paired with the default ("AUTO") shell program.
type ShebangOrExecutableTest struct{}

// Match implements Test.
func (ShebangOrExecutableTest) Match(mr *mirror.Root, relPath string) bool {
	return ShebangTest{}.Match(mr, relPath) || ExecutableTest{}.Match(mr, relPath)
}

// PatternTest matches files whose mirror-relative path matches a regular
// expression. The original syntax is POSIX basic/extended regex via
// regcomp(3); Go's regexp.CompilePOSIX (leftmost-longest POSIX-ERE
// semantics) is the closest equivalent available without a third-party
// dependency dedicated to POSIX BRE, which the retrieval pack does not
// provide.
type PatternTest struct {
	Regexp *regexp.Regexp
}

// Match implements Test.
func (t *PatternTest) Match(_ *mirror.Root, relPath string) bool {
	if t.Regexp == nil {
		return false
	}

	return t.Regexp.MatchString(relPath)
}

// ProgramTest matches files for which an external program exits with status
// zero.
type ProgramTest struct {
	cmd command
}

// Match implements Test.
func (t *ProgramTest) Match(mr *mirror.Root, relPath string) bool {
	code, err := t.cmd.run(mr, relPath, nil)

	return err == nil && code == 0
}
