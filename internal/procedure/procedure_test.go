package procedure

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertwitch/scriptfs/internal/mirror"
)

func TestParseProgramAuto(t *testing.T) {
	t.Parallel()

	prog, err := ParseProgram("")
	require.NoError(t, err)
	assert.IsType(t, ShellProgram{}, prog)

	prog, err = ParseProgram("auto")
	require.NoError(t, err)
	assert.IsType(t, ShellProgram{}, prog)
}

func TestParseProgramExternal(t *testing.T) {
	t.Parallel()

	prog, err := ParseProgram("/bin/cat !")
	require.NoError(t, err)

	ext, ok := prog.(*ExternalProgram)
	require.True(t, ok)
	assert.Equal(t, "/bin/cat", ext.cmd.Path)
	assert.Equal(t, 1, ext.cmd.Argv.FileSlot)
}

func TestParseProgramNotExecutable(t *testing.T) {
	t.Parallel()

	_, err := ParseProgram("/does/not/exist")
	assert.Error(t, err)
}

func TestParseTestVariants(t *testing.T) {
	t.Parallel()

	test, err := ParseTest("")
	require.NoError(t, err)
	assert.IsType(t, AlwaysTest{}, test)

	test, err = ParseTest("executable")
	require.NoError(t, err)
	assert.IsType(t, ExecutableTest{}, test)

	test, err = ParseTest("&\\.sh$")
	require.NoError(t, err)
	pt, ok := test.(*PatternTest)
	require.True(t, ok)
	assert.True(t, pt.Match(nil, "foo.sh"))
	assert.False(t, pt.Match(nil, "foo.txt"))

	test, err = ParseTest("&(")
	require.NoError(t, err)
	assert.IsType(t, NeverTest{}, test)
}

func TestParseProcedureDefaultsTest(t *testing.T) {
	t.Parallel()

	proc, err := ParseProcedure("/bin/cat !")
	require.NoError(t, err)
	assert.IsType(t, &ExternalProgram{}, proc.Program)
	assert.IsType(t, &ProgramTest{}, proc.Test)

	proc, err = ParseProcedure("auto")
	require.NoError(t, err)
	assert.IsType(t, ShellProgram{}, proc.Program)
	assert.IsType(t, ShebangOrExecutableTest{}, proc.Test)
}

func TestParseProcedureExplicitTest(t *testing.T) {
	t.Parallel()

	proc, err := ParseProcedure("auto;always")
	require.NoError(t, err)
	assert.IsType(t, ShellProgram{}, proc.Program)
	assert.IsType(t, AlwaysTest{}, proc.Test)
}

func TestParseProcedureEmpty(t *testing.T) {
	t.Parallel()

	_, err := ParseProcedure("")
	assert.ErrorIs(t, err, errEmptyProcedure)
}

func TestListFind(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "script.sh"), []byte("#!/bin/sh\necho hi\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plain.txt"), []byte("plain"), 0o644))

	root, err := mirror.NewRoot(dir)
	require.NoError(t, err)

	list := List{DefaultProcedure()}

	assert.NotNil(t, list.Find(root, mirror.Relative("/script.sh")))
	assert.Nil(t, list.Find(root, mirror.Relative("/plain.txt")))
}

func TestShellProgramRun(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "script.sh"), []byte("#!/bin/sh\necho output\n"), 0o644))

	root, err := mirror.NewRoot(dir)
	require.NoError(t, err)

	out, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer out.Close()

	require.NoError(t, ShellProgram{}.Run(root, mirror.Relative("/script.sh"), out))

	content, err := os.ReadFile(out.Name())
	require.NoError(t, err)
	assert.Equal(t, "output\n", string(content))
}

func TestExternalProgramRunFilterStillRunsOnOpenFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	root, err := mirror.NewRoot(dir)
	require.NoError(t, err)

	prog, err := ParseProgram("/bin/cat")
	require.NoError(t, err)

	out, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer out.Close()

	require.NoError(t, prog.Run(root, mirror.Relative("/does-not-exist.txt"), out))

	content, err := os.ReadFile(out.Name())
	require.NoError(t, err)
	assert.Empty(t, string(content))
}

func TestExternalProgramRunFilter(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.txt"), []byte("payload"), 0o644))

	root, err := mirror.NewRoot(dir)
	require.NoError(t, err)

	prog, err := ParseProgram("/bin/cat")
	require.NoError(t, err)

	out, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer out.Close()

	require.NoError(t, prog.Run(root, mirror.Relative("/data.txt"), out))

	content, err := os.ReadFile(out.Name())
	require.NoError(t, err)
	assert.Equal(t, "payload", string(content))
}
