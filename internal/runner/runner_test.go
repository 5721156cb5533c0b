package runner

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCapturesStdout(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer

	code, err := Run(Request{
		Path:   "/bin/echo",
		Args:   []string{"echo", "hello"},
		Stdout: &out,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "hello\n", out.String())
}

func TestRunExitCode(t *testing.T) {
	t.Parallel()

	code, err := Run(Request{
		Path: "/bin/sh",
		Args: []string{"sh", "-c", "exit 3"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, code)
}

func TestRunStdin(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer

	code, err := Run(Request{
		Path:   "/bin/cat",
		Args:   []string{"cat"},
		Stdin:  strings.NewReader("piped content"),
		Stdout: &out,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "piped content", out.String())
}

func TestRunMissingExecutable(t *testing.T) {
	t.Parallel()

	_, err := Run(Request{Path: "/does/not/exist"})
	assert.Error(t, err)
}

func TestCopyTemp(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "script.sh")
	require.NoError(t, os.WriteFile(src, []byte("#!/bin/sh\necho hi\n"), 0o644))

	tmp, err := CopyTemp(src)
	require.NoError(t, err)
	defer os.Remove(tmp)

	info, err := os.Stat(tmp)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o500), info.Mode().Perm())

	content, err := os.ReadFile(tmp)
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/sh\necho hi\n", string(content))
}
