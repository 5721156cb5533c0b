// Package runner spawns the child processes that back ScriptFS's test and
// program rules: a single bounded run-to-completion invocation, with no
// cancellation and no timeout, matching the behavior of the original
// fork/exec/pipe machinery it replaces.
package runner

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// Request describes a single child-process invocation.
type Request struct {
	// Path is the absolute path of the executable.
	Path string
	// Args is the full argument vector, Args[0] conventionally naming the
	// program itself, matching the execve(2) convention.
	Args []string
	// Stdin, if non-nil, is piped to the child's standard input. If nil,
	// the child's standard input is the null device; it is not closed.
	Stdin io.Reader
	// Stdout, if non-nil, receives the child's standard output. If nil,
	// the child's standard output is discarded.
	Stdout io.Writer
}

// Run executes req and waits for it to complete. The returned exitCode is
// the process's real exit status; a non-zero exit code is not itself
// treated as an error; err is only non-nil when the process could not be
// started or its exit status could not be determined.
func Run(req Request) (exitCode int, err error) {
	var args []string
	if len(req.Args) > 1 {
		args = req.Args[1:]
	}

	cmd := exec.Command(req.Path, args...)
	cmd.Stdin = req.Stdin
	cmd.Stdout = req.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}

		return -1, fmt.Errorf("failed running %q: %w", req.Path, err)
	}

	return 0, nil
}

// CopyTemp copies the file at srcAbsPath into a new, owner-readable and
// owner-executable temporary file and returns its path. The caller is
// responsible for removing the temporary file once it is no longer needed,
// mirroring the mkstemp-then-unlink-after-use idiom of the original
// implementation (unlink is deferred here until after use, rather than
// immediately, since the file must still be reachable by path for exec).
func CopyTemp(srcAbsPath string) (string, error) {
	src, err := os.Open(srcAbsPath)
	if err != nil {
		return "", fmt.Errorf("failed opening %q for temp copy: %w", srcAbsPath, err)
	}
	defer src.Close()

	dst, err := os.CreateTemp("", "scriptfs.*")
	if err != nil {
		return "", fmt.Errorf("failed creating temp file: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())

		return "", fmt.Errorf("failed copying %q to temp file: %w", srcAbsPath, err)
	}

	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())

		return "", fmt.Errorf("failed closing temp file: %w", err)
	}

	if err := os.Chmod(dst.Name(), 0o500); err != nil {
		os.Remove(dst.Name())

		return "", fmt.Errorf("failed marking temp file executable: %w", err)
	}

	return dst.Name(), nil
}
