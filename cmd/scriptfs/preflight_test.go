package main

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPreflightProgram(t *testing.T, mirror, mountpoint string) *program {
	t.Helper()

	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll(mirror, 0o755))
	require.NoError(t, fsys.MkdirAll(mountpoint, 0o755))

	return &program{
		fsys: fsys,
		opts: &programOptions{MirrorRoot: mirror, Mountpoint: mountpoint},
	}
}

func TestPreflightOK(t *testing.T) {
	t.Parallel()

	prog := newPreflightProgram(t, "/mirror", "/mnt")
	assert.NoError(t, prog.preflight())
}

func TestPreflightMirrorMissing(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/mnt", 0o755))

	prog := &program{fsys: fsys, opts: &programOptions{MirrorRoot: "/mirror", Mountpoint: "/mnt"}}
	assert.ErrorIs(t, prog.preflight(), errMirrorNotExist)
}

func TestPreflightMountpointMissing(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/mirror", 0o755))

	prog := &program{fsys: fsys, opts: &programOptions{MirrorRoot: "/mirror", Mountpoint: "/mnt"}}
	assert.ErrorIs(t, prog.preflight(), errMountpointNotExist)
}

func TestPreflightSamePath(t *testing.T) {
	t.Parallel()

	prog := newPreflightProgram(t, "/mirror", "/mirror")
	assert.ErrorIs(t, prog.preflight(), errMirrorMountpointSame)
}

func TestPreflightMountpointInsideMirror(t *testing.T) {
	t.Parallel()

	prog := newPreflightProgram(t, "/mirror", "/mirror/sub")
	assert.ErrorIs(t, prog.preflight(), errMountpointInsideMirror)
}

func TestPreflightMirrorNotDir(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/mirror", []byte("x"), 0o644))
	require.NoError(t, fsys.MkdirAll("/mnt", 0o755))

	prog := &program{fsys: fsys, opts: &programOptions{MirrorRoot: "/mirror", Mountpoint: "/mnt"}}
	assert.ErrorIs(t, prog.preflight(), errMirrorNotDir)
}
