package scriptfs

import (
	"context"
	"io"
	"os"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// fileHandle backs one open regular file or script output spool. script is
// set for the latter, an unlinked temporary file holding a program's
// captured stdout; writes to it are rejected the same way the original
// implementation refuses to let a script's synthesized content be
// overwritten through the mount.
type fileHandle struct {
	file   *os.File
	script bool
}

var (
	_ fs.FileHandle   = (*fileHandle)(nil)
	_ fs.FileReader   = (*fileHandle)(nil)
	_ fs.FileWriter   = (*fileHandle)(nil)
	_ fs.FileReleaser = (*fileHandle)(nil)
	_ fs.FileFlusher  = (*fileHandle)(nil)
	_ fs.FileFsyncer  = (*fileHandle)(nil)
)

// Read implements fs.FileReader.
func (h *fileHandle) Read(_ context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	n, err := h.file.ReadAt(dest, off)
	if err != nil && err != io.EOF {
		return nil, fs.ToErrno(err)
	}

	return fuse.ReadResultData(dest[:n]), fs.OK
}

// Write implements fs.FileWriter.
func (h *fileHandle) Write(_ context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	if h.script {
		return 0, syscall.EACCES
	}

	n, err := h.file.WriteAt(data, off)
	if err != nil {
		return 0, fs.ToErrno(err)
	}

	return uint32(n), fs.OK
}

// Release implements fs.FileReleaser.
func (h *fileHandle) Release(_ context.Context) syscall.Errno {
	return fs.ToErrno(h.file.Close())
}

// Flush implements fs.FileFlusher.
func (h *fileHandle) Flush(_ context.Context) syscall.Errno {
	if h.script {
		return fs.OK
	}

	return fs.ToErrno(h.file.Sync())
}

// Fsync implements fs.FileFsyncer.
func (h *fileHandle) Fsync(_ context.Context, _ uint32) syscall.Errno {
	if h.script {
		return fs.OK
	}

	return fs.ToErrno(h.file.Sync())
}
