// Package scriptfs implements the FUSE-facing half of ScriptFS: a
// pass-through mirror of a host directory in which files recognized as
// scripts are served as the stdout of a spawned program instead of their
// raw bytes.
package scriptfs

import (
	"log/slog"

	"github.com/hanwen/go-fuse/v2/fs"

	"github.com/desertwitch/scriptfs/internal/mirror"
	"github.com/desertwitch/scriptfs/internal/procedure"
)

// Filesystem holds the state shared by every node of one mounted instance.
type Filesystem struct {
	Mirror     *mirror.Root
	Procedures procedure.List
	Log        *slog.Logger
}

// New constructs a Filesystem ready to be mounted.
func New(mr *mirror.Root, procs procedure.List, log *slog.Logger) *Filesystem {
	return &Filesystem{
		Mirror:     mr,
		Procedures: procs,
		Log:        log,
	}
}

// Root returns the InodeEmbedder for the mount's root directory.
func (fsys *Filesystem) Root() fs.InodeEmbedder {
	return &Node{fsys: fsys, relPath: "."}
}

// find returns the procedure matching relPath, or nil if the path is not a
// script under any configured procedure.
func (fsys *Filesystem) find(relPath string) *procedure.Procedure {
	return fsys.Procedures.Find(fsys.Mirror, relPath)
}
