package main

import (
	"errors"
	"fmt"
	"os"
)

// preflight validates the mirror and mountpoint directories before any FUSE
// call is made; procedures are not checked here. It runs against the
// program's injected afero.Fs so it can be exercised without touching the
// real filesystem.
func (prog *program) preflight() error {
	mirrorInfo, err := prog.fsys.Stat(prog.opts.MirrorRoot)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %q", errMirrorNotExist, prog.opts.MirrorRoot)
	} else if err != nil {
		return fmt.Errorf("failed to stat: %q (%w)", prog.opts.MirrorRoot, err)
	} else if !mirrorInfo.IsDir() {
		return fmt.Errorf("%w: %q", errMirrorNotDir, prog.opts.MirrorRoot)
	}

	mountInfo, err := prog.fsys.Stat(prog.opts.Mountpoint)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %q", errMountpointNotExist, prog.opts.Mountpoint)
	} else if err != nil {
		return fmt.Errorf("failed to stat: %q (%w)", prog.opts.Mountpoint, err)
	} else if !mountInfo.IsDir() {
		return fmt.Errorf("%w: %q", errMountpointNotDir, prog.opts.Mountpoint)
	}

	if prog.opts.MirrorRoot == prog.opts.Mountpoint {
		return errMirrorMountpointSame
	}

	if isInside(prog.opts.MirrorRoot, prog.opts.Mountpoint) {
		return fmt.Errorf("%w: %q", errMountpointInsideMirror, prog.opts.Mountpoint)
	}

	return nil
}
