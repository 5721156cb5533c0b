package scriptfs

import (
	"context"
	"io"
	"os"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"golang.org/x/sys/unix"
)

// writeBits are the permission bits cleared on script files: a script's
// content is synthesized on read, so the mirror copy is never writable
// through the mount regardless of its real permissions.
const writeBits = 0o222

// Node is a single mirrored path: a directory, a plain file, or a script.
// Which of those a given path is can change between lookups, since it
// depends on the live state of the mirror and is never cached on the node
// itself.
type Node struct {
	fs.Inode

	fsys    *Filesystem
	relPath string
}

var (
	_ fs.InodeEmbedder  = (*Node)(nil)
	_ fs.NodeGetattrer  = (*Node)(nil)
	_ fs.NodeSetattrer  = (*Node)(nil)
	_ fs.NodeAccesser   = (*Node)(nil)
	_ fs.NodeLookuper   = (*Node)(nil)
	_ fs.NodeReaddirer  = (*Node)(nil)
	_ fs.NodeOpener     = (*Node)(nil)
	_ fs.NodeCreater    = (*Node)(nil)
	_ fs.NodeMkdirer    = (*Node)(nil)
	_ fs.NodeRmdirer    = (*Node)(nil)
	_ fs.NodeUnlinker   = (*Node)(nil)
	_ fs.NodeRenamer    = (*Node)(nil)
	_ fs.NodeSymlinker  = (*Node)(nil)
	_ fs.NodeLinker     = (*Node)(nil)
	_ fs.NodeReadlinker = (*Node)(nil)
	_ fs.NodeStatfser   = (*Node)(nil)
)

func (n *Node) abs() (string, error) {
	return n.fsys.Mirror.Resolve(n.relPath)
}

func (n *Node) child(name string) string {
	if n.relPath == "." {
		return name
	}

	return n.relPath + "/" + name
}

func (n *Node) isScript() bool {
	return n.fsys.find(n.relPath) != nil
}

func attrFromStat(st *syscall.Stat_t, out *fuse.Attr) {
	out.Ino = st.Ino
	out.Size = uint64(st.Size)
	out.Blocks = uint64(st.Blocks)
	out.Mode = st.Mode
	out.Nlink = uint32(st.Nlink)
	out.Owner = fuse.Owner{Uid: st.Uid, Gid: st.Gid}

	atime := time.Unix(st.Atim.Sec, st.Atim.Nsec)
	mtime := time.Unix(st.Mtim.Sec, st.Mtim.Nsec)
	ctime := time.Unix(st.Ctim.Sec, st.Ctim.Nsec)
	out.SetTimes(&atime, &mtime, &ctime)
}

func lstatAttr(abs string, out *fuse.Attr) error {
	var st syscall.Stat_t
	if err := syscall.Lstat(abs, &st); err != nil {
		return err
	}

	attrFromStat(&st, out)

	return nil
}

// maskScriptWriteBits clears the write permission bits on a regular file
// that a procedure matches, the mount-time equivalent of scriptfs.c's
// sfs_getattr and sfs_chmod write-bit masking.
func maskScriptWriteBits(attr *fuse.Attr, fsys *Filesystem, relPath string) {
	if attr.Mode&syscall.S_IFMT != syscall.S_IFREG {
		return
	}

	if attr.Mode&writeBits == 0 {
		return
	}

	if fsys.find(relPath) != nil {
		attr.Mode &^= writeBits
	}
}

// Getattr implements fs.NodeGetattrer.
func (n *Node) Getattr(_ context.Context, _ fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	abs, err := n.abs()
	if err != nil {
		return fs.ToErrno(err)
	}

	if err := lstatAttr(abs, &out.Attr); err != nil {
		return fs.ToErrno(err)
	}

	maskScriptWriteBits(&out.Attr, n.fsys, n.relPath)

	return fs.OK
}

// Setattr implements fs.NodeSetattrer. Truncation and timestamp changes on
// scripts are rejected with EACCES, matching sfs_truncate/sfs_ftruncate and
// sfs_utimens in the original implementation. Chmod is accepted but never
// restores the write bits on a script.
func (n *Node) Setattr(ctx context.Context, fh fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	abs, err := n.abs()
	if err != nil {
		return fs.ToErrno(err)
	}

	script := n.isScript()

	if size, ok := in.GetSize(); ok {
		if script {
			return syscall.EACCES
		}

		if err := os.Truncate(abs, int64(size)); err != nil {
			return fs.ToErrno(err)
		}
	}

	if mode, ok := in.GetMode(); ok {
		if script {
			mode &^= writeBits
		}

		if err := os.Chmod(abs, os.FileMode(mode)); err != nil {
			return fs.ToErrno(err)
		}
	}

	atime, haveAtime := in.GetATime()
	mtime, haveMtime := in.GetMTime()

	if haveAtime || haveMtime {
		if script {
			return syscall.EACCES
		}

		if !haveAtime {
			atime = time.Now()
		}

		if !haveMtime {
			mtime = time.Now()
		}

		if err := os.Chtimes(abs, atime, mtime); err != nil {
			return fs.ToErrno(err)
		}
	}

	return n.Getattr(ctx, fh, out)
}

// Access implements fs.NodeAccesser. A write check against a script always
// fails, even when the mirror file's real permissions would allow it.
func (n *Node) Access(_ context.Context, mask uint32) syscall.Errno {
	abs, err := n.abs()
	if err != nil {
		return fs.ToErrno(err)
	}

	if mask&unix.W_OK != 0 && n.isScript() {
		return syscall.EACCES
	}

	if err := unix.Access(abs, mask); err != nil {
		return fs.ToErrno(err)
	}

	return fs.OK
}

// Lookup implements fs.NodeLookuper.
func (n *Node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	childRel := n.child(name)

	abs, err := n.fsys.Mirror.Resolve(childRel)
	if err != nil {
		return nil, fs.ToErrno(err)
	}

	var st syscall.Stat_t
	if err := syscall.Lstat(abs, &st); err != nil {
		return nil, fs.ToErrno(err)
	}

	attrFromStat(&st, &out.Attr)
	maskScriptWriteBits(&out.Attr, n.fsys, childRel)

	child := &Node{fsys: n.fsys, relPath: childRel}
	stable := fs.StableAttr{Mode: st.Mode, Ino: st.Ino}

	return n.NewInode(ctx, child, stable), fs.OK
}

type sliceDirStream struct {
	entries []fuse.DirEntry
	idx     int
}

func (s *sliceDirStream) HasNext() bool {
	return s.idx < len(s.entries)
}

func (s *sliceDirStream) Next() (fuse.DirEntry, syscall.Errno) {
	e := s.entries[s.idx]
	s.idx++

	return e, fs.OK
}

func (s *sliceDirStream) Close() {}

// Readdir implements fs.NodeReaddirer.
func (n *Node) Readdir(_ context.Context) (fs.DirStream, syscall.Errno) {
	abs, err := n.abs()
	if err != nil {
		return nil, fs.ToErrno(err)
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fs.ToErrno(err)
	}

	out := make([]fuse.DirEntry, 0, len(entries))

	for _, e := range entries {
		info, err := e.Info()

		var mode uint32

		switch {
		case err != nil:
			mode = 0
		case info.IsDir():
			mode = syscall.S_IFDIR | uint32(info.Mode().Perm())
		case info.Mode()&os.ModeSymlink != 0:
			mode = syscall.S_IFLNK | uint32(info.Mode().Perm())
		default:
			mode = syscall.S_IFREG | uint32(info.Mode().Perm())
		}

		out = append(out, fuse.DirEntry{Name: e.Name(), Mode: mode})
	}

	return &sliceDirStream{entries: out}, fs.OK
}

// Open implements fs.NodeOpener. A script is never opened directly against
// the mirror; instead its program is run and the output spooled to an
// unlinked temporary file, mirroring the mkstemp-then-unlink spool of
// sfs_open. Opening a script for writing is rejected, matching the
// original's refusal to let a script be overwritten through the mount.
func (n *Node) Open(_ context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if proc := n.fsys.find(n.relPath); proc != nil {
		if flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
			return nil, 0, syscall.EACCES
		}

		spool, err := os.CreateTemp("", "scriptfs-spool.*")
		if err != nil {
			return nil, 0, fs.ToErrno(err)
		}

		if err := os.Remove(spool.Name()); err != nil {
			spool.Close()

			return nil, 0, fs.ToErrno(err)
		}

		if err := proc.Program.Run(n.fsys.Mirror, n.relPath, spool); err != nil {
			n.fsys.Log.Warn("script program failed", "path", n.relPath, "error", err)
		}

		if _, err := spool.Seek(0, io.SeekStart); err != nil {
			spool.Close()

			return nil, 0, fs.ToErrno(err)
		}

		return &fileHandle{file: spool, script: true}, fuse.FOPEN_DIRECT_IO, fs.OK
	}

	abs, err := n.abs()
	if err != nil {
		return nil, 0, fs.ToErrno(err)
	}

	f, err := os.OpenFile(abs, int(flags), 0)
	if err != nil {
		return nil, 0, fs.ToErrno(err)
	}

	return &fileHandle{file: f}, 0, fs.OK
}

// Create implements fs.NodeCreater.
func (n *Node) Create(
	ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut,
) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	childRel := n.child(name)

	abs, err := n.fsys.Mirror.Resolve(childRel)
	if err != nil {
		return nil, nil, 0, fs.ToErrno(err)
	}

	f, err := os.OpenFile(abs, int(flags)|os.O_CREATE|os.O_TRUNC, os.FileMode(mode))
	if err != nil {
		return nil, nil, 0, fs.ToErrno(err)
	}

	var st syscall.Stat_t
	if err := syscall.Lstat(abs, &st); err != nil {
		f.Close()

		return nil, nil, 0, fs.ToErrno(err)
	}

	attrFromStat(&st, &out.Attr)

	child := &Node{fsys: n.fsys, relPath: childRel}
	childInode := n.NewInode(ctx, child, fs.StableAttr{Mode: st.Mode, Ino: st.Ino})

	return childInode, &fileHandle{file: f}, 0, fs.OK
}

// Mkdir implements fs.NodeMkdirer.
func (n *Node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	childRel := n.child(name)

	abs, err := n.fsys.Mirror.Resolve(childRel)
	if err != nil {
		return nil, fs.ToErrno(err)
	}

	if err := os.Mkdir(abs, os.FileMode(mode)); err != nil {
		return nil, fs.ToErrno(err)
	}

	var st syscall.Stat_t
	if err := syscall.Lstat(abs, &st); err != nil {
		return nil, fs.ToErrno(err)
	}

	attrFromStat(&st, &out.Attr)

	child := &Node{fsys: n.fsys, relPath: childRel}

	return n.NewInode(ctx, child, fs.StableAttr{Mode: st.Mode, Ino: st.Ino}), fs.OK
}

// Rmdir implements fs.NodeRmdirer.
func (n *Node) Rmdir(_ context.Context, name string) syscall.Errno {
	abs, err := n.fsys.Mirror.Resolve(n.child(name))
	if err != nil {
		return fs.ToErrno(err)
	}

	return fs.ToErrno(os.Remove(abs))
}

// Unlink implements fs.NodeUnlinker.
func (n *Node) Unlink(_ context.Context, name string) syscall.Errno {
	abs, err := n.fsys.Mirror.Resolve(n.child(name))
	if err != nil {
		return fs.ToErrno(err)
	}

	return fs.ToErrno(os.Remove(abs))
}

// Rename implements fs.NodeRenamer.
func (n *Node) Rename(_ context.Context, name string, newParent fs.InodeEmbedder, newName string, _ uint32) syscall.Errno {
	target, ok := newParent.(*Node)
	if !ok {
		return syscall.EINVAL
	}

	src, err := n.fsys.Mirror.Resolve(n.child(name))
	if err != nil {
		return fs.ToErrno(err)
	}

	dst, err := n.fsys.Mirror.Resolve(target.child(newName))
	if err != nil {
		return fs.ToErrno(err)
	}

	return fs.ToErrno(os.Rename(src, dst))
}

// Symlink implements fs.NodeSymlinker.
func (n *Node) Symlink(ctx context.Context, target, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	childRel := n.child(name)

	abs, err := n.fsys.Mirror.Resolve(childRel)
	if err != nil {
		return nil, fs.ToErrno(err)
	}

	if err := os.Symlink(target, abs); err != nil {
		return nil, fs.ToErrno(err)
	}

	var st syscall.Stat_t
	if err := syscall.Lstat(abs, &st); err != nil {
		return nil, fs.ToErrno(err)
	}

	attrFromStat(&st, &out.Attr)

	child := &Node{fsys: n.fsys, relPath: childRel}

	return n.NewInode(ctx, child, fs.StableAttr{Mode: st.Mode, Ino: st.Ino}), fs.OK
}

// Link implements fs.NodeLinker.
func (n *Node) Link(ctx context.Context, target fs.InodeEmbedder, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	src, ok := target.(*Node)
	if !ok {
		return nil, syscall.EINVAL
	}

	srcAbs, err := src.abs()
	if err != nil {
		return nil, fs.ToErrno(err)
	}

	childRel := n.child(name)

	dstAbs, err := n.fsys.Mirror.Resolve(childRel)
	if err != nil {
		return nil, fs.ToErrno(err)
	}

	if err := os.Link(srcAbs, dstAbs); err != nil {
		return nil, fs.ToErrno(err)
	}

	var st syscall.Stat_t
	if err := syscall.Lstat(dstAbs, &st); err != nil {
		return nil, fs.ToErrno(err)
	}

	attrFromStat(&st, &out.Attr)

	child := &Node{fsys: n.fsys, relPath: childRel}

	return n.NewInode(ctx, child, fs.StableAttr{Mode: st.Mode, Ino: st.Ino}), fs.OK
}

// Readlink implements fs.NodeReadlinker.
func (n *Node) Readlink(_ context.Context) ([]byte, syscall.Errno) {
	abs, err := n.abs()
	if err != nil {
		return nil, fs.ToErrno(err)
	}

	target, err := os.Readlink(abs)
	if err != nil {
		return nil, fs.ToErrno(err)
	}

	return []byte(target), fs.OK
}

// Statfs implements fs.NodeStatfser, reporting the real statistics of the
// filesystem backing the mirror root.
func (n *Node) Statfs(_ context.Context, out *fuse.StatfsOut) syscall.Errno {
	var st syscall.Statfs_t
	if err := syscall.Statfs(n.fsys.Mirror.Path(), &st); err != nil {
		return fs.ToErrno(err)
	}

	out.Blocks = st.Blocks
	out.Bfree = st.Bfree
	out.Bavail = st.Bavail
	out.Files = st.Files
	out.Ffree = st.Ffree
	out.Bsize = uint32(st.Bsize)
	out.NameLen = uint32(st.Namelen)
	out.Frsize = uint32(st.Frsize)

	return fs.OK
}
