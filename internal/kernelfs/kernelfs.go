// Package kernelfs adapts rosfs.Context to github.com/jacobsa/fuse's
// fuseutil.FileSystem interface, the kernel-facing dispatcher spec §1 names
// as an external collaborator. It is a thin translation layer: every
// method either asks the Context a question or returns ENOSYS/EACCES for
// the write operations this read-only system does not support (spec §1
// Non-goals).
package kernelfs

import (
	"os"
	"sync"
	"time"

	"github.com/akawashiro/ros3fs/internal/logger"
	"github.com/akawashiro/ros3fs/internal/metadata"
	"github.com/akawashiro/ros3fs/internal/rosfs"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/jacobsa/timeutil"
)

// inodeEntry is the bookkeeping the adapter keeps per path, mirroring gcsfuse's
// fs/fs.go inode table (fs.inodes map[fuseops.InodeID]inode.Inode) but
// collapsed to this system's flat, read-only NodeMetadata.
type inodeEntry struct {
	path string
	meta metadata.NodeMetadata
}

// FileSystem implements fuseutil.FileSystem over a rosfs.Context. Construct
// one with New and pass it to fuse.Mount.
type FileSystem struct {
	ctx   *rosfs.Context
	clock timeutil.Clock

	mu          sync.Mutex
	inodes      map[fuseops.InodeID]*inodeEntry
	pathToInode map[string]fuseops.InodeID
	nextInode   fuseops.InodeID

	dirHandles map[fuseops.HandleID][]metadata.NodeMetadata
	nextHandle fuseops.HandleID
}

var _ fuseutil.FileSystem = (*FileSystem)(nil)

// New wraps ctx as a mountable fuseutil.FileSystem, pre-seeding the inode
// table with the root.
func New(ctx *rosfs.Context) *FileSystem {
	fs := &FileSystem{
		ctx:         ctx,
		clock:       timeutil.RealClock(),
		inodes:      map[fuseops.InodeID]*inodeEntry{},
		pathToInode: map[string]fuseops.InodeID{},
		nextInode:   fuseops.RootInodeID + 1,
		dirHandles:  map[fuseops.HandleID][]metadata.NodeMetadata{},
		nextHandle:  1,
	}
	rootMeta, _ := ctx.GetAttr("/")
	fs.inodes[fuseops.RootInodeID] = &inodeEntry{path: "/", meta: rootMeta}
	fs.pathToInode["/"] = fuseops.RootInodeID
	return fs
}

func (fs *FileSystem) mintInode(path string, meta metadata.NodeMetadata) fuseops.InodeID {
	if id, ok := fs.pathToInode[path]; ok {
		fs.inodes[id].meta = meta
		return id
	}
	id := fs.nextInode
	fs.nextInode++
	fs.inodes[id] = &inodeEntry{path: path, meta: meta}
	fs.pathToInode[path] = id
	return id
}

func childPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}

func toAttrs(m metadata.NodeMetadata, now time.Time) fuseops.InodeAttributes {
	mode := os.FileMode(0o444)
	if m.Kind == metadata.Directory {
		mode = os.ModeDir | 0o555
	}
	mtime := now
	if m.MtimeMS > 0 {
		mtime = time.UnixMilli(m.MtimeMS)
	}
	return fuseops.InodeAttributes{
		Size:   m.Size,
		Nlink:  1,
		Mode:   mode,
		Mtime:  mtime,
		Atime:  mtime,
		Ctime:  mtime,
	}
}

func (fs *FileSystem) Init(op *fuseops.InitOp) error { return nil }

func (fs *FileSystem) StatFS(op *fuseops.StatFSOp) error { return nil }

func (fs *FileSystem) Destroy() {}

func (fs *FileSystem) LookUpInode(op *fuseops.LookUpInodeOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent, ok := fs.inodes[op.Parent]
	if !ok {
		return fuse.ENOENT
	}

	cpath := childPath(parent.path, op.Name)
	meta, ok := fs.ctx.GetAttr(cpath)
	if !ok {
		return fuse.ENOENT
	}

	id := fs.mintInode(cpath, meta)
	op.Entry.Child = id
	op.Entry.Attributes = toAttrs(meta, fs.clock.Now())
	return nil
}

func (fs *FileSystem) GetInodeAttributes(op *fuseops.GetInodeAttributesOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	in, ok := fs.inodes[op.Inode]
	if !ok {
		return fuse.ENOENT
	}
	// Re-fetch in case a refresh changed size/mtime since this inode was
	// minted; a deleted path just keeps serving its last known attributes
	// until ForgetInode, matching the kernel's caching expectations.
	if meta, ok := fs.ctx.GetAttr(in.path); ok {
		in.meta = meta
	}
	op.Attributes = toAttrs(in.meta, fs.clock.Now())
	return nil
}

// SetInodeAttributes always fails: this is a read-only file system (spec
// §1 Non-goals, §6 "EACCES for write-open attempts").
func (fs *FileSystem) SetInodeAttributes(op *fuseops.SetInodeAttributesOp) error {
	return fuse.EACCES
}

func (fs *FileSystem) ForgetInode(op *fuseops.ForgetInodeOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if in, ok := fs.inodes[op.Inode]; ok {
		delete(fs.pathToInode, in.path)
		delete(fs.inodes, op.Inode)
	}
	return nil
}

func (fs *FileSystem) OpenDir(op *fuseops.OpenDirOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	in, ok := fs.inodes[op.Inode]
	if !ok || in.meta.Kind != metadata.Directory {
		return fuse.ENOENT
	}

	children := fs.ctx.ReadDirectory(in.path)
	handle := fs.nextHandle
	fs.nextHandle++
	fs.dirHandles[handle] = children
	op.Handle = handle
	return nil
}

func (fs *FileSystem) ReadDir(op *fuseops.ReadDirOp) error {
	fs.mu.Lock()
	children, ok := fs.dirHandles[op.Handle]
	fs.mu.Unlock()
	if !ok {
		return fuse.EIO
	}

	// The adapter owns "." and "..", not the core (spec §6).
	entries := make([]fuseutil.Dirent, 0, len(children)+2)
	entries = append(entries,
		fuseutil.Dirent{Offset: 1, Inode: op.Inode, Name: ".", Type: fuseutil.DT_Directory},
		fuseutil.Dirent{Offset: 2, Inode: op.Inode, Name: "..", Type: fuseutil.DT_Directory},
	)
	for i, c := range children {
		typ := fuseutil.DT_File
		if c.Kind == metadata.Directory {
			typ = fuseutil.DT_Directory
		}
		entries = append(entries, fuseutil.Dirent{
			Offset: fuseops.DirOffset(i + 3),
			Name:   c.Name,
			Type:   typ,
		})
	}

	if int(op.Offset) >= len(entries) {
		return nil
	}
	for _, e := range entries[op.Offset:] {
		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], e)
		if n == 0 {
			break
		}
		op.BytesRead += n
	}
	return nil
}

func (fs *FileSystem) ReleaseDirHandle(op *fuseops.ReleaseDirHandleOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	delete(fs.dirHandles, op.Handle)
	return nil
}

// OpenFile succeeds iff GetAttr reports a File (spec §6 OpenForRead);
// opening for write is never permitted.
func (fs *FileSystem) OpenFile(op *fuseops.OpenFileOp) error {
	fs.mu.Lock()
	in, ok := fs.inodes[op.Inode]
	fs.mu.Unlock()
	if !ok {
		return fuse.ENOENT
	}
	if in.meta.Kind != metadata.File {
		return fuse.EACCES
	}
	if op.OpenFlags&(os.O_WRONLY|os.O_RDWR) != 0 {
		return fuse.EACCES
	}
	return nil
}

func (fs *FileSystem) ReadFile(op *fuseops.ReadFileOp) error {
	fs.mu.Lock()
	in, ok := fs.inodes[op.Inode]
	fs.mu.Unlock()
	if !ok {
		return fuse.ENOENT
	}

	data, err := fs.ctx.GetFileContents(op.Context(), in.path)
	if err != nil {
		logger.Errorf("kernelfs: read %q failed: %v", in.path, err)
		return fuse.EIO
	}

	if op.Offset >= int64(len(data)) {
		op.BytesRead = 0
		return nil
	}
	end := int64(len(data))
	if op.Offset+int64(len(op.Dst)) < end {
		end = op.Offset + int64(len(op.Dst))
	}
	op.BytesRead = copy(op.Dst, data[op.Offset:end])
	return nil
}

func (fs *FileSystem) ReleaseFileHandle(op *fuseops.ReleaseFileHandleOp) error { return nil }

// The remaining fuseutil.FileSystem methods are all mutating operations;
// this system never permits them (spec §1 Non-goals: writes, links,
// xattrs).
func (fs *FileSystem) MkDir(op *fuseops.MkDirOp) error             { return fuse.EACCES }
func (fs *FileSystem) MkNode(op *fuseops.MkNodeOp) error           { return fuse.EACCES }
func (fs *FileSystem) CreateFile(op *fuseops.CreateFileOp) error   { return fuse.EACCES }
func (fs *FileSystem) CreateLink(op *fuseops.CreateLinkOp) error   { return fuse.EACCES }
func (fs *FileSystem) CreateSymlink(op *fuseops.CreateSymlinkOp) error {
	return fuse.EACCES
}
func (fs *FileSystem) Rename(op *fuseops.RenameOp) error       { return fuse.EACCES }
func (fs *FileSystem) RmDir(op *fuseops.RmDirOp) error         { return fuse.EACCES }
func (fs *FileSystem) Unlink(op *fuseops.UnlinkOp) error       { return fuse.EACCES }
func (fs *FileSystem) ReadSymlink(op *fuseops.ReadSymlinkOp) error {
	return fuse.ENOSYS
}
func (fs *FileSystem) WriteFile(op *fuseops.WriteFileOp) error { return fuse.EACCES }
func (fs *FileSystem) SyncFile(op *fuseops.SyncFileOp) error   { return nil }
func (fs *FileSystem) FlushFile(op *fuseops.FlushFileOp) error { return nil }
func (fs *FileSystem) SyncFS(op *fuseops.SyncFSOp) error       { return nil }
func (fs *FileSystem) Fallocate(op *fuseops.FallocateOp) error { return fuse.ENOSYS }
func (fs *FileSystem) RemoveXattr(op *fuseops.RemoveXattrOp) error {
	return fuse.ENOSYS
}
func (fs *FileSystem) GetXattr(op *fuseops.GetXattrOp) error { return fuse.ENOSYS }
func (fs *FileSystem) ListXattr(op *fuseops.ListXattrOp) error {
	return fuse.ENOSYS
}
func (fs *FileSystem) SetXattr(op *fuseops.SetXattrOp) error { return fuse.ENOSYS }

