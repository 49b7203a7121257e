// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package fsserver serves a version tree over FUSE. It implements
// fuseutil.FileSystem by keeping a plain in-memory directory tree for
// directories and symlinks, and delegating every regular file's content and
// history entirely to the yuiha package: a directory entry for a regular
// file always names the version tree's current writable node, and that
// node's identity never changes across CreateSnapshot calls.
package fsserver

import (
	"os"
	"sync"
	"syscall"
	"time"

	yuiha "github.com/higuruchi/yuiha-kmod"
	"github.com/higuruchi/yuiha-kmod/blockstore"
	"github.com/higuruchi/yuiha-kmod/journal"
	"github.com/higuruchi/yuiha-kmod/metrics"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/jacobsa/timeutil"
)

// attrCacheTTL is how long the kernel may cache attributes and directory
// entries we hand back. Nothing here invalidates those caches proactively,
// including after control-socket commands (DELETE_VERSION, VLINK) that
// mutate the tree without a FUSE op passing through.
const attrCacheTTL = 365 * 24 * time.Hour

type nodeKind int

const (
	kindDir nodeKind = iota
	kindFile
	kindSymlink
)

// Linux dirent d_type values, used directly as fuseops.Dirent.Type without
// depending on a named constant whose export surface varies across
// fuseops/fuseutil releases.
const (
	direntTypeDir     = 4
	direntTypeFile    = 8
	direntTypeSymlink = 10
)

type dirEntry struct {
	id   fuseops.InodeID
	kind nodeKind
}

// directory is a plain, unversioned directory node: mkdir/rmdir never
// touch the version tree, only the regular files inside one do.
type directory struct {
	parent  fuseops.InodeID
	attrs   yuiha.Attributes
	entries map[string]dirEntry
}

func newDirectory(parent fuseops.InodeID, mode os.FileMode, uid, gid uint32, now time.Time) *directory {
	return &directory{
		parent:  parent,
		entries: make(map[string]dirEntry),
		attrs: yuiha.Attributes{
			Mode:  os.ModeDir | (mode &^ os.ModeType),
			Nlink: 1,
			Uid:   uid,
			Gid:   gid,
			Atime: now,
			Mtime: now,
			Ctime: now,
		},
	}
}

// symlink is likewise unversioned: the target string never changes after
// creation in this file system, so there is nothing for a history to hold.
type symlink struct {
	target string
	attrs  yuiha.Attributes
}

// fileHandle is the per-open-file-descriptor state fsserver keeps beyond
// what Store already tracks: the version-tree node this handle currently
// writes through, and the set of logical-block Pages it has touched.
type fileHandle struct {
	inode *yuiha.Inode
	pages map[int]*yuiha.Page
}

// dirHandleState is the per-open-directory-descriptor state: just enough to
// find the directory again. Entry order is recomputed on every ReadDir call
// rather than snapshotted at OpenDir time, matching a plain directory's
// everybody-sees-the-current-state semantics.
type dirHandleState struct {
	id fuseops.InodeID
}

// FileSystem is the fuseutil.FileSystem implementation tying the version
// tree (Store, the journal, the block allocator and orphan bookkeeping)
// to the FUSE op surface. It does not use the versioned dentry cache
// namei.Lookup backs: FUSE resolves LookUpInode by a plain (parent, name)
// pair with no version-intent argument, so every name in a directory
// already names exactly one current inode and there is nothing for a
// version-qualified cache to disambiguate at this layer.
type FileSystem struct {
	fuseutil.NotImplementedFileSystem

	clock   timeutil.Clock
	journal *journal.Journal
	blocks  *blockstore.Store
	metrics *metrics.Metrics

	mu sync.Mutex

	store   *yuiha.Store
	orphans *yuiha.OrphanList

	dirs     map[fuseops.InodeID]*directory
	symlinks map[fuseops.InodeID]*symlink

	fileHandles map[fuseops.HandleID]*fileHandle
	dirHandles  map[fuseops.HandleID]*dirHandleState
	nextHandle  fuseops.HandleID
}

// New constructs a FileSystem backed by j for write-ahead logging, blocks
// for physical storage and m for observability. m may be nil in tests that
// don't care about metrics.
func New(clock timeutil.Clock, j *journal.Journal, blocks *blockstore.Store, m *metrics.Metrics) *FileSystem {
	now := clock.Now()
	root := fuseops.InodeID(yuiha.RootInodeID)

	fs := &FileSystem{
		clock:       clock,
		journal:     j,
		blocks:      blocks,
		metrics:     m,
		store:       yuiha.NewStore(clock),
		orphans:     yuiha.NewOrphanList(),
		dirs:        map[fuseops.InodeID]*directory{},
		symlinks:    map[fuseops.InodeID]*symlink{},
		fileHandles: map[fuseops.HandleID]*fileHandle{},
		dirHandles:  map[fuseops.HandleID]*dirHandleState{},
	}
	fs.dirs[root] = newDirectory(root, 0o755, 0, 0, now)
	return fs
}

func toFuseAttrs(a yuiha.Attributes) fuseops.InodeAttributes {
	return fuseops.InodeAttributes{
		Size:  a.Size,
		Nlink: a.Nlink,
		Mode:  a.Mode,
		Atime: a.Atime,
		Mtime: a.Mtime,
		Ctime: a.Ctime,
		Uid:   a.Uid,
		Gid:   a.Gid,
	}
}

func translateErr(err error) error {
	ye, ok := err.(*yuiha.Error)
	if !ok {
		return err
	}
	switch ye.Kind {
	case yuiha.KindBadName:
		return syscall.EINVAL
	case yuiha.KindNotFound:
		return fuse.ENOENT
	case yuiha.KindStaleGen:
		return syscall.ESTALE
	case yuiha.KindBrokenLink, yuiha.KindIOError, yuiha.KindJournalAbort:
		return fuse.EIO
	case yuiha.KindNoSpace:
		return syscall.ENOSPC
	case yuiha.KindNotPermitted:
		return syscall.EPERM
	default:
		return fuse.EIO
	}
}

func (fs *FileSystem) isDir(id fuseops.InodeID) bool {
	_, ok := fs.dirs[id]
	return ok
}

// attributesOf reports the current attributes of id regardless of which of
// the three node kinds it names.
func (fs *FileSystem) attributesOf(id fuseops.InodeID) (fuseops.InodeAttributes, error) {
	if d, ok := fs.dirs[id]; ok {
		return toFuseAttrs(d.attrs), nil
	}
	if s, ok := fs.symlinks[id]; ok {
		return toFuseAttrs(s.attrs), nil
	}
	if in := fs.store.Lookup(yuiha.InodeID(id)); in != nil {
		return toFuseAttrs(in.Attrs), nil
	}
	return fuseops.InodeAttributes{}, fuse.ENOENT
}

func (fs *FileSystem) childEntry(id fuseops.InodeID, attrs yuiha.Attributes) fuseops.ChildInodeEntry {
	now := fs.clock.Now()
	return fuseops.ChildInodeEntry{
		Child:                id,
		Attributes:           toFuseAttrs(attrs),
		AttributesExpiration: now.Add(attrCacheTTL),
		EntryExpiration:      now.Add(attrCacheTTL),
	}
}

// reclaimTree removes every inode in the version tree rooted at root from
// the store. Called only once Unlink has observed the tree's vtree_nlink
// reach zero with no open handle keeping any node of it alive.
func (fs *FileSystem) reclaimTree(root *yuiha.Inode) {
	if root == nil {
		return
	}
	members, err := yuiha.Walk(fs.store, root)
	if err != nil {
		return
	}
	for _, m := range members {
		if m.HasChild() {
			if child, err := fs.store.Resolve(m.ChildRef); err == nil && child != nil {
				fs.reclaimTree(child)
			}
		}
		fs.store.Remove(m.Self.ID)
	}
}

func (fs *FileSystem) Init(op *fuseops.InitOp) {
	op.Respond(nil)
}

// SetRootAttrs applies the configured owner and mode to the mount root.
// Callers use this before the mount is served, instead of the memfs
// convention of deriving the root's owner from the first request's header,
// since cmd/yuihafs already has uid/gid/mode as explicit configuration.
func (fs *FileSystem) SetRootAttrs(uid, gid uint32, mode os.FileMode) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	root := fs.dirs[fuseops.InodeID(yuiha.RootInodeID)]
	root.attrs.Uid = uid
	root.attrs.Gid = gid
	root.attrs.Mode = os.ModeDir | (mode &^ os.ModeType)
}

func (fs *FileSystem) LookUpInode(op *fuseops.LookUpInodeOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	dir, ok := fs.dirs[op.Parent]
	if !ok {
		op.Respond(fuse.ENOENT)
		return
	}
	entry, ok := dir.entries[op.Name]
	if !ok {
		op.Respond(fuse.ENOENT)
		return
	}

	attrs, err := fs.attributesOf(entry.id)
	if err != nil {
		op.Respond(err)
		return
	}

	now := fs.clock.Now()
	op.Entry = fuseops.ChildInodeEntry{
		Child:                entry.id,
		Attributes:           attrs,
		AttributesExpiration: now.Add(attrCacheTTL),
		EntryExpiration:      now.Add(attrCacheTTL),
	}
	op.Respond(nil)
}

func (fs *FileSystem) GetInodeAttributes(op *fuseops.GetInodeAttributesOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	attrs, err := fs.attributesOf(op.Inode)
	if err != nil {
		op.Respond(err)
		return
	}
	op.Attributes = attrs
	op.AttributesExpiration = fs.clock.Now().Add(attrCacheTTL)
	op.Respond(nil)
}

func (fs *FileSystem) truncate(in *yuiha.Inode, size uint64) {
	blocks := int((size + blockstore.BlockSize - 1) / blockstore.BlockSize)
	for i := blocks; i < len(in.Blocks); i++ {
		if in.Blocks[i].IsProducer() {
			fs.blocks.Free(in.Blocks[i].Number())
		}
	}
	if blocks < len(in.Blocks) {
		in.Blocks = in.Blocks[:blocks]
	}
	in.Attrs.Size = size
}

func (fs *FileSystem) SetInodeAttributes(op *fuseops.SetInodeAttributesOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	now := fs.clock.Now()
	var attrs yuiha.Attributes

	switch {
	case fs.isDir(op.Inode):
		dir := fs.dirs[op.Inode]
		if op.Mode != nil {
			dir.attrs.Mode = os.ModeDir | (*op.Mode &^ os.ModeType)
		}
		if op.Atime != nil {
			dir.attrs.Atime = *op.Atime
		}
		if op.Mtime != nil {
			dir.attrs.Mtime = *op.Mtime
		}
		dir.attrs.Ctime = now
		attrs = dir.attrs

	case fs.symlinks[op.Inode] != nil:
		s := fs.symlinks[op.Inode]
		if op.Mode != nil {
			s.attrs.Mode = *op.Mode
		}
		if op.Atime != nil {
			s.attrs.Atime = *op.Atime
		}
		if op.Mtime != nil {
			s.attrs.Mtime = *op.Mtime
		}
		s.attrs.Ctime = now
		attrs = s.attrs

	default:
		in := fs.store.Lookup(yuiha.InodeID(op.Inode))
		if in == nil {
			op.Respond(fuse.ENOENT)
			return
		}
		if op.Size != nil {
			fs.truncate(in, *op.Size)
		}
		if op.Mode != nil {
			in.Attrs.Mode = *op.Mode
		}
		if op.Atime != nil {
			in.Attrs.Atime = *op.Atime
		}
		if op.Mtime != nil {
			in.Attrs.Mtime = *op.Mtime
		}
		in.Attrs.Ctime = now
		attrs = in.Attrs
	}

	op.Attributes = toFuseAttrs(attrs)
	op.AttributesExpiration = now.Add(attrCacheTTL)
	op.Respond(nil)
}

func (fs *FileSystem) ForgetInode(op *fuseops.ForgetInodeOp) {
	op.Respond(nil)
}

func (fs *FileSystem) MkDir(op *fuseops.MkDirOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent, ok := fs.dirs[op.Parent]
	if !ok {
		op.Respond(fuse.ENOENT)
		return
	}
	if _, exists := parent.entries[op.Name]; exists {
		op.Respond(syscall.EEXIST)
		return
	}

	id := fuseops.InodeID(fs.store.NextID())
	now := fs.clock.Now()
	child := newDirectory(op.Parent, op.Mode, op.Header.Uid, op.Header.Gid, now)

	fs.dirs[id] = child
	parent.entries[op.Name] = dirEntry{id: id, kind: kindDir}
	parent.attrs.Mtime = now

	op.Entry = fs.childEntry(id, child.attrs)
	op.Respond(nil)
}

func (fs *FileSystem) CreateFile(op *fuseops.CreateFileOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent, ok := fs.dirs[op.Parent]
	if !ok {
		op.Respond(fuse.ENOENT)
		return
	}
	if _, exists := parent.entries[op.Name]; exists {
		op.Respond(syscall.EEXIST)
		return
	}

	now := fs.clock.Now()
	in := fs.store.Mint(yuiha.Attributes{
		Mode:  op.Mode,
		Nlink: 1,
		Uid:   op.Header.Uid,
		Gid:   op.Header.Gid,
		Atime: now,
		Mtime: now,
		Ctime: now,
	})

	jh := fs.journal.Start()
	if err := yuiha.Link(jh, fs.store, in); err != nil {
		jh.Abort()
		op.Respond(translateErr(err))
		return
	}
	if err := jh.Commit(); err != nil {
		op.Respond(translateErr(yuiha.NewError(yuiha.KindJournalAbort, "CreateFile", err)))
		return
	}

	id := fuseops.InodeID(in.Self.ID)
	parent.entries[op.Name] = dirEntry{id: id, kind: kindFile}
	parent.attrs.Mtime = now

	fs.store.Ref(in.Self.ID)
	handle := fs.nextHandle
	fs.nextHandle++
	fs.fileHandles[handle] = &fileHandle{inode: in, pages: map[int]*yuiha.Page{}}

	op.Entry = fs.childEntry(id, in.Attrs)
	op.Handle = handle
	op.Respond(nil)
}

func (fs *FileSystem) CreateSymlink(op *fuseops.CreateSymlinkOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent, ok := fs.dirs[op.Parent]
	if !ok {
		op.Respond(fuse.ENOENT)
		return
	}
	if _, exists := parent.entries[op.Name]; exists {
		op.Respond(syscall.EEXIST)
		return
	}

	now := fs.clock.Now()
	s := &symlink{
		target: op.Target,
		attrs: yuiha.Attributes{
			Mode:  os.ModeSymlink | 0o777,
			Nlink: 1,
			Uid:   op.Header.Uid,
			Gid:   op.Header.Gid,
			Size:  uint64(len(op.Target)),
			Atime: now,
			Mtime: now,
			Ctime: now,
		},
	}

	id := fuseops.InodeID(fs.store.NextID())
	fs.symlinks[id] = s
	parent.entries[op.Name] = dirEntry{id: id, kind: kindSymlink}
	parent.attrs.Mtime = now

	op.Entry = fs.childEntry(id, s.attrs)
	op.Respond(nil)
}

func (fs *FileSystem) RmDir(op *fuseops.RmDirOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent, ok := fs.dirs[op.Parent]
	if !ok {
		op.Respond(fuse.ENOENT)
		return
	}
	entry, ok := parent.entries[op.Name]
	if !ok {
		op.Respond(fuse.ENOENT)
		return
	}
	if entry.kind != kindDir {
		op.Respond(syscall.ENOTDIR)
		return
	}
	child := fs.dirs[entry.id]
	if child == nil {
		op.Respond(fuse.ENOENT)
		return
	}
	if len(child.entries) != 0 {
		op.Respond(fuse.ENOTEMPTY)
		return
	}

	delete(parent.entries, op.Name)
	delete(fs.dirs, entry.id)
	parent.attrs.Mtime = fs.clock.Now()
	op.Respond(nil)
}

func (fs *FileSystem) Unlink(op *fuseops.UnlinkOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	dir, ok := fs.dirs[op.Parent]
	if !ok {
		op.Respond(fuse.ENOENT)
		return
	}
	entry, ok := dir.entries[op.Name]
	if !ok {
		op.Respond(fuse.ENOENT)
		return
	}

	delete(dir.entries, op.Name)
	dir.attrs.Mtime = fs.clock.Now()

	if entry.kind == kindSymlink {
		delete(fs.symlinks, entry.id)
		op.Respond(nil)
		return
	}

	in := fs.store.Lookup(yuiha.InodeID(entry.id))
	if in == nil {
		op.Respond(nil)
		return
	}

	jh := fs.journal.Start()
	unreferenced, err := yuiha.Unlink(jh, fs.store, in)
	if err != nil {
		jh.Abort()
		op.Respond(translateErr(err))
		return
	}
	if !unreferenced {
		fs.orphans.MarkPhantom(jh, in)
	}
	if err := jh.Commit(); err != nil {
		op.Respond(translateErr(yuiha.NewError(yuiha.KindJournalAbort, "Unlink", err)))
		return
	}

	if unreferenced {
		if root, err := yuiha.TraceRoot(fs.store, in); err == nil {
			fs.reclaimTree(root)
		}
	}
	if fs.metrics != nil {
		fs.metrics.PhantomInodes.Set(float64(len(fs.orphans.Entries())))
	}
	op.Respond(nil)
}
