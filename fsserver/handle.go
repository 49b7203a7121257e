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

package fsserver

import (
	"sort"
	"syscall"

	yuiha "github.com/higuruchi/yuiha-kmod"
	"github.com/higuruchi/yuiha-kmod/blockstore"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
)

// openPagesFor collects the Page objects every currently open handle on id
// holds, for CreateSnapshot's openPages argument.
func (fs *FileSystem) openPagesFor(id yuiha.InodeID) []*yuiha.Page {
	var out []*yuiha.Page
	for _, fh := range fs.fileHandles {
		if fh.inode.Self.ID == id {
			for _, p := range fh.pages {
				out = append(out, p)
			}
		}
	}
	return out
}

func (fs *FileSystem) OpenDir(op *fuseops.OpenDirOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, ok := fs.dirs[op.Inode]; !ok {
		op.Respond(fuse.ENOENT)
		return
	}

	h := fs.nextHandle
	fs.nextHandle++
	fs.dirHandles[h] = &dirHandleState{id: op.Inode}
	op.Handle = h
	op.Respond(nil)
}

// ReadDir recomputes the directory's sorted name list fresh on every call:
// entries never get snapshotted at OpenDir time, so a concurrent mkdir is
// visible to a reader that hasn't yet reached the end of the listing.
func (fs *FileSystem) ReadDir(op *fuseops.ReadDirOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	state, ok := fs.dirHandles[op.Handle]
	if !ok {
		op.Respond(syscall.EINVAL)
		return
	}
	dir, ok := fs.dirs[state.id]
	if !ok {
		op.Respond(fuse.ENOENT)
		return
	}

	names := make([]string, 0, len(dir.entries))
	for name := range dir.entries {
		names = append(names, name)
	}
	sort.Strings(names)

	var n int
	offset := int(op.Offset)
	for i := offset; i < len(names); i++ {
		name := names[i]
		entry := dir.entries[name]

		var typ uint32
		switch entry.kind {
		case kindDir:
			typ = direntTypeDir
		case kindSymlink:
			typ = direntTypeSymlink
		default:
			typ = direntTypeFile
		}

		wrote := fuseutil.WriteDirent(op.Dst[n:], fuseops.Dirent{
			Offset: fuseops.DirOffset(i + 1),
			Inode:  entry.id,
			Name:   name,
			Type:   fuseops.DirentType(typ),
		})
		if wrote == 0 {
			break
		}
		n += wrote
	}

	op.BytesRead = n
	op.Respond(nil)
}

func (fs *FileSystem) ReleaseDirHandle(op *fuseops.ReleaseDirHandleOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	delete(fs.dirHandles, op.Handle)
	op.Respond(nil)
}

// OpenFile applies the O_VSEARCH / O_PARENT / O_VERSION precedence rules
// inline: OpenFileOp carries only the inode already resolved by the kernel
// and the raw open(2) flags, not the parent/name context namei.Lookup
// needs, so the intent logic from resolveIntent is reproduced here against
// whichever inode LookUpInode last handed back.
//
// O_VSEARCH's version-inode-number addressing has no slot in OpenFileOp (the
// kernel module this is based on overloads open(2)'s unused mode argument
// for it), so this op always opens the inode the kernel resolved; an
// O_VSEARCH bit only forces a snapshot on write. The file system offers no
// other way to open a version by its inode number.
func (fs *FileSystem) OpenFile(op *fuseops.OpenFileOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	base := fs.store.Lookup(yuiha.InodeID(op.Inode))
	if base == nil {
		op.Respond(fuse.ENOENT)
		return
	}

	intent := yuiha.OpenIntent(op.Flags)
	writeRequested := op.Flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0

	target := base
	snapshotFirst := false

	if intent.Has(yuiha.OParent) {
		parent, err := yuiha.GetParentHandle(fs.store, target)
		if err != nil {
			op.Respond(translateErr(err))
			return
		}
		if parent == nil {
			op.Respond(syscall.EPERM)
			return
		}
		if writeRequested {
			snapshotFirst = true
		}
		target = parent
	} else if writeRequested && (intent.Has(yuiha.OVersion) || intent.Has(yuiha.OVSearch) || target.HasChild()) {
		snapshotFirst = true
	}

	if snapshotFirst {
		jh := fs.journal.Start()
		// CreateSnapshot freezes target's current state into a new history
		// node and leaves target itself as the node further writes land on;
		// the handle below keeps referencing target, not the frozen copy.
		if _, err := yuiha.CreateSnapshot(jh, fs.store, target, fs.openPagesFor(target.Self.ID)); err != nil {
			jh.Abort()
			op.Respond(translateErr(err))
			return
		}
		if err := jh.Commit(); err != nil {
			op.Respond(translateErr(yuiha.NewError(yuiha.KindJournalAbort, "OpenFile", err)))
			return
		}
		if fs.metrics != nil {
			fs.metrics.SnapshotsCreated.Inc()
		}
	}

	fs.store.Ref(target.Self.ID)
	h := fs.nextHandle
	fs.nextHandle++
	fs.fileHandles[h] = &fileHandle{inode: target, pages: map[int]*yuiha.Page{}}
	op.Handle = h
	op.Respond(nil)
}

func (fs *FileSystem) ReadFile(op *fuseops.ReadFileOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fh, ok := fs.fileHandles[op.Handle]
	if !ok {
		op.Respond(syscall.EINVAL)
		return
	}
	in := fh.inode

	if uint64(op.Offset) >= in.Attrs.Size {
		op.BytesRead = 0
		op.Respond(nil)
		return
	}

	end := uint64(op.Offset) + uint64(len(op.Dst))
	if end > in.Attrs.Size {
		end = in.Attrs.Size
	}

	var n int
	offset := uint64(op.Offset)
	for offset < end {
		blockIdx := int(offset / blockstore.BlockSize)
		inBlock := int(offset % blockstore.BlockSize)
		want := blockstore.BlockSize - inBlock
		if remain := end - offset; uint64(want) > remain {
			want = int(remain)
		}

		var block []byte
		if blockIdx < len(in.Blocks) && !in.Blocks[blockIdx].IsHole() {
			b, err := fs.blocks.ReadBlock(in.Blocks[blockIdx].Number())
			if err != nil {
				op.Respond(translateErr(yuiha.NewError(yuiha.KindIOError, "ReadFile", err)))
				return
			}
			block = b
		} else {
			block = make([]byte, blockstore.BlockSize)
		}

		n += copy(op.Dst[n:], block[inBlock:inBlock+want])
		offset += uint64(want)
	}

	op.BytesRead = n
	op.Respond(nil)
}

func (fs *FileSystem) WriteFile(op *fuseops.WriteFileOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fh, ok := fs.fileHandles[op.Handle]
	if !ok {
		op.Respond(syscall.EINVAL)
		return
	}
	in := fh.inode

	parent, err := yuiha.GetParentHandle(fs.store, in)
	if err != nil {
		op.Respond(translateErr(err))
		return
	}

	jh := fs.journal.Start()
	data := op.Data
	offset := op.Offset

	for len(data) > 0 {
		blockIdx := int(offset / blockstore.BlockSize)
		inBlock := int(offset % blockstore.BlockSize)
		n := blockstore.BlockSize - inBlock
		if n > len(data) {
			n = len(data)
		}

		prevProducer := blockIdx < len(in.Blocks) && in.Blocks[blockIdx].IsProducer()
		prevHole := blockIdx >= len(in.Blocks) || in.Blocks[blockIdx].IsHole()

		var current []byte
		if blockIdx < len(in.Blocks) && !in.Blocks[blockIdx].IsHole() {
			cur, rerr := fs.blocks.ReadBlock(in.Blocks[blockIdx].Number())
			if rerr != nil {
				jh.Abort()
				op.Respond(translateErr(yuiha.NewError(yuiha.KindIOError, "WriteFile", rerr)))
				return
			}
			current = cur
		} else {
			current = make([]byte, blockstore.BlockSize)
		}
		copy(current[inBlock:inBlock+n], data[:n])

		if err := yuiha.COWWrite(jh, fs.blocks, in, parent, blockIdx, current); err != nil {
			jh.Abort()
			op.Respond(translateErr(err))
			return
		}

		if page := fh.pages[blockIdx]; page != nil {
			page.ClearShared()
			page.Uptodate = true
			page.Dirty = false
		}

		if fs.metrics != nil && !prevProducer && !prevHole {
			fs.metrics.CowFaults.Inc()
			fs.metrics.CowBytesCopied.Add(float64(blockstore.BlockSize))
		}

		offset += int64(n)
		data = data[n:]
	}

	newSize := uint64(op.Offset) + uint64(len(op.Data))
	if newSize > in.Attrs.Size {
		in.Attrs.Size = newSize
	}
	in.Attrs.Mtime = fs.clock.Now()
	jh.MarkDirty(uint64(in.Self.ID))

	if err := jh.Commit(); err != nil {
		op.Respond(translateErr(yuiha.NewError(yuiha.KindJournalAbort, "WriteFile", err)))
		return
	}
	op.Respond(nil)
}

func (fs *FileSystem) SyncFile(op *fuseops.SyncFileOp) {
	// Every write above already reached the block store and its journal
	// record synchronously; there is nothing left to flush.
	op.Respond(nil)
}

func (fs *FileSystem) FlushFile(op *fuseops.FlushFileOp) {
	op.Respond(nil)
}

func (fs *FileSystem) ReleaseFileHandle(op *fuseops.ReleaseFileHandleOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fh, ok := fs.fileHandles[op.Handle]
	if !ok {
		op.Respond(nil)
		return
	}
	delete(fs.fileHandles, op.Handle)

	id := fh.inode.Self.ID
	if fs.store.Unref(id) == 1 {
		yuiha.ReleaseParentHandle(fh.inode)
	}
	op.Respond(nil)
}
