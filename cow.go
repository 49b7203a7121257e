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

package yuiha

import (
	"fmt"

	"github.com/higuruchi/yuiha-kmod/journal"
)

// This file implements the copy-on-write block writer: a write that lands
// on a page still backed by an ancestor's physical block must give the
// ancestor its own copy of the old contents before the writer is allowed
// to produce a fresh block for the new contents.

// BlockAllocator is the block allocator collaborator COWWrite needs:
// allocate, free, and do physical block I/O. *blockstore.Store satisfies
// this; tests use a fake.
type BlockAllocator interface {
	Allocate() (uint32, error)
	Free(num uint32)
	ReadBlock(num uint32) ([]byte, error)
	WriteBlock(num uint32, data []byte) error
}

// ensureBlockSlot grows in.Blocks so index i is addressable, padding new
// entries with hole pointers.
func ensureBlockSlot(in *Inode, i int) {
	for len(in.Blocks) <= i {
		in.Blocks = append(in.Blocks, BlockPtr(0))
	}
}

// COWWrite writes newData (exactly one block's worth) to logical block
// index i of child, copying the block's current ancestor-owned contents up
// to parent first if child does not yet produce that block itself: a
// version may only mutate a block it produces.
//
// parent may be nil (child is a version-tree root and has nothing to copy
// up to); in that case a shared pointer can only mean a hole, since a root
// never inherits blocks from anyone.
func COWWrite(h *journal.Handle, alloc BlockAllocator, child, parent *Inode, i int, newData []byte) error {
	ensureBlockSlot(child, i)
	ptr := child.Blocks[i]

	if ptr.IsHole() || ptr.IsProducer() {
		return produceBlock(h, alloc, child, i, newData)
	}

	// ptr names a block child does not produce: copy its current contents
	// up to parent before child is allowed to overwrite it.
	if parent == nil {
		return NewError(KindIOError, "COWWrite",
			fmt.Errorf("inode %d: non-producer block pointer with no parent to copy up to", child.Self.ID))
	}

	oldData, err := alloc.ReadBlock(ptr.Number())
	if err != nil {
		return NewError(KindIOError, "COWWrite", err)
	}

	ensureBlockSlot(parent, i)
	if parentPtr := parent.Blocks[i]; parentPtr.IsHole() || parentPtr.Number() == ptr.Number() {
		if err := produceBlock(h, alloc, parent, i, oldData); err != nil {
			return err
		}
	}

	return produceBlock(h, alloc, child, i, newData)
}

// produceBlock allocates a fresh physical block for in at logical index i,
// writes data into it, and marks the pointer as produced. It journals a
// TransferOwnership record before rewriting the pointer: a crash between
// allocation and the pointer rewrite must not leave the allocator's
// bookkeeping and the inode's block list disagreeing about who owns the
// block.
func produceBlock(h *journal.Handle, alloc BlockAllocator, in *Inode, i int, data []byte) error {
	num, err := alloc.Allocate()
	if err != nil {
		return NewError(KindNoSpace, "produceBlock", err)
	}
	if err := alloc.WriteBlock(num, data); err != nil {
		return NewError(KindIOError, "produceBlock", err)
	}

	h.TransferOwnership(uint64(in.Self.ID), num)
	in.Blocks[i] = NewBlockPtr(num, true)
	markDirty(h, in.Self.ID)
	return nil
}
