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

import "github.com/higuruchi/yuiha-kmod/journal"

// This file implements the orchestration that freezes a file's current
// state as a new historical version while the original inode keeps its
// identity and keeps accepting writes.
//
// The splice means the *new* inode N takes target T's old position in the
// tree and T becomes N's only child: N is the frozen copy, T is the
// version that goes on being written. This is why every one of T's block
// pointers gets its producer bit cleared here rather than N's: after the
// splice, T is the one sharing blocks it no longer owns, and the COW
// writer will give each of them a freshly produced copy, one for T and one
// copied up to N, the first time T is written to again.

// CreateSnapshot freezes target's current state into a new sibling-tree
// position and returns the frozen version N.
//
// openPages lists the Page objects any currently-open file handle holds for
// target; CreateSnapshot marks each Shared so the next write through that
// handle goes through COWWrite rather than overwriting history in place.
func CreateSnapshot(h *journal.Handle, store *Store, target *Inode, openPages []*Page) (*Inode, error) {
	n := store.Mint(target.Attrs)
	n.Blocks = append([]BlockPtr(nil), target.Blocks...)

	if err := InsertSnapshotChild(h, store, target, n); err != nil {
		return nil, err
	}

	// n inherits the vtree_nlink count if target used to be the tree root;
	// a non-root target's VTreeNlink is always zero already.
	n.VTreeNlink = target.VTreeNlink
	target.VTreeNlink = 0

	for i, ptr := range target.Blocks {
		target.Blocks[i] = ptr.WithProducer(false)
	}
	markDirty(h, target.Self.ID)
	markDirty(h, n.Self.ID)

	for _, p := range openPages {
		p.MarkShared()
	}

	return n, nil
}
