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

// This file implements the version record: pure accessors plus the
// in-memory parent-handle cache, and the mutators that journal a
// dirty-mark on the inode they touch.

// GetParentHandle returns the cached parent handle for in, resolving and
// caching it via store if it is not yet cached. It returns (nil, nil) for
// the root of a version tree.
func GetParentHandle(store *Store, in *Inode) (*Inode, error) {
	if in.parentHandle != nil {
		return in.parentHandle, nil
	}
	if in.ParentRef.IsNil() {
		return nil, nil
	}

	parent, err := store.Resolve(in.ParentRef)
	if err != nil {
		return nil, NewError(KindBrokenLink, "GetParentHandle", err)
	}

	in.parentHandle = parent
	return parent, nil
}

// ReleaseParentHandle drops in's cached parent handle. It is meant to be
// called when the file's open reference count on the inode transitions
// back to 1 (the last open file handle releasing); the kernel module this
// was ported from leaves some of those call sites commented out, which is
// a bug and not behavior to reproduce, so fsserver calls this
// unconditionally from its ReleaseFileHandle path once Store.Unref reports
// the handle was the last one.
func ReleaseParentHandle(in *Inode) {
	in.parentHandle = nil
}

// dirtyMarker is the minimal surface the sibling ring and tree-splicing
// operations need from the journal: every mutator in this package marks
// the inodes it touches dirty under the caller's handle. Every mutator
// takes a journal handle; failing to journal a touched inode is fatal for
// the caller's transaction.
type dirtyMarker interface {
	MarkDirty(id uint64)
}

// markDirty is a small adapter so call sites can pass an InodeID directly.
func markDirty(h dirtyMarker, id InodeID) {
	h.MarkDirty(uint64(id))
}
