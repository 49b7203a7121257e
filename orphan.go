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

import "sync"

// This file implements phantom/orphan tracking: an inode with zero
// directory nlink but non-zero version-tree reachability is kept around
// (marked phantom) rather than reclaimed outright, because descendant
// versions may still share its producer blocks.

// OrphanList is the superblock-level registry of phantom inodes. It is held
// in memory only: it is not persisted, starts empty on every mount, and no
// mount-time sweep walks it.
type OrphanList struct {
	mu      sync.Mutex
	entries map[InodeID]struct{}
}

// NewOrphanList returns an empty orphan list.
func NewOrphanList() *OrphanList {
	return &OrphanList{entries: make(map[InodeID]struct{})}
}

// MarkPhantom records in as phantom: it has no directory entry of its own
// but descendants still reach it through the version tree, so it must
// survive until they stop sharing its blocks.
func (o *OrphanList) MarkPhantom(h dirtyMarker, in *Inode) {
	in.Phantom = true
	o.mu.Lock()
	o.entries[in.Self.ID] = struct{}{}
	o.mu.Unlock()
	markDirty(h, in.Self.ID)
}

// Release drops in from the orphan list once the last descendant that
// shared its producer blocks has materialized its own copy via COW, or
// once Detach has spliced it out of the tree entirely. Callers are
// responsible for then calling Store.Remove.
func (o *OrphanList) Release(in *Inode) {
	o.mu.Lock()
	delete(o.entries, in.Self.ID)
	o.mu.Unlock()
	in.Phantom = false
}

// Contains reports whether id is currently tracked as phantom.
func (o *OrphanList) Contains(id InodeID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.entries[id]
	return ok
}

// Entries returns a snapshot of every inode ID currently on the orphan
// list, in no particular order.
func (o *OrphanList) Entries() []InodeID {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]InodeID, 0, len(o.entries))
	for id := range o.entries {
		out = append(out, id)
	}
	return out
}

// ReclaimIfUnreferenced checks whether in is phantom, has no remaining
// children and is not still the producer of any block a live inode might
// read through, and if so removes it from the store and the orphan list.
// stillShared reports whether any live descendant still depends on one of
// in's producer blocks; callers compute it by walking open block pointers,
// which only fsserver has visibility into.
func (o *OrphanList) ReclaimIfUnreferenced(store *Store, in *Inode, stillShared bool) bool {
	if !in.Phantom || in.HasChild() || stillShared {
		return false
	}
	o.Release(in)
	store.Remove(in.Self.ID)
	return true
}
