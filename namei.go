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
	"hash/fnv"

	"github.com/higuruchi/yuiha-kmod/journal"
)

// This file implements version-aware lookup: the versioned dentry hash,
// open-intent resolution and the lookup algorithm built on top of it, plus
// Link/Unlink's vtree_nlink bookkeeping.

// DentryHash mixes a plain name hash with the resolved inode's (ino, gen)
// so two dentries sharing a textual name but naming different versions
// occupy distinct cache slots.
func DentryHash(name string, ref Ino) uint64 {
	fn := fnv.New64a()
	fn.Write([]byte(name))
	h := fn.Sum64()
	h = mix(h, uint64(ref.Gen))
	h = mix(h, uint64(ref.ID))
	return h
}

// mix is a small avalanche finisher (murmur3's fmix64), standing in for
// whatever partial-name hash finalizer the base filesystem uses.
func mix(h, v uint64) uint64 {
	h ^= v
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	h *= 0xc4ceb9fe1a85ec53
	h ^= h >> 33
	return h
}

// DentryCache maps a versioned dentry hash to the inode it was last
// spliced to, standing in for the VFS dentry cache.
type DentryCache struct {
	entries map[uint64]*Inode
}

// NewDentryCache returns an empty cache.
func NewDentryCache() *DentryCache {
	return &DentryCache{entries: make(map[uint64]*Inode)}
}

// Lookup returns the cached inode for (name, ref), if any.
func (c *DentryCache) Lookup(name string, ref Ino) *Inode {
	return c.entries[DentryHash(name, ref)]
}

// Splice records that name, as resolved to ref, names in.
func (c *DentryCache) Splice(name string, ref Ino, in *Inode) {
	c.entries[DentryHash(name, ref)] = in
}

// resolveIntent applies the O_VSEARCH / O_PARENT / O_VERSION precedence
// rules to base, returning the inode the open should actually act on and
// whether that action must snapshot it first.
//
// Precedence: O_VSEARCH resolves to the requested version node (then
// O_PARENT/write-snapshot logic still applies to *that* node); O_PARENT
// replaces the target with its parent; a write request carrying O_VERSION
// or O_VSEARCH, or landing on a node with an existing child, snapshots the
// current node; otherwise this is a standard lookup. O_VSEARCH always
// snapshots on write regardless of whether the requested version already
// has a child, since opening a specific historical version for write must
// never mutate it in place.
func resolveIntent(store *Store, base *Inode, intent OpenIntent, versionIno InodeID, writeRequested bool) (target *Inode, snapshotFirst bool, err error) {
	target = base

	if intent.Has(OVSearch) {
		v := store.Lookup(versionIno)
		if v == nil {
			return nil, false, NewError(KindNotFound, "resolveIntent", nil)
		}
		target = v
	}

	if intent.Has(OParent) {
		parent, err := GetParentHandle(store, target)
		if err != nil {
			return nil, false, err
		}
		if parent == nil {
			return nil, false, NewError(KindNotPermitted, "resolveIntent", nil)
		}
		if writeRequested {
			snapshotFirst = true
		}
		target = parent
		return target, snapshotFirst, nil
	}

	if writeRequested && (intent.Has(OVersion) || intent.Has(OVSearch) || target.HasChild()) {
		snapshotFirst = true
	}
	return target, snapshotFirst, nil
}

// Lookup implements the regular-file lookup algorithm: it resolves intent,
// snapshots when required, splices the versioned dentry and returns the
// inode the caller should actually operate on.
func Lookup(h *journal.Handle, store *Store, cache *DentryCache, name string, base *Inode, intent OpenIntent, versionIno InodeID, writeRequested bool, openPages []*Page) (*Inode, error) {
	target, snapshotFirst, err := resolveIntent(store, base, intent, versionIno, writeRequested)
	if err != nil {
		return nil, err
	}

	if snapshotFirst {
		// CreateSnapshot freezes target's current state into a new history
		// node and leaves target itself as the node further writes land on;
		// the open continues to resolve to target, not the frozen copy.
		if _, err := CreateSnapshot(h, store, target, openPages); err != nil {
			return nil, err
		}
	}

	ref := target.Self
	if cached := cache.Lookup(name, ref); cached != nil {
		return cached, nil
	}
	cache.Splice(name, ref, target)
	return target, nil
}

// Link traces to the version tree's root and bumps its vtree_nlink, the
// single reference-count carrier for the whole tree.
func Link(h dirtyMarker, store *Store, in *Inode) error {
	root, err := TraceRoot(store, in)
	if err != nil {
		return err
	}
	root.VTreeNlink++
	markDirty(h, root.Self.ID)
	return nil
}

// Unlink is the symmetric decrement. It returns true if the tree's
// vtree_nlink reached zero, meaning the whole tree is now eligible for
// reclamation.
func Unlink(h dirtyMarker, store *Store, in *Inode) (treeUnreferenced bool, err error) {
	root, err := TraceRoot(store, in)
	if err != nil {
		return false, err
	}
	if root.VTreeNlink > 0 {
		root.VTreeNlink--
	}
	markDirty(h, root.Self.ID)
	return root.VTreeNlink == 0, nil
}
