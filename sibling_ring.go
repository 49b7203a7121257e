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

// This file implements the sibling ring: the doubly-linked circular list
// of inodes sharing a parent in the version tree, addressed by ino+gen
// pairs rather than raw pointers.
//
// The ring must be updated atomically under the parent's inode mutex, or
// for root changes an equivalent super-level lock; callers of every
// function here are expected to already hold whatever lock guards the ring
// they're touching.

// SelfLink makes n an isolated, single-member sibling ring. Used for brand
// new files and for a node detached from a ring that had only it left in
// it.
func SelfLink(n *Inode) {
	n.SibPrev = n.Self
	n.SibNext = n.Self
}

// InsertAfter splices n into the ring immediately after head, resolving the
// existing link (head -> tail) through store. O(1); tail may equal head (a
// ring of size 1).
func InsertAfter(h dirtyMarker, store *Store, head *Inode, n *Inode) error {
	tail, err := store.Resolve(head.SibNext)
	if err != nil {
		return NewError(KindBrokenLink, "InsertAfter", err)
	}
	if tail == nil {
		// head was somehow unlinked; treat it as self-looped.
		tail = head
	}

	n.SibPrev = head.Self
	n.SibNext = tail.Self
	head.SibNext = n.Self
	tail.SibPrev = n.Self

	markDirty(h, head.Self.ID)
	markDirty(h, tail.Self.ID)
	markDirty(h, n.Self.ID)
	return nil
}

// Remove splices r out of whatever ring it is in and self-loops it. If r is
// already self-looped this is a no-op.
func Remove(h dirtyMarker, store *Store, r *Inode) error {
	if r.SelfLooped() {
		return nil
	}

	prev, err := store.Resolve(r.SibPrev)
	if err != nil {
		return NewError(KindBrokenLink, "Remove", err)
	}
	next, err := store.Resolve(r.SibNext)
	if err != nil {
		return NewError(KindBrokenLink, "Remove", err)
	}

	if prev != nil {
		prev.SibNext = next.Self
		markDirty(h, prev.Self.ID)
	}
	if next != nil {
		next.SibPrev = prev.Self
		markDirty(h, next.Self.ID)
	}

	SelfLink(r)
	markDirty(h, r.Self.ID)
	return nil
}

// IsSmallRing reports whether h's ring has size <= 2, which the snapshot
// path uses to decide whether a child ring must be rewritten rather than
// merely spliced.
func IsSmallRing(h *Inode) bool {
	return h.SibNext == h.SibPrev
}

// Walk returns the finite sequence of inodes in the ring starting at h:
// h, h.next, ..., back to h. It is the primitive walkChangeParent iterates
// over.
func Walk(store *Store, head *Inode) ([]*Inode, error) {
	var out []*Inode

	cur := head
	for {
		out = append(out, cur)

		next, err := store.Resolve(cur.SibNext)
		if err != nil {
			return nil, NewError(KindBrokenLink, "Walk", err)
		}
		if next == nil || next.Self == head.Self {
			break
		}
		cur = next
	}
	return out, nil
}

// RingSize reports the number of inodes in h's sibling ring. It exists
// mainly to state ring-closure as executable code in tests.
func RingSize(store *Store, head *Inode) (int, error) {
	members, err := Walk(store, head)
	if err != nil {
		return 0, err
	}
	return len(members), nil
}
