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

import "fmt"

// This file implements the version tree: the parent/child/sibling
// splicing operations that keep the tree and its rings consistent across
// snapshot-insert and delete-version.

// TraceRoot walks in's ParentRef chain up to the root of its version tree
// and returns the root.
//
// The kernel module this was ported from initializes the walk cursor from
// a pointer that is left uninitialized on the very first iteration when in
// is itself already the root; this port starts the cursor at in and
// returns it immediately in that case instead.
func TraceRoot(store *Store, in *Inode) (*Inode, error) {
	cur := in
	for !cur.IsRoot() {
		parent, err := store.Resolve(cur.ParentRef)
		if err != nil {
			return nil, NewError(KindBrokenLink, "TraceRoot", err)
		}
		if parent == nil {
			return nil, NewError(KindBrokenLink, "TraceRoot", fmt.Errorf("inode %d has a nil parent link", cur.Self.ID))
		}
		cur = parent
	}
	return cur, nil
}

// walkChangeParent rewrites ParentRef to newParent.Self for every inode in
// members, marking each dirty. It is the shared primitive behind both the
// snapshot-insert and Detach re-parenting steps.
func walkChangeParent(h dirtyMarker, members []*Inode, newParent Ino) {
	for _, m := range members {
		m.ParentRef = newParent
		markDirty(h, m.Self.ID)
	}
}

// InsertSnapshotChild splices new version n into target t's exact position
// (parent link and sibling ring slot), and makes t n's sole child.
//
// Preconditions: n is freshly minted (self-looped, no parent, no child).
func InsertSnapshotChild(h dirtyMarker, store *Store, t, n *Inode) error {
	parent, err := GetParentHandle(store, t)
	if err != nil {
		return err
	}

	// n inherits t's place under the parent.
	n.ParentRef = t.ParentRef
	if parent != nil && parent.ChildRef == t.Self {
		parent.ChildRef = n.Self
		markDirty(h, parent.Self.ID)
	}

	// n inherits t's place in the sibling ring.
	if t.SelfLooped() {
		SelfLink(n)
	} else {
		prev, err := store.Resolve(t.SibPrev)
		if err != nil {
			return NewError(KindBrokenLink, "InsertSnapshotChild", err)
		}
		next, err := store.Resolve(t.SibNext)
		if err != nil {
			return NewError(KindBrokenLink, "InsertSnapshotChild", err)
		}

		n.SibPrev, n.SibNext = t.SibPrev, t.SibNext
		if prev != nil {
			prev.SibNext = n.Self
			markDirty(h, prev.Self.ID)
		}
		if next != nil {
			next.SibPrev = n.Self
			markDirty(h, next.Self.ID)
		}
	}

	// t becomes n's only child, in a ring of its own.
	t.ParentRef = n.Self
	SelfLink(t)
	n.ChildRef = t.Self

	markDirty(h, t.Self.ID)
	markDirty(h, n.Self.ID)
	return nil
}

// spliceRingInPlace replaces the single-node slot occupied by old (between
// prev and next in its parent's sibling ring) with the ring headed by
// newHead, whose members are exactly newMembers. If old was self-looped
// (its only child slot), newHead simply becomes the new ring; otherwise the
// two open ends of the old ring are reattached around newHead's ring.
func spliceRingInPlace(h dirtyMarker, store *Store, old *Inode, newHead *Inode, newMembers []*Inode) error {
	if old.SelfLooped() || newHead == nil {
		return nil
	}

	prev, err := store.Resolve(old.SibPrev)
	if err != nil {
		return NewError(KindBrokenLink, "spliceRingInPlace", err)
	}
	next, err := store.Resolve(old.SibNext)
	if err != nil {
		return NewError(KindBrokenLink, "spliceRingInPlace", err)
	}

	tail := newHead
	if len(newMembers) > 0 {
		tail = newMembers[len(newMembers)-1]
	}

	if prev == old {
		// old was the only member of its own ring; nothing to reattach.
		return nil
	}

	prev.SibNext = newHead.Self
	newHead.SibPrev = prev.Self
	next.SibPrev = tail.Self
	tail.SibNext = next.Self

	markDirty(h, prev.Self.ID)
	markDirty(h, next.Self.ID)
	markDirty(h, newHead.Self.ID)
	markDirty(h, tail.Self.ID)
	return nil
}

// Detach removes target from its version tree and closes the gap it
// leaves. Three sub-cases:
//
//  1. target is a leaf (no children): it is simply removed from its sibling
//     ring, and the parent's ChildRef is retargeted if target was first.
//  2. target has children and has siblings: target's children are
//     re-parented to target's parent and their ring is spliced into the
//     surrounding sibling ring in target's place.
//  3. target has children and is its parent's only child: target's
//     children become the parent's children outright (ChildRef takes over).
//
// Detach does not itself decide whether target should become a phantom;
// callers make that decision from target's own Nlink and reachability.
func Detach(h dirtyMarker, store *Store, target *Inode) error {
	parent, err := GetParentHandle(store, target)
	if err != nil {
		return err
	}

	hadSiblings := !target.SelfLooped()
	isFirstChild := parent != nil && parent.ChildRef == target.Self

	if !target.HasChild() {
		// Case 1: leaf.
		if isFirstChild {
			if hadSiblings {
				parent.ChildRef = target.SibNext
			} else {
				parent.ChildRef = NilIno
			}
			markDirty(h, parent.Self.ID)
		}
		return Remove(h, store, target)
	}

	children, err := store.Resolve(target.ChildRef)
	if err != nil {
		return NewError(KindBrokenLink, "Detach", err)
	}
	members, err := Walk(store, children)
	if err != nil {
		return err
	}

	if !hadSiblings {
		// Case 3: target was its parent's only child; children take over
		// the slot outright.
		if parent != nil {
			parent.ChildRef = target.ChildRef
			markDirty(h, parent.Self.ID)
		}
		walkChangeParent(h, members, target.ParentRef)
		return nil
	}

	// Case 2: splice the children ring into target's place among its
	// siblings, then re-parent them.
	if isFirstChild {
		parent.ChildRef = target.SibNext
		markDirty(h, parent.Self.ID)
	}
	if err := spliceRingInPlace(h, store, target, children, members); err != nil {
		return err
	}
	walkChangeParent(h, members, target.ParentRef)
	return nil
}
