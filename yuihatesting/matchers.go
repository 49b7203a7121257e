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

// Package yuihatesting holds oglematchers matchers for asserting on version
// tree shape: sibling rings, block pointer producer/shared state and a
// node's position relative to a version number. These play the role
// fusetesting's stat/readdirplus matchers play for a live mount, but over
// the in-memory *yuiha.Inode graph a test builds directly against a Store.
package yuihatesting

import (
	"fmt"
	"reflect"

	yuiha "github.com/higuruchi/yuiha-kmod"
	"github.com/jacobsa/oglematchers"
)

// SiblingRingIs matches a *yuiha.Inode whose sibling ring, walked forward
// from itself via SibNext, visits exactly the given ino+gen pairs in order.
func SiblingRingIs(store *yuiha.Store, want []yuiha.Ino) oglematchers.Matcher {
	return oglematchers.NewMatcher(
		func(c interface{}) error { return siblingRingIs(store, c, want) },
		fmt.Sprintf("sibling ring is %v", want))
}

func siblingRingIs(store *yuiha.Store, c interface{}, want []yuiha.Ino) error {
	head, ok := c.(*yuiha.Inode)
	if !ok {
		return fmt.Errorf("which is of type %v", reflect.TypeOf(c))
	}

	members, err := yuiha.Walk(store, head)
	if err != nil {
		return fmt.Errorf("which failed to walk: %w", err)
	}

	var got []yuiha.Ino
	for _, m := range members {
		got = append(got, m.Self)
	}

	if len(got) != len(want) {
		return fmt.Errorf("which has ring %v, wanted %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			return fmt.Errorf("which has ring %v, wanted %v", got, want)
		}
	}
	return nil
}

// ProducerBlockIs matches a *yuiha.Inode whose block at logical index idx is
// a producer pointer naming physical block number.
func ProducerBlockIs(idx int, number uint32) oglematchers.Matcher {
	return oglematchers.NewMatcher(
		func(c interface{}) error { return producerBlockIs(c, idx, number) },
		fmt.Sprintf("block %d is a producer pointer to %d", idx, number))
}

func producerBlockIs(c interface{}, idx int, number uint32) error {
	in, ok := c.(*yuiha.Inode)
	if !ok {
		return fmt.Errorf("which is of type %v", reflect.TypeOf(c))
	}
	if idx >= len(in.Blocks) {
		return fmt.Errorf("which has only %d blocks", len(in.Blocks))
	}
	ptr := in.Blocks[idx]
	if !ptr.IsProducer() {
		return fmt.Errorf("which block %d is not a producer pointer", idx)
	}
	if ptr.Number() != number {
		return fmt.Errorf("which block %d names %d, not %d", idx, ptr.Number(), number)
	}
	return nil
}

// SharedBlockIs matches a *yuiha.Inode whose block at logical index idx is a
// shared (non-producer, non-hole) pointer naming physical block number.
func SharedBlockIs(idx int, number uint32) oglematchers.Matcher {
	return oglematchers.NewMatcher(
		func(c interface{}) error { return sharedBlockIs(c, idx, number) },
		fmt.Sprintf("block %d is a shared pointer to %d", idx, number))
}

func sharedBlockIs(c interface{}, idx int, number uint32) error {
	in, ok := c.(*yuiha.Inode)
	if !ok {
		return fmt.Errorf("which is of type %v", reflect.TypeOf(c))
	}
	if idx >= len(in.Blocks) {
		return fmt.Errorf("which has only %d blocks", len(in.Blocks))
	}
	ptr := in.Blocks[idx]
	if ptr.IsProducer() || ptr.IsHole() {
		return fmt.Errorf("which block %d is not a shared pointer", idx)
	}
	if ptr.Number() != number {
		return fmt.Errorf("which block %d names %d, not %d", idx, ptr.Number(), number)
	}
	return nil
}

// BlockIsHole matches a *yuiha.Inode whose block at logical index idx is a
// hole (no physical block, producer or shared).
func BlockIsHole(idx int) oglematchers.Matcher {
	return oglematchers.NewMatcher(
		func(c interface{}) error { return blockIsHole(c, idx) },
		fmt.Sprintf("block %d is a hole", idx))
}

func blockIsHole(c interface{}, idx int) error {
	in, ok := c.(*yuiha.Inode)
	if !ok {
		return fmt.Errorf("which is of type %v", reflect.TypeOf(c))
	}
	if idx >= len(in.Blocks) {
		return fmt.Errorf("which has only %d blocks", len(in.Blocks))
	}
	if !in.Blocks[idx].IsHole() {
		return fmt.Errorf("which block %d is not a hole", idx)
	}
	return nil
}

// VersionOf matches a *yuiha.Inode whose Self.ID equals want, independent of
// generation. Useful when a test only cares which inode slot a lookup
// landed on, not which incarnation of it.
func VersionOf(want yuiha.InodeID) oglematchers.Matcher {
	return oglematchers.NewMatcher(
		func(c interface{}) error { return versionOf(c, want) },
		fmt.Sprintf("version of %d", want))
}

func versionOf(c interface{}, want yuiha.InodeID) error {
	in, ok := c.(*yuiha.Inode)
	if !ok {
		return fmt.Errorf("which is of type %v", reflect.TypeOf(c))
	}
	if in.Self.ID != want {
		return fmt.Errorf("which has ino %d, wanted %d", in.Self.ID, want)
	}
	return nil
}

// IsPhantom matches a *yuiha.Inode with its Phantom bit set.
func IsPhantom() oglematchers.Matcher {
	return oglematchers.NewMatcher(
		func(c interface{}) error { return isPhantom(c) },
		"is phantom")
}

func isPhantom(c interface{}) error {
	in, ok := c.(*yuiha.Inode)
	if !ok {
		return fmt.Errorf("which is of type %v", reflect.TypeOf(c))
	}
	if !in.Phantom {
		return fmt.Errorf("which is not phantom")
	}
	return nil
}
